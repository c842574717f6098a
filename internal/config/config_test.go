package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

// baseConfig returns a valid configuration for tests to mutate.
func baseConfig() *Config {
	return &Config{
		BasicMessagesPerMonth: DefaultBasicMessagesPerMonth,
		VIPMessagesPerMonth:   DefaultVIPMessagesPerMonth,
		TrialPeriodDays:       DefaultTrialPeriodDays,
		RateLimitPerMinute:    DefaultRateLimitPerMinute,
		RateLimitPerHour:      DefaultRateLimitPerHour,
		VIPRateMultiplier:     DefaultVIPRateMultiplier,
		ConfidenceThreshold:   DefaultConfidenceThreshold,
		RetrievalTopK:         DefaultRetrievalTopK,
		CostMicrosPer1KTokens: DefaultCostMicrosPer1KTokens,
		Provider:              ProviderGemini,
		ModelName:             "gemini-2.5-flash",
		PostgresHost:          "localhost",
		PostgresPort:          5432,
		PostgresUser:          "mentora",
		PostgresDBName:        "mentora",
		PostgresSSLMode:       "disable",
	}
}

// TestLoadDefaults tests that default configuration values are loaded correctly
func TestLoadDefaults(t *testing.T) {
	viper.Reset()

	// Temp HOME means no existing config.yaml, so pure defaults apply.
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "test-api-key")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BasicMessagesPerMonth != DefaultBasicMessagesPerMonth {
		t.Errorf("expected default BasicMessagesPerMonth %d, got %d",
			DefaultBasicMessagesPerMonth, cfg.BasicMessagesPerMonth)
	}
	if cfg.VIPMessagesPerMonth != DefaultVIPMessagesPerMonth {
		t.Errorf("expected default VIPMessagesPerMonth %d, got %d",
			DefaultVIPMessagesPerMonth, cfg.VIPMessagesPerMonth)
	}
	if cfg.TrialPeriodDays != DefaultTrialPeriodDays {
		t.Errorf("expected default TrialPeriodDays %d, got %d",
			DefaultTrialPeriodDays, cfg.TrialPeriodDays)
	}
	if cfg.RateLimitPerMinute != DefaultRateLimitPerMinute {
		t.Errorf("expected default RateLimitPerMinute %d, got %d",
			DefaultRateLimitPerMinute, cfg.RateLimitPerMinute)
	}
	if cfg.RateLimitPerHour != DefaultRateLimitPerHour {
		t.Errorf("expected default RateLimitPerHour %d, got %d",
			DefaultRateLimitPerHour, cfg.RateLimitPerHour)
	}
	if cfg.VIPRateMultiplier != DefaultVIPRateMultiplier {
		t.Errorf("expected default VIPRateMultiplier %d, got %d",
			DefaultVIPRateMultiplier, cfg.VIPRateMultiplier)
	}
	if cfg.ConfidenceThreshold != DefaultConfidenceThreshold {
		t.Errorf("expected default ConfidenceThreshold %g, got %g",
			DefaultConfidenceThreshold, cfg.ConfidenceThreshold)
	}
	if cfg.RetrievalTopK != DefaultRetrievalTopK {
		t.Errorf("expected default RetrievalTopK %d, got %d",
			DefaultRetrievalTopK, cfg.RetrievalTopK)
	}
	if cfg.ModelName != "gemini-2.5-flash" {
		t.Errorf("expected default ModelName 'gemini-2.5-flash', got %q", cfg.ModelName)
	}
}

// TestEnvironmentOverrides tests that environment variables take priority over defaults
func TestEnvironmentOverrides(t *testing.T) {
	viper.Reset()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "test-api-key")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("BASIC_MEMBER_MESSAGES_PER_MONTH", "100")
	t.Setenv("VIP_MEMBER_MESSAGES_PER_MONTH", "5000")
	t.Setenv("TRIAL_PERIOD_DAYS", "14")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.85")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.BasicMessagesPerMonth != 100 {
		t.Errorf("expected BasicMessagesPerMonth 100, got %d", cfg.BasicMessagesPerMonth)
	}
	if cfg.VIPMessagesPerMonth != 5000 {
		t.Errorf("expected VIPMessagesPerMonth 5000, got %d", cfg.VIPMessagesPerMonth)
	}
	if cfg.TrialPeriodDays != 14 {
		t.Errorf("expected TrialPeriodDays 14, got %d", cfg.TrialPeriodDays)
	}
	if cfg.RateLimitPerMinute != 30 {
		t.Errorf("expected RateLimitPerMinute 30, got %d", cfg.RateLimitPerMinute)
	}
	if cfg.ConfidenceThreshold != 0.85 {
		t.Errorf("expected ConfidenceThreshold 0.85, got %g", cfg.ConfidenceThreshold)
	}
}

// TestValidate tests configuration validation rules
func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-api-key")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: nil,
		},
		{
			name:    "zero basic quota",
			mutate:  func(c *Config) { c.BasicMessagesPerMonth = 0 },
			wantErr: ErrInvalidQuota,
		},
		{
			name:    "negative vip quota",
			mutate:  func(c *Config) { c.VIPMessagesPerMonth = -1 },
			wantErr: ErrInvalidQuota,
		},
		{
			name:    "zero trial period",
			mutate:  func(c *Config) { c.TrialPeriodDays = 0 },
			wantErr: ErrInvalidTrialPeriod,
		},
		{
			name:    "zero minute rate",
			mutate:  func(c *Config) { c.RateLimitPerMinute = 0 },
			wantErr: ErrInvalidRateLimit,
		},
		{
			name:    "zero hour rate",
			mutate:  func(c *Config) { c.RateLimitPerHour = 0 },
			wantErr: ErrInvalidRateLimit,
		},
		{
			name:    "multiplier below one",
			mutate:  func(c *Config) { c.VIPRateMultiplier = 0 },
			wantErr: ErrInvalidRateMultiplier,
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.ConfidenceThreshold = 1.5 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "negative threshold",
			mutate:  func(c *Config) { c.ConfidenceThreshold = -0.1 },
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "zero top-k",
			mutate:  func(c *Config) { c.RetrievalTopK = 0 },
			wantErr: ErrInvalidTopK,
		},
		{
			name:    "negative token cost",
			mutate:  func(c *Config) { c.CostMicrosPer1KTokens = -1 },
			wantErr: ErrInvalidTokenCost,
		},
		{
			name:    "empty postgres host",
			mutate:  func(c *Config) { c.PostgresHost = "" },
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.PostgresPort = 70000 },
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name:    "bad ssl mode",
			mutate:  func(c *Config) { c.PostgresSSLMode = "yes" },
			wantErr: ErrInvalidPostgresSSLMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestValidateNilConfig tests validation of a nil config
func TestValidateNilConfig(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Validate() on nil = %v, want ErrConfigNil", err)
	}
}

// TestMissingAPIKey tests that validation fails without a provider key
func TestMissingAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	cfg := baseConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Validate() = %v, want ErrMissingAPIKey", err)
	}
}

// TestMarshalJSONMasksSecrets tests sensitive field masking
func TestMarshalJSONMasksSecrets(t *testing.T) {
	cfg := baseConfig()
	cfg.PostgresPassword = "super-secret-password"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	s := string(data)
	if strings.Contains(s, "super-secret-password") {
		t.Error("marshaled config contains plaintext password")
	}
	if !strings.Contains(s, maskedValue) {
		t.Error("marshaled config does not contain mask placeholder")
	}
}

// TestMaskSecret tests the masking helper edge cases
func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		check func(string) bool
	}{
		{"empty", "", func(s string) bool { return s == "" }},
		{"short fully masked", "abc123", func(s string) bool { return s == maskedValue }},
		{"long shows edges", "abcdefghijkl", func(s string) bool {
			return strings.HasPrefix(s, "ab") && strings.HasSuffix(s, "kl") &&
				!strings.Contains(s, "cdefghij")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.in); !tt.check(got) {
				t.Errorf("maskSecret(%q) = %q", tt.in, got)
			}
		})
	}
}

// TestFullModelName tests provider prefixing
func TestFullModelName(t *testing.T) {
	cfg := baseConfig()

	cfg.ModelName = "gemini-2.5-flash"
	if got := cfg.FullModelName(); got != "googleai/gemini-2.5-flash" {
		t.Errorf("FullModelName() = %q, want googleai/gemini-2.5-flash", got)
	}

	cfg.ModelName = "vertexai/gemini-2.5-pro"
	if got := cfg.FullModelName(); got != "vertexai/gemini-2.5-pro" {
		t.Errorf("FullModelName() = %q, want pass-through", got)
	}
}

func TestIsDev(t *testing.T) {
	tests := []struct {
		environment string
		want        bool
	}{
		{environment: "dev", want: true},
		{environment: "development", want: true},
		{environment: "local", want: true},
		{environment: "prod", want: false},
		{environment: "production", want: false},
		{environment: "staging", want: false},
		{environment: "", want: false},
	}

	for _, tt := range tests {
		cfg := baseConfig()
		cfg.Environment = tt.environment
		if got := cfg.IsDev(); got != tt.want {
			t.Errorf("IsDev() with environment %q = %v, want %v", tt.environment, got, tt.want)
		}
	}
}
