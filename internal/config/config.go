// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.mentora/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Access control: monthly message quotas per tier, trial window, rate limits
//   - Retrieval: confidence threshold, top-K, embedder model
//   - AI: provider, model, temperature, max tokens, token cost
//   - Storage: PostgreSQL connection (see storage.go)
//
// The struct is constructed once at startup and threaded explicitly into each
// component's constructor; nothing reads the environment after Load returns.
//
// Security: sensitive fields (passwords) are masked in MarshalJSON and String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidQuota indicates a per-tier message quota is out of range.
	ErrInvalidQuota = errors.New("invalid message quota")

	// ErrInvalidTrialPeriod indicates the trial period is out of range.
	ErrInvalidTrialPeriod = errors.New("invalid trial period")

	// ErrInvalidRateLimit indicates a rate-limit setting is out of range.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidRateMultiplier indicates the VIP rate multiplier is out of range.
	ErrInvalidRateMultiplier = errors.New("invalid rate multiplier")

	// ErrInvalidThreshold indicates the confidence threshold is out of [0, 1].
	ErrInvalidThreshold = errors.New("invalid confidence threshold")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidTokenCost indicates the token cost rate is negative.
	ErrInvalidTokenCost = errors.New("invalid token cost")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Default access-control values. Overridable via config file or environment.
const (
	// DefaultBasicMessagesPerMonth is the monthly message quota for basic (trial) members.
	DefaultBasicMessagesPerMonth int64 = 50

	// DefaultVIPMessagesPerMonth is the monthly message quota for VIP members.
	DefaultVIPMessagesPerMonth int64 = 1000

	// DefaultTrialPeriodDays is the trial window length for new basic members.
	DefaultTrialPeriodDays = 7

	// DefaultRateLimitPerMinute is the per-identity sliding-window minute limit.
	DefaultRateLimitPerMinute = 60

	// DefaultRateLimitPerHour is the per-identity sliding-window hour limit.
	DefaultRateLimitPerHour = 1000

	// DefaultVIPRateMultiplier scales both rate windows for VIP members.
	DefaultVIPRateMultiplier = 5

	// DefaultConfidenceThreshold is the minimum similarity score for a
	// retrieval result to count as sufficient to answer.
	DefaultConfidenceThreshold = 0.7

	// DefaultRetrievalTopK is the number of chunks fetched per query.
	DefaultRetrievalTopK = 5

	// DefaultCostMicrosPer1KTokens is the billing rate in micro-dollars per
	// 1000 completion tokens (2000 = $0.002/1K).
	DefaultCostMicrosPer1KTokens int64 = 2000
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini   = "gemini"
	ProviderGoogleAI = "googleai"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// Access control
	BasicMessagesPerMonth int64 `mapstructure:"basic_messages_per_month" json:"basic_messages_per_month"`
	VIPMessagesPerMonth   int64 `mapstructure:"vip_messages_per_month" json:"vip_messages_per_month"`
	TrialPeriodDays       int   `mapstructure:"trial_period_days" json:"trial_period_days"`
	RateLimitPerMinute    int   `mapstructure:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	RateLimitPerHour      int   `mapstructure:"rate_limit_per_hour" json:"rate_limit_per_hour"`
	VIPRateMultiplier     int   `mapstructure:"vip_rate_multiplier" json:"vip_rate_multiplier"`

	// Retrieval
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" json:"confidence_threshold"`
	RetrievalTopK       int32   `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	DefaultNamespace    string  `mapstructure:"default_namespace" json:"default_namespace"`

	// AI provider and model configuration
	Provider      string  `mapstructure:"provider" json:"provider"`
	ModelName     string  `mapstructure:"model_name" json:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model" json:"embedder_model"`
	Temperature   float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens" json:"max_tokens"`
	MaxHistory    int     `mapstructure:"max_history" json:"max_history"`

	// Billing
	CostMicrosPer1KTokens int64 `mapstructure:"cost_micros_per_1k_tokens" json:"cost_micros_per_1k_tokens"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP serving
	CORSOrigins   []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy    bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	HTTPRateBurst int      `mapstructure:"http_rate_burst" json:"http_rate_burst"`

	// Observability (OTLP trace export; empty endpoint disables)
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".mentora")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Access control defaults
	v.SetDefault("basic_messages_per_month", DefaultBasicMessagesPerMonth)
	v.SetDefault("vip_messages_per_month", DefaultVIPMessagesPerMonth)
	v.SetDefault("trial_period_days", DefaultTrialPeriodDays)
	v.SetDefault("rate_limit_per_minute", DefaultRateLimitPerMinute)
	v.SetDefault("rate_limit_per_hour", DefaultRateLimitPerHour)
	v.SetDefault("vip_rate_multiplier", DefaultVIPRateMultiplier)

	// Retrieval defaults
	v.SetDefault("confidence_threshold", DefaultConfidenceThreshold)
	v.SetDefault("retrieval_top_k", DefaultRetrievalTopK)
	v.SetDefault("default_namespace", "faqs")

	// AI defaults
	v.SetDefault("provider", ProviderGemini)
	v.SetDefault("model_name", "gemini-2.5-flash")
	v.SetDefault("embedder_model", "gemini-embedding-001")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("max_tokens", 1000)
	v.SetDefault("max_history", 10)
	v.SetDefault("cost_micros_per_1k_tokens", DefaultCostMicrosPer1KTokens)

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "mentora")
	v.SetDefault("postgres_password", "mentora_dev_password")
	v.SetDefault("postgres_db_name", "mentora")
	v.SetDefault("postgres_ssl_mode", "disable")

	// HTTP defaults
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("trust_proxy", false)
	v.SetDefault("http_rate_burst", 60)

	// Observability defaults
	v.SetDefault("otlp_endpoint", "")
	v.SetDefault("service_name", "mentora")
	v.SetDefault("environment", "dev")
}

// bindEnvVariables binds recognized environment variables explicitly.
// The access-control names are the service's public configuration surface
// and keep their historical spelling.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("basic_messages_per_month", "BASIC_MEMBER_MESSAGES_PER_MONTH")
	mustBind("vip_messages_per_month", "VIP_MEMBER_MESSAGES_PER_MONTH")
	mustBind("trial_period_days", "TRIAL_PERIOD_DAYS")
	mustBind("rate_limit_per_minute", "RATE_LIMIT_PER_MINUTE")
	mustBind("rate_limit_per_hour", "RATE_LIMIT_PER_HOUR")
	mustBind("vip_rate_multiplier", "VIP_RATE_MULTIPLIER")
	mustBind("confidence_threshold", "CONFIDENCE_THRESHOLD")

	mustBind("provider", "MENTORA_PROVIDER")
	mustBind("model_name", "MENTORA_MODEL_NAME")
	mustBind("cors_origins", "MENTORA_CORS_ORIGINS")
	mustBind("trust_proxy", "MENTORA_TRUST_PROXY")
	mustBind("http_rate_burst", "MENTORA_HTTP_RATE_BURST")
	mustBind("otlp_endpoint", "MENTORA_OTLP_ENDPOINT")
	mustBind("environment", "MENTORA_ENVIRONMENT")

	// NOTE: GEMINI_API_KEY is read directly by Genkit, not via Viper.
	// Validation checks its presence based on the selected provider.
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 chars or fewer are fully masked to prevent substring matching;
// longer secrets show the first and last 2 characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// FullModelName returns the provider-qualified model name for Genkit.
// Example: "googleai/gemini-2.5-flash". Names already containing "/" pass through.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	return ProviderGoogleAI + "/" + c.ModelName
}

// IsDev reports whether the configured environment is a development one.
// Anything not explicitly dev-like counts as production, so staging and
// unknown environments keep production behavior (HSTS on).
func (c *Config) IsDev() bool {
	switch c.Environment {
	case "dev", "development", "local":
		return true
	}
	return false
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
