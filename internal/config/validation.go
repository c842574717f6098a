package config

import (
	"fmt"
	"os"
)

// Validate checks that the configuration is usable.
// Returns the first error found; callers should treat any error as fatal.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.BasicMessagesPerMonth <= 0 {
		return fmt.Errorf("%w: basic_messages_per_month must be positive, got %d",
			ErrInvalidQuota, c.BasicMessagesPerMonth)
	}
	if c.VIPMessagesPerMonth <= 0 {
		return fmt.Errorf("%w: vip_messages_per_month must be positive, got %d",
			ErrInvalidQuota, c.VIPMessagesPerMonth)
	}
	if c.TrialPeriodDays <= 0 {
		return fmt.Errorf("%w: trial_period_days must be positive, got %d",
			ErrInvalidTrialPeriod, c.TrialPeriodDays)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("%w: rate_limit_per_minute must be positive, got %d",
			ErrInvalidRateLimit, c.RateLimitPerMinute)
	}
	if c.RateLimitPerHour <= 0 {
		return fmt.Errorf("%w: rate_limit_per_hour must be positive, got %d",
			ErrInvalidRateLimit, c.RateLimitPerHour)
	}
	if c.VIPRateMultiplier < 1 {
		return fmt.Errorf("%w: vip_rate_multiplier must be at least 1, got %d",
			ErrInvalidRateMultiplier, c.VIPRateMultiplier)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold must be in [0, 1], got %g",
			ErrInvalidThreshold, c.ConfidenceThreshold)
	}
	if c.RetrievalTopK <= 0 || c.RetrievalTopK > 100 {
		return fmt.Errorf("%w: retrieval_top_k must be in [1, 100], got %d",
			ErrInvalidTopK, c.RetrievalTopK)
	}
	if c.CostMicrosPer1KTokens < 0 {
		return fmt.Errorf("%w: cost_micros_per_1k_tokens must be non-negative, got %d",
			ErrInvalidTokenCost, c.CostMicrosPer1KTokens)
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	return c.validateAPIKeys()
}

// ValidateStorage checks only the database configuration. Used by commands
// that touch storage but never call the model provider, such as migrate.
func (c *Config) ValidateStorage() error {
	if c == nil {
		return ErrConfigNil
	}
	return c.validateStorage()
}

// validateAPIKeys confirms a key exists for the selected provider.
// Keys are consumed by the Genkit plugin directly from the environment.
func (c *Config) validateAPIKeys() error {
	switch c.Provider {
	case ProviderGemini, ProviderGoogleAI:
		if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY or GOOGLE_API_KEY required for provider %q",
				ErrMissingAPIKey, c.Provider)
		}
	}
	return nil
}
