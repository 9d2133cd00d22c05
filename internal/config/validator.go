package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai", "dashscope":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid %s API key format (should start with sk-)", provider)
		}
	}

	return nil
}

// ValidateProvider validates an LLM provider name
func (v *Validator) ValidateProvider(provider string) error {
	if provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}

	validProviders := []string{"dashscope", "openai", "anthropic"}
	for _, valid := range validProviders {
		if provider == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	// Check if it's a known model
	knownModels := []string{
		"qwen-turbo",
		"qwen-plus",
		"qwen-max",
		"gpt-4o",
		"gpt-4o-mini",
		"claude-sonnet-4",
	}

	for _, known := range knownModels {
		if model == known {
			return nil
		}
	}

	// Allow custom models (just warn)
	return nil
}

// ValidateSecurityCode validates a six digit stock or fund code
func (v *Validator) ValidateSecurityCode(code string) error {
	if code == "" {
		return fmt.Errorf("security code cannot be empty")
	}

	pattern := regexp.MustCompile(`^\d{6}$`)
	if !pattern.MatchString(code) {
		return fmt.Errorf("invalid security code format: %s (must be exactly 6 digits)", code)
	}

	return nil
}

// ValidateMarketType validates a market type
func (v *Validator) ValidateMarketType(market string) error {
	if market == "" {
		return nil // Use default
	}

	validMarkets := []string{"A-share", "US", "HK"}
	for _, valid := range validMarkets {
		if market == valid {
			return nil
		}
	}

	return fmt.Errorf("invalid market type: %s (must be one of: %s)", market, strings.Join(validMarkets, ", "))
}

// ValidateAnalysts validates a list of analyst names
func (v *Validator) ValidateAnalysts(analysts []string) error {
	validAnalysts := []string{"market", "fundamentals", "sentiment", "news"}
	for _, analyst := range analysts {
		found := false
		for _, valid := range validAnalysts {
			if analyst == valid {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("invalid analyst: %s (must be one of: %s)", analyst, strings.Join(validAnalysts, ", "))
		}
	}
	return nil
}

// ValidateResearchDepth validates a research depth value
func (v *Validator) ValidateResearchDepth(depth int) error {
	if depth < 1 || depth > 3 {
		return fmt.Errorf("research depth must be between 1 and 3, got %d", depth)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate LLM profiles (canonical source)
	if len(cfg.LLM.Profiles) > 0 {
		for i, profile := range cfg.LLM.Profiles {
			if profile.Provider != "" {
				if err := v.ValidateProvider(profile.Provider); err != nil {
					errors = append(errors, fmt.Errorf("LLM profile %d (%s): %w", i, profile.ID, err))
					continue
				}
				if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
					errors = append(errors, fmt.Errorf("LLM profile %d (%s): %w", i, profile.ID, err))
				}
			}
		}
	}

	if err := v.ValidateModel(cfg.LLM.Model); err != nil {
		errors = append(errors, err)
	}

	// Validate analysis defaults
	if err := v.ValidateAnalysts(cfg.Analysis.Analysts); err != nil {
		errors = append(errors, err)
	}
	if cfg.Analysis.ResearchDepth != 0 {
		if err := v.ValidateResearchDepth(cfg.Analysis.ResearchDepth); err != nil {
			errors = append(errors, err)
		}
	}
	if err := v.ValidateMarketType(cfg.Analysis.MarketType); err != nil {
		errors = append(errors, err)
	}

	// Validate data fetch settings
	if cfg.Data.TimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("data.timeout_seconds must be >= 0"))
	}
	if cfg.Data.PacingMs < 0 {
		errors = append(errors, fmt.Errorf("data.pacing_ms must be >= 0"))
	}

	// Validate gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		errors = append(errors, fmt.Errorf("gateway port must be between 0 and 65535, got %d", cfg.Gateway.Port))
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
