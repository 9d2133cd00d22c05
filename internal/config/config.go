package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main Finsight configuration
type Config struct {
	// LLM provider configuration
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Market data configuration
	Data DataConfig `json:"data" mapstructure:"data"`

	// Analysis defaults
	Analysis AnalysisConfig `json:"analysis" mapstructure:"analysis"`

	// Session preference storage
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Run history storage
	History HistoryConfig `json:"history" mapstructure:"history"`

	// Watchlist file
	Watchlist WatchlistConfig `json:"watchlist" mapstructure:"watchlist"`

	// Scheduled runs
	Schedule ScheduleConfig `json:"schedule" mapstructure:"schedule"`

	// Gateway server configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider string       `json:"provider" mapstructure:"provider"` // dashscope, openai, anthropic
	Model    string       `json:"model" mapstructure:"model"`
	Profiles []LLMProfile `json:"profiles" mapstructure:"profiles"`
}

// LLMProfile represents an LLM provider credential profile
type LLMProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // dashscope, openai, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// DataConfig holds market data fetch configuration
type DataConfig struct {
	BaseURL        string `json:"base_url" mapstructure:"base_url"`
	NewsToken      string `json:"news_token" mapstructure:"news_token"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	PacingMs       int    `json:"pacing_ms" mapstructure:"pacing_ms"`
}

// AnalysisConfig holds analysis run defaults
type AnalysisConfig struct {
	Analysts      []string `json:"analysts" mapstructure:"analysts"` // market, fundamentals, sentiment, news
	ResearchDepth int      `json:"research_depth" mapstructure:"research_depth"`
	MarketType    string   `json:"market_type" mapstructure:"market_type"` // A-share, US, HK
}

// SessionConfig holds session preference storage settings
type SessionConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// HistoryConfig holds run history storage settings
type HistoryConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// WatchlistConfig holds watchlist file settings
type WatchlistConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ScheduleConfig holds scheduled run settings
type ScheduleConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	StorePath string `json:"store_path" mapstructure:"store_path"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "dashscope",
			Model:    "qwen-plus",
			Profiles: []LLMProfile{},
		},
		Data: DataConfig{
			TimeoutSeconds: 30,
			PacingMs:       1000,
		},
		Analysis: AnalysisConfig{
			Analysts:      []string{"fundamentals"},
			ResearchDepth: 1,
			MarketType:    "A-share",
		},
		Schedule: ScheduleConfig{
			Enabled: true,
		},
		Gateway: GatewayConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			SharedSecret: "",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Require at least one LLM profile
	if len(c.LLM.Profiles) == 0 {
		return fmt.Errorf("no LLM credentials configured: at least one LLM profile is required")
	}

	// Validate LLM profiles
	for i, profile := range c.LLM.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("LLM profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("LLM profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("LLM profile %s: api_key is required", profile.ID)
		}
		validProviders := []string{"dashscope", "openai", "anthropic"}
		valid := false
		for _, vp := range validProviders {
			if profile.Provider == vp {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("LLM profile %s: invalid provider %s (must be: dashscope, openai, anthropic)", profile.ID, profile.Provider)
		}
	}

	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}

	// Validate analysis defaults
	if c.Analysis.ResearchDepth < 1 || c.Analysis.ResearchDepth > 3 {
		return fmt.Errorf("analysis.research_depth must be between 1 and 3, got %d", c.Analysis.ResearchDepth)
	}
	validAnalysts := map[string]bool{"market": true, "fundamentals": true, "sentiment": true, "news": true}
	for _, analyst := range c.Analysis.Analysts {
		if !validAnalysts[analyst] {
			return fmt.Errorf("invalid analyst %s (must be: market, fundamentals, sentiment, news)", analyst)
		}
	}
	if c.Analysis.MarketType != "" && c.Analysis.MarketType != "A-share" && c.Analysis.MarketType != "US" && c.Analysis.MarketType != "HK" {
		return fmt.Errorf("invalid market type: %s", c.Analysis.MarketType)
	}

	// Validate gateway
	if c.Gateway.Port < 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway port must be between 0 and 65535, got %d", c.Gateway.Port)
	}

	// Validate data fetch settings
	if c.Data.TimeoutSeconds < 0 {
		return fmt.Errorf("data.timeout_seconds must be >= 0")
	}
	if c.Data.PacingMs < 0 {
		return fmt.Errorf("data.pacing_ms must be >= 0")
	}

	return nil
}
