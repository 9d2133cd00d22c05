package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== Finsight Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// Provider
	fmt.Println("LLM Provider options:")
	fmt.Println("  dashscope - Alibaba Cloud DashScope (Qwen models, default)")
	fmt.Println("  openai    - OpenAI")
	fmt.Println("  anthropic - Anthropic")
	fmt.Print("Provider [dashscope]: ")
	provider, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if provider == "" {
		provider = "dashscope"
	}
	if err := validator.ValidateProvider(provider); err != nil {
		fmt.Printf("Warning: %v, using default (dashscope)\n", err)
		provider = "dashscope"
	}
	cfg.LLM.Provider = provider

	// API key
	for {
		fmt.Printf("%s API Key: ", provider)
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if key == "" {
			fmt.Println("Error: an API key is required")
			continue
		}

		if err := validator.ValidateAPIKey(key, provider); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.LLM.Profiles = append(cfg.LLM.Profiles, LLMProfile{
			ID:       "default",
			Provider: provider,
			APIKey:   key,
			Priority: 1,
		})
		break
	}

	fmt.Println()

	// Model
	defaultModel := "qwen-plus"
	switch provider {
	case "openai":
		defaultModel = "gpt-4o"
	case "anthropic":
		defaultModel = "claude-sonnet-4"
	}
	fmt.Printf("Model name [%s]: ", defaultModel)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = defaultModel
	}
	cfg.LLM.Model = model

	fmt.Println()

	// Market type
	fmt.Println("Market type options: A-share, US, HK")
	fmt.Print("Market type [A-share]: ")
	market, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if market != "" {
		if err := validator.ValidateMarketType(market); err != nil {
			fmt.Printf("Warning: %v, using default (A-share)\n", err)
		} else {
			cfg.Analysis.MarketType = market
		}
	}

	fmt.Println()

	// Gateway
	fmt.Print("Enable gateway server? (y/n) [n]: ")
	enable, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if strings.ToLower(enable) == "y" {
		fmt.Print("Gateway shared secret (press Enter to skip): ")
		secret, err := w.readLine()
		if err != nil {
			return nil, err
		}
		cfg.Gateway.SharedSecret = secret
	}

	fmt.Println()

	// Log level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}

	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
