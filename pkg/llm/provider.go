// Package llm wraps the chat completion providers behind one interface.
// DashScope is reached through its OpenAI-compatible endpoint, so the
// openai and dashscope providers share a client implementation.
package llm

import (
	"context"
	"fmt"
	"sort"

	"github.com/leozhang/finsight/internal/config"
)

// Provider is a chat completion backend.
type Provider interface {
	// Call makes a single completion request.
	Call(ctx context.Context, request Request) (*Response, error)

	// Provider returns the provider name.
	Provider() string
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains the parameters for one completion call.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Temperature  float64
	MaxTokens    int
}

// Response is the provider-neutral completion result.
type Response struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage reports the token counts of one call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
}

// NewProvider creates the provider named by the credential profile.
func NewProvider(profile config.LLMProfile) (Provider, error) {
	switch profile.Provider {
	case "dashscope":
		return NewDashScopeProvider(profile.APIKey, profile.BaseURL), nil
	case "openai":
		return NewOpenAIProvider(profile.APIKey, profile.BaseURL), nil
	case "anthropic":
		return NewAnthropicProvider(profile.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}

// SelectProfile picks the credential profile for the requested provider,
// lowest priority value first. An empty provider selects across all
// profiles.
func SelectProfile(profiles []config.LLMProfile, provider string) (config.LLMProfile, error) {
	candidates := make([]config.LLMProfile, 0, len(profiles))
	for _, p := range profiles {
		if provider == "" || p.Provider == provider {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		if provider == "" {
			return config.LLMProfile{}, fmt.Errorf("no LLM credentials configured")
		}
		return config.LLMProfile{}, fmt.Errorf("no LLM credentials configured for provider %s", provider)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})
	return candidates[0], nil
}

// NewFromConfig resolves the configured default provider.
func NewFromConfig(cfg config.LLMConfig) (Provider, error) {
	profile, err := SelectProfile(cfg.Profiles, cfg.Provider)
	if err != nil {
		return nil, err
	}
	return NewProvider(profile)
}
