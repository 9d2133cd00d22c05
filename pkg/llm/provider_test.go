package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozhang/finsight/internal/config"
)

func TestNewProvider(t *testing.T) {
	t.Run("dashscope", func(t *testing.T) {
		p, err := NewProvider(config.LLMProfile{Provider: "dashscope", APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, "dashscope", p.Provider())
	})

	t.Run("openai", func(t *testing.T) {
		p, err := NewProvider(config.LLMProfile{Provider: "openai", APIKey: "sk-test"})
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Provider())
	})

	t.Run("anthropic", func(t *testing.T) {
		p, err := NewProvider(config.LLMProfile{Provider: "anthropic", APIKey: "sk-ant-test"})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", p.Provider())
	})

	t.Run("unsupported provider", func(t *testing.T) {
		_, err := NewProvider(config.LLMProfile{Provider: "gemini", APIKey: "key"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported provider: gemini")
	})
}

func TestSelectProfile(t *testing.T) {
	profiles := []config.LLMProfile{
		{ID: "backup", Provider: "dashscope", APIKey: "sk-b", Priority: 2},
		{ID: "main", Provider: "dashscope", APIKey: "sk-a", Priority: 1},
		{ID: "oai", Provider: "openai", APIKey: "sk-c", Priority: 3},
	}

	t.Run("picks lowest priority for provider", func(t *testing.T) {
		p, err := SelectProfile(profiles, "dashscope")
		require.NoError(t, err)
		assert.Equal(t, "main", p.ID)
	})

	t.Run("empty provider selects across all profiles", func(t *testing.T) {
		p, err := SelectProfile(profiles, "")
		require.NoError(t, err)
		assert.Equal(t, "main", p.ID)
	})

	t.Run("equal priority keeps listed order", func(t *testing.T) {
		tied := []config.LLMProfile{
			{ID: "first", Provider: "openai", Priority: 1},
			{ID: "second", Provider: "openai", Priority: 1},
		}
		p, err := SelectProfile(tied, "openai")
		require.NoError(t, err)
		assert.Equal(t, "first", p.ID)
	})

	t.Run("no profile for provider", func(t *testing.T) {
		_, err := SelectProfile(profiles, "anthropic")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no LLM credentials configured for provider anthropic")
	})

	t.Run("no profiles at all", func(t *testing.T) {
		_, err := SelectProfile(nil, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no LLM credentials configured")
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Run("resolves configured provider", func(t *testing.T) {
		cfg := config.LLMConfig{
			Provider: "dashscope",
			Model:    "qwen-plus",
			Profiles: []config.LLMProfile{
				{ID: "main", Provider: "dashscope", APIKey: "sk-test", Priority: 1},
			},
		}
		p, err := NewFromConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "dashscope", p.Provider())
	})

	t.Run("fails without credentials", func(t *testing.T) {
		_, err := NewFromConfig(config.LLMConfig{Provider: "dashscope"})
		require.Error(t, err)
	})
}
