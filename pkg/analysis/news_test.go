package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/marketdata"
)

func TestNewsDigester_Digest(t *testing.T) {
	items := []marketdata.NewsItem{
		{Title: "Rate cut expected", Source: "wire", PublishedAt: "2026-08-24"},
		{Title: "Liquor sector rallies", Source: "daily", Summary: "Premium brands led gains."},
	}

	t.Run("digests articles with one llm pass", func(t *testing.T) {
		provider := &stubLLM{reply: func(req llm.Request) (string, error) {
			return "- briefing line", nil
		}}
		digester := NewNewsDigester(provider, "qwen-plus")

		digest, err := digester.Digest(context.Background(), "liquor sector", items)
		require.NoError(t, err)
		assert.Equal(t, "- briefing line", digest)

		reqs := provider.requests()
		require.Len(t, reqs, 1)
		assert.Contains(t, reqs[0].SystemPrompt, "financial news editor")

		userMsg := reqs[0].Messages[0].Content
		assert.Contains(t, userMsg, "Search query: liquor sector")
		assert.Contains(t, userMsg, "Rate cut expected")
		assert.Contains(t, userMsg, "Premium brands led gains.")
	})

	t.Run("empty result set skips the llm", func(t *testing.T) {
		provider := &stubLLM{}
		digester := NewNewsDigester(provider, "qwen-plus")

		digest, err := digester.Digest(context.Background(), "obscure topic", nil)
		require.NoError(t, err)
		assert.Equal(t, `no relevant news found for "obscure topic"`, digest)
		assert.Empty(t, provider.requests())
	})

	t.Run("llm failure propagates", func(t *testing.T) {
		provider := &stubLLM{reply: func(req llm.Request) (string, error) {
			return "", errors.New("401 Unauthorized")
		}}
		digester := NewNewsDigester(provider, "qwen-plus")

		_, err := digester.Digest(context.Background(), "anything", items)
		require.Error(t, err)
	})
}
