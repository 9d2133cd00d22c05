package analysis

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozhang/finsight/pkg/llm"
)

func fundDataHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeDataEnvelope(t, w, []map[string]interface{}{
			{"endpoint": r.URL.Path},
		})
	}
}

func TestFundAnalyzer_Analyze(t *testing.T) {
	t.Run("single llm pass over the full digest", func(t *testing.T) {
		provider := &stubLLM{reply: func(req llm.Request) (string, error) {
			return "  fund report body\n", nil
		}}
		analyzer := NewFundAnalyzer(newDataClient(t, fundDataHandler(t)), provider, "qwen-plus")

		report, err := analyzer.Analyze(context.Background(), "015339")
		require.NoError(t, err)
		assert.Equal(t, "fund report body", report)

		reqs := provider.requests()
		require.Len(t, reqs, 1)
		assert.Contains(t, reqs[0].SystemPrompt, "fund analyst")
		assert.Contains(t, reqs[0].SystemPrompt, "015339")

		userMsg := reqs[0].Messages[0].Content
		assert.Contains(t, userMsg, "[Fund Code]: 015339")
		assert.Contains(t, userMsg, "[Basic Info]:")
		assert.Contains(t, userMsg, "[Portfolio Holdings]:")
	})

	t.Run("failed dataset is noted in the digest, fund still analyzed", func(t *testing.T) {
		provider := &stubLLM{}
		client := newDataClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/fund/rating" {
				http.Error(w, "rating source offline", http.StatusServiceUnavailable)
				return
			}
			fundDataHandler(t)(w, r)
		})

		analyzer := NewFundAnalyzer(client, provider, "qwen-plus")
		_, err := analyzer.Analyze(context.Background(), "015339")
		require.NoError(t, err)

		userMsg := provider.requests()[0].Messages[0].Content
		assert.Contains(t, userMsg, "[Fund Rating] fetch failed")
		assert.Contains(t, userMsg, "[Performance]:")
	})

	t.Run("llm failure aborts the fund", func(t *testing.T) {
		provider := &stubLLM{reply: func(req llm.Request) (string, error) {
			return "", errors.New("400 Bad Request: model not found")
		}}
		analyzer := NewFundAnalyzer(newDataClient(t, fundDataHandler(t)), provider, "qwen-plus")

		_, err := analyzer.Analyze(context.Background(), "015339")
		require.Error(t, err)
	})
}
