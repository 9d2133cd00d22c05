package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leozhang/finsight/internal/observability"
	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/marketdata"
)

// NewsDigester condenses search results into a briefing with one LLM
// pass.
type NewsDigester struct {
	provider llm.Provider
	model    string
	retry    llm.RetryConfig
}

// NewNewsDigester creates a news digester.
func NewNewsDigester(provider llm.Provider, model string) *NewsDigester {
	return &NewsDigester{
		provider: provider,
		model:    model,
		retry:    llm.DefaultRetryConfig(),
	}
}

// Digest summarizes the articles for the query. An empty result set
// returns a fixed message without spending an LLM call.
func (d *NewsDigester) Digest(ctx context.Context, query string, items []marketdata.NewsItem) (string, error) {
	if len(items) == 0 {
		return fmt.Sprintf("no relevant news found for %q", query), nil
	}

	start := time.Now()
	digest, err := d.digest(ctx, query, items)
	observability.RecordAnalysis("news", time.Since(start), err == nil)
	return digest, err
}

func (d *NewsDigester) digest(ctx context.Context, query string, items []marketdata.NewsItem) (string, error) {
	resp, err := llm.CallWithRetry(ctx, d.provider, llm.Request{
		Model:        d.model,
		SystemPrompt: newsDigestSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: newsDigestUserPrompt(query, renderNewsItems(items))},
		},
	}, d.retry)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
