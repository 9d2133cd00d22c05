package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leozhang/finsight/internal/observability"
	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/marketdata"
)

// FundAnalyzer builds the fund data digest and runs a single LLM pass
// with the fund analyst prompt. The report comes back as raw text.
type FundAnalyzer struct {
	data     *marketdata.Client
	provider llm.Provider
	model    string
	retry    llm.RetryConfig
}

// NewFundAnalyzer creates a fund analyzer.
func NewFundAnalyzer(data *marketdata.Client, provider llm.Provider, model string) *FundAnalyzer {
	return &FundAnalyzer{
		data:     data,
		provider: provider,
		model:    model,
		retry:    llm.DefaultRetryConfig(),
	}
}

// Analyze fetches the nine fund datasets and produces the report. Failed
// datasets are noted in the digest and never abort the fund; only an LLM
// failure does.
func (a *FundAnalyzer) Analyze(ctx context.Context, code string) (string, error) {
	start := time.Now()
	report, err := a.analyze(ctx, code)
	observability.RecordAnalysis("fund", time.Since(start), err == nil)
	return report, err
}

func (a *FundAnalyzer) analyze(ctx context.Context, code string) (string, error) {
	bundle := a.data.FetchFundBundle(ctx, code)
	if n := bundle.FailedCount(); n > 0 {
		log.Warn().
			Str("fund", code).
			Int("failed_datasets", n).
			Msg("Some fund datasets failed to fetch")
	}

	resp, err := llm.CallWithRetry(ctx, a.provider, llm.Request{
		Model:        a.model,
		SystemPrompt: fundSystemPrompt(code),
		Messages: []llm.Message{
			{Role: "user", Content: fundUserPrompt(code, bundle.Digest())},
		},
	}, a.retry)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(resp.Content), nil
}
