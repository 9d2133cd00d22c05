package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leozhang/finsight/internal/observability"
	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/marketdata"
)

// StockRequest describes one stock analysis run.
type StockRequest struct {
	Code          string
	AnalysisDate  string
	Analysts      []string
	ResearchDepth int
	MarketType    string
}

// StockAnalyzer runs the per-analyst LLM passes over a market data
// snapshot and synthesizes a decision.
type StockAnalyzer struct {
	data     *marketdata.Client
	provider llm.Provider
	model    string
	retry    llm.RetryConfig
}

// NewStockAnalyzer creates a stock analyzer.
func NewStockAnalyzer(data *marketdata.Client, provider llm.Provider, model string) *StockAnalyzer {
	return &StockAnalyzer{
		data:     data,
		provider: provider,
		model:    model,
		retry:    llm.DefaultRetryConfig(),
	}
}

// Analyze produces the report sections for the requested analyst
// categories plus a decision synthesis. A data endpoint failure degrades
// the snapshot but never aborts the run; an LLM failure does.
func (a *StockAnalyzer) Analyze(ctx context.Context, req StockRequest) (*Result, error) {
	start := time.Now()
	result, err := a.analyze(ctx, req)
	observability.RecordAnalysis("stock", time.Since(start), err == nil)
	return result, err
}

func (a *StockAnalyzer) analyze(ctx context.Context, req StockRequest) (*Result, error) {
	if req.AnalysisDate == "" {
		req.AnalysisDate = time.Now().Format("2006-01-02")
	}
	if len(req.Analysts) == 0 {
		req.Analysts = []string{"fundamentals"}
	}
	if req.MarketType == "" {
		req.MarketType = "A-share"
	}

	snapshot := a.snapshot(ctx, req.Code)

	result := &Result{}
	for _, analyst := range req.Analysts {
		section, err := a.analystPass(ctx, analyst, req, snapshot)
		if err != nil {
			return nil, fmt.Errorf("%s analyst: %w", analyst, err)
		}
		switch analyst {
		case "market":
			result.Sections.Market = section
		case "fundamentals":
			result.Sections.Fundamentals = section
		case "sentiment":
			result.Sections.Sentiment = section
		case "news":
			result.Sections.News = section
		}
	}

	reasoning, err := a.decisionPass(ctx, req, result)
	if err != nil {
		return nil, fmt.Errorf("decision synthesis: %w", err)
	}
	result.Decision = &Decision{Reasoning: reasoning}

	return result, nil
}

// snapshot assembles the data context block. Each fetch is isolated so a
// single unavailable endpoint only leaves a gap the prompt points out.
func (a *StockAnalyzer) snapshot(ctx context.Context, code string) string {
	parts := []string{fmt.Sprintf("[Stock Code]: %s", code)}

	if quote, err := a.data.StockQuote(ctx, code); err != nil {
		log.Warn().Err(err).Str("stock", code).Msg("Quote fetch failed")
		parts = append(parts, fmt.Sprintf("[Quote] fetch failed: %v", err))
	} else {
		parts = append(parts, "[Quote]:\n"+renderQuote(quote))
	}

	if ind, err := a.data.StockIndicators(ctx, code); err != nil {
		log.Warn().Err(err).Str("stock", code).Msg("Indicator fetch failed")
		parts = append(parts, fmt.Sprintf("[Indicators] fetch failed: %v", err))
	} else {
		parts = append(parts, "[Indicators]:\n"+renderIndicators(ind))
	}

	if items, err := a.data.StockNews(ctx, code, 10); err != nil {
		log.Warn().Err(err).Str("stock", code).Msg("News fetch failed")
		parts = append(parts, fmt.Sprintf("[Recent News] fetch failed: %v", err))
	} else if len(items) == 0 {
		parts = append(parts, "[Recent News]: none found")
	} else {
		parts = append(parts, "[Recent News]:\n"+renderNewsItems(items))
	}

	return strings.Join(parts, "\n\n")
}

func (a *StockAnalyzer) analystPass(ctx context.Context, analyst string, req StockRequest, snapshot string) (string, error) {
	role, ok := analystRoles[analyst]
	if !ok {
		return "", fmt.Errorf("unknown analyst category: %s", analyst)
	}

	resp, err := llm.CallWithRetry(ctx, a.provider, llm.Request{
		Model:        a.model,
		SystemPrompt: analystSystemPrompt(role, req.MarketType),
		Messages: []llm.Message{
			{Role: "user", Content: analystUserPrompt(req.Code, req.AnalysisDate, snapshot)},
		},
	}, a.retry)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// decisionPass synthesizes the final call from the produced sections.
// Research depth above one adds a critique round that asks the model to
// challenge and restate its own decision.
func (a *StockAnalyzer) decisionPass(ctx context.Context, req StockRequest, result *Result) (string, error) {
	reports := result.Compose()
	messages := []llm.Message{
		{Role: "user", Content: decisionUserPrompt(req.Code, reports)},
	}

	resp, err := llm.CallWithRetry(ctx, a.provider, llm.Request{
		Model:        a.model,
		SystemPrompt: decisionSystemPrompt(req.MarketType),
		Messages:     messages,
	}, a.retry)
	if err != nil {
		return "", err
	}
	reasoning := strings.TrimSpace(resp.Content)

	if req.ResearchDepth > 1 {
		messages = append(messages,
			llm.Message{Role: "assistant", Content: reasoning},
			llm.Message{Role: "user", Content: critiqueInstruction},
		)
		resp, err = llm.CallWithRetry(ctx, a.provider, llm.Request{
			Model:        a.model,
			SystemPrompt: decisionSystemPrompt(req.MarketType),
			Messages:     messages,
		}, a.retry)
		if err != nil {
			return "", err
		}
		reasoning = strings.TrimSpace(resp.Content)
	}

	return reasoning, nil
}

func renderQuote(q *marketdata.StockQuote) string {
	return fmt.Sprintf(
		"name: %s, price: %.2f, change: %.2f (%.2f%%)\nopen: %.2f, high: %.2f, low: %.2f, prev close: %.2f\nvolume: %.0f, turnover: %.0f, updated: %s",
		q.Name, q.Price, q.Change, q.ChangePercent,
		q.Open, q.High, q.Low, q.PrevClose,
		q.Volume, q.Turnover, q.UpdatedAt,
	)
}

func renderIndicators(ind *marketdata.StockIndicators) string {
	return fmt.Sprintf(
		"pe: %.2f, pb: %.2f, ps: %.2f, dividend yield: %.2f%%\nmarket cap: %.0f, circulating cap: %.0f\n52w high: %.2f, 52w low: %.2f",
		ind.PE, ind.PB, ind.PS, ind.DividendYield,
		ind.MarketCap, ind.CirculatingCap,
		ind.Week52High, ind.Week52Low,
	)
}

func renderNewsItems(items []marketdata.NewsItem) string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		line := "- " + item.Title
		if item.Source != "" || item.PublishedAt != "" {
			line += fmt.Sprintf(" (%s %s)", item.Source, item.PublishedAt)
		}
		if item.Summary != "" {
			line += "\n  " + item.Summary
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
