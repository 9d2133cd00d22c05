// Package tools registers the analysis tool definitions that the
// executor dispatches. Each definition binds a descriptor to a closure
// handler over the shared collaborators.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/leozhang/finsight/pkg/analysis"
	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/marketdata"
	"github.com/leozhang/finsight/pkg/toolexec"
)

// Deps carries the collaborators the tool handlers close over.
type Deps struct {
	Data     *marketdata.Client
	Provider llm.Provider

	// Model is the fallback model when a dispatch carries none.
	Model string
}

var (
	stockBatch = toolexec.Batch{
		Label:        "Analyzing stock",
		SectionTitle: "Stock Analysis",
		EmptyMessage: "no valid stock codes found, skipping individual stock analysis",
	}
	fundBatch = toolexec.Batch{
		Label:        "Analyzing fund",
		SectionTitle: "Fund Analysis",
		EmptyMessage: "no valid fund codes found, skipping fund analysis",
	}
)

// Definitions returns the tool definitions in their fixed registration
// order.
func Definitions(deps Deps) []toolexec.ToolDefinition {
	return []toolexec.ToolDefinition{
		stockAnalysisTool(deps),
		fundAnalysisTool(deps),
		newsSearchTool(deps),
	}
}

func stockAnalysisTool(deps Deps) toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "stock_analysis",
		Description: "Run the analyst pipeline over one or more 6-digit A-share stock codes and aggregate the reports.",
		Parameters: []toolexec.ToolParameter{
			{Name: "stock_codes", Description: "Stock codes to analyze, as a list or a single value"},
			{Name: "market_type", Type: "string", Description: "Market the codes belong to", Default: "A-share"},
			{Name: "analysts", Type: "array", Description: "Analyst categories to run", Default: []string{"fundamentals"}},
			{Name: "research_depth", Type: "integer", Description: "Research depth, 1 to 3", Default: 1},
		},
		Handler: func(ctx context.Context, req toolexec.Request) (string, error) {
			codes := toolexec.ExtractIdentifiers(req.Params, req.StepContent, "stock_codes")
			cfg := applyParamOverrides(req)
			analyzer := analysis.NewStockAnalyzer(deps.Data, deps.Provider, modelFor(req, deps))

			return toolexec.RunBatch(ctx, codes, stockBatch, req.Progress, func(ctx context.Context, code string) (string, error) {
				result, err := analyzer.Analyze(ctx, analysis.StockRequest{
					Code:          code,
					AnalysisDate:  cfg.AnalysisDate,
					Analysts:      cfg.Analysts,
					ResearchDepth: cfg.ResearchDepth,
					MarketType:    cfg.MarketType,
				})
				if err != nil {
					return "", err
				}
				return result.Compose(), nil
			}), nil
		},
	}
}

func fundAnalysisTool(deps Deps) toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "fund_analysis",
		Description: "Analyze one or more 6-digit fund codes from the nine-dataset fundamental bundle.",
		Parameters: []toolexec.ToolParameter{
			{Name: "fund_codes", Description: "Fund codes to analyze, as a list or a single value"},
		},
		Handler: func(ctx context.Context, req toolexec.Request) (string, error) {
			codes := toolexec.ExtractIdentifiers(req.Params, req.StepContent, "fund_codes")
			analyzer := analysis.NewFundAnalyzer(deps.Data, deps.Provider, modelFor(req, deps))

			return toolexec.RunBatch(ctx, codes, fundBatch, req.Progress, func(ctx context.Context, code string) (string, error) {
				return analyzer.Analyze(ctx, code)
			}), nil
		},
	}
}

func newsSearchTool(deps Deps) toolexec.ToolDefinition {
	return toolexec.ToolDefinition{
		Name:        "news_search",
		Description: "Search market news and return a briefing of the results.",
		Parameters: []toolexec.ToolParameter{
			{Name: "query", Type: "string", Description: "Free-text search query"},
			{Name: "limit", Type: "integer", Description: "Maximum number of articles", Default: 10},
		},
		Handler: func(ctx context.Context, req toolexec.Request) (string, error) {
			query := strings.TrimSpace(stringParam(req.Params, "query"))
			if query == "" {
				query = strings.TrimSpace(req.StepContent)
			}
			if query == "" {
				return "", fmt.Errorf("query is required")
			}

			limit := intParam(req.Params, "limit", 10)
			items, err := deps.Data.SearchNews(ctx, query, limit)
			if err != nil {
				return "", fmt.Errorf("news search failed: %w", err)
			}

			digester := analysis.NewNewsDigester(deps.Provider, modelFor(req, deps))
			return digester.Digest(ctx, query, items)
		},
	}
}

// applyParamOverrides merges per-call parameter overrides over the
// dispatch run configuration.
func applyParamOverrides(req toolexec.Request) toolexec.RunConfig {
	cfg := req.Config
	if mt := strings.TrimSpace(stringParam(req.Params, "market_type")); mt != "" {
		cfg.MarketType = mt
	}
	if analysts := toStringSlice(req.Params["analysts"]); len(analysts) > 0 {
		cfg.Analysts = analysts
	}
	if depth := intParam(req.Params, "research_depth", 0); depth > 0 {
		cfg.ResearchDepth = depth
	}
	return cfg
}

func modelFor(req toolexec.Request, deps Deps) string {
	if req.Config.LLMModel != "" {
		return req.Config.LLMModel
	}
	return deps.Model
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	switch v := params[key].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	}
	return fallback
}

func toStringSlice(value interface{}) []string {
	switch raw := value.(type) {
	case []string:
		return raw
	case []interface{}:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
