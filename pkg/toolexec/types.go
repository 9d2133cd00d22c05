package toolexec

import (
	"context"
	"fmt"
	"time"
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // string, number, boolean, object, array, integer
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolHandler is the function signature for tool handlers
type ToolHandler func(ctx context.Context, req Request) (string, error)

// ToolDefinition defines a tool that can be dispatched
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ParameterInfo is the rendered, catalog-facing view of a parameter.
// Every field is a string; absent values are replaced by fixed placeholders.
type ParameterInfo struct {
	Name        string `json:"name"`
	Type        string `json:"type"`    // "unspecified" when not declared
	Default     string `json:"default"` // "required" when no default is declared
	Description string `json:"description"`
}

// ToolMetadata is the catalog-facing view of a tool. It is derived from the
// tool definition on demand, never stored.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// ProgressFunc receives progress notifications during a batch run. It is
// called synchronously on the dispatching goroutine and must not block.
type ProgressFunc func(message string, fraction float64)

// RunConfig carries the analysis settings for one dispatch. It is resolved
// once per dispatch and treated as a read-only snapshot for the whole run.
type RunConfig struct {
	LLMProvider   string   `json:"llm_provider"`
	LLMModel      string   `json:"llm_model"`
	AnalysisDate  string   `json:"analysis_date"` // YYYY-MM-DD, empty means today
	Analysts      []string `json:"analysts"`      // market, fundamentals, sentiment, news
	ResearchDepth int      `json:"research_depth"`
	MarketType    string   `json:"market_type"`
}

// DefaultRunConfig returns the default analysis settings
func DefaultRunConfig() RunConfig {
	return RunConfig{
		LLMProvider:   "dashscope",
		LLMModel:      "qwen-plus",
		Analysts:      []string{"fundamentals"},
		ResearchDepth: 1,
		MarketType:    "A-share",
	}
}

// fillFrom copies defaults into any unset field
func (c RunConfig) fillFrom(defaults RunConfig) RunConfig {
	if c.LLMProvider == "" {
		c.LLMProvider = defaults.LLMProvider
	}
	if c.LLMModel == "" {
		c.LLMModel = defaults.LLMModel
	}
	if c.AnalysisDate == "" {
		c.AnalysisDate = defaults.AnalysisDate
	}
	if len(c.Analysts) == 0 {
		c.Analysts = defaults.Analysts
	}
	if c.ResearchDepth == 0 {
		c.ResearchDepth = defaults.ResearchDepth
	}
	if c.MarketType == "" {
		c.MarketType = defaults.MarketType
	}
	return c
}

// Request describes one dispatch: the tool to invoke, its parameters, the
// free-text step description used as an identifier fallback, an optional
// progress sink, and the run configuration snapshot.
type Request struct {
	Tool        string                 `json:"tool"`
	Params      map[string]interface{} `json:"params"`
	StepContent string                 `json:"step_content"`
	Progress    ProgressFunc           `json:"-"`
	Config      RunConfig              `json:"config"`
}

// ToolResult represents the result of tool execution
type ToolResult struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// renderDefault renders a declared default value for the catalog. A parameter
// without a declared default is reported as "required".
func renderDefault(p ToolParameter) string {
	if p.Default == nil {
		return "required"
	}
	return fmt.Sprintf("%v", p.Default)
}

// metadataFor derives the catalog-facing view of one tool definition
func metadataFor(def *ToolDefinition) ToolMetadata {
	md := ToolMetadata{
		Name:        def.Name,
		Description: def.Description,
		Parameters:  make([]ParameterInfo, 0, len(def.Parameters)),
	}
	if md.Description == "" {
		md.Description = "no description"
	}
	for _, p := range def.Parameters {
		info := ParameterInfo{
			Name:        p.Name,
			Type:        p.Type,
			Default:     renderDefault(p),
			Description: p.Description,
		}
		if info.Type == "" {
			info.Type = "unspecified"
		}
		if info.Description == "" {
			info.Description = "no description"
		}
		md.Parameters = append(md.Parameters, info)
	}
	return md
}
