package planner

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/toolexec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLLM struct {
	mu    sync.Mutex
	calls []llm.Request
	reply func(req llm.Request) (string, error)
}

func (s *stubLLM) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	content, err := s.reply(req)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Content: content}, nil
}

func (s *stubLLM) Provider() string { return "stub" }

func (s *stubLLM) requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

func newTestRegistry(t *testing.T, handlers map[string]toolexec.ToolHandler) *toolexec.Executor {
	t.Helper()

	defs := []toolexec.ToolDefinition{
		{
			Name:        "stock_analysis",
			Description: "Run multi-analyst stock analysis",
			Parameters:  []toolexec.ToolParameter{{Name: "stock_codes"}},
		},
		{
			Name:        "news_search",
			Description: "Search financial news",
			Parameters:  []toolexec.ToolParameter{{Name: "query", Type: "string"}},
		},
	}
	for i := range defs {
		name := defs[i].Name
		if h, ok := handlers[name]; ok {
			defs[i].Handler = h
		} else {
			defs[i].Handler = func(ctx context.Context, req toolexec.Request) (string, error) {
				return name + " output", nil
			}
		}
	}

	exec, err := toolexec.New(toolexec.Config{Defaults: toolexec.DefaultRunConfig()}, defs...)
	require.NoError(t, err)
	return exec
}

func TestPlanner_GeneratePlan(t *testing.T) {
	registry := newTestRegistry(t, nil)
	stub := &stubLLM{reply: func(req llm.Request) (string, error) {
		return `{"steps": [
			{"tool": "stock_analysis", "params": {"stock_codes": ["600519"]}, "step_content": "Analyze Kweichow Moutai"},
			{"tool": "news_search", "params": {"query": "baijiu sector"}}
		]}`, nil
	}}

	p := NewPlanner(registry, stub, "qwen-plus")
	plan, err := p.GeneratePlan(context.Background(), "How is Moutai doing?")
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, "How is Moutai doing?", plan.Goal)
	assert.False(t, plan.CreatedAt.IsZero())
	require.Len(t, plan.Steps, 2)

	assert.Equal(t, "step-1", plan.Steps[0].ID)
	assert.Equal(t, "stock_analysis", plan.Steps[0].Tool)
	assert.Equal(t, []interface{}{"600519"}, plan.Steps[0].Params["stock_codes"])
	assert.Equal(t, "Analyze Kweichow Moutai", plan.Steps[0].StepContent)
	assert.Equal(t, StepStatusPending, plan.Steps[0].Status)

	assert.Equal(t, "step-2", plan.Steps[1].ID)
	assert.Equal(t, "news_search", plan.Steps[1].Tool)

	reqs := stub.requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].SystemPrompt, "stock_analysis")
	assert.Contains(t, reqs[0].SystemPrompt, "news_search")
	require.Len(t, reqs[0].Messages, 1)
	assert.Contains(t, reqs[0].Messages[0].Content, "How is Moutai doing?")
}

func TestPlanner_GeneratePlanFencedReply(t *testing.T) {
	registry := newTestRegistry(t, nil)
	stub := &stubLLM{reply: func(req llm.Request) (string, error) {
		return "Here is the plan:\n```json\n{\"steps\": [{\"tool\": \"news_search\", \"step_content\": \"latest policy news\"}]}\n```", nil
	}}

	p := NewPlanner(registry, stub, "qwen-plus")
	plan, err := p.GeneratePlan(context.Background(), "What moved the market today?")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "news_search", plan.Steps[0].Tool)
	assert.Equal(t, "latest policy news", plan.Steps[0].StepContent)
}

func TestPlanner_GeneratePlanRejectsUnknownTool(t *testing.T) {
	registry := newTestRegistry(t, nil)
	stub := &stubLLM{reply: func(req llm.Request) (string, error) {
		return `{"steps": [{"tool": "astrology_reading"}]}`, nil
	}}

	p := NewPlanner(registry, stub, "qwen-plus")
	_, err := p.GeneratePlan(context.Background(), "Read the stars")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool: astrology_reading")
	assert.Contains(t, err.Error(), "stock_analysis")
}

func TestPlanner_GeneratePlanEmptyGoal(t *testing.T) {
	registry := newTestRegistry(t, nil)
	stub := &stubLLM{reply: func(req llm.Request) (string, error) {
		return "{}", nil
	}}

	p := NewPlanner(registry, stub, "qwen-plus")
	_, err := p.GeneratePlan(context.Background(), "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goal cannot be empty")
	assert.Empty(t, stub.requests())
}

func TestPlanner_GeneratePlanEmptySteps(t *testing.T) {
	registry := newTestRegistry(t, nil)
	stub := &stubLLM{reply: func(req llm.Request) (string, error) {
		return `{"steps": []}`, nil
	}}

	p := NewPlanner(registry, stub, "qwen-plus")
	_, err := p.GeneratePlan(context.Background(), "Do nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")
}

func TestPlanner_GeneratePlanMalformedReply(t *testing.T) {
	registry := newTestRegistry(t, nil)
	stub := &stubLLM{reply: func(req llm.Request) (string, error) {
		return "I cannot plan this.", nil
	}}

	p := NewPlanner(registry, stub, "qwen-plus")
	_, err := p.GeneratePlan(context.Background(), "Analyze something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON object found")
}

func TestPlanner_GeneratePlanLLMError(t *testing.T) {
	registry := newTestRegistry(t, nil)
	stub := &stubLLM{reply: func(req llm.Request) (string, error) {
		return "", fmt.Errorf("invalid api key")
	}}

	p := NewPlanner(registry, stub, "qwen-plus")
	_, err := p.GeneratePlan(context.Background(), "Analyze something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan generation failed")
}
