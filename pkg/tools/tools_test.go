package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/marketdata"
	"github.com/leozhang/finsight/pkg/toolexec"
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

	if s.reply != nil {
		content, err := s.reply(req)
		if err != nil {
			return nil, err
		}
		return &llm.Response{Content: content}, nil
	}
	return &llm.Response{Content: "stub report"}, nil
}

func (s *stubLLM) Provider() string { return "stub" }

func (s *stubLLM) requests() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Request, len(s.calls))
	copy(out, s.calls)
	return out
}

// dataService serves every market data endpoint with canned payloads and
// records the requests it saw.
func dataService(t *testing.T) (*marketdata.Client, *requestLog) {
	t.Helper()
	rl := &requestLog{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.add(r.URL.Path, r.URL.Query().Get("q"), r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		var data interface{}
		switch {
		case r.URL.Path == "/api/stock/quote":
			data = map[string]interface{}{"code": r.URL.Query().Get("symbol"), "name": "Test Co", "price": 10.5}
		case r.URL.Path == "/api/stock/indicators":
			data = map[string]interface{}{"pe": 12.3}
		case r.URL.Path == "/api/stock/news":
			data = []map[string]interface{}{{"title": "Results due"}}
		case r.URL.Path == "/api/news/search":
			data = []map[string]interface{}{{"title": "Sector news", "source": "wire"}}
		case strings.HasPrefix(r.URL.Path, "/api/fund/"):
			data = []map[string]interface{}{{"field": "value"}}
		default:
			http.NotFound(w, r)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0, "message": "ok", "data": data,
		}))
	}))
	t.Cleanup(srv.Close)

	return marketdata.NewClient(marketdata.Config{BaseURL: srv.URL}), rl
}

type requestLog struct {
	mu      sync.Mutex
	paths   []string
	queries []string
	limits  []string
}

func (l *requestLog) add(path, query, limit string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)
	if path == "/api/news/search" {
		l.queries = append(l.queries, query)
		l.limits = append(l.limits, limit)
	}
}

func newToolExecutor(t *testing.T, provider llm.Provider) *toolexec.Executor {
	t.Helper()
	client, _ := dataService(t)
	deps := Deps{Data: client, Provider: provider, Model: "qwen-plus"}

	exec, err := toolexec.New(toolexec.Config{Defaults: toolexec.DefaultRunConfig()}, Definitions(deps)...)
	require.NoError(t, err)
	return exec
}

func TestDefinitions_OrderAndNames(t *testing.T) {
	client, _ := dataService(t)
	defs := Definitions(Deps{Data: client, Provider: &stubLLM{}, Model: "qwen-plus"})

	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"stock_analysis", "fund_analysis", "news_search"}, names)
}

func TestStockAnalysisTool_Metadata(t *testing.T) {
	exec := newToolExecutor(t, &stubLLM{})

	meta, ok := exec.Describe("stock_analysis")
	require.True(t, ok)
	require.Len(t, meta.Parameters, 4)

	byName := map[string]toolexec.ParameterInfo{}
	for _, p := range meta.Parameters {
		byName[p.Name] = p
	}

	assert.Equal(t, "unspecified", byName["stock_codes"].Type)
	assert.Equal(t, "required", byName["stock_codes"].Default)
	assert.Equal(t, "A-share", byName["market_type"].Default)
	assert.Equal(t, "[fundamentals]", byName["analysts"].Default)
	assert.Equal(t, "1", byName["research_depth"].Default)
}

func TestStockAnalysisTool_Dispatch(t *testing.T) {
	t.Run("batches every extracted code", func(t *testing.T) {
		provider := &stubLLM{}
		exec := newToolExecutor(t, provider)

		var messages []string
		output := exec.Dispatch(context.Background(), toolexec.Request{
			Tool:   "stock_analysis",
			Params: map[string]interface{}{"stock_codes": "600519, 600036"},
			Progress: func(message string, fraction float64) {
				messages = append(messages, message)
			},
		})

		assert.Contains(t, output, "### Stock Analysis: 600036")
		assert.Contains(t, output, "### Stock Analysis: 600519")
		assert.Contains(t, output, "#### Fundamentals Report")
		assert.Contains(t, output, "#### Decision Summary")
		assert.Equal(t, []string{
			"Analyzing stock 600036 (1/2)",
			"Analyzing stock 600519 (2/2)",
		}, messages)
	})

	t.Run("no extractable codes yields the fixed message", func(t *testing.T) {
		exec := newToolExecutor(t, &stubLLM{})

		output := exec.Dispatch(context.Background(), toolexec.Request{
			Tool:        "stock_analysis",
			Params:      map[string]interface{}{"stock_codes": "the usual names"},
			StepContent: "step mentions 600519 but the parameter wins",
		})
		assert.Equal(t, "no valid stock codes found, skipping individual stock analysis", output)
	})

	t.Run("falls back to step content when the parameter is absent", func(t *testing.T) {
		exec := newToolExecutor(t, &stubLLM{})

		output := exec.Dispatch(context.Background(), toolexec.Request{
			Tool:        "stock_analysis",
			Params:      map[string]interface{}{},
			StepContent: "please check 600519 today",
		})
		assert.Contains(t, output, "### Stock Analysis: 600519")
	})

	t.Run("parameter overrides shape the analysis run", func(t *testing.T) {
		provider := &stubLLM{}
		exec := newToolExecutor(t, provider)

		exec.Dispatch(context.Background(), toolexec.Request{
			Tool: "stock_analysis",
			Params: map[string]interface{}{
				"stock_codes":    "600519",
				"analysts":       []interface{}{"market"},
				"research_depth": float64(2),
			},
		})

		reqs := provider.requests()
		require.Len(t, reqs, 3) // market analyst, decision, critique round
		assert.Contains(t, reqs[0].SystemPrompt, "technical market analyst")
		assert.Contains(t, reqs[2].Messages[len(reqs[2].Messages)-1].Content, "Challenge your own decision")
	})
}

func TestFundAnalysisTool_Dispatch(t *testing.T) {
	t.Run("renders fund fragments from raw report text", func(t *testing.T) {
		provider := &stubLLM{reply: func(req llm.Request) (string, error) {
			return "fund report body", nil
		}}
		exec := newToolExecutor(t, provider)

		output := exec.Dispatch(context.Background(), toolexec.Request{
			Tool:   "fund_analysis",
			Params: map[string]interface{}{"fund_codes": []interface{}{"015339"}},
		})
		assert.Equal(t, "### Fund Analysis: 015339\nfund report body", output)
	})

	t.Run("empty codes yield the fixed message", func(t *testing.T) {
		exec := newToolExecutor(t, &stubLLM{})

		output := exec.Dispatch(context.Background(), toolexec.Request{
			Tool:   "fund_analysis",
			Params: map[string]interface{}{"fund_codes": []interface{}{}},
		})
		assert.Equal(t, "no valid fund codes found, skipping fund analysis", output)
	})
}

func TestNewsSearchTool_Dispatch(t *testing.T) {
	t.Run("searches and digests", func(t *testing.T) {
		provider := &stubLLM{reply: func(req llm.Request) (string, error) {
			return "- sector briefing", nil
		}}
		client, rl := dataService(t)
		exec, err := toolexec.New(
			toolexec.Config{Defaults: toolexec.DefaultRunConfig()},
			Definitions(Deps{Data: client, Provider: provider, Model: "qwen-plus"})...,
		)
		require.NoError(t, err)

		output := exec.Dispatch(context.Background(), toolexec.Request{
			Tool:   "news_search",
			Params: map[string]interface{}{"query": "new energy policy"},
		})
		assert.Equal(t, "- sector briefing", output)

		rl.mu.Lock()
		defer rl.mu.Unlock()
		require.Len(t, rl.queries, 1)
		assert.Equal(t, "new energy policy", rl.queries[0])
		assert.Equal(t, "10", rl.limits[0])
	})

	t.Run("query falls back to step content", func(t *testing.T) {
		provider := &stubLLM{}
		client, rl := dataService(t)
		exec, err := toolexec.New(
			toolexec.Config{Defaults: toolexec.DefaultRunConfig()},
			Definitions(Deps{Data: client, Provider: provider, Model: "qwen-plus"})...,
		)
		require.NoError(t, err)

		exec.Dispatch(context.Background(), toolexec.Request{
			Tool:        "news_search",
			Params:      map[string]interface{}{},
			StepContent: "search for liquor sector updates",
		})

		rl.mu.Lock()
		defer rl.mu.Unlock()
		require.Len(t, rl.queries, 1)
		assert.Equal(t, "search for liquor sector updates", rl.queries[0])
	})

	t.Run("missing query surfaces as a failure string", func(t *testing.T) {
		exec := newToolExecutor(t, &stubLLM{})

		output := exec.Dispatch(context.Background(), toolexec.Request{
			Tool:   "news_search",
			Params: map[string]interface{}{},
		})
		assert.Contains(t, output, "tool execution failed")
		assert.Contains(t, output, "query is required")
	})
}
