package toolexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDef(name string) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: "Echo tool",
		Parameters: []ToolParameter{
			{Name: "message", Type: "string", Description: "Message to echo", Required: true},
		},
		Handler: func(ctx context.Context, req Request) (string, error) {
			if msg, ok := req.Params["message"].(string); ok {
				return msg, nil
			}
			return "", nil
		},
	}
}

func TestNew_RegistersTools(t *testing.T) {
	exec, err := New(Config{}, echoDef("echo"))
	require.NoError(t, err)

	assert.True(t, exec.HasTool("echo"))
	assert.False(t, exec.HasTool("missing"))
	assert.Equal(t, []string{"echo"}, exec.ListTools())
}

func TestNew_InvalidDefinition(t *testing.T) {
	tests := []struct {
		name string
		def  ToolDefinition
	}{
		{
			name: "empty name",
			def: ToolDefinition{
				Description: "Test",
				Handler:     func(ctx context.Context, req Request) (string, error) { return "", nil },
			},
		},
		{
			name: "nil handler",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
			},
		},
		{
			name: "invalid parameter type",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
				Parameters:  []ToolParameter{{Name: "x", Type: "tuple"}},
				Handler:     func(ctx context.Context, req Request) (string, error) { return "", nil },
			},
		},
		{
			name: "unnamed parameter",
			def: ToolDefinition{
				Name:        "test",
				Description: "Test",
				Parameters:  []ToolParameter{{Type: "string"}},
				Handler:     func(ctx context.Context, req Request) (string, error) { return "", nil },
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{}, tt.def)
			assert.Error(t, err)
		})
	}
}

func TestNew_DuplicateNameLastWins(t *testing.T) {
	first := ToolDefinition{
		Name:        "dup",
		Description: "First",
		Handler: func(ctx context.Context, req Request) (string, error) {
			return "first", nil
		},
	}
	other := ToolDefinition{
		Name:        "other",
		Description: "Other",
		Handler: func(ctx context.Context, req Request) (string, error) {
			return "other", nil
		},
	}
	second := ToolDefinition{
		Name:        "dup",
		Description: "Second",
		Handler: func(ctx context.Context, req Request) (string, error) {
			return "second", nil
		},
	}

	exec, err := New(Config{}, first, other, second)
	require.NoError(t, err)

	// The duplicate keeps its original catalog slot
	assert.Equal(t, []string{"dup", "other"}, exec.ListTools())

	// Dispatch uses the last registered handler
	output := exec.Dispatch(context.Background(), Request{Tool: "dup"})
	assert.Equal(t, "second", output)

	md, ok := exec.Describe("dup")
	require.True(t, ok)
	assert.Equal(t, "Second", md.Description)
}

func TestExecutor_ListToolsOrder(t *testing.T) {
	exec, err := New(Config{}, echoDef("charlie"), echoDef("alpha"), echoDef("bravo"))
	require.NoError(t, err)

	// Registration order, not lexicographic
	assert.Equal(t, []string{"charlie", "alpha", "bravo"}, exec.ListTools())
}

func TestExecutor_ExecuteSuccess(t *testing.T) {
	exec, err := New(Config{}, echoDef("echo"))
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Request{
		Tool:   "echo",
		Params: map[string]interface{}{"message": "Hello, World!"},
	})

	assert.True(t, result.Success)
	assert.Equal(t, "Hello, World!", result.Output)
	assert.Empty(t, result.Error)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestExecutor_ExecuteUnknownTool(t *testing.T) {
	exec, err := New(Config{}, echoDef("echo"), echoDef("analyze"))
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Request{Tool: "missing"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown tool: missing")
	// The message enumerates every registered tool
	assert.Contains(t, result.Error, "echo")
	assert.Contains(t, result.Error, "analyze")
}

func TestExecutor_ExecuteHandlerError(t *testing.T) {
	def := ToolDefinition{
		Name:        "failing",
		Description: "Always fails",
		Handler: func(ctx context.Context, req Request) (string, error) {
			return "", errors.New("handler error")
		},
	}
	exec, err := New(Config{}, def)
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Request{Tool: "failing"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool execution failed")
	assert.Contains(t, result.Error, "handler error")
}

func TestExecutor_ExecutePanicRecovered(t *testing.T) {
	def := ToolDefinition{
		Name:        "panicking",
		Description: "Always panics",
		Handler: func(ctx context.Context, req Request) (string, error) {
			panic("boom")
		},
	}
	exec, err := New(Config{}, def)
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Request{Tool: "panicking"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "tool panicked")
	assert.Contains(t, result.Error, "boom")
}

func TestExecutor_ExecuteTimeout(t *testing.T) {
	def := ToolDefinition{
		Name:        "slow",
		Description: "Sleeps past the timeout",
		Handler: func(ctx context.Context, req Request) (string, error) {
			select {
			case <-time.After(2 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return "", ctx.Err()
			}
		},
	}
	exec, err := New(Config{Timeout: 100 * time.Millisecond}, def)
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Request{Tool: "slow"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "timeout")
}

func TestExecutor_ExecuteAppliesDefaultConfig(t *testing.T) {
	var seen RunConfig
	def := ToolDefinition{
		Name:        "capture",
		Description: "Captures the resolved run config",
		Handler: func(ctx context.Context, req Request) (string, error) {
			seen = req.Config
			return "ok", nil
		},
	}
	exec, err := New(Config{}, def)
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Request{Tool: "capture"})
	require.True(t, result.Success)

	assert.Equal(t, "dashscope", seen.LLMProvider)
	assert.Equal(t, "qwen-plus", seen.LLMModel)
	assert.Equal(t, []string{"fundamentals"}, seen.Analysts)
	assert.Equal(t, 1, seen.ResearchDepth)
	assert.Equal(t, "A-share", seen.MarketType)
}

func TestExecutor_ExecuteConfigOverrides(t *testing.T) {
	var seen RunConfig
	def := ToolDefinition{
		Name:        "capture",
		Description: "Captures the resolved run config",
		Handler: func(ctx context.Context, req Request) (string, error) {
			seen = req.Config
			return "ok", nil
		},
	}
	exec, err := New(Config{
		Defaults: RunConfig{LLMProvider: "openai", LLMModel: "gpt-4o"},
	}, def)
	require.NoError(t, err)

	result := exec.Execute(context.Background(), Request{
		Tool:   "capture",
		Config: RunConfig{LLMModel: "qwen-max", ResearchDepth: 3},
	})
	require.True(t, result.Success)

	// Request fields win, unset fields fall back to executor defaults
	assert.Equal(t, "openai", seen.LLMProvider)
	assert.Equal(t, "qwen-max", seen.LLMModel)
	assert.Equal(t, 3, seen.ResearchDepth)
	assert.Equal(t, "A-share", seen.MarketType)
}

func TestExecutor_Describe(t *testing.T) {
	def := ToolDefinition{
		Name:        "described",
		Description: "A documented tool",
		Parameters: []ToolParameter{
			{Name: "codes", Type: "string", Description: "Codes to analyze", Required: true},
			{Name: "depth", Type: "integer", Description: "Research depth", Default: 1},
		},
		Handler: func(ctx context.Context, req Request) (string, error) { return "", nil },
	}
	exec, err := New(Config{}, def)
	require.NoError(t, err)

	md, ok := exec.Describe("described")
	require.True(t, ok)
	assert.Equal(t, "described", md.Name)
	assert.Equal(t, "A documented tool", md.Description)
	require.Len(t, md.Parameters, 2)
	assert.Equal(t, ParameterInfo{Name: "codes", Type: "string", Default: "required", Description: "Codes to analyze"}, md.Parameters[0])
	assert.Equal(t, ParameterInfo{Name: "depth", Type: "integer", Default: "1", Description: "Research depth"}, md.Parameters[1])

	_, ok = exec.Describe("missing")
	assert.False(t, ok)
}

func TestExecutor_MetadataPlaceholders(t *testing.T) {
	def := ToolDefinition{
		Name: "bare",
		Parameters: []ToolParameter{
			{Name: "x"},
		},
		Handler: func(ctx context.Context, req Request) (string, error) { return "", nil },
	}
	exec, err := New(Config{}, def)
	require.NoError(t, err)

	all := exec.Metadata()
	require.Len(t, all, 1)
	assert.Equal(t, "no description", all[0].Description)
	require.Len(t, all[0].Parameters, 1)
	assert.Equal(t, "unspecified", all[0].Parameters[0].Type)
	assert.Equal(t, "required", all[0].Parameters[0].Default)
	assert.Equal(t, "no description", all[0].Parameters[0].Description)
}

func TestExecutor_DispatchFlattensResult(t *testing.T) {
	exec, err := New(Config{}, echoDef("echo"))
	require.NoError(t, err)

	t.Run("success returns output", func(t *testing.T) {
		output := exec.Dispatch(context.Background(), Request{
			Tool:   "echo",
			Params: map[string]interface{}{"message": "report text"},
		})
		assert.Equal(t, "report text", output)
	})

	t.Run("unknown tool returns error string", func(t *testing.T) {
		output := exec.Dispatch(context.Background(), Request{Tool: "missing"})
		assert.Contains(t, output, "unknown tool: missing")
		assert.Contains(t, output, "echo")
	})

	t.Run("handler failure returns error string", func(t *testing.T) {
		failing := ToolDefinition{
			Name:        "failing",
			Description: "Always fails",
			Handler: func(ctx context.Context, req Request) (string, error) {
				return "", errors.New("no data available")
			},
		}
		exec2, err := New(Config{}, failing)
		require.NoError(t, err)

		output := exec2.Dispatch(context.Background(), Request{Tool: "failing"})
		assert.Contains(t, output, "tool execution failed")
		assert.Contains(t, output, "no data available")
	})
}

func TestExecutor_MistypedParamsStillDispatch(t *testing.T) {
	def := ToolDefinition{
		Name:        "lenient",
		Description: "Accepts whatever arrives",
		Parameters: []ToolParameter{
			{Name: "codes", Type: "string", Description: "Codes", Required: true},
		},
		Handler: func(ctx context.Context, req Request) (string, error) {
			return "handled", nil
		},
	}
	exec, err := New(Config{}, def)
	require.NoError(t, err)

	// A numeric value for a string-typed parameter is logged, not rejected
	result := exec.Execute(context.Background(), Request{
		Tool:   "lenient",
		Params: map[string]interface{}{"codes": float64(600519)},
	})

	assert.True(t, result.Success)
	assert.Equal(t, "handled", result.Output)
}
