package cli

import (
	"fmt"
	"time"

	"github.com/leozhang/finsight/internal/config"
	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/marketdata"
	"github.com/leozhang/finsight/pkg/session"
	"github.com/leozhang/finsight/pkg/toolexec"
	"github.com/leozhang/finsight/pkg/tools"
)

// analysisRuntime bundles the dispatcher and the provider behind it.
type analysisRuntime struct {
	Executor *toolexec.Executor
	Provider llm.Provider
}

// buildRuntime wires the market data client, the configured LLM provider
// and the tool definitions into a live dispatcher.
func buildRuntime(cfg *config.Config) (*analysisRuntime, error) {
	provider, err := llm.NewFromConfig(cfg.LLM)
	if err != nil {
		return nil, err
	}

	data := marketdata.NewClient(marketdata.Config{
		BaseURL:   cfg.Data.BaseURL,
		Timeout:   time.Duration(cfg.Data.TimeoutSeconds) * time.Second,
		Pacing:    time.Duration(cfg.Data.PacingMs) * time.Millisecond,
		NewsToken: cfg.Data.NewsToken,
	})

	executor, err := toolexec.New(defaultsFrom(cfg), tools.Definitions(tools.Deps{
		Data:     data,
		Provider: provider,
		Model:    cfg.LLM.Model,
	})...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}

	return &analysisRuntime{Executor: executor, Provider: provider}, nil
}

// buildRegistry builds the dispatcher without live collaborators. The
// catalog and tool-name validation work without credentials; handlers
// must not be invoked through it.
func buildRegistry(cfg *config.Config) (*toolexec.Executor, error) {
	registry, err := toolexec.New(defaultsFrom(cfg), tools.Definitions(tools.Deps{})...)
	if err != nil {
		return nil, fmt.Errorf("failed to build tool registry: %w", err)
	}
	return registry, nil
}

func defaultsFrom(cfg *config.Config) toolexec.Config {
	return toolexec.Config{
		Defaults: toolexec.RunConfig{
			LLMProvider:   cfg.LLM.Provider,
			LLMModel:      cfg.LLM.Model,
			Analysts:      cfg.Analysis.Analysts,
			ResearchDepth: cfg.Analysis.ResearchDepth,
			MarketType:    cfg.Analysis.MarketType,
		},
	}
}

// sessionRunConfig snapshots a session's stored preferences. An empty
// key leaves the config zero so dispatch falls back to the defaults.
func sessionRunConfig(cfg *config.Config, key string) (toolexec.RunConfig, error) {
	if key == "" {
		return toolexec.RunConfig{}, nil
	}

	sessions, err := session.New(cfg.Session.Dir)
	if err != nil {
		return toolexec.RunConfig{}, fmt.Errorf("failed to open session store: %w", err)
	}
	return sessions.Snapshot(key), nil
}
