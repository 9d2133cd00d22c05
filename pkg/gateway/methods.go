package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/leozhang/finsight/internal/tracing"
	"github.com/leozhang/finsight/pkg/history"
	"github.com/leozhang/finsight/pkg/runqueue"
	"github.com/leozhang/finsight/pkg/toolexec"
)

// registerBuiltinMethods registers the RPC surface
func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("analyze", s.handleAnalyze)
	_ = s.RegisterMethod("catalog", s.handleCatalog)
	_ = s.RegisterMethod("tools", s.handleTools)
	_ = s.RegisterMethod("history", s.handleHistory)
}

// handleAnalyze dispatches one analysis through the analysis lane. The
// dispatch itself never fails the RPC: a failed run comes back with
// ok=false and the failure text in the payload. Only queueing problems
// surface as RPC errors.
//
// WebSocket callers receive progress frames for every batch progress
// callback and a final result frame; HTTP callers get the response only.
func (s *Server) handleAnalyze(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	tool, ok := params["tool"].(string)
	if !ok || tool == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "tool parameter is required and must be a string"}
	}

	toolParams := map[string]interface{}{}
	if raw, ok := params["params"].(map[string]interface{}); ok {
		toolParams = raw
	}

	step, _ := params["step"].(string)
	sessionKey, _ := params["session"].(string)

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
	}
	ctx = tracing.WithRunID(ctx, tracing.NewRunID())
	if sessionKey != "" {
		ctx = tracing.WithSessionKey(ctx, sessionKey)
	}

	logger := tracing.LoggerFromContext(ctx, s.logger)
	traceID := tracing.GetTraceID(ctx)
	runID := tracing.GetRunID(ctx)
	clientID := clientIDFromContext(ctx)

	var cfg toolexec.RunConfig
	if sessionKey != "" && s.sessions != nil {
		cfg = s.sessions.SnapshotWithContext(ctx, sessionKey)
	}

	var progress toolexec.ProgressFunc
	if clientID != "" {
		progress = func(message string, fraction float64) {
			s.broadcaster.BroadcastToClient(clientID, EventMessage{
				Event:   "analysis.progress",
				Stream:  StreamTypeAnalysis,
				Phase:   "progress",
				Session: sessionKey,
				TraceID: traceID,
				RunID:   runID,
				Data: map[string]interface{}{
					"tool":     tool,
					"message":  message,
					"fraction": fraction,
				},
			})
		}
	}

	req := toolexec.Request{
		Tool:        tool,
		Params:      toolParams,
		StepContent: step,
		Progress:    progress,
		Config:      cfg,
	}

	queueOpts := &runqueue.Options{WarnAfter: time.Minute}
	if clientID != "" {
		queueOpts.OnWait = func(wait time.Duration, queuePos int) {
			s.broadcaster.BroadcastToClient(clientID, EventMessage{
				Event:   "analysis.queued",
				Stream:  StreamTypeAnalysis,
				Phase:   "queued",
				Session: sessionKey,
				TraceID: traceID,
				RunID:   runID,
				Data: map[string]interface{}{
					"tool":      tool,
					"wait_ms":   wait.Milliseconds(),
					"queue_pos": queuePos,
				},
			})
		}
	}

	logger.Info().
		Str("tool", tool).
		Str("session_key", sessionKey).
		Msg("Gateway analysis requested")

	started := time.Now()
	var result toolexec.ToolResult
	ran := false

	_, err := s.queue.Enqueue(ctx, runqueue.AnalysisLane, func(taskCtx context.Context) (string, error) {
		ran = true
		result = s.executor.DispatchResult(taskCtx, req)
		if !result.Success {
			return "", errors.New(result.Error)
		}
		return result.Output, nil
	}, queueOpts)

	if !ran {
		if err == nil {
			err = errors.New("analysis was not executed")
		}
		return nil, fmt.Errorf("failed to queue analysis: %w", err)
	}

	s.recordRun(ctx, sessionKey, tool, started, result, logger)

	payload := map[string]interface{}{
		"ok":          result.Success,
		"report":      result.Output,
		"duration_ms": result.Duration.Milliseconds(),
		"tool":        tool,
		"run_id":      runID,
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	if sessionKey != "" {
		payload["session_key"] = sessionKey
	}

	if clientID != "" {
		phase := "complete"
		if !result.Success {
			phase = "error"
		}
		s.broadcaster.BroadcastToClient(clientID, EventMessage{
			Event:   "analysis.result",
			Stream:  StreamTypeAnalysis,
			Phase:   phase,
			Session: sessionKey,
			TraceID: traceID,
			RunID:   runID,
			Data:    payload,
		})
	}

	return payload, nil
}

// recordRun writes the dispatch outcome to the history store. History
// failures are logged, never surfaced to the caller.
func (s *Server) recordRun(ctx context.Context, sessionKey, tool string, started time.Time, result toolexec.ToolResult, logger zerolog.Logger) {
	if s.historyStore == nil {
		return
	}

	run := history.Run{
		SessionKey: sessionKey,
		Tool:       tool,
		StartedAt:  started,
		Duration:   result.Duration,
	}
	if result.Success {
		run.Succeeded = 1
	} else {
		run.Failed = 1
		run.Error = result.Error
	}

	if _, err := s.historyStore.RecordRun(ctx, run); err != nil {
		logger.Warn().Err(err).Str("tool", tool).Msg("Failed to record run history")
	}
}

// handleCatalog returns the rendered tool catalog
func (s *Server) handleCatalog(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{
		"catalog": s.executor.RenderCatalog(),
	}, nil
}

// handleTools returns the registered tool metadata, or bare names when
// the names flag is set.
func (s *Server) handleTools(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	meta := s.executor.Metadata()

	if namesOnly, _ := params["names"].(bool); namesOnly {
		names := make([]string, 0, len(meta))
		for _, m := range meta {
			names = append(names, m.Name)
		}
		return map[string]interface{}{"tools": names}, nil
	}

	return map[string]interface{}{"tools": meta}, nil
}

// handleHistory lists recent runs, optionally scoped to one session
func (s *Server) handleHistory(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if s.historyStore == nil {
		return nil, fmt.Errorf("history store is not available")
	}

	limit := history.DefaultListLimit
	if raw, ok := params["limit"].(float64); ok && int(raw) > 0 {
		limit = int(raw)
	}

	sessionKey, _ := params["session"].(string)

	var (
		runs []history.Run
		err  error
	)
	if sessionKey != "" {
		runs, err = s.historyStore.ListSessionRuns(ctx, sessionKey, limit)
	} else {
		runs, err = s.historyStore.ListRuns(ctx, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	return map[string]interface{}{"runs": runs}, nil
}
