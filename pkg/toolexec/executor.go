package toolexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/leozhang/finsight/internal/observability"
	"github.com/leozhang/finsight/internal/tracing"
)

// DefaultTimeout bounds a single tool execution. Analysis tools fan out into
// several data fetches and LLM calls per identifier, so this is generous.
const DefaultTimeout = 5 * time.Minute

// Config holds executor construction options
type Config struct {
	// Defaults is the run configuration applied to any request field left unset
	Defaults RunConfig

	// Timeout bounds a single Execute call; zero means DefaultTimeout
	Timeout time.Duration
}

// Executor dispatches named analysis tools. The registry is built once at
// construction and is immutable afterwards.
type Executor struct {
	tools    map[string]*ToolDefinition
	order    []string
	schemas  map[string]*gojsonschema.Schema
	defaults RunConfig
	timeout  time.Duration
}

// New creates an executor from a static list of tool definitions. Definitions
// with an empty name or nil handler are rejected. Registering the same name
// twice keeps the first catalog slot but the last handler wins.
func New(cfg Config, defs ...ToolDefinition) (*Executor, error) {
	e := &Executor{
		tools:    make(map[string]*ToolDefinition),
		order:    make([]string, 0, len(defs)),
		schemas:  make(map[string]*gojsonschema.Schema),
		defaults: cfg.Defaults.fillFrom(DefaultRunConfig()),
		timeout:  cfg.Timeout,
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}

	for i := range defs {
		def := defs[i]
		if err := validateToolDefinition(&def); err != nil {
			return nil, err
		}

		if _, exists := e.tools[def.Name]; exists {
			log.Warn().
				Str("tool", def.Name).
				Msg("Duplicate tool registration, last definition wins")
		} else {
			e.order = append(e.order, def.Name)
		}
		e.tools[def.Name] = &def

		schema, err := generateJSONSchema(&def)
		if err != nil {
			return nil, fmt.Errorf("tool %s: failed to generate schema: %w", def.Name, err)
		}
		e.schemas[def.Name] = schema
	}

	log.Info().
		Int("tool_count", len(e.order)).
		Msg("Tool executor initialized")

	return e, nil
}

// validateToolDefinition checks that a definition is well formed
func validateToolDefinition(def *ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool %s: handler is required", def.Name)
	}

	validTypes := map[string]bool{
		"":        true, // unannotated, rendered as "unspecified"
		"string":  true,
		"number":  true,
		"boolean": true,
		"object":  true,
		"array":   true,
		"integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("tool %s: parameter name is required", def.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("tool %s: parameter %s has invalid type %s", def.Name, param.Name, param.Type)
		}
	}

	return nil
}

// generateJSONSchema builds a JSON schema for a tool's parameters. The schema
// is advisory: unknown properties are allowed and nothing is marked required,
// because identifier parameters may be omitted in favor of the step-content
// fallback and their values may arrive as scalar or list.
func generateJSONSchema(def *ToolDefinition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{})
	for _, param := range def.Parameters {
		prop := map[string]interface{}{
			"description": param.Description,
		}
		if param.Type == "array" {
			prop["type"] = "array"
		} else if param.Type != "" {
			prop["type"] = []string{param.Type, "array"}
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		properties[param.Name] = prop
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": true,
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

// ListTools returns registered tool names in registration order
func (e *Executor) ListTools() []string {
	names := make([]string, len(e.order))
	copy(names, e.order)
	return names
}

// HasTool reports whether a tool is registered
func (e *Executor) HasTool(name string) bool {
	_, ok := e.tools[name]
	return ok
}

// Describe returns the catalog-facing metadata for one tool
func (e *Executor) Describe(name string) (ToolMetadata, bool) {
	def, ok := e.tools[name]
	if !ok {
		return ToolMetadata{}, false
	}
	return metadataFor(def), true
}

// Metadata returns catalog-facing metadata for every tool in registration
// order. It is derived fresh on each call.
func (e *Executor) Metadata() []ToolMetadata {
	result := make([]ToolMetadata, 0, len(e.order))
	for _, name := range e.order {
		result = append(result, metadataFor(e.tools[name]))
	}
	return result
}

// Execute runs a tool and returns a structured result. It never returns an
// error: unknown tools, handler failures, panics, and timeouts all surface as
// a failed result with a human-readable message.
func (e *Executor) Execute(ctx context.Context, req Request) ToolResult {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "toolexec", "toolexec.execute",
		attribute.String("tool", req.Tool))
	defer span.End()

	def, ok := e.tools[req.Tool]
	if !ok {
		duration := time.Since(start)
		observability.RecordToolExecution(req.Tool, duration, false)
		log.Warn().
			Str("tool", req.Tool).
			Strs("valid_tools", e.order).
			Msg("Unknown tool requested")
		return ToolResult{
			Success:  false,
			Error:    fmt.Sprintf("unknown tool: %s (valid tools: %s)", req.Tool, strings.Join(e.order, ", ")),
			Duration: duration,
		}
	}

	e.checkParameters(req)

	// Resolve the run configuration snapshot for this dispatch
	req.Config = req.Config.fillFrom(e.defaults)

	logger := tracing.LoggerFromContext(ctx, log.Logger)
	logger.Info().
		Str("tool", req.Tool).
		Msg("Executing tool")

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool panicked: %v", r)
			}
		}()
		output, err := def.Handler(execCtx, req)
		if err != nil {
			errChan <- err
			return
		}
		resultChan <- output
	}()

	select {
	case output := <-resultChan:
		duration := time.Since(start)
		observability.RecordToolExecution(req.Tool, duration, true)
		logger.Debug().
			Str("tool", req.Tool).
			Dur("duration", duration).
			Msg("Tool execution completed")
		return ToolResult{
			Success:  true,
			Output:   output,
			Duration: duration,
		}

	case err := <-errChan:
		duration := time.Since(start)
		observability.RecordToolExecution(req.Tool, duration, false)
		logger.Error().
			Err(err).
			Str("tool", req.Tool).
			Dur("duration", duration).
			Msg("Tool execution failed")
		return ToolResult{
			Success:  false,
			Error:    fmt.Sprintf("tool execution failed: %v", err),
			Duration: duration,
		}

	case <-execCtx.Done():
		duration := time.Since(start)
		observability.RecordToolExecution(req.Tool, duration, false)
		msg := fmt.Sprintf("tool execution timeout after %s", e.timeout)
		if execCtx.Err() != context.DeadlineExceeded {
			msg = fmt.Sprintf("tool execution cancelled: %v", execCtx.Err())
		}
		logger.Error().
			Str("tool", req.Tool).
			Dur("duration", duration).
			Msg(msg)
		return ToolResult{
			Success:  false,
			Error:    msg,
			Duration: duration,
		}
	}
}

// checkParameters validates request parameters against the tool's schema.
// Validation is advisory: mismatches are logged, never fatal, so that a
// planner sending a scalar where a list is usual still dispatches.
func (e *Executor) checkParameters(req Request) {
	schema, ok := e.schemas[req.Tool]
	if !ok || req.Params == nil {
		return
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(req.Params))
	if err != nil {
		log.Debug().Err(err).Str("tool", req.Tool).Msg("Parameter validation skipped")
		return
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			details = append(details, issue.String())
		}
		log.Warn().
			Str("tool", req.Tool).
			Strs("issues", details).
			Msg("Parameters do not match tool schema")
	}
}

// Dispatch runs a tool and flattens the result into a single report string.
// Failures come back as the error message; Dispatch never returns an error
// and never panics.
func (e *Executor) Dispatch(ctx context.Context, req Request) string {
	result := e.DispatchResult(ctx, req)
	if !result.Success {
		return result.Error
	}
	return result.Output
}

// DispatchResult runs a tool through the same audited dispatch path as
// Dispatch but keeps the structured result, for callers that need the
// success flag alongside the report text.
func (e *Executor) DispatchResult(ctx context.Context, req Request) ToolResult {
	ctx = tracing.NewDispatchContext(ctx, req.Tool)

	result := e.Execute(ctx, req)

	status := "success"
	if !result.Success {
		status = "error"
	}
	observability.RecordDispatchAudit(ctx, req.Tool, tracing.GetSessionKey(ctx), status, map[string]interface{}{
		"duration_ms": result.Duration.Milliseconds(),
	})

	return result
}
