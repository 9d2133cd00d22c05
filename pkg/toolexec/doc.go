// Package toolexec registers and dispatches named analysis tools.
//
// Invariants:
// - Tool names are unique; re-registering a name replaces the handler but keeps its catalog slot.
// - The registry is built once at construction and never mutated afterwards.
// - Dispatch never panics or returns an error: every failure becomes a human-readable string.
// - Batch runs isolate per-identifier failures and always preserve input order in the report.
//
// Usage:
//
//	exec, _ := toolexec.New(toolexec.Config{}, toolexec.ToolDefinition{
//		Name:        "echo",
//		Description: "Echo input",
//		Parameters:  []toolexec.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, req toolexec.Request) (string, error) {
//			return fmt.Sprintf("%v", req.Params["text"]), nil
//		},
//	})
//	report := exec.Dispatch(ctx, toolexec.Request{Tool: "echo", Params: map[string]interface{}{"text": "hi"}})
package toolexec
