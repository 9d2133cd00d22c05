package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leozhang/finsight/pkg/llm"
	"github.com/leozhang/finsight/pkg/toolexec"
	"github.com/rs/zerolog/log"
)

// Planner turns a user goal into an executable plan drawn from the tool
// catalog.
type Planner struct {
	tools    *toolexec.Executor
	provider llm.Provider
	model    string
	retry    llm.RetryConfig
}

// NewPlanner creates a planner backed by the given tool registry.
func NewPlanner(tools *toolexec.Executor, provider llm.Provider, model string) *Planner {
	return &Planner{
		tools:    tools,
		provider: provider,
		model:    model,
		retry:    llm.DefaultRetryConfig(),
	}
}

// GeneratePlan asks the LLM for a step list serving the goal and
// validates every step against the registry.
func (p *Planner) GeneratePlan(ctx context.Context, goal string) (*Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, fmt.Errorf("goal cannot be empty")
	}

	resp, err := llm.CallWithRetry(ctx, p.provider, llm.Request{
		Model:        p.model,
		SystemPrompt: planningSystemPrompt(p.tools.RenderCatalog()),
		Messages: []llm.Message{
			{Role: "user", Content: planningUserPrompt(goal)},
		},
	}, p.retry)
	if err != nil {
		return nil, fmt.Errorf("plan generation failed: %w", err)
	}

	steps, err := parseSteps(resp.Content)
	if err != nil {
		return nil, err
	}

	if err := p.validateSteps(steps); err != nil {
		return nil, fmt.Errorf("invalid steps: %w", err)
	}

	for i := range steps {
		steps[i].ID = fmt.Sprintf("step-%d", i+1)
		steps[i].Status = StepStatusPending
	}

	plan := &Plan{
		ID:        uuid.New().String(),
		Goal:      goal,
		Steps:     steps,
		CreatedAt: time.Now(),
	}

	log.Info().
		Str("plan_id", plan.ID).
		Int("steps", len(plan.Steps)).
		Msg("Plan generated")

	return plan, nil
}

// validateSteps checks every step against the registry
func (p *Planner) validateSteps(steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("plan must have at least one step")
	}

	for i, step := range steps {
		if step.Tool == "" {
			return fmt.Errorf("step %d has no tool", i+1)
		}
		if !p.tools.HasTool(step.Tool) {
			return fmt.Errorf("unknown tool: %s (valid tools: %s)",
				step.Tool, strings.Join(p.tools.ListTools(), ", "))
		}
	}

	return nil
}

// parseSteps decodes the LLM reply into plan steps
func parseSteps(reply string) ([]Step, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	var doc struct {
		Steps []struct {
			Tool        string                 `json:"tool"`
			Params      map[string]interface{} `json:"params"`
			StepContent string                 `json:"step_content"`
		} `json:"steps"`
	}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse plan JSON: %w", err)
	}

	steps := make([]Step, 0, len(doc.Steps))
	for _, s := range doc.Steps {
		steps = append(steps, Step{
			Tool:        strings.TrimSpace(s.Tool),
			Params:      s.Params,
			StepContent: strings.TrimSpace(s.StepContent),
		})
	}

	return steps, nil
}

// extractJSON pulls the first JSON object out of a reply, tolerating
// markdown fences and surrounding prose.
func extractJSON(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in plan reply")
	}
	return reply[start : end+1], nil
}

func planningSystemPrompt(catalog string) string {
	return fmt.Sprintf(`You are the planning assistant of a financial research desk. You turn a user goal into an ordered list of tool invocations.

Available tools:

%s

Respond with a single JSON object and nothing else:
{"steps": [{"tool": "<tool name>", "params": {}, "step_content": "<context for this step>"}]}

Rules:
- Use only the tools listed above, with their documented parameter names.
- When the goal names stock or fund codes, put them in the matching params field; otherwise carry the relevant goal text in step_content.
- Keep the plan minimal and list steps in execution order.`, catalog)
}

func planningUserPrompt(goal string) string {
	return fmt.Sprintf("Goal: %s", goal)
}
