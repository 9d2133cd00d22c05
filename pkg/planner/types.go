package planner

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Plan is an ordered list of tool invocations derived from a goal.
type Plan struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Steps     []Step    `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// Step is a single tool invocation within a plan.
type Step struct {
	ID          string                 `json:"id"`
	Tool        string                 `json:"tool"`
	Params      map[string]interface{} `json:"params,omitempty"`
	StepContent string                 `json:"step_content,omitempty"`
	Status      StepStatus             `json:"status"`
	Result      *StepResult            `json:"result,omitempty"`
}

// StepStatus represents the execution status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepResult represents the result of executing a step
type StepResult struct {
	Success   bool          `json:"success"`
	Output    string        `json:"output"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// FailureStrategy defines how to handle step failures
type FailureStrategy string

const (
	FailAbort    FailureStrategy = "abort"    // Abort the plan on the first failed step
	FailContinue FailureStrategy = "continue" // Keep running the remaining steps
)

// Render formats the plan for console output.
func (p *Plan) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan %s: %s\n", p.ID, p.Goal)
	for i, step := range p.Steps {
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, step.Status, step.Tool)
		if len(step.Params) > 0 {
			params, err := json.Marshal(step.Params)
			if err == nil {
				fmt.Fprintf(&b, " %s", params)
			}
		}
		if step.StepContent != "" {
			fmt.Fprintf(&b, " (%s)", step.StepContent)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
