package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/leozhang/finsight/pkg/toolexec"
	"github.com/rs/zerolog/log"
)

// Executor runs plans step by step through the tool dispatcher.
type Executor struct {
	tools           *toolexec.Executor
	failureStrategy FailureStrategy
	progress        toolexec.ProgressFunc
}

// NewExecutor creates a plan executor
func NewExecutor(tools *toolexec.Executor) *Executor {
	return &Executor{
		tools:           tools,
		failureStrategy: FailAbort,
	}
}

// SetFailureStrategy sets the failure handling strategy
func (e *Executor) SetFailureStrategy(strategy FailureStrategy) {
	e.failureStrategy = strategy
}

// SetProgress sets the progress callback passed to each dispatch
func (e *Executor) SetProgress(progress toolexec.ProgressFunc) {
	e.progress = progress
}

// ExecutePlan runs the plan's steps in order. With the abort strategy
// the first failed step stops the plan and the remaining steps are
// marked skipped; with the continue strategy every step runs regardless.
func (e *Executor) ExecutePlan(ctx context.Context, plan *Plan, cfg toolexec.RunConfig) error {
	if plan == nil || len(plan.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}

	for i := range plan.Steps {
		step := &plan.Steps[i]

		if err := ctx.Err(); err != nil {
			e.markSkipped(plan, i)
			return err
		}

		step.Status = StepStatusRunning
		log.Info().
			Str("plan_id", plan.ID).
			Str("step_id", step.ID).
			Str("tool", step.Tool).
			Msg("Executing plan step")

		result := e.tools.DispatchResult(ctx, toolexec.Request{
			Tool:        step.Tool,
			Params:      step.Params,
			StepContent: step.StepContent,
			Progress:    e.progress,
			Config:      cfg,
		})

		output := result.Output
		if !result.Success {
			output = result.Error
		}
		step.Result = &StepResult{
			Success:   result.Success,
			Output:    output,
			Duration:  result.Duration,
			Timestamp: time.Now(),
		}

		if result.Success {
			step.Status = StepStatusCompleted
			continue
		}

		step.Status = StepStatusFailed
		log.Warn().
			Str("plan_id", plan.ID).
			Str("step_id", step.ID).
			Str("tool", step.Tool).
			Msg("Plan step failed")

		if e.failureStrategy == FailAbort {
			e.markSkipped(plan, i+1)
			return fmt.Errorf("step %s failed: %s", step.ID, result.Error)
		}
	}

	return nil
}

// markSkipped marks every not-yet-run step from index on as skipped
func (e *Executor) markSkipped(plan *Plan, from int) {
	for i := from; i < len(plan.Steps); i++ {
		if plan.Steps[i].Status == StepStatusPending {
			plan.Steps[i].Status = StepStatusSkipped
		}
	}
}
