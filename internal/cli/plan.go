package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leozhang/finsight/internal/tracing"
	"github.com/leozhang/finsight/pkg/planner"
)

var (
	planExecute  bool
	planSession  string
	planContinue bool
)

var planCmd = &cobra.Command{
	Use:   "plan <goal>",
	Short: "Generate a multi-step analysis plan from a goal",
	Long: `Generate an ordered tool plan for a research goal and print it.
With --execute the steps run sequentially through the dispatcher and each
step's report is printed as it completes.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planExecute, "execute", false, "execute the plan after generating it")
	planCmd.Flags().StringVar(&planSession, "session", "", "session key whose stored preferences apply")
	planCmd.Flags().BoolVar(&planContinue, "continue-on-error", false, "keep running remaining steps after a failure")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	goal := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())

	p := planner.NewPlanner(rt.Executor, rt.Provider, cfg.LLM.Model)
	plan, err := p.GeneratePlan(ctx, goal)
	if err != nil {
		return fmt.Errorf("failed to generate plan: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, plan.Render())

	if !planExecute {
		return nil
	}

	runCfg, err := sessionRunConfig(cfg, planSession)
	if err != nil {
		return err
	}

	errOut := cmd.ErrOrStderr()
	executor := planner.NewExecutor(rt.Executor)
	if planContinue {
		executor.SetFailureStrategy(planner.FailContinue)
	}
	executor.SetProgress(func(message string, fraction float64) {
		fmt.Fprintf(errOut, "[%3.0f%%] %s\n", fraction*100, message)
	})

	execErr := executor.ExecutePlan(ctx, plan, runCfg)

	fmt.Fprintln(out)
	fmt.Fprintln(out, plan.Render())
	for _, step := range plan.Steps {
		if step.Result == nil || step.Result.Output == "" {
			continue
		}
		fmt.Fprintf(out, "\n--- %s (%s) ---\n%s\n", step.ID, step.Tool, step.Result.Output)
	}

	return execErr
}
