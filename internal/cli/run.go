package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/leozhang/finsight/internal/config"
	"github.com/leozhang/finsight/internal/tracing"
	"github.com/leozhang/finsight/pkg/history"
	"github.com/leozhang/finsight/pkg/toolexec"
)

var (
	runTool     string
	runSymbols  []string
	runStep     string
	runSession  string
	runAnalysts []string
	runDepth    int
	runMarket   string
	runModel    string
	runDate     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch one analysis tool",
	Long: `Dispatch a single analysis tool and print the aggregated report.
Symbols may be passed with --symbols or embedded in free-form --step text,
from which 6-digit security codes are extracted. Stored session preferences
apply when --session is given; explicit flags override them.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runTool, "tool", "", "tool to dispatch (see: finsight tools)")
	runCmd.Flags().StringSliceVar(&runSymbols, "symbols", nil, "6-digit security codes")
	runCmd.Flags().StringVar(&runStep, "step", "", "free-form step text; codes are extracted from it when --symbols is omitted")
	runCmd.Flags().StringVar(&runSession, "session", "", "session key whose stored preferences apply")
	runCmd.Flags().StringSliceVar(&runAnalysts, "analysts", nil, "analyst categories (market, fundamentals, sentiment, news)")
	runCmd.Flags().IntVar(&runDepth, "depth", 0, "research depth, 1 to 3")
	runCmd.Flags().StringVar(&runMarket, "market", "", "market type (A-share, US, HK)")
	runCmd.Flags().StringVar(&runModel, "model", "", "LLM model override")
	runCmd.Flags().StringVar(&runDate, "date", "", "analysis date (YYYY-MM-DD, defaults to today)")
	_ = runCmd.MarkFlagRequired("tool")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	runCfg, err := resolveRunConfig(cfg)
	if err != nil {
		return err
	}

	step := runStep
	if len(runSymbols) > 0 {
		if step != "" {
			step += "\n"
		}
		step += strings.Join(runSymbols, ", ")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = tracing.WithTraceID(ctx, tracing.NewTraceID())
	if runSession != "" {
		ctx = tracing.WithSessionKey(ctx, runSession)
	}

	errOut := cmd.ErrOrStderr()
	progress := func(message string, fraction float64) {
		fmt.Fprintf(errOut, "[%3.0f%%] %s\n", fraction*100, message)
	}

	started := time.Now()
	result := rt.Executor.DispatchResult(ctx, toolexec.Request{
		Tool:        runTool,
		StepContent: step,
		Progress:    progress,
		Config:      runCfg,
	})

	recordCLIRun(ctx, cfg, started, result)

	if !result.Success {
		return errors.New(result.Error)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Output)
	fmt.Fprintf(errOut, "Completed in %s\n", result.Duration.Round(time.Millisecond))
	return nil
}

// resolveRunConfig overlays command flags on the session's stored
// preferences. Unset fields fall through to the dispatcher defaults.
func resolveRunConfig(cfg *config.Config) (toolexec.RunConfig, error) {
	runCfg, err := sessionRunConfig(cfg, runSession)
	if err != nil {
		return toolexec.RunConfig{}, err
	}

	if len(runAnalysts) > 0 {
		runCfg.Analysts = runAnalysts
	}
	if runDepth > 0 {
		runCfg.ResearchDepth = runDepth
	}
	if runMarket != "" {
		runCfg.MarketType = runMarket
	}
	if runModel != "" {
		runCfg.LLMModel = runModel
	}
	if runDate != "" {
		runCfg.AnalysisDate = runDate
	}

	return runCfg, nil
}

// recordCLIRun stores run metadata. A broken history store only warns;
// the report the user asked for is already in hand.
func recordCLIRun(ctx context.Context, cfg *config.Config, started time.Time, result toolexec.ToolResult) {
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open history store")
		return
	}
	defer func() { _ = store.Close() }()

	run := history.Run{
		SessionKey: runSession,
		Tool:       runTool,
		Symbols:    runSymbols,
		StartedAt:  started,
		Duration:   result.Duration,
	}
	if result.Success {
		run.Succeeded = 1
	} else {
		run.Failed = 1
		run.Error = result.Error
	}

	if _, err := store.RecordRun(ctx, run); err != nil {
		log.Warn().Err(err).Msg("Failed to record run history")
	}
}
