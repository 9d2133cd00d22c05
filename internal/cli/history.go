package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/leozhang/finsight/pkg/history"
)

var (
	historyLimit   int
	historySession string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent analysis runs",
	Long: `Show the metadata of recent analysis runs, newest first. Only run
metadata is recorded; report bodies are not stored.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultListLimit, "maximum number of runs to show")
	historyCmd.Flags().StringVar(&historySession, "session", "", "only show runs for this session key")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	var runs []history.Run
	if historySession != "" {
		runs, err = store.ListSessionRuns(ctx, historySession, historyLimit)
	} else {
		runs, err = store.ListRuns(ctx, historyLimit)
	}
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	for _, run := range runs {
		fmt.Fprintf(out, "%s  %s  %-15s  %-6s  %s",
			run.StartedAt.Format(time.RFC3339), run.ID, run.Tool,
			run.Status, run.Duration.Round(time.Millisecond))
		if len(run.Symbols) > 0 {
			fmt.Fprintf(out, "  symbols=%s", strings.Join(run.Symbols, ","))
		}
		if run.SessionKey != "" {
			fmt.Fprintf(out, "  session=%s", run.SessionKey)
		}
		if run.Error != "" {
			fmt.Fprintf(out, "  error=%q", truncateError(run.Error))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func truncateError(msg string) string {
	const max = 120
	if len(msg) <= max {
		return msg
	}
	return msg[:max] + "..."
}
