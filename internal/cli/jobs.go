package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leozhang/finsight/internal/config"
	"github.com/leozhang/finsight/pkg/history"
	"github.com/leozhang/finsight/pkg/runqueue"
	"github.com/leozhang/finsight/pkg/schedule"
	"github.com/leozhang/finsight/pkg/session"
	"github.com/leozhang/finsight/pkg/watchlist"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage scheduled analysis jobs",
	Long: `Manage the recurring analysis jobs the scheduler runs.
Jobs persist in jobs.json and fire while "finsight serve" is running;
"jobs run" executes one immediately in the foreground.`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs",
	RunE:  runJobsList,
}

var (
	jobsAddName      string
	jobsAddTool      string
	jobsAddSymbols   []string
	jobsAddWatchlist string
	jobsAddSession   string
	jobsAddCron      string
	jobsAddEvery     string
	jobsAddAt        string
	jobsAddTZ        string
	jobsAddDisabled  bool
	jobsAddOnce      bool
)

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	Long: `Add a recurring analysis job. Exactly one schedule flag is required:
--cron takes a five-field cron expression, --every a Go duration such as
"30m" or "24h", and --at an RFC 3339 timestamp for a one-shot run.
Symbols come from --symbols, from a named --watchlist, or both.`,
	RunE: runJobsAdd,
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsRemove,
}

var jobsRunCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run a job immediately",
	Long: `Run one scheduled job right now, regardless of its schedule or
enabled flag, and wait for it to finish.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsRun,
}

func init() {
	jobsAddCmd.Flags().StringVar(&jobsAddName, "name", "", "job name")
	jobsAddCmd.Flags().StringVar(&jobsAddTool, "tool", "", "tool to dispatch (see: finsight tools)")
	jobsAddCmd.Flags().StringSliceVar(&jobsAddSymbols, "symbols", nil, "6-digit security codes")
	jobsAddCmd.Flags().StringVar(&jobsAddWatchlist, "watchlist", "", "watchlist name resolved at run time")
	jobsAddCmd.Flags().StringVar(&jobsAddSession, "session", "", "session key whose stored preferences apply")
	jobsAddCmd.Flags().StringVar(&jobsAddCron, "cron", "", "five-field cron expression")
	jobsAddCmd.Flags().StringVar(&jobsAddEvery, "every", "", "run interval, e.g. 30m or 24h")
	jobsAddCmd.Flags().StringVar(&jobsAddAt, "at", "", "one-shot run time, RFC 3339")
	jobsAddCmd.Flags().StringVar(&jobsAddTZ, "tz", "", "IANA timezone for --cron")
	jobsAddCmd.Flags().BoolVar(&jobsAddDisabled, "disabled", false, "create the job without arming it")
	jobsAddCmd.Flags().BoolVar(&jobsAddOnce, "once", false, "delete the job after its first run")
	_ = jobsAddCmd.MarkFlagRequired("name")
	_ = jobsAddCmd.MarkFlagRequired("tool")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsRemoveCmd)
	jobsCmd.AddCommand(jobsRunCmd)
	rootCmd.AddCommand(jobsCmd)
}

// passiveScheduler opens the job store without arming timers, so
// management commands cannot start stale jobs. The caller stops both.
func passiveScheduler(cfg *config.Config) (*schedule.Service, *runqueue.Queue, error) {
	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	queue := runqueue.New()
	svc, err := schedule.NewService(schedule.Options{
		StorePath: cfg.Schedule.StorePath,
		Executor:  registry,
		Queue:     queue,
		Passive:   true,
	})
	if err != nil {
		_ = queue.Close()
		return nil, nil, fmt.Errorf("failed to open job store: %w", err)
	}

	return svc, queue, nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, queue, err := passiveScheduler(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Stop()
		_ = queue.Close()
	}()

	jobs := svc.ListJobs()
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs scheduled.")
		return nil
	}

	for _, job := range jobs {
		fmt.Fprintf(out, "%s  %-20s  %-15s  %-24s  enabled=%t", job.ID, job.Name, job.Tool, describeSchedule(job.Schedule), job.Enabled)
		if job.State.NextRunAt != nil {
			fmt.Fprintf(out, "  next=%s", job.State.NextRunAt.Format(time.RFC3339))
		}
		if job.State.LastStatus != "" {
			fmt.Fprintf(out, "  last=%s", job.State.LastStatus)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runJobsAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sched, err := scheduleFromFlags()
	if err != nil {
		return err
	}

	svc, queue, err := passiveScheduler(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Stop()
		_ = queue.Close()
	}()

	job, err := svc.AddJob(schedule.AddParams{
		Name:           jobsAddName,
		Enabled:        !jobsAddDisabled,
		DeleteAfterRun: jobsAddOnce,
		Tool:           jobsAddTool,
		Symbols:        jobsAddSymbols,
		Watchlist:      jobsAddWatchlist,
		SessionKey:     jobsAddSession,
		Schedule:       sched,
	})
	if err != nil {
		return fmt.Errorf("failed to add job: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Added job %s (%s)\n", job.ID, job.Name)
	if job.State.NextRunAt != nil {
		fmt.Fprintf(out, "Next run: %s\n", job.State.NextRunAt.Format(time.RFC3339))
	}
	return nil
}

func runJobsRemove(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, queue, err := passiveScheduler(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = svc.Stop()
		_ = queue.Close()
	}()

	if err := svc.RemoveJob(args[0]); err != nil {
		return fmt.Errorf("failed to remove job: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed job %s\n", args[0])
	return nil
}

func runJobsRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	queue := runqueue.New()
	defer func() { _ = queue.Close() }()

	sessions, err := session.New(cfg.Session.Dir)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	historyStore, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer func() { _ = historyStore.Close() }()

	watchStore, err := watchlist.NewStore(cfg.Watchlist.Path)
	if err != nil {
		return fmt.Errorf("failed to open watchlist store: %w", err)
	}

	svc, err := schedule.NewService(schedule.Options{
		StorePath:  cfg.Schedule.StorePath,
		Executor:   rt.Executor,
		Queue:      queue,
		Sessions:   sessions,
		Watchlists: watchStore,
		History:    historyStore,
		Passive:    true,
	})
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer func() { _ = svc.Stop() }()

	job, ok := svc.GetJob(args[0])
	if !ok {
		return fmt.Errorf("unknown job: %s", args[0])
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintf(cmd.ErrOrStderr(), "Running job %s (%s)...\n", job.ID, job.Name)
	if err := svc.RunJob(ctx, job.ID, schedule.RunModeForce); err != nil {
		return fmt.Errorf("job run failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if current, ok := svc.GetJob(job.ID); ok && current.State.LastDurationMs > 0 {
		elapsed := time.Duration(current.State.LastDurationMs) * time.Millisecond
		fmt.Fprintf(out, "Job completed in %s\n", elapsed)
	} else {
		fmt.Fprintln(out, "Job completed")
	}
	return nil
}

// scheduleFromFlags builds a schedule from exactly one of the cron,
// every and at flags.
func scheduleFromFlags() (schedule.Schedule, error) {
	set := 0
	if jobsAddCron != "" {
		set++
	}
	if jobsAddEvery != "" {
		set++
	}
	if jobsAddAt != "" {
		set++
	}
	if set != 1 {
		return schedule.Schedule{}, fmt.Errorf("exactly one of --cron, --every or --at is required")
	}

	switch {
	case jobsAddCron != "":
		return schedule.Schedule{Kind: schedule.KindCron, Expr: jobsAddCron, TZ: jobsAddTZ}, nil
	case jobsAddEvery != "":
		return schedule.Schedule{Kind: schedule.KindEvery, Every: jobsAddEvery}, nil
	default:
		return schedule.Schedule{Kind: schedule.KindAt, At: jobsAddAt}, nil
	}
}

func describeSchedule(s schedule.Schedule) string {
	switch s.Kind {
	case schedule.KindAt:
		return "at " + s.At
	case schedule.KindEvery:
		if s.Anchor != "" {
			return fmt.Sprintf("every %s from %s", s.Every, s.Anchor)
		}
		return "every " + s.Every
	case schedule.KindCron:
		if s.TZ != "" {
			return fmt.Sprintf("cron %q %s", s.Expr, s.TZ)
		}
		return fmt.Sprintf("cron %q", s.Expr)
	default:
		return string(s.Kind)
	}
}
