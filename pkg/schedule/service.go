package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/leozhang/finsight/internal/observability"
	"github.com/leozhang/finsight/internal/tracing"
	"github.com/leozhang/finsight/pkg/history"
	"github.com/leozhang/finsight/pkg/runqueue"
	"github.com/leozhang/finsight/pkg/toolexec"
)

// queueWarnAfter is how long a scheduled run may sit behind other work
// on the analysis lane before a warning is logged.
const queueWarnAfter = time.Minute

// Service schedules and executes recurring analysis jobs.
type Service struct {
	jobs    map[string]*Job
	timers  map[string]*time.Timer
	options Options
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewService creates the scheduler, loads persisted jobs and arms the
// timer of every enabled job (unless Options.Passive is set).
func NewService(opts Options) (*Service, error) {
	observability.EnsureRegistered()

	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if opts.Queue == nil {
		return nil, fmt.Errorf("run queue is required")
	}
	if opts.StorePath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		opts.StorePath = filepath.Join(homeDir, ".finsight", "jobs.json")
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Service{
		jobs:    make(map[string]*Job),
		timers:  make(map[string]*time.Timer),
		options: opts,
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := s.loadJobs(); err != nil {
		log.Warn().Err(err).Msg("Failed to load jobs, starting with an empty registry")
	}

	s.scheduleAll()

	log.Info().
		Int("jobCount", len(s.jobs)).
		Str("path", opts.StorePath).
		Bool("passive", opts.Passive).
		Msg("Scheduler initialized")

	return s, nil
}

// AddJob creates and persists a job, arming its timer when enabled.
func (s *Service) AddJob(params AddParams) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Job{}, fmt.Errorf("scheduler is stopped")
	}
	if params.Name == "" {
		return Job{}, fmt.Errorf("job name is required")
	}
	if params.Tool == "" {
		return Job{}, fmt.Errorf("job tool is required")
	}
	if !s.options.Executor.HasTool(params.Tool) {
		return Job{}, fmt.Errorf("unknown tool: %s", params.Tool)
	}

	nextRun, err := CalculateNextRun(params.Schedule)
	if err != nil {
		return Job{}, fmt.Errorf("invalid schedule: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:             uuid.NewString(),
		Name:           params.Name,
		Enabled:        params.Enabled,
		DeleteAfterRun: params.DeleteAfterRun,
		Tool:           params.Tool,
		Symbols:        append([]string(nil), params.Symbols...),
		Watchlist:      params.Watchlist,
		Params:         cloneParams(params.Params),
		SessionKey:     params.SessionKey,
		Schedule:       params.Schedule,
		CreatedAt:      now,
		UpdatedAt:      now,
		State:          JobState{NextRunAt: &nextRun},
	}

	s.jobs[job.ID] = job

	if err := s.persistLocked(); err != nil {
		delete(s.jobs, job.ID)
		return Job{}, fmt.Errorf("failed to persist job: %w", err)
	}

	if job.Enabled {
		s.scheduleJobLocked(job)
	}

	log.Info().
		Str("jobId", job.ID).
		Str("name", job.Name).
		Str("tool", job.Tool).
		Bool("enabled", job.Enabled).
		Msg("Job created")

	observability.RecordScheduleAudit(context.Background(), "add", job.ID, "success", map[string]interface{}{
		"name": job.Name,
		"tool": job.Tool,
	})

	s.emit(Event{Action: EventAdded, JobID: job.ID})

	return cloneJob(job), nil
}

// UpdateJob applies a patch to a job. Schedule changes and re-enabling
// recalculate the next run, and either rearms the timer.
func (s *Service) UpdateJob(id string, patch JobPatch) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return Job{}, fmt.Errorf("scheduler is stopped")
	}

	job, exists := s.jobs[id]
	if !exists {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}

	// Validate before touching the job so a rejected patch leaves it
	// unchanged.
	if patch.Name != nil && *patch.Name == "" {
		return Job{}, fmt.Errorf("job name is required")
	}
	if patch.Tool != nil && !s.options.Executor.HasTool(*patch.Tool) {
		return Job{}, fmt.Errorf("unknown tool: %s", *patch.Tool)
	}
	var patchedNextRun *time.Time
	if patch.Schedule != nil {
		next, err := CalculateNextRun(*patch.Schedule)
		if err != nil {
			return Job{}, fmt.Errorf("invalid schedule: %w", err)
		}
		patchedNextRun = &next
	}

	scheduleChanged := false
	enabledChanged := false
	oldEnabled := job.Enabled

	if patch.Name != nil {
		job.Name = *patch.Name
	}
	if patch.Enabled != nil {
		job.Enabled = *patch.Enabled
		enabledChanged = oldEnabled != job.Enabled
	}
	if patch.DeleteAfterRun != nil {
		job.DeleteAfterRun = *patch.DeleteAfterRun
	}
	if patch.Tool != nil {
		job.Tool = *patch.Tool
	}
	if patch.Symbols != nil {
		job.Symbols = append([]string(nil), (*patch.Symbols)...)
	}
	if patch.Watchlist != nil {
		job.Watchlist = *patch.Watchlist
	}
	if patch.Params != nil {
		job.Params = cloneParams(*patch.Params)
	}
	if patch.SessionKey != nil {
		job.SessionKey = *patch.SessionKey
	}
	if patch.Schedule != nil {
		job.Schedule = *patch.Schedule
		job.State.NextRunAt = patchedNextRun
		scheduleChanged = true
	}

	job.UpdatedAt = time.Now()

	// Re-enabling with a stale next run time would fire immediately, so
	// recalculate from the unchanged schedule too.
	if enabledChanged && job.Enabled && !scheduleChanged {
		if next, err := CalculateNextRun(job.Schedule); err != nil {
			log.Warn().Str("jobId", id).Err(err).Msg("Failed to recalculate next run")
		} else {
			job.State.NextRunAt = &next
		}
	}

	if err := s.persistLocked(); err != nil {
		return Job{}, fmt.Errorf("failed to persist job: %w", err)
	}

	if scheduleChanged || enabledChanged {
		s.cancelTimerLocked(id)
		if job.Enabled {
			s.scheduleJobLocked(job)
		}
	}

	log.Info().
		Str("jobId", id).
		Str("name", job.Name).
		Bool("scheduleChanged", scheduleChanged).
		Bool("enabledChanged", enabledChanged).
		Msg("Job updated")

	observability.RecordScheduleAudit(context.Background(), "update", id, "success", map[string]interface{}{
		"name": job.Name,
	})

	s.emit(Event{Action: EventUpdated, JobID: id})

	return cloneJob(job), nil
}

// RemoveJob cancels and deletes a job.
func (s *Service) RemoveJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	job, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}

	s.cancelTimerLocked(id)
	delete(s.jobs, id)

	if err := s.persistLocked(); err != nil {
		return fmt.Errorf("failed to persist jobs: %w", err)
	}

	log.Info().
		Str("jobId", id).
		Str("name", job.Name).
		Msg("Job removed")

	observability.RecordScheduleAudit(context.Background(), "remove", id, "success", map[string]interface{}{
		"name": job.Name,
	})

	s.emit(Event{Action: EventRemoved, JobID: id})

	return nil
}

// RunJob executes a job immediately and synchronously, returning the
// run error. RunModeDue skips disabled jobs.
func (s *Service) RunJob(ctx context.Context, id string, mode RunMode) error {
	s.mu.RLock()
	job, exists := s.jobs[id]
	enabled := exists && job.Enabled
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job not found: %s", id)
	}
	if mode == RunModeDue && !enabled {
		log.Debug().Str("jobId", id).Msg("Skipping disabled job in 'due' mode")
		return nil
	}

	return s.executeJob(ctx, id)
}

// ListJobs returns copies of all jobs, oldest first.
func (s *Service) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, cloneJob(job))
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].Name < jobs[j].Name
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	return jobs
}

// GetJob returns a copy of one job.
func (s *Service) GetJob(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return Job{}, false
	}
	return cloneJob(job), true
}

// Stop cancels all timers, persists state and waits for in-flight runs
// to finish their bookkeeping. Repeated calls are no-ops.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.cancel()

	for id := range s.timers {
		s.cancelTimerLocked(id)
	}

	err := s.persistLocked()
	s.mu.Unlock()

	s.wg.Wait()

	if err != nil {
		log.Error().Err(err).Msg("Failed to persist jobs on shutdown")
		return err
	}

	log.Info().Msg("Scheduler stopped")

	return nil
}

// scheduleAll arms timers for every enabled job.
func (s *Service) scheduleAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.Enabled {
			s.scheduleJobLocked(job)
		}
	}
}

// scheduleJobLocked arms a job's timer. Past-due jobs fire immediately.
// In passive mode nothing is armed; jobs run only through RunJob.
func (s *Service) scheduleJobLocked(job *Job) {
	if s.options.Passive {
		return
	}
	if job.State.NextRunAt == nil {
		log.Warn().Str("jobId", job.ID).Msg("Cannot schedule job without a next run time")
		return
	}

	delay := time.Until(*job.State.NextRunAt)
	if delay < 0 {
		delay = 0
	}

	jobID := job.ID
	timer := time.AfterFunc(delay, func() {
		_ = s.executeJob(s.ctx, jobID)
	})

	s.timers[job.ID] = timer

	log.Debug().
		Str("jobId", job.ID).
		Dur("delay", delay).
		Time("nextRun", *job.State.NextRunAt).
		Msg("Job scheduled")
}

// cancelTimerLocked stops and forgets a job's timer.
func (s *Service) cancelTimerLocked(id string) {
	if timer, exists := s.timers[id]; exists {
		timer.Stop()
		delete(s.timers, id)
		log.Debug().Str("jobId", id).Msg("Job timer cancelled")
	}
}

// executeJob runs one job end to end: resolve symbols, snapshot session
// preferences, dispatch on the analysis lane, then update state and
// rearm the timer.
func (s *Service) executeJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is stopped")
	}
	job, exists := s.jobs[jobID]
	if !exists {
		s.mu.Unlock()
		log.Debug().Str("jobId", jobID).Msg("Job no longer exists, skipping run")
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.State.RunningAt != nil {
		s.mu.Unlock()
		log.Debug().Str("jobId", jobID).Msg("Job already running, skipping run")
		return nil
	}

	started := time.Now()
	job.State.RunningAt = &started
	run := cloneJob(job)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := tracing.StartSpan(
		ctx,
		"finsight.schedule",
		"schedule.run_job",
		attribute.String("job_id", run.ID),
		attribute.String("tool", run.Tool),
	)
	defer span.End()
	if run.SessionKey != "" {
		ctx = tracing.WithSessionKey(ctx, run.SessionKey)
	}
	logger := tracing.LoggerFromContext(ctx, log.Logger)

	logger.Info().
		Str("jobId", run.ID).
		Str("name", run.Name).
		Str("tool", run.Tool).
		Msg("Executing job")

	output, symbols, runErr := s.dispatch(ctx, run)
	duration := time.Since(started)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}

	s.recordHistory(ctx, run, symbols, started, duration, runErr, logger)

	observability.RecordScheduledRun(runErr == nil)

	status := "success"
	if runErr != nil {
		status = "error"
	}
	observability.RecordScheduleAudit(ctx, "run", run.ID, status, map[string]interface{}{
		"tool":        run.Tool,
		"duration_ms": duration.Milliseconds(),
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.jobs[run.ID]
	if !exists {
		// Removed while running.
		return runErr
	}

	current.State.RunningAt = nil
	current.State.LastRunAt = &started
	current.State.LastDurationMs = duration.Milliseconds()

	if runErr != nil {
		current.State.LastStatus = StatusError
		current.State.LastError = runErr.Error()
		current.State.ConsecutiveErrors++

		logger.Error().
			Str("jobId", run.ID).
			Err(runErr).
			Int("consecutiveErrors", current.State.ConsecutiveErrors).
			Msg("Job run failed")
	} else {
		current.State.LastStatus = StatusOK
		current.State.LastError = ""
		current.State.ConsecutiveErrors = 0

		logger.Info().
			Str("jobId", run.ID).
			Dur("duration", duration).
			Int("outputBytes", len(output)).
			Msg("Job run completed")
	}

	// Work out the next run. An "at" timestamp will not come around
	// again, so those jobs are disabled instead.
	if current.Schedule.Kind == KindAt {
		current.Enabled = false
		current.State.NextRunAt = nil
		logger.Info().Str("jobId", run.ID).Msg("One-shot job disabled after run")
	} else if next, err := CalculateNextRun(current.Schedule); err != nil {
		current.State.NextRunAt = nil
		logger.Error().Str("jobId", run.ID).Err(err).Msg("Failed to calculate next run")
	} else {
		current.State.NextRunAt = &next
	}

	if err := s.persistLocked(); err != nil {
		logger.Error().Err(err).Msg("Failed to persist job state")
	}

	s.emit(Event{
		Action:     EventFinished,
		JobID:      run.ID,
		Status:     current.State.LastStatus,
		Error:      current.State.LastError,
		DurationMs: duration.Milliseconds(),
		NextRunAt:  cloneTime(current.State.NextRunAt),
	})

	// The timer that fired this run is spent, and a manual run may
	// leave a live one armed. Clear before rescheduling.
	s.cancelTimerLocked(run.ID)

	if current.DeleteAfterRun && runErr == nil {
		logger.Info().Str("jobId", run.ID).Msg("Deleting job after successful run")
		delete(s.jobs, run.ID)
		if err := s.persistLocked(); err != nil {
			logger.Error().Err(err).Msg("Failed to persist jobs after delete")
		}
		s.emit(Event{Action: EventRemoved, JobID: run.ID})
		return runErr
	}

	if current.Enabled && current.State.NextRunAt != nil && !s.stopped {
		s.scheduleJobLocked(current)
	}

	return runErr
}

// dispatch resolves the job's symbols, snapshots its session
// preferences and runs the tool on the analysis lane. The resolved
// symbols feed the request as step content, where identifier
// extraction finds them.
func (s *Service) dispatch(ctx context.Context, job Job) (string, []string, error) {
	symbols, err := s.resolveSymbols(job)
	if err != nil {
		return "", nil, err
	}

	var cfg toolexec.RunConfig
	if job.SessionKey != "" && s.options.Sessions != nil {
		cfg = s.options.Sessions.SnapshotWithContext(ctx, job.SessionKey)
	}

	req := toolexec.Request{
		Tool:        job.Tool,
		Params:      cloneParams(job.Params),
		StepContent: strings.Join(symbols, ", "),
		Config:      cfg,
	}

	output, err := s.options.Queue.Enqueue(ctx, runqueue.AnalysisLane, func(taskCtx context.Context) (string, error) {
		result := s.options.Executor.DispatchResult(taskCtx, req)
		if !result.Success {
			return "", errors.New(result.Error)
		}
		return result.Output, nil
	}, &runqueue.Options{WarnAfter: queueWarnAfter})
	if err != nil {
		return "", symbols, err
	}

	return output, symbols, nil
}

// resolveSymbols merges the job's literal symbols with its watchlist,
// deduplicated in order.
func (s *Service) resolveSymbols(job Job) ([]string, error) {
	symbols := append([]string(nil), job.Symbols...)

	if job.Watchlist != "" {
		if s.options.Watchlists == nil {
			return nil, fmt.Errorf("job references watchlist %q but no watchlist store is configured", job.Watchlist)
		}
		listed, ok := s.options.Watchlists.Get(job.Watchlist)
		if !ok {
			return nil, fmt.Errorf("watchlist not found: %s", job.Watchlist)
		}
		symbols = append(symbols, listed...)
	}

	if len(symbols) < 2 {
		return symbols, nil
	}

	seen := make(map[string]bool, len(symbols))
	unique := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		if !seen[symbol] {
			seen[symbol] = true
			unique = append(unique, symbol)
		}
	}
	return unique, nil
}

// recordHistory writes the run's metadata when a history store is
// configured. Only metadata is kept; report bodies are never stored.
func (s *Service) recordHistory(ctx context.Context, job Job, symbols []string, started time.Time, duration time.Duration, runErr error, logger zerolog.Logger) {
	if s.options.History == nil {
		return
	}

	units := len(symbols)
	if units == 0 {
		units = 1
	}

	rec := history.Run{
		SessionKey: job.SessionKey,
		Tool:       job.Tool,
		Symbols:    symbols,
		StartedAt:  started,
		Duration:   duration,
	}
	if runErr != nil {
		rec.Failed = units
		rec.Error = runErr.Error()
	} else {
		rec.Succeeded = units
	}

	if _, err := s.options.History.RecordRun(ctx, rec); err != nil {
		logger.Warn().Err(err).Msg("Failed to record run history")
	}
}

// loadJobs reads jobs.json. Stale running markers from a previous
// process are cleared, and enabled jobs missing a next run time get one
// recalculated.
func (s *Service) loadJobs() error {
	data, err := os.ReadFile(s.options.StorePath)
	if os.IsNotExist(err) {
		log.Info().Msg("No existing job registry, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read jobs file: %w", err)
	}

	var jobs []*Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return fmt.Errorf("failed to parse jobs file: %w", err)
	}

	s.jobs = make(map[string]*Job, len(jobs))
	for _, job := range jobs {
		if job == nil || job.ID == "" {
			log.Warn().Msg("Skipping job record without an ID")
			continue
		}
		if job.State.RunningAt != nil {
			log.Debug().Str("jobId", job.ID).Msg("Clearing stale running marker")
			job.State.RunningAt = nil
		}
		if job.Enabled && job.State.NextRunAt == nil {
			if next, err := CalculateNextRun(job.Schedule); err != nil {
				log.Warn().Str("jobId", job.ID).Err(err).Msg("Failed to calculate next run")
			} else {
				job.State.NextRunAt = &next
			}
		}
		s.jobs[job.ID] = job
	}

	log.Info().Int("count", len(s.jobs)).Msg("Loaded jobs from registry")

	return nil
}

// persistLocked writes jobs.json via a temp file and rename, sorted by
// creation time for stable diffs. Callers hold the write lock.
func (s *Service) persistLocked() error {
	jobs := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})

	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal jobs: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.options.StorePath), 0700); err != nil {
		return fmt.Errorf("failed to create jobs directory: %w", err)
	}

	tempPath := s.options.StorePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.options.StorePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	log.Debug().Int("count", len(jobs)).Msg("Persisted jobs")

	return nil
}

// emit invokes the event callback when one is configured.
func (s *Service) emit(evt Event) {
	if s.options.OnEvent != nil {
		s.options.OnEvent(evt)
	}
}

func cloneJob(j *Job) Job {
	out := *j
	out.Symbols = append([]string(nil), j.Symbols...)
	out.Params = cloneParams(j.Params)
	out.State.NextRunAt = cloneTime(j.State.NextRunAt)
	out.State.RunningAt = cloneTime(j.State.RunningAt)
	out.State.LastRunAt = cloneTime(j.State.LastRunAt)
	return out
}

func cloneParams(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
