package schedule

import (
	"time"

	"github.com/leozhang/finsight/pkg/history"
	"github.com/leozhang/finsight/pkg/runqueue"
	"github.com/leozhang/finsight/pkg/session"
	"github.com/leozhang/finsight/pkg/toolexec"
	"github.com/leozhang/finsight/pkg/watchlist"
)

// Kind selects how a schedule produces run times.
type Kind string

const (
	// KindAt runs once at a fixed timestamp. The service disables the
	// job after that run.
	KindAt Kind = "at"

	// KindEvery runs on a fixed interval, optionally aligned to an
	// anchor timestamp.
	KindEvery Kind = "every"

	// KindCron runs per a five-field cron expression, optionally in a
	// named timezone.
	KindCron Kind = "cron"
)

// Schedule is a time specification for job execution.
type Schedule struct {
	Kind Kind `json:"kind"`

	// For "at" schedules: an RFC 3339 timestamp.
	At string `json:"at,omitempty"`

	// For "every" schedules: a Go duration such as "30m" or "24h",
	// and an optional RFC 3339 anchor the interval is aligned to.
	Every  string `json:"every,omitempty"`
	Anchor string `json:"anchor,omitempty"`

	// For "cron" schedules: a five-field cron expression and an
	// optional IANA timezone name.
	Expr string `json:"expr,omitempty"`
	TZ   string `json:"tz,omitempty"`
}

// Run statuses kept in JobState.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// JobState tracks the runtime bookkeeping of a job.
type JobState struct {
	NextRunAt         *time.Time `json:"next_run_at,omitempty"`
	RunningAt         *time.Time `json:"running_at,omitempty"`
	LastRunAt         *time.Time `json:"last_run_at,omitempty"`
	LastStatus        string     `json:"last_status,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	LastDurationMs    int64      `json:"last_duration_ms,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors,omitempty"`
}

// Job is a recurring analysis definition. Symbols and Watchlist feed the
// dispatch as step content, so tools that extract identifiers pick them
// up through the fallback path; tools that take other arguments get them
// through Params.
type Job struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name"`
	Enabled        bool                   `json:"enabled"`
	DeleteAfterRun bool                   `json:"delete_after_run,omitempty"`
	Tool           string                 `json:"tool"`
	Symbols        []string               `json:"symbols,omitempty"`
	Watchlist      string                 `json:"watchlist,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty"`
	SessionKey     string                 `json:"session_key,omitempty"`
	Schedule       Schedule               `json:"schedule"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
	State          JobState               `json:"state"`
}

// AddParams contains the fields for creating a job.
type AddParams struct {
	Name           string                 `json:"name"`
	Enabled        bool                   `json:"enabled"`
	DeleteAfterRun bool                   `json:"delete_after_run,omitempty"`
	Tool           string                 `json:"tool"`
	Symbols        []string               `json:"symbols,omitempty"`
	Watchlist      string                 `json:"watchlist,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty"`
	SessionKey     string                 `json:"session_key,omitempty"`
	Schedule       Schedule               `json:"schedule"`
}

// JobPatch updates a job. Nil fields are left untouched.
type JobPatch struct {
	Name           *string                 `json:"name,omitempty"`
	Enabled        *bool                   `json:"enabled,omitempty"`
	DeleteAfterRun *bool                   `json:"delete_after_run,omitempty"`
	Tool           *string                 `json:"tool,omitempty"`
	Symbols        *[]string               `json:"symbols,omitempty"`
	Watchlist      *string                 `json:"watchlist,omitempty"`
	Params         *map[string]interface{} `json:"params,omitempty"`
	SessionKey     *string                 `json:"session_key,omitempty"`
	Schedule       *Schedule               `json:"schedule,omitempty"`
}

// EventAction is the type of a scheduler event.
type EventAction string

const (
	EventAdded    EventAction = "added"
	EventUpdated  EventAction = "updated"
	EventRemoved  EventAction = "removed"
	EventFinished EventAction = "finished"
)

// Event reports a job lifecycle change or a finished run.
type Event struct {
	Action     EventAction `json:"action"`
	JobID      string      `json:"job_id"`
	Status     string      `json:"status,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMs int64       `json:"duration_ms,omitempty"`
	NextRunAt  *time.Time  `json:"next_run_at,omitempty"`
}

// RunMode selects how RunJob treats the enabled flag.
type RunMode string

const (
	// RunModeDue skips disabled jobs.
	RunModeDue RunMode = "due"

	// RunModeForce runs the job regardless of the enabled flag.
	RunModeForce RunMode = "force"
)

// Options configures the scheduler service. Executor and Queue are
// required; the remaining collaborators are optional and skipped when
// nil. OnEvent is invoked synchronously and must not call back into the
// Service.
type Options struct {
	// StorePath is the jobs file. Empty defaults to ~/.finsight/jobs.json.
	StorePath string

	// Executor dispatches the job's tool.
	Executor *toolexec.Executor

	// Queue serializes runs on the analysis lane.
	Queue *runqueue.Queue

	// Sessions resolves a job's session key into run preferences.
	Sessions *session.Manager

	// Watchlists resolves a job's watchlist name into symbols.
	Watchlists *watchlist.Store

	// History records run metadata.
	History *history.Store

	// OnEvent receives job lifecycle and run events.
	OnEvent func(Event)

	// Passive loads and persists jobs without arming any timers, so
	// nothing fires on its own. Job CRUD and explicit RunJob calls
	// still work. Management commands use this to touch the store
	// without starting stale jobs.
	Passive bool
}
