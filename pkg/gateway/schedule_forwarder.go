package gateway

import (
	"time"

	"github.com/leozhang/finsight/pkg/schedule"
)

// ScheduleForwarder adapts scheduler events into gateway frames so
// connected clients see job changes and finished runs as they happen.
type ScheduleForwarder struct {
	server *Server
}

// NewScheduleForwarder creates a new schedule forwarder.
func NewScheduleForwarder(server *Server) *ScheduleForwarder {
	return &ScheduleForwarder{server: server}
}

// Forward broadcasts one scheduler event to all authenticated clients.
// Its signature matches the scheduler's OnEvent hook.
func (f *ScheduleForwarder) Forward(evt schedule.Event) {
	data := map[string]interface{}{
		"job_id": evt.JobID,
	}
	if evt.Status != "" {
		data["status"] = evt.Status
	}
	if evt.Error != "" {
		data["error"] = evt.Error
	}
	if evt.DurationMs > 0 {
		data["duration_ms"] = evt.DurationMs
	}
	if evt.NextRunAt != nil {
		data["next_run_at"] = evt.NextRunAt.Format(time.RFC3339)
	}

	f.server.BroadcastTyped(EventMessage{
		Event:     "schedule." + string(evt.Action),
		Stream:    StreamTypeSchedule,
		Phase:     string(evt.Action),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
}
