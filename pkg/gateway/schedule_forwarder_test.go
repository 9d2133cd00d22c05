package gateway

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leozhang/finsight/pkg/schedule"
)

func TestScheduleForwarderEmitsScheduleFrames(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", Conn: serverConn, Authenticated: true})

	server := &Server{broadcaster: NewEventBroadcaster(registry, zerolog.Nop())}
	forwarder := NewScheduleForwarder(server)

	next := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
	forwarder.Forward(schedule.Event{
		Action:     schedule.EventFinished,
		JobID:      "job-1",
		Status:     schedule.StatusOK,
		DurationMs: 1500,
		NextRunAt:  &next,
	})

	var evt EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&evt))

	assert.Equal(t, "event", evt.Type)
	assert.Equal(t, "schedule.finished", evt.Event)
	assert.Equal(t, StreamTypeSchedule, evt.Stream)
	assert.Equal(t, "finished", evt.Phase)

	data := evt.Data.(map[string]interface{})
	assert.Equal(t, "job-1", data["job_id"])
	assert.Equal(t, schedule.StatusOK, data["status"])
	assert.Equal(t, float64(1500), data["duration_ms"])
	assert.Equal(t, "2026-09-01T09:30:00Z", data["next_run_at"])
	assert.NotContains(t, data, "error")
}

func TestScheduleForwarderIncludesFailureDetails(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", Conn: serverConn, Authenticated: true})

	server := &Server{broadcaster: NewEventBroadcaster(registry, zerolog.Nop())}
	forwarder := NewScheduleForwarder(server)

	forwarder.Forward(schedule.Event{
		Action: schedule.EventFinished,
		JobID:  "job-2",
		Status: schedule.StatusError,
		Error:  "watchlist is empty",
	})

	var evt EventMessage
	require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, clientConn.ReadJSON(&evt))

	data := evt.Data.(map[string]interface{})
	assert.Equal(t, schedule.StatusError, data["status"])
	assert.Equal(t, "watchlist is empty", data["error"])
}

func TestScheduleForwarderJobLifecycleActions(t *testing.T) {
	serverConn, clientConn, cleanup := websocketConnPair(t)
	defer cleanup()

	registry := NewClientRegistry()
	registry.Add(&Client{ID: "client-1", Conn: serverConn, Authenticated: true})

	server := &Server{broadcaster: NewEventBroadcaster(registry, zerolog.Nop())}
	forwarder := NewScheduleForwarder(server)

	actions := []schedule.EventAction{schedule.EventAdded, schedule.EventUpdated, schedule.EventRemoved}
	for _, action := range actions {
		forwarder.Forward(schedule.Event{Action: action, JobID: "job-3"})
	}

	for _, action := range actions {
		var evt EventMessage
		require.NoError(t, clientConn.SetReadDeadline(time.Now().Add(2*time.Second)))
		require.NoError(t, clientConn.ReadJSON(&evt))
		assert.Equal(t, "schedule."+string(action), evt.Event)
		assert.Equal(t, string(action), evt.Phase)
	}
}
