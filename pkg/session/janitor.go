package session

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultRetention     = 30 * 24 * time.Hour // 30 days
	defaultSweepInterval = 24 * time.Hour
)

// Janitor deletes preference files for sessions that have not been
// updated within the retention window.
type Janitor struct {
	manager   *Manager
	retention time.Duration
	interval  time.Duration
	stopCh    chan struct{}
	running   bool
}

// NewJanitor creates a janitor for manager. A zero retention uses
// DefaultRetention.
func NewJanitor(manager *Manager, retention time.Duration) *Janitor {
	if retention == 0 {
		retention = DefaultRetention
	}

	return &Janitor{
		manager:   manager,
		retention: retention,
		interval:  defaultSweepInterval,
		stopCh:    make(chan struct{}),
	}
}

// Start starts the background sweep loop
func (j *Janitor) Start() error {
	if j.running {
		return fmt.Errorf("janitor is already running")
	}

	j.running = true
	go j.run()

	log.Info().
		Dur("retention", j.retention).
		Msg("Session janitor started")

	return nil
}

// Stop stops the background sweep loop
func (j *Janitor) Stop() error {
	if !j.running {
		return fmt.Errorf("janitor is not running")
	}

	close(j.stopCh)
	j.running = false

	log.Info().Msg("Session janitor stopped")

	return nil
}

// run is the main sweep loop
func (j *Janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run immediately on start
	if _, err := j.SweepNow(); err != nil {
		log.Error().Err(err).Msg("Failed to sweep stale sessions")
	}

	for {
		select {
		case <-ticker.C:
			if _, err := j.SweepNow(); err != nil {
				log.Error().Err(err).Msg("Failed to sweep stale sessions")
			}
		case <-j.stopCh:
			return
		}
	}
}

// SweepNow deletes stale sessions immediately and reports how many
// were removed.
func (j *Janitor) SweepNow() (int, error) {
	keys, err := j.manager.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	now := time.Now()
	deleted := 0

	for _, key := range keys {
		prefs, found, err := j.manager.Get(key)
		if err != nil {
			log.Warn().
				Str("session_key", key).
				Err(err).
				Msg("Failed to load session preferences")
			continue
		}
		if !found {
			continue
		}

		updated := prefs.UpdatedAt
		if updated.IsZero() {
			// Records written before the timestamp field existed
			info, err := os.Stat(j.manager.path(key))
			if err != nil {
				continue
			}
			updated = info.ModTime()
		}

		age := now.Sub(updated)
		if age < j.retention {
			continue
		}

		if err := j.manager.Delete(key); err != nil {
			log.Error().
				Str("session_key", key).
				Err(err).
				Msg("Failed to delete stale session")
			continue
		}
		deleted++

		log.Debug().
			Str("session_key", key).
			Dur("age", age).
			Msg("Stale session removed")
	}

	if deleted > 0 {
		log.Info().
			Int("deleted", deleted).
			Msg("Cleaned up stale session preferences")
	}

	return deleted, nil
}

// IsRunning returns whether the janitor is running
func (j *Janitor) IsRunning() bool {
	return j.running
}
