package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leozhang/finsight/internal/observability"
	"github.com/leozhang/finsight/internal/tracing"
	"github.com/leozhang/finsight/pkg/toolexec"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Preferences holds the analysis settings a session has overridden.
// Zero-valued fields fall back to the documented defaults when a
// snapshot is taken.
type Preferences struct {
	LLMProvider   string    `json:"llm_provider,omitempty"`
	LLMModel      string    `json:"llm_model,omitempty"`
	AnalysisDate  string    `json:"analysis_date,omitempty"`
	Analysts      []string  `json:"analysts,omitempty"`
	ResearchDepth int       `json:"research_depth,omitempty"`
	MarketType    string    `json:"market_type,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// apply overlays the stored preferences on top of cfg.
func (p Preferences) apply(cfg toolexec.RunConfig) toolexec.RunConfig {
	if p.LLMProvider != "" {
		cfg.LLMProvider = p.LLMProvider
	}
	if p.LLMModel != "" {
		cfg.LLMModel = p.LLMModel
	}
	if p.AnalysisDate != "" {
		cfg.AnalysisDate = p.AnalysisDate
	}
	if len(p.Analysts) > 0 {
		cfg.Analysts = append([]string(nil), p.Analysts...)
	}
	if p.ResearchDepth > 0 {
		cfg.ResearchDepth = p.ResearchDepth
	}
	if p.MarketType != "" {
		cfg.MarketType = p.MarketType
	}
	return cfg
}

// Manager persists per-session preferences, one JSON file per key.
type Manager struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
}

// New creates a Manager rooted at dir. An empty dir defaults to
// ~/.finsight/sessions.
func New(dir string) (*Manager, error) {
	observability.EnsureRegistered()

	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".finsight", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	m := &Manager{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Info().Str("dir", dir).Msg("Session store initialized")
	m.updateActiveSessionsMetric()

	return m, nil
}

// validateKey validates the session key for security
func (m *Manager) validateKey(sessionKey string) error {
	if sessionKey == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(sessionKey, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(sessionKey, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(sessionKey, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

// path returns the preferences file path for a session
func (m *Manager) path(sessionKey string) string {
	return filepath.Join(m.dir, sessionKey+".json")
}

func (m *Manager) updateActiveSessionsMetric() {
	keys, err := m.List()
	if err != nil {
		return
	}
	observability.SetActiveSessions(len(keys))
}

// getWriteLock gets or creates a write lock for a session
func (m *Manager) getWriteLock(sessionKey string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	if lock, exists := m.writeLocks[sessionKey]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	m.writeLocks[sessionKey] = lock
	return lock
}

// releaseWriteLock releases a write lock for a session
func (m *Manager) releaseWriteLock(sessionKey string) {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	delete(m.writeLocks, sessionKey)
}

// Put stores prefs as the session's full preference record, replacing
// whatever was stored before.
func (m *Manager) Put(sessionKey string, prefs Preferences) error {
	return m.PutWithContext(context.Background(), sessionKey, prefs)
}

// PutWithContext stores prefs with tracing context.
func (m *Manager) PutWithContext(ctx context.Context, sessionKey string, prefs Preferences) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"finsight.session",
		"session.put",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", sessionKey).Logger()
	start := time.Now()
	defer func() {
		observability.RecordSessionSave(time.Since(start))
	}()

	if err := m.validateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if prefs.UpdatedAt.IsZero() {
		prefs.UpdatedAt = time.Now()
	}

	lock := m.getWriteLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	if err := m.writeFile(m.path(sessionKey), prefs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.updateActiveSessionsMetric()
	logger.Debug().Msg("Session preferences saved")

	return nil
}

// writeFile persists prefs atomically via a temp file and rename.
func (m *Manager) writeFile(path string, prefs Preferences) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	tempPath := path + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write preferences: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync file: %w", err)
	}

	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace preferences file: %w", err)
	}

	return nil
}

// Get loads the stored preferences for a session. The second return
// value is false when the session has nothing stored.
func (m *Manager) Get(sessionKey string) (Preferences, bool, error) {
	return m.GetWithContext(context.Background(), sessionKey)
}

// GetWithContext loads the stored preferences with tracing context.
func (m *Manager) GetWithContext(ctx context.Context, sessionKey string) (Preferences, bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"finsight.session",
		"session.get",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", sessionKey).Logger()
	start := time.Now()
	defer func() {
		observability.RecordSessionLoad(time.Since(start))
	}()

	if err := m.validateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Preferences{}, false, err
	}

	data, err := os.ReadFile(m.path(sessionKey))
	if err != nil {
		if os.IsNotExist(err) {
			logger.Debug().Msg("Session has no stored preferences")
			return Preferences{}, false, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Preferences{}, false, fmt.Errorf("failed to read preferences file: %w", err)
	}

	var prefs Preferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Preferences{}, false, fmt.Errorf("failed to parse preferences file: %w", err)
	}

	logger.Debug().Msg("Session preferences loaded")

	return prefs, true, nil
}

// Snapshot returns the run configuration for a session: stored
// preferences overlaid on the defaults. Unknown sessions, an empty key
// and unreadable preference files all yield the pure defaults, so a
// dispatch never fails here.
func (m *Manager) Snapshot(sessionKey string) toolexec.RunConfig {
	return m.SnapshotWithContext(context.Background(), sessionKey)
}

// SnapshotWithContext returns the run configuration with tracing context.
func (m *Manager) SnapshotWithContext(ctx context.Context, sessionKey string) toolexec.RunConfig {
	cfg := toolexec.DefaultRunConfig()
	if sessionKey == "" {
		return cfg
	}

	prefs, found, err := m.GetWithContext(ctx, sessionKey)
	if err != nil {
		log.Warn().
			Str("session_key", sessionKey).
			Err(err).
			Msg("Falling back to default run configuration")
		return cfg
	}
	if !found {
		return cfg
	}

	return prefs.apply(cfg)
}

// Delete removes a session's stored preferences.
func (m *Manager) Delete(sessionKey string) error {
	return m.DeleteWithContext(context.Background(), sessionKey)
}

// DeleteWithContext removes a session's stored preferences with tracing context.
func (m *Manager) DeleteWithContext(ctx context.Context, sessionKey string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = tracing.WithSessionKey(ctx, sessionKey)
	ctx, span := tracing.StartSpan(
		ctx,
		"finsight.session",
		"session.delete",
		attribute.String("session_key", sessionKey),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, log.Logger).With().Str("session_key", sessionKey).Logger()

	if err := m.validateKey(sessionKey); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// Wait for any in-progress writes
	lock := m.getWriteLock(sessionKey)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(m.path(sessionKey)); err != nil && !os.IsNotExist(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete preferences file: %w", err)
	}

	m.releaseWriteLock(sessionKey)
	m.updateActiveSessionsMetric()

	logger.Info().Msg("Session preferences deleted")

	return nil
}

// List returns the keys of all sessions with stored preferences, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(keys)

	return keys, nil
}

// Close releases all per-session write locks.
func (m *Manager) Close() error {
	m.locksMu.Lock()
	m.writeLocks = make(map[string]*sync.Mutex)
	m.locksMu.Unlock()

	log.Info().Msg("Session store closed")

	return nil
}
