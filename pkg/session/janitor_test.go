package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor_SweepNow(t *testing.T) {
	m, _ := setupTestManager(t)
	defer m.Close()

	require.NoError(t, m.Put("stale", Preferences{
		ResearchDepth: 2,
		UpdatedAt:     time.Now().Add(-48 * time.Hour),
	}))
	require.NoError(t, m.Put("fresh", Preferences{ResearchDepth: 2}))

	j := NewJanitor(m, 24*time.Hour)

	deleted, err := j.SweepNow()
	assert.NoError(t, err)
	assert.Equal(t, 1, deleted)

	keys, err := m.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, keys)
}

func TestJanitor_SweepSkipsCorruptRecords(t *testing.T) {
	m, tempDir := setupTestManager(t)
	defer m.Close()

	path := filepath.Join(tempDir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	j := NewJanitor(m, 24*time.Hour)

	deleted, err := j.SweepNow()
	assert.NoError(t, err)
	assert.Equal(t, 0, deleted)

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestJanitor_DefaultRetention(t *testing.T) {
	m, _ := setupTestManager(t)
	defer m.Close()

	j := NewJanitor(m, 0)
	assert.Equal(t, DefaultRetention, j.retention)
}

func TestJanitor_StartStop(t *testing.T) {
	m, _ := setupTestManager(t)
	defer m.Close()

	require.NoError(t, m.Put("stale", Preferences{
		UpdatedAt: time.Now().Add(-48 * time.Hour),
	}))

	j := NewJanitor(m, 24*time.Hour)
	j.interval = 10 * time.Millisecond

	require.NoError(t, j.Start())
	assert.True(t, j.IsRunning())
	assert.Error(t, j.Start())

	require.Eventually(t, func() bool {
		keys, err := m.List()
		return err == nil && len(keys) == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, j.Stop())
	assert.False(t, j.IsRunning())
	assert.Error(t, j.Stop())
}
