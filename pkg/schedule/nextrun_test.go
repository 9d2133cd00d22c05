package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateNextRunAt(t *testing.T) {
	t.Run("valid RFC 3339 timestamp", func(t *testing.T) {
		s := Schedule{
			Kind: KindAt,
			At:   "2026-12-25T14:00:00Z",
		}

		nextRun, err := CalculateNextRun(s)
		require.NoError(t, err)

		expected := time.Date(2026, 12, 25, 14, 0, 0, 0, time.UTC)
		assert.True(t, nextRun.Equal(expected))
	})

	t.Run("past timestamp is returned as is", func(t *testing.T) {
		s := Schedule{
			Kind: KindAt,
			At:   "2020-01-01T00:00:00Z",
		}

		nextRun, err := CalculateNextRun(s)
		require.NoError(t, err)
		assert.True(t, nextRun.Before(time.Now()))
	})

	t.Run("invalid timestamp", func(t *testing.T) {
		s := Schedule{
			Kind: KindAt,
			At:   "invalid",
		}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timestamp")
	})

	t.Run("missing at field", func(t *testing.T) {
		s := Schedule{Kind: KindAt}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "requires an 'at' timestamp")
	})
}

func TestCalculateNextRunEvery(t *testing.T) {
	t.Run("without anchor", func(t *testing.T) {
		s := Schedule{
			Kind:  KindEvery,
			Every: "1m",
		}

		before := time.Now()
		nextRun, err := CalculateNextRun(s)
		require.NoError(t, err)
		after := time.Now()

		assert.False(t, nextRun.Before(before.Add(time.Minute)))
		assert.False(t, nextRun.After(after.Add(time.Minute)))
	})

	t.Run("with anchor in past", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 9, 2, 30, 0, time.UTC)
		anchor := now.Add(-150 * time.Second)

		s := Schedule{
			Kind:   KindEvery,
			Every:  "1m",
			Anchor: anchor.Format(time.RFC3339),
		}

		nextRun, err := nextRunAfter(s, now)
		require.NoError(t, err)

		// 150s elapsed means two full minutes passed, so the next
		// boundary is anchor + 3m.
		assert.True(t, nextRun.Equal(anchor.Add(3*time.Minute)))
	})

	t.Run("with anchor in future", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
		anchor := now.Add(time.Minute)

		s := Schedule{
			Kind:   KindEvery,
			Every:  "1m",
			Anchor: anchor.Format(time.RFC3339),
		}

		nextRun, err := nextRunAfter(s, now)
		require.NoError(t, err)
		assert.True(t, nextRun.Equal(anchor))
	})

	t.Run("invalid duration", func(t *testing.T) {
		s := Schedule{
			Kind:  KindEvery,
			Every: "often",
		}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid duration")
	})

	t.Run("negative duration", func(t *testing.T) {
		s := Schedule{
			Kind:  KindEvery,
			Every: "-10s",
		}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "positive duration")
	})

	t.Run("missing duration", func(t *testing.T) {
		s := Schedule{Kind: KindEvery}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "requires an 'every' duration")
	})

	t.Run("invalid anchor", func(t *testing.T) {
		s := Schedule{
			Kind:   KindEvery,
			Every:  "1m",
			Anchor: "yesterday",
		}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid anchor")
	})
}

func TestCalculateNextRunCron(t *testing.T) {
	t.Run("hourly expression", func(t *testing.T) {
		s := Schedule{
			Kind: KindCron,
			Expr: "0 * * * *",
		}

		nextRun, err := CalculateNextRun(s)
		require.NoError(t, err)

		assert.True(t, nextRun.After(time.Now()))
		assert.Equal(t, 0, nextRun.Minute())
	})

	t.Run("daily at market open", func(t *testing.T) {
		now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		s := Schedule{
			Kind: KindCron,
			Expr: "30 9 * * *",
		}

		nextRun, err := nextRunAfter(s, now)
		require.NoError(t, err)

		assert.Equal(t, 9, nextRun.Hour())
		assert.Equal(t, 30, nextRun.Minute())
		assert.Equal(t, 11, nextRun.Day())
	})

	t.Run("with timezone", func(t *testing.T) {
		s := Schedule{
			Kind: KindCron,
			Expr: "30 9 * * *",
			TZ:   "Asia/Shanghai",
		}

		nextRun, err := CalculateNextRun(s)
		require.NoError(t, err)

		assert.True(t, nextRun.After(time.Now()))

		loc, lerr := time.LoadLocation("Asia/Shanghai")
		require.NoError(t, lerr)
		local := nextRun.In(loc)
		assert.Equal(t, 9, local.Hour())
		assert.Equal(t, 30, local.Minute())
	})

	t.Run("invalid expression", func(t *testing.T) {
		s := Schedule{
			Kind: KindCron,
			Expr: "invalid",
		}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid cron expression")
	})

	t.Run("invalid timezone", func(t *testing.T) {
		s := Schedule{
			Kind: KindCron,
			Expr: "30 9 * * *",
			TZ:   "Mars/Olympus",
		}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid timezone")
	})

	t.Run("missing expression", func(t *testing.T) {
		s := Schedule{Kind: KindCron}

		_, err := CalculateNextRun(s)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "requires an 'expr' field")
	})
}

func TestCalculateNextRunUnknownKind(t *testing.T) {
	_, err := CalculateNextRun(Schedule{Kind: "lunar"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown schedule kind")
}
