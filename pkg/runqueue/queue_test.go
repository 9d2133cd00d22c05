package runqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_BasicEnqueue(t *testing.T) {
	q := New()
	defer q.Close()

	executed := false
	result, err := q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
		executed = true
		return "report text", nil
	}, nil)

	assert.NoError(t, err)
	assert.Equal(t, "report text", result)
	assert.True(t, executed)
}

func TestQueue_TaskError(t *testing.T) {
	q := New()
	defer q.Close()

	expectedErr := errors.New("dispatch failed")
	result, err := q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
		return "", expectedErr
	}, nil)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Empty(t, result)
}

func TestQueue_AnalysisLaneIsSequential(t *testing.T) {
	q := New()
	defer q.Close()

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					prev := atomic.LoadInt32(&maxInFlight)
					if n <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return "", nil
			}, nil)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight), "analysis lane must never overlap tasks")
}

func TestQueue_LanesRunIndependently(t *testing.T) {
	q := New()
	defer q.Close()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})

	go func() {
		_, _ = q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
			close(blockerStarted)
			<-release
			return "", nil
		}, nil)
	}()

	<-blockerStarted

	done := make(chan struct{})
	go func() {
		_, _ = q.Enqueue(context.Background(), "maintenance", func(ctx context.Context) (string, error) {
			return "", nil
		}, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("separate lane was blocked by the analysis lane")
	}
	close(release)
}

func TestQueue_Stats(t *testing.T) {
	q := New()
	defer q.Close()

	stats := q.Stats()
	require.Contains(t, stats, AnalysisLane)
	assert.Equal(t, 1, stats[AnalysisLane]["concurrency"])
	assert.Equal(t, 0, stats[AnalysisLane]["queued"])
	assert.Equal(t, 0, stats[AnalysisLane]["running"])
}

func TestQueue_Clear(t *testing.T) {
	q := New()
	defer q.Close()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	go func() {
		_, _ = q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
			close(blockerStarted)
			<-release
			return "", nil
		}, nil)
	}()
	<-blockerStarted

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
				return "", nil
			}, nil)
			errs <- err
		}()
	}

	require.Eventually(t, func() bool {
		return q.QueueSize(AnalysisLane) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cleared := q.Clear(AnalysisLane)
	assert.Equal(t, 3, cleared)

	wg.Wait()
	close(errs)
	for err := range errs {
		require.Error(t, err)
		assert.Contains(t, err.Error(), "lane cleared")
	}
	close(release)
}

func TestQueue_WarnTimer(t *testing.T) {
	q := New()
	defer q.Close()

	release := make(chan struct{})
	blockerStarted := make(chan struct{})
	go func() {
		_, _ = q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
			close(blockerStarted)
			<-release
			return "", nil
		}, nil)
	}()
	<-blockerStarted

	waited := make(chan time.Duration, 1)
	go func() {
		_, _ = q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
			return "", nil
		}, &Options{
			WarnAfter: 20 * time.Millisecond,
			OnWait: func(wait time.Duration, queuePos int) {
				waited <- wait
			},
		})
	}()

	select {
	case wait := <-waited:
		assert.GreaterOrEqual(t, wait, 20*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a wait warning for the queued task")
	}
	close(release)
}

func TestQueue_WaitForActive(t *testing.T) {
	q := New()
	defer q.Close()

	started := make(chan struct{})
	go func() {
		_, _ = q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
			close(started)
			time.Sleep(50 * time.Millisecond)
			return "", nil
		}, nil)
	}()

	<-started
	assert.True(t, q.WaitForActive(2*time.Second))
}

func TestQueue_CloseCancelsRunningTasks(t *testing.T) {
	q := New()

	started := make(chan struct{})
	finished := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(context.Background(), AnalysisLane, func(ctx context.Context) (string, error) {
			close(started)
			<-ctx.Done()
			return "", ctx.Err()
		}, nil)
		finished <- err
	}()

	<-started
	require.NoError(t, q.Close())

	select {
	case err := <-finished:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("task did not observe queue shutdown")
	}
}
