// Package runqueue provides lane-based task execution with FIFO ordering
// per lane.
//
// Invariants:
// - Tasks in the same lane execute in FIFO order.
// - The analysis lane runs at concurrency 1, so every analysis dispatch
//   in the process is strictly sequential.
// - Queue activity is observable through metrics.
//
// Usage:
//
//	queue := runqueue.New()
//	defer queue.Close()
//	output, err := queue.Enqueue(ctx, runqueue.AnalysisLane, func(ctx context.Context) (string, error) {
//		return "ok", nil
//	}, nil)
package runqueue
