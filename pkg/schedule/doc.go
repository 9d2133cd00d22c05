// Package schedule runs recurring analysis jobs on per-job timers.
//
// A Job names a tool plus the symbols (literal or via a watchlist) it
// analyzes, and a Schedule of kind "at", "every" or "cron". Jobs are
// persisted to jobs.json with an atomic rename on every change.
//
// Invariants:
// - Runs go through the analysis lane, so scheduled and interactive work share one pace.
// - A job never runs concurrently with itself; overlapping fires are skipped.
// - "at" jobs run once and are then disabled.
// - State updates (last run, errors, next run) are persisted after every run.
//
// Usage:
//
//	svc, _ := schedule.NewService(schedule.Options{
//		StorePath: "/tmp/finsight/jobs.json",
//		Executor:  executor,
//		Queue:     queue,
//	})
//	job, _ := svc.AddJob(schedule.AddParams{
//		Name:     "daily moutai",
//		Enabled:  true,
//		Tool:     "stock_analysis",
//		Symbols:  []string{"600519"},
//		Schedule: schedule.Schedule{Kind: schedule.KindCron, Expr: "0 9 * * *"},
//	})
//	_ = job
//	defer svc.Stop()
package schedule
