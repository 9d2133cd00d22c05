// Package history records run metadata in SQLite.
//
// Invariants:
// - Only metadata is stored (tool, symbols, timings, outcome counts); report bodies never are.
// - Listings return newest runs first.
//
// Usage:
//
//	store, _ := history.Open("/tmp/finsight/history.db")
//	run, _ := store.RecordRun(ctx, history.Run{Tool: "stock_analysis", Symbols: []string{"600519"}})
//	runs, _ := store.ListRuns(ctx, 20)
//	_, _ = run, runs
package history
