// Package session stores per-session analysis preferences as JSON files.
//
// Invariants:
// - Session keys are validated and path-safe.
// - Writes for the same session are serialized and atomic (temp file + rename).
// - Snapshot always yields a usable run configuration; unknown sessions get the defaults.
//
// Usage:
//
//	store, _ := session.New("/tmp/finsight/sessions")
//	_ = store.Put("chat:42", session.Preferences{ResearchDepth: 2})
//	cfg := store.Snapshot("chat:42")
//	_ = cfg
package session
