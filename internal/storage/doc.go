// Package storage persists run markers: the last period in which each job
// attempted execution.
//
// Drivers:
//   - "memory": process-local map (tests, dry runs)
//   - "file":   snapshot + append-only JSONL journal, compacted periodically
//   - "sqlite": SQLite database file; safe to share between scheduler instances
//
// Markers are written without expiration. Only administrative tooling deletes
// them.
package storage
