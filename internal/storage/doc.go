// Package storage persists the pending alert registry, preference overrides
// and the reschedule run log.
//
// Drivers:
//   - "memory": process lifetime only (tests, storage disabled)
//   - "file": JSON snapshot plus append-only journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
package storage
