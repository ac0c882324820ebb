// Package engine owns the live worship-time state.
//
// A single goroutine holds the setup, the current schedule and the deadline
// tracker. Every trigger (setup change, notify toggle, foreground refresh,
// the daily cron refresh) is a command executed to completion inside that
// goroutine, so a reschedule never interleaves with another one. A one
// second tick advances the countdown and the grace window between triggers.
//
// Readers never touch engine state: they load the latest immutable Snapshot
// or subscribe to engine.* events on the bus.
package engine
