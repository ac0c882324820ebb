// Package prayer holds the day-level domain: kinds, settings, the schedule
// computer, the grace window tracker and the lunar month detector.
//
// Nothing here performs I/O except through the Solver interface. All types
// returned to callers are values; the engine owns the only mutable piece
// (Tracker) and drives it from a single goroutine.
package prayer
