// Package solver provides prayer.Solver implementations backed by published
// data: a YAML timetable and an iCalendar feed. No astronomy is computed here.
package solver
