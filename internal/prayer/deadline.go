package prayer

import (
	"time"
)

// Urgency grades the time left in a grace window. The zero value means no
// deadline is active.
type Urgency string

const (
	UrgencyPlenty  Urgency = "plenty"
	UrgencyWarning Urgency = "warning"
	UrgencyUrgent  Urgency = "urgent"
)

func (u Urgency) rank() int {
	switch u {
	case UrgencyPlenty:
		return 1
	case UrgencyWarning:
		return 2
	case UrgencyUrgent:
		return 3
	default:
		return 0
	}
}

// Worse returns the more severe of u and o.
func (u Urgency) Worse(o Urgency) Urgency {
	if o.rank() > u.rank() {
		return o
	}
	return u
}

// Thresholds are the remaining-time levels at which urgency escalates.
type Thresholds struct {
	Warning time.Duration
	Urgent  time.Duration
}

// FallbackThresholds apply to kinds missing from the table.
var FallbackThresholds = Thresholds{Warning: 30 * time.Minute, Urgent: 10 * time.Minute}

// DefaultThresholds returns the per-kind threshold table.
func DefaultThresholds() map[Kind]Thresholds {
	return map[Kind]Thresholds{
		Fajr:    {Warning: 20 * time.Minute, Urgent: 10 * time.Minute},
		Dhuhr:   {Warning: 45 * time.Minute, Urgent: 15 * time.Minute},
		Asr:     {Warning: 30 * time.Minute, Urgent: 10 * time.Minute},
		Maghrib: {Warning: 15 * time.Minute, Urgent: 5 * time.Minute},
		Isha:    {Warning: 60 * time.Minute, Urgent: 20 * time.Minute},
	}
}

// UrgencyFor grades remaining against th. Boundaries are inclusive on the
// severe side.
func UrgencyFor(remaining time.Duration, th Thresholds) Urgency {
	switch {
	case remaining <= th.Urgent:
		return UrgencyUrgent
	case remaining <= th.Warning:
		return UrgencyWarning
	default:
		return UrgencyPlenty
	}
}

// Deadline describes an active grace window.
type Deadline struct {
	Kind      Kind          `json:"kind"`
	Start     time.Time     `json:"start"`
	At        time.Time     `json:"at"`
	Remaining time.Duration `json:"remaining"`
	Urgency   Urgency       `json:"urgency"`
}

// DeadlineState is Inactive when Active is false; Deadline is then zero.
type DeadlineState struct {
	Active   bool     `json:"active"`
	Deadline Deadline `json:"deadline"`
}

func (s DeadlineState) sameWindow(o DeadlineState) bool {
	return s.Active && o.Active &&
		s.Deadline.Kind == o.Deadline.Kind &&
		s.Deadline.Start.Equal(o.Deadline.Start) &&
		s.Deadline.At.Equal(o.Deadline.At)
}

// DayLookup returns the adjusted day at offset days from today. It is only
// called when a window crosses midnight.
type DayLookup func(offset int) (Day, bool)

// Tracker is the grace window state machine. It is not safe for concurrent use;
// the engine owns it.
type Tracker struct {
	thresholds map[Kind]Thresholds
	state      DeadlineState
}

func NewTracker(thresholds map[Kind]Thresholds) *Tracker {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &Tracker{thresholds: thresholds}
}

func (t *Tracker) ThresholdsFor(k Kind) Thresholds {
	if th, ok := t.thresholds[k]; ok {
		return th
	}
	return FallbackThresholds
}

func (t *Tracker) State() DeadlineState { return t.state }

// Reset drops the current state, e.g. when the setup becomes Unconfigured.
func (t *Tracker) Reset() { t.state = DeadlineState{} }

// Resolve recomputes the active window from today's day data.
func (t *Tracker) Resolve(now time.Time, today Day, lookup DayLookup) DeadlineState {
	kind, start, deadline, ok := activeWindow(now, today, lookup)
	if !ok || !now.Before(deadline) {
		t.state = DeadlineState{}
		return t.state
	}
	next := DeadlineState{
		Active: true,
		Deadline: Deadline{
			Kind:      kind,
			Start:     start,
			At:        deadline,
			Remaining: deadline.Sub(now),
		},
	}
	next.Deadline.Urgency = UrgencyFor(next.Deadline.Remaining, t.ThresholdsFor(kind))
	if next.sameWindow(t.state) {
		next.Deadline.Urgency = t.state.Deadline.Urgency.Worse(next.Deadline.Urgency)
	}
	t.state = next
	return t.state
}

// Tick advances remaining time without touching the solver. changed reports
// an expiry or an urgency escalation.
func (t *Tracker) Tick(now time.Time) (state DeadlineState, changed bool) {
	if !t.state.Active {
		return t.state, false
	}
	d := t.state.Deadline
	if !now.Before(d.At) {
		t.state = DeadlineState{}
		return t.state, true
	}
	d.Remaining = d.At.Sub(now)
	u := d.Urgency.Worse(UrgencyFor(d.Remaining, t.ThresholdsFor(d.Kind)))
	changed = u != d.Urgency
	d.Urgency = u
	t.state.Deadline = d
	return t.state, changed
}

// Successor returns the kind whose start closes k's grace window. Isha's
// successor is the next day's fajr.
func Successor(k Kind) Kind {
	switch k {
	case Fajr:
		return Sunrise
	case Dhuhr:
		return Asr
	case Asr:
		return Maghrib
	case Maghrib:
		return Isha
	default:
		return Fajr
	}
}

func activeWindow(now time.Time, today Day, lookup DayLookup) (Kind, time.Time, time.Time, bool) {
	obligatory := Obligatory()
	for i := len(obligatory) - 1; i >= 0; i-- {
		k := obligatory[i]
		start := today.At(k)
		if start.After(now) {
			continue
		}
		if k != Isha {
			return k, start, today.At(Successor(k)), true
		}
		if lookup == nil {
			return 0, time.Time{}, time.Time{}, false
		}
		tomorrow, ok := lookup(1)
		if !ok {
			return 0, time.Time{}, time.Time{}, false
		}
		return k, start, tomorrow.At(Fajr), true
	}
	// Before today's fajr yesterday's isha may still be open.
	if lookup == nil {
		return 0, time.Time{}, time.Time{}, false
	}
	yesterday, ok := lookup(-1)
	if !ok {
		return 0, time.Time{}, time.Time{}, false
	}
	start := yesterday.At(Isha)
	if start.After(now) {
		return 0, time.Time{}, time.Time{}, false
	}
	return Isha, start, today.At(Fajr), true
}
