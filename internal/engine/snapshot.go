package engine

import (
	"time"

	"adhanbot/internal/alerts"
	"adhanbot/internal/prayer"
)

// Snapshot states.
const (
	StatePending      = "pending"
	StateUnconfigured = "unconfigured"
	StateReady        = "ready"
	StateUnsolvable   = "unsolvable"
)

// RunSummary is the last reschedule result without the plan body.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Cause      string    `json:"cause"`
	At         time.Time `json:"at"`
	Planned    int       `json:"planned"`
	Dispatched int       `json:"dispatched"`
	Failed     int       `json:"failed"`
	CancelErr  string    `json:"cancel_error,omitempty"`
}

// Snapshot is an immutable view of the engine state. Never mutate a loaded one.
type Snapshot struct {
	State    string `json:"state"`
	Reason   string `json:"reason,omitempty"`
	Place    string `json:"place,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	Date     prayer.Date          `json:"date"`
	Entries  []prayer.Entry       `json:"entries"`
	Next     *prayer.Countdown    `json:"next,omitempty"`
	Deadline prayer.DeadlineState `json:"deadline"`
	Lunar    *prayer.Lunar        `json:"lunar,omitempty"`

	LastRun *RunSummary    `json:"last_run,omitempty"`
	Plan    []alerts.Entry `json:"-"`

	ComputedAt time.Time `json:"computed_at"`
	At         time.Time `json:"at"`

	Setup prayer.Setup `json:"-"`
}

// Settings returns the active settings, false when unconfigured.
func (s *Snapshot) Settings() (prayer.Settings, bool) {
	if s == nil {
		return prayer.Settings{}, false
	}
	cfg, ok := s.Setup.(prayer.Configured)
	return cfg.Settings, ok
}

// RecomputedEvent is the Data of engine.recomputed.
type RecomputedEvent struct {
	Cause    string            `json:"cause"`
	State    string            `json:"state"`
	Date     prayer.Date       `json:"date"`
	Next     *prayer.Countdown `json:"next,omitempty"`
	Fasting  bool              `json:"fasting"`
	Deadline bool              `json:"deadline_active"`
}
