package storage

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process maps
//   - "file": snapshot + journal next to Path
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Alert is one armed entry of the local alert registry.
type Alert struct {
	ID        string    `json:"id"`
	At        time.Time `json:"at"`
	Category  string    `json:"category"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title,omitempty"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RunRecord records one reschedule run.
// Keep it compact and schema-stable.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	At         time.Time `json:"at"`
	Trigger    string    `json:"trigger,omitempty"`
	Planned    int       `json:"planned"`
	Dispatched int       `json:"dispatched"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// state is the in-memory image shared by the memory and file drivers.
type state struct {
	Alerts map[string]Alert  `json:"alerts"`
	Prefs  map[string]string `json:"prefs"`
}

func newState() *state {
	return &state{Alerts: map[string]Alert{}, Prefs: map[string]string{}}
}

func (s *state) deletePrefix(prefix string) int {
	n := 0
	for id := range s.Alerts {
		if strings.HasPrefix(id, prefix) {
			delete(s.Alerts, id)
			n++
		}
	}
	return n
}

func (s *state) list(prefix string) []Alert {
	out := make([]Alert, 0, len(s.Alerts))
	for id, a := range s.Alerts {
		if strings.HasPrefix(id, prefix) {
			out = append(out, a)
		}
	}
	sortAlerts(out)
	return out
}

func sortAlerts(a []Alert) {
	sort.Slice(a, func(i, j int) bool {
		if !a[i].At.Equal(a[j].At) {
			return a[i].At.Before(a[j].At)
		}
		return a[i].ID < a[j].ID
	})
}
