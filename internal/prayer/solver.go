package prayer

import (
	"context"
	"time"
)

// RawTimes are the six canonical instants a solver produces for one day,
// before any adjustment.
type RawTimes struct {
	Fajr    time.Time
	Sunrise time.Time
	Dhuhr   time.Time
	Asr     time.Time
	Maghrib time.Time
	Isha    time.Time
}

// Valid reports whether all instants are set and strictly ascending.
func (r RawTimes) Valid() bool {
	ts := []time.Time{r.Fajr, r.Sunrise, r.Dhuhr, r.Asr, r.Maghrib, r.Isha}
	for i, t := range ts {
		if t.IsZero() {
			return false
		}
		if i > 0 && !t.After(ts[i-1]) {
			return false
		}
	}
	return true
}

// Request is the solver input for one day.
type Request struct {
	Position Position
	Date     Date
	Method   Method
	Madhab   Madhab
}

// Solver produces the raw instants for a day. ok=false means the day cannot be
// solved (polar day, missing table row, unreachable feed); callers skip it.
type Solver interface {
	Solve(ctx context.Context, req Request) (times RawTimes, ok bool)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, req Request) (RawTimes, bool)

func (f SolverFunc) Solve(ctx context.Context, req Request) (RawTimes, bool) { return f(ctx, req) }
