package solver

import (
	"context"
	"sync/atomic"

	"adhanbot/internal/prayer"
)

type solverBox struct{ s prayer.Solver }

// Switch forwards to the current solver. Set replaces it without blocking
// in-flight calls, so a config reload can change the source under a
// running engine.
type Switch struct {
	cur atomic.Pointer[solverBox]
}

func NewSwitch(s prayer.Solver) *Switch {
	w := &Switch{}
	w.Set(s)
	return w
}

func (w *Switch) Set(s prayer.Solver) { w.cur.Store(&solverBox{s: s}) }

// Solve reports none while no solver is set.
func (w *Switch) Solve(ctx context.Context, req prayer.Request) (prayer.RawTimes, bool) {
	b := w.cur.Load()
	if b == nil || b.s == nil {
		return prayer.RawTimes{}, false
	}
	return b.s.Solve(ctx, req)
}
