package app

import (
	"context"
	"fmt"

	"adhanbot/internal/config"
	"adhanbot/internal/prayer"
	"adhanbot/internal/solver"
	logx "adhanbot/pkg/logx"
)

// source is one built solver chain: the raw source and its cache.
type source struct {
	opts     config.SolverOptions
	cache    *solver.Cached
	calendar *solver.Calendar // nil for timetables
	table    *solver.Timetable
}

func (s *source) solver() prayer.Solver { return s.cache }

func buildSource(ctx context.Context, opts config.SolverOptions, log logx.Logger) (*source, error) {
	out := &source{opts: opts}
	var raw prayer.Solver
	switch opts.Driver {
	case config.SolverTimetable:
		tt, err := solver.LoadTimetable(opts.Source)
		if err != nil {
			return nil, fmt.Errorf("solver: %w", err)
		}
		out.table = tt
		raw = tt
		log.Info("timetable loaded", logx.String("path", opts.Source), logx.Int("days", tt.Len()))
	case config.SolverICS:
		cal := solver.NewCalendar(opts.Source, log)
		// A feed that is down at boot leaves the schedule empty until the next refresh.
		if err := cal.Refresh(ctx); err != nil {
			log.Warn("calendar feed load failed", logx.Err(err))
		}
		out.calendar = cal
		raw = cal
	default:
		return nil, fmt.Errorf("solver: unknown driver %q", opts.Driver)
	}
	out.cache = solver.NewCached(raw, opts.CacheSize)
	return out, nil
}

// reload re-reads the underlying source and drops memoized days.
func (s *source) reload(ctx context.Context) error {
	var err error
	switch {
	case s.calendar != nil:
		err = s.calendar.Refresh(ctx)
	case s.table != nil:
		err = s.table.Reload()
	}
	if err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}
