package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"adhanbot/internal/alerts"
	"adhanbot/internal/eventbus"
	"adhanbot/internal/prayer"
	rtsup "adhanbot/internal/runtime/supervisor"
	"adhanbot/internal/storage"
	logx "adhanbot/pkg/logx"
)

var (
	ErrStopped       = errors.New("engine not running")
	ErrUnconfigured  = errors.New("no location configured")
	ErrInformational = errors.New("informational kinds have no alerts")
)

// Trigger causes.
const (
	CauseStart    = "start"
	CauseSetup    = "setup"
	CauseToggle   = "toggle"
	CauseRefresh  = "refresh"
	CauseCron     = "cron"
	CauseRollover = "rollover"
)

type Config struct {
	Tick time.Duration // default 1s
	// Now is the clock; nil means time.Now.
	Now func() time.Time
	// Thresholds overrides the per-kind urgency thresholds.
	Thresholds map[prayer.Kind]prayer.Thresholds
}

// RunLog records reschedule runs. storage.Store satisfies it.
type RunLog interface {
	AppendRun(ctx context.Context, r storage.RunRecord) error
}

type command struct {
	name string
	run  func(ctx context.Context) error
	done chan error
}

// Service is the engine. All fields below mu are owned by the loop goroutine.
type Service struct {
	cfg       Config
	computer  *prayer.Computer
	projector *alerts.Projector
	runs      RunLog
	bus       eventbus.Bus
	log       logx.Logger

	mu   sync.Mutex
	cmds chan command
	sup  *rtsup.Supervisor

	snap atomic.Pointer[Snapshot]

	setup   prayer.Setup
	sched   prayer.Schedule
	solved  bool
	tracker *prayer.Tracker
	lunar   *prayer.Lunar
	lastRun *RunSummary
	plan    []alerts.Entry
	compAt  time.Time
}

func New(cfg Config, setup prayer.Setup, computer *prayer.Computer, projector *alerts.Projector, runs RunLog, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if setup == nil {
		setup = prayer.Unconfigured{Reason: "no location"}
	}
	s := &Service{
		cfg:       cfg,
		computer:  computer,
		projector: projector,
		runs:      runs,
		bus:       bus,
		log:       log,
		setup:     setup,
		tracker:   prayer.NewTracker(cfg.Thresholds),
	}
	s.publishSnapshot(cfg.Now())
	return s
}

// Snapshot returns the latest published state. It never returns nil.
func (s *Service) Snapshot() *Snapshot { return s.snap.Load() }

// Start runs the loop. The first iteration recomputes and reschedules.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmds != nil {
		return
	}
	cmds := make(chan command)
	s.cmds = cmds
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	s.sup.Go("engine.loop", func(c context.Context) error {
		s.loop(c, cmds)
		return nil
	})
}

// Stop cancels the loop and waits for the command in flight to finish.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.cmds = nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

func (s *Service) loop(ctx context.Context, cmds <-chan command) {
	s.trigger(ctx, CauseStart)

	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-cmds:
			start := time.Now()
			err := c.run(ctx)
			c.done <- err
			s.log.Debug("command done", logx.String("cmd", c.name), logx.Duration("took", time.Since(start)), logx.Err(err))
		case <-t.C:
			s.tick(ctx, s.cfg.Now())
		}
	}
}

// do hands fn to the loop and waits for it.
func (s *Service) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	cmds := s.cmds
	var done <-chan struct{}
	if s.sup != nil {
		done = s.sup.Context().Done()
	}
	s.mu.Unlock()
	if cmds == nil {
		return ErrStopped
	}

	c := command{name: name, run: fn, done: make(chan error, 1)}
	select {
	case cmds <- c:
	case <-done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-c.done:
		return err
	case <-ctx.Done():
		// the command still runs to completion inside the loop
		return ctx.Err()
	}
}

// SetSetup replaces position and settings, then recomputes and reschedules.
func (s *Service) SetSetup(ctx context.Context, setup prayer.Setup) error {
	if setup == nil {
		setup = prayer.Unconfigured{Reason: "no location"}
	}
	return s.do(ctx, CauseSetup, func(c context.Context) error {
		s.setup = setup
		s.tracker.Reset()
		s.trigger(c, CauseSetup)
		return nil
	})
}

// Toggle enables or disables alerts for one obligatory kind.
func (s *Service) Toggle(ctx context.Context, k prayer.Kind, on bool) error {
	if !k.Valid() {
		return fmt.Errorf("unknown kind %d", int(k))
	}
	if k.Informational() {
		return ErrInformational
	}
	return s.do(ctx, CauseToggle, func(c context.Context) error {
		cfg, ok := s.setup.(prayer.Configured)
		if !ok {
			return ErrUnconfigured
		}
		if cfg.Settings.Notify[k] == on {
			return nil
		}
		cfg.Settings.Notify[k] = on
		s.setup = cfg
		s.trigger(c, CauseToggle)
		return nil
	})
}

// Refresh is the foreground trigger: recompute and reschedule.
func (s *Service) Refresh(ctx context.Context) error {
	return s.do(ctx, CauseRefresh, func(c context.Context) error {
		s.trigger(c, CauseRefresh)
		return nil
	})
}

// Reschedule recomputes and replaces the alert set, returning the run summary.
func (s *Service) Reschedule(ctx context.Context, cause string) (RunSummary, error) {
	if cause == "" {
		cause = CauseCron
	}
	var out RunSummary
	err := s.do(ctx, cause, func(c context.Context) error {
		s.trigger(c, cause)
		if s.lastRun != nil {
			out = *s.lastRun
		}
		return nil
	})
	return out, err
}

// trigger is the full recompute + reschedule path.
func (s *Service) trigger(ctx context.Context, cause string) {
	now := s.cfg.Now()
	s.recompute(ctx, now, cause)
	s.reschedule(ctx, now, cause)
	s.publishSnapshot(now)
}

func (s *Service) recompute(ctx context.Context, now time.Time, cause string) {
	sched, ok := s.computer.Compute(ctx, s.setup, now)
	s.sched, s.solved, s.compAt = sched, ok, now
	s.lunar = nil

	cfg, configured := s.setup.(prayer.Configured)
	if !configured || !ok {
		s.tracker.Reset()
	} else {
		st := s.tracker.Resolve(now, sched.Today, s.lookup(ctx, cfg))
		lunar := prayer.DetectLunar(sched.Today, now, cfg.Settings.HijriAdjustment)
		s.lunar = &lunar
		if st.Active {
			s.log.Debug("deadline resolved", logx.String("kind", st.Deadline.Kind.String()), logx.Time("at", st.Deadline.At), logx.String("urgency", string(st.Deadline.Urgency)))
		}
	}

	snap := s.buildSnapshot(now)
	s.log.Debug("schedule recomputed", logx.String("cause", cause), logx.String("state", snap.State), logx.String("date", sched.Date.String()))
	s.publish(eventbus.TypeRecomputed, RecomputedEvent{
		Cause:    cause,
		State:    snap.State,
		Date:     sched.Date,
		Next:     sched.Next,
		Fasting:  s.lunar != nil && s.lunar.Active(),
		Deadline: snap.Deadline.Active,
	})
}

func (s *Service) lookup(ctx context.Context, cfg prayer.Configured) prayer.DayLookup {
	sched := s.sched
	return func(offset int) (prayer.Day, bool) {
		if offset == 1 && sched.Tomorrow != nil {
			return *sched.Tomorrow, true
		}
		return s.computer.Day(ctx, cfg, sched.Date.AddDays(offset))
	}
}

func (s *Service) reschedule(ctx context.Context, now time.Time, cause string) {
	if s.projector == nil {
		return
	}
	res := s.projector.Reschedule(ctx, s.setup, now)
	sum := &RunSummary{
		RunID:      res.RunID,
		Cause:      cause,
		At:         res.At,
		Planned:    res.Planned,
		Dispatched: res.Dispatched,
		Failed:     res.Failed,
		CancelErr:  res.CancelErr,
	}
	s.lastRun = sum
	s.plan = res.Entries

	if s.runs != nil {
		rec := storage.RunRecord{
			RunID:      res.RunID,
			At:         res.At,
			Trigger:    cause,
			Planned:    res.Planned,
			Dispatched: res.Dispatched,
			Failed:     res.Failed,
			Error:      res.CancelErr,
		}
		if err := s.runs.AppendRun(ctx, rec); err != nil && !errors.Is(err, storage.ErrDisabled) {
			s.log.Warn("record reschedule run failed", logx.Err(err))
		}
	}
	s.publish(eventbus.TypeRescheduled, *sum)
}

// tick advances countdown and deadline. A countdown that reached zero or a
// civil date change forces a recompute without a reschedule.
func (s *Service) tick(ctx context.Context, now time.Time) {
	if cfg, ok := s.setup.(prayer.Configured); ok {
		if next := s.sched.Next; next != nil && !now.Before(next.Target) {
			s.recompute(ctx, now, CauseRollover)
			s.publishSnapshot(now)
			return
		}
		if cfg.Today(now) != s.sched.Date {
			s.recompute(ctx, now, CauseRollover)
			s.publishSnapshot(now)
			return
		}
	}

	prev := s.tracker.State()
	st, changed := s.tracker.Tick(now)
	if changed {
		s.log.Debug("deadline changed", logx.Bool("active", st.Active), logx.String("urgency", string(st.Deadline.Urgency)))
		ev := st
		if !st.Active {
			ev = prev
			ev.Active = false
		}
		s.publish(eventbus.TypeDeadline, ev)
	}
	s.publishSnapshot(now)
}

func (s *Service) buildSnapshot(now time.Time) *Snapshot {
	st := s.tracker.State()
	snap := &Snapshot{
		Date:       s.sched.Date,
		Deadline:   st,
		Lunar:      s.lunar,
		LastRun:    s.lastRun,
		Plan:       s.plan,
		ComputedAt: s.compAt,
		At:         now,
		Setup:      s.setup,
	}
	switch setup := s.setup.(type) {
	case prayer.Configured:
		snap.Place = setup.Position.Name
		snap.Timezone = setup.Position.Loc().String()
		if s.compAt.IsZero() {
			snap.State = StatePending
			break
		}
		if !s.solved {
			snap.State = StateUnsolvable
			break
		}
		snap.State = StateReady
		var lunar prayer.Lunar
		if s.lunar != nil {
			lunar = *s.lunar
		}
		snap.Entries = s.sched.Annotate(st, lunar).Entries
		if s.sched.Next != nil {
			c := s.sched.Next.At(now)
			snap.Next = &c
		}
	case prayer.Unconfigured:
		snap.State = StateUnconfigured
		snap.Reason = setup.Reason
	}
	return snap
}

func (s *Service) publishSnapshot(now time.Time) {
	s.snap.Store(s.buildSnapshot(now))
}

func (s *Service) publish(typ string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.cfg.Now(), Data: data})
}
