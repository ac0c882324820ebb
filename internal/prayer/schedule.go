package prayer

import (
	"context"
	"sort"
	"time"

	logx "adhanbot/pkg/logx"
)

// ImsakLead is how far imsak precedes the raw fajr instant.
const ImsakLead = 10 * time.Minute

// Day holds the adjusted instants of one civil date, indexed by Kind.
// Hidden kinds are still present.
type Day struct {
	Date  Date
	Times [KindCount]time.Time
}

func (d Day) At(k Kind) time.Time {
	if !k.Valid() {
		return time.Time{}
	}
	return d.Times[k]
}

// Chronological returns the kinds ordered by adjusted instant. Ties keep Kind order.
func (d Day) Chronological() []Kind {
	ks := Kinds()
	sort.SliceStable(ks, func(i, j int) bool { return d.Times[ks[i]].Before(d.Times[ks[j]]) })
	return ks
}

// firstObligatory returns the earliest non-informational kind of the day.
func (d Day) firstObligatory() Kind {
	for _, k := range d.Chronological() {
		if !k.Informational() {
			return k
		}
	}
	return Fajr
}

// Entry is one row of the display list.
type Entry struct {
	Kind              Kind      `json:"kind"`
	At                time.Time `json:"at"`
	IsNext            bool      `json:"is_next"`
	IsPassed          bool      `json:"is_passed"`
	IsCurrent         bool      `json:"is_current"`
	Urgency           Urgency   `json:"urgency,omitempty"`
	NotifyEnabled     bool      `json:"notify_enabled"`
	AdjustmentMinutes int       `json:"adjustment_minutes"`
	Label             string    `json:"label,omitempty"`
}

// Countdown points at the next upcoming obligatory kind.
type Countdown struct {
	Kind      Kind          `json:"kind"`
	Target    time.Time     `json:"target"`
	Remaining time.Duration `json:"remaining"`
}

// At returns the countdown re-evaluated at now.
func (c Countdown) At(now time.Time) Countdown {
	c.Remaining = c.Target.Sub(now)
	return c
}

// Schedule is the output of one Compute call. It is never mutated after creation;
// Annotate returns a copy.
type Schedule struct {
	Date     Date       `json:"date"`
	Today    Day        `json:"-"`
	Tomorrow *Day       `json:"-"`
	Entries  []Entry    `json:"entries"`
	Next     *Countdown `json:"next,omitempty"`
}

// Computer derives adjusted days and schedules from a Solver.
type Computer struct {
	solver Solver
	log    logx.Logger
}

func NewComputer(solver Solver, log logx.Logger) *Computer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Computer{solver: solver, log: log}
}

// Day solves date and applies the per-kind adjustments.
func (c *Computer) Day(ctx context.Context, cfg Configured, date Date) (Day, bool) {
	raw, ok := c.solver.Solve(ctx, Request{
		Position: cfg.Position,
		Date:     date,
		Method:   cfg.Settings.Method,
		Madhab:   cfg.Settings.Madhab,
	})
	if !ok || !raw.Valid() {
		c.log.Debug("day not solvable", logx.String("date", date.String()), logx.Bool("returned", ok))
		return Day{}, false
	}
	loc := cfg.Position.Loc()
	base := [KindCount]time.Time{
		Imsak:   raw.Fajr.Add(-ImsakLead),
		Fajr:    raw.Fajr,
		Sunrise: raw.Sunrise,
		Dhuhr:   raw.Dhuhr,
		Asr:     raw.Asr,
		Maghrib: raw.Maghrib,
		Isha:    raw.Isha,
	}
	d := Day{Date: date}
	for _, k := range Kinds() {
		d.Times[k] = base[k].Add(cfg.Settings.Adjustment(k)).In(loc)
	}
	return d, true
}

// Compute builds today's schedule. Unconfigured yields an empty schedule with ok=true;
// ok=false means today could not be solved.
func (c *Computer) Compute(ctx context.Context, setup Setup, now time.Time) (Schedule, bool) {
	switch s := setup.(type) {
	case Unconfigured:
		return Schedule{}, true
	case Configured:
		return c.compute(ctx, s, now)
	default:
		return Schedule{}, true
	}
}

func (c *Computer) compute(ctx context.Context, cfg Configured, now time.Time) (Schedule, bool) {
	date := cfg.Today(now)
	today, ok := c.Day(ctx, cfg, date)
	if !ok {
		return Schedule{Date: date}, false
	}
	sched := Schedule{Date: date, Today: today}

	tomorrow := func() (Day, bool) {
		if sched.Tomorrow != nil {
			return *sched.Tomorrow, true
		}
		d, ok := c.Day(ctx, cfg, date.AddDays(1))
		if ok {
			sched.Tomorrow = &d
		}
		return d, ok
	}

	next, hasNext := resolveNext(today, tomorrow, now)
	if hasNext {
		sched.Next = &next
	}

	for _, k := range today.Chronological() {
		if !cfg.Settings.Visible(k) {
			continue
		}
		at := today.At(k)
		e := Entry{
			Kind:              k,
			At:                at,
			IsPassed:          !at.After(now),
			NotifyEnabled:     cfg.Settings.NotifyEnabled(k),
			AdjustmentMinutes: cfg.Settings.Adjustments[k],
		}
		if hasNext && next.Kind == k && next.Target.Equal(at) {
			e.IsNext = true
		}
		if k == Dhuhr && date.Weekday() == time.Friday {
			e.Label = LabelJumuah
		}
		sched.Entries = append(sched.Entries, e)
	}
	return sched, true
}

// resolveNext finds the earliest kind strictly after now. An informational
// result is replaced by the following obligatory kind, which may be tomorrow's.
func resolveNext(today Day, tomorrow func() (Day, bool), now time.Time) (Countdown, bool) {
	order := today.Chronological()
	for i, k := range order {
		if !today.At(k).After(now) {
			continue
		}
		if !k.Informational() {
			return countdown(k, today.At(k), now), true
		}
		for _, f := range order[i+1:] {
			if !f.Informational() {
				return countdown(f, today.At(f), now), true
			}
		}
		break
	}
	tm, ok := tomorrow()
	if !ok {
		return Countdown{}, false
	}
	k := tm.firstObligatory()
	if !tm.At(k).After(now) {
		return Countdown{}, false
	}
	return countdown(k, tm.At(k), now), true
}

func countdown(k Kind, at, now time.Time) Countdown {
	return Countdown{Kind: k, Target: at, Remaining: at.Sub(now)}
}

// Display labels.
const (
	LabelJumuah = "jumuah"
	LabelSuhoor = "suhoor"
	LabelIftar  = "iftar"
)

// Annotate returns a copy of s with the current entry marked from the deadline
// state and fasting labels applied from the lunar state.
func (s Schedule) Annotate(st DeadlineState, lunar Lunar) Schedule {
	out := s
	out.Entries = make([]Entry, len(s.Entries))
	copy(out.Entries, s.Entries)
	for i := range out.Entries {
		e := &out.Entries[i]
		if st.Active && e.Kind == st.Deadline.Kind && e.At.Equal(st.Deadline.Start) {
			e.IsCurrent = true
			e.Urgency = st.Deadline.Urgency
		}
		if lunar.Active() {
			switch e.Kind {
			case Imsak:
				e.Label = LabelSuhoor
			case Maghrib:
				e.Label = LabelIftar
			}
		}
	}
	return out
}
