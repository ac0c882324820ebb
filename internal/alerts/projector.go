package alerts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

const (
	DefaultCap         = 60
	DefaultHorizonDays = 12
)

type Options struct {
	Prefix      string
	Cap         int
	HorizonDays int
	// WeeklyDay carries the weekly reminder; it fires before that day's dhuhr.
	// Nil means Friday.
	WeeklyDay *time.Weekday
}

func DefaultOptions() Options {
	return Options{Prefix: Prefix, Cap: DefaultCap, HorizonDays: DefaultHorizonDays}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = Prefix
	}
	if o.Cap <= 0 {
		o.Cap = DefaultCap
	}
	if o.HorizonDays <= 0 {
		o.HorizonDays = DefaultHorizonDays
	}
	if o.WeeklyDay == nil {
		friday := time.Friday
		o.WeeklyDay = &friday
	}
	return o
}

// Result summarizes one reschedule run.
type Result struct {
	RunID      string    `json:"run_id"`
	At         time.Time `json:"at"`
	Planned    int       `json:"planned"`
	Dispatched int       `json:"dispatched"`
	Failed     int       `json:"failed"`
	CancelErr  string    `json:"cancel_error,omitempty"`
	Entries    []Entry   `json:"entries"`
}

// Projector walks the horizon and replaces the dispatched alert set.
type Projector struct {
	computer   *prayer.Computer
	dispatcher Dispatcher
	opts       Options
	log        logx.Logger
}

func NewProjector(computer *prayer.Computer, dispatcher Dispatcher, opts Options, log logx.Logger) *Projector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Projector{
		computer:   computer,
		dispatcher: dispatcher,
		opts:       opts.withDefaults(),
		log:        log,
	}
}

func (p *Projector) Options() Options { return p.opts }

// Plan returns the capped, ordered alert set for the horizon starting today.
// Days the solver cannot produce are skipped.
func (p *Projector) Plan(ctx context.Context, cfg prayer.Configured, now time.Time) []Entry {
	loc := cfg.Position.Loc()
	today := cfg.Today(now)
	days := make([]*prayer.Day, p.opts.HorizonDays)
	for i := range days {
		if ctx.Err() != nil {
			break
		}
		d, ok := p.computer.Day(ctx, cfg, today.AddDays(i))
		if !ok {
			p.log.Debug("horizon day skipped", logx.String("date", today.AddDays(i).String()))
			continue
		}
		days[i] = &d
	}

	var out []Entry
	add := func(cat Category, k prayer.Kind, dayIdx int, at time.Time, title, body string) {
		if !at.After(now) {
			return
		}
		id := ID{Prefix: p.opts.Prefix, Category: cat, Kind: k, At: at}
		out = append(out, Entry{
			ID:       id,
			Key:      id.String(),
			At:       at,
			Category: cat,
			Kind:     k,
			Day:      dayIdx,
			Title:    title,
			Body:     body,
		})
	}

	s := cfg.Settings
	for i, d := range days {
		if d == nil {
			continue
		}
		for _, k := range prayer.Obligatory() {
			if !s.NotifyEnabled(k) {
				continue
			}
			at := d.At(k)
			add(CategoryPrayer, k, i, at, prayerTitle(k, d.Date), fmt.Sprintf("%s at %s%s", k.Title(), at.In(loc).Format("15:04"), placeSuffix(cfg.Position)))
		}
	}

	if s.Weekly.Enabled {
		if i, at, ok := p.weekly(days, today, loc, s.Weekly.MinutesBefore, now); ok {
			dhuhr := days[i].At(prayer.Dhuhr)
			add(CategoryWeekly, prayer.Dhuhr, i, at, "Jumuah reminder",
				fmt.Sprintf("Jumuah prayer at %s%s", dhuhr.In(loc).Format("15:04"), placeSuffix(cfg.Position)))
		}
	}

	if s.Fasting.Enabled {
		before := time.Duration(s.Fasting.MinutesBefore) * time.Minute
		for i, d := range days {
			if d == nil || !prayer.IsFastingDay(d.Date, s.HijriAdjustment) {
				continue
			}
			fajr := d.At(prayer.Fajr)
			h := prayer.ToHijri(d.Date.AddDays(s.HijriAdjustment))
			add(CategoryFasting, prayer.Imsak, i, fajr.Add(-before), "Suhoor reminder",
				fmt.Sprintf("Fast %d of %s begins at %s%s", h.Day, h.MonthName(), fajr.In(loc).Format("15:04"), placeSuffix(cfg.Position)))
		}
	}

	return finalize(out, p.opts.Cap)
}

// weekly finds the first occurrence of the reminder weekday inside the horizon
// whose reminder instant is still ahead.
func (p *Projector) weekly(days []*prayer.Day, today prayer.Date, loc *time.Location, minutes int, now time.Time) (int, time.Time, bool) {
	start := today.Start(loc)
	end := today.AddDays(len(days) - 1).Start(loc)
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekday(*p.opts.WeeklyDay)},
		Dtstart:   start,
		Until:     end,
	})
	if err != nil {
		p.log.Warn("weekly rule rejected", logx.Err(err))
		return 0, time.Time{}, false
	}
	before := time.Duration(minutes) * time.Minute
	for _, occ := range rule.Between(start, end, true) {
		i := daysBetween(today, prayer.DateOf(occ.In(loc)))
		if i < 0 || i >= len(days) || days[i] == nil {
			continue
		}
		at := days[i].At(prayer.Dhuhr).Add(-before)
		if at.After(now) {
			return i, at, true
		}
	}
	return 0, time.Time{}, false
}

// finalize orders by fire instant, then day, then kind, drops duplicate ids
// and truncates to limit.
func finalize(entries []Entry, limit int) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Category.order() < b.Category.order()
	})
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, min(len(entries), limit))
	for _, e := range entries {
		if len(out) == limit {
			break
		}
		if _, dup := seen[e.Key]; dup {
			continue
		}
		seen[e.Key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// Reschedule replaces every previously dispatched alert with a fresh plan.
// Cancellation always precedes the first add; neither a failed cancel nor a
// failed add stops the batch.
func (p *Projector) Reschedule(ctx context.Context, setup prayer.Setup, now time.Time) Result {
	res := Result{RunID: uuid.NewString(), At: now}
	log := p.log.With(logx.String("run", res.RunID))

	var plan []Entry
	if cfg, ok := setup.(prayer.Configured); ok {
		plan = p.Plan(ctx, cfg, now)
	}
	res.Planned = len(plan)

	if err := p.dispatcher.CancelAllWithPrefix(ctx, p.opts.Prefix); err != nil {
		res.CancelErr = err.Error()
		log.Warn("cancel previous alerts failed", logx.Err(err))
	}

	for _, e := range plan {
		if err := p.dispatcher.Schedule(ctx, e); err != nil {
			res.Failed++
			log.Warn("dispatch alert failed", logx.String("id", e.Key), logx.Err(err))
			continue
		}
		res.Dispatched++
	}
	res.Entries = plan

	log.Info("alerts rescheduled",
		logx.Int("planned", res.Planned),
		logx.Int("dispatched", res.Dispatched),
		logx.Int("failed", res.Failed),
	)
	return res
}

func prayerTitle(k prayer.Kind, d prayer.Date) string {
	if k == prayer.Dhuhr && d.Weekday() == time.Friday {
		return "Jumuah"
	}
	return k.Title()
}

func placeSuffix(p prayer.Position) string {
	if p.Name == "" {
		return ""
	}
	return " (" + p.Name + ")"
}

func daysBetween(a, b prayer.Date) int {
	ta := time.Date(a.Year, a.Month, a.Day, 12, 0, 0, 0, time.UTC)
	tb := time.Date(b.Year, b.Month, b.Day, 12, 0, 0, 0, time.UTC)
	return int(tb.Sub(ta).Hours() / 24)
}

func rruleWeekday(d time.Weekday) rrule.Weekday {
	switch d {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Saturday:
		return rrule.SA
	case time.Sunday:
		return rrule.SU
	default:
		return rrule.FR
	}
}
