package prayer

import (
	"context"
	"testing"
	"time"

	logx "adhanbot/pkg/logx"
)

func TestComputeEntriesSortedWithSingleNext(t *testing.T) {
	t.Parallel()

	date := mustDate("2026-01-14")
	cases := []struct {
		name string
		now  time.Time
		mut  func(*Settings)
	}{
		{name: "before dawn", now: at(date, 3, 0)},
		{name: "midday", now: at(date, 12, 30)},
		{name: "after isha", now: at(date, 22, 0)},
		{name: "all visible", now: at(date, 6, 0), mut: func(s *Settings) { s.ShowImsak = true }},
		{name: "large adjustments", now: at(date, 15, 0), mut: func(s *Settings) {
			s.Adjustments[Asr] = -60
			s.Adjustments[Maghrib] = 60
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := NewComputer(&fixedSolver{}, logx.Nop())
			sched, ok := c.Compute(context.Background(), testConfigured(tc.mut), tc.now)
			if !ok {
				t.Fatalf("compute failed")
			}
			nexts := 0
			for i, e := range sched.Entries {
				if i > 0 && e.At.Before(sched.Entries[i-1].At) {
					t.Fatalf("entries not sorted at %d: %v", i, sched.Entries)
				}
				if e.IsNext {
					nexts++
				}
			}
			if nexts > 1 {
				t.Fatalf("expected at most one next, got %d", nexts)
			}
		})
	}
}

func TestComputeHiddenKindsStayInDay(t *testing.T) {
	t.Parallel()

	date := mustDate("2026-01-14")
	cfg := testConfigured(func(s *Settings) {
		s.ShowImsak = false
		s.ShowSunrise = false
	})
	c := NewComputer(&fixedSolver{}, logx.Nop())
	sched, ok := c.Compute(context.Background(), cfg, at(date, 5, 30))
	if !ok {
		t.Fatalf("compute failed")
	}
	for _, e := range sched.Entries {
		if e.Kind.Informational() {
			t.Fatalf("hidden kind %s in display list", e.Kind)
		}
	}
	if len(sched.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(sched.Entries))
	}
	if sched.Today.At(Sunrise).IsZero() || sched.Today.At(Imsak).IsZero() {
		t.Fatalf("hidden instants must remain in the day")
	}

	tr := NewTracker(nil)
	st := tr.Resolve(at(date, 5, 30), sched.Today, nil)
	if !st.Active || st.Deadline.Kind != Fajr {
		t.Fatalf("expected fajr active, got %+v", st)
	}
	if !st.Deadline.At.Equal(sched.Today.At(Sunrise)) {
		t.Fatalf("fajr deadline = %s, want hidden sunrise %s", st.Deadline.At, sched.Today.At(Sunrise))
	}
}

func TestComputeNextSkipsInformational(t *testing.T) {
	t.Parallel()

	date := mustDate("2026-01-14")
	cases := []struct {
		name string
		now  time.Time
		want Kind
		day  Date
	}{
		{name: "before imsak", now: at(date, 4, 0), want: Fajr, day: date},
		{name: "between imsak and fajr", now: at(date, 4, 55), want: Fajr, day: date},
		{name: "before sunrise", now: at(date, 6, 0), want: Dhuhr, day: date},
		{name: "after isha wraps", now: at(date, 20, 0), want: Fajr, day: date.AddDays(1)},
		{name: "exactly at dhuhr is not next", now: at(date, 12, 10), want: Asr, day: date},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfigured(func(s *Settings) { s.ShowImsak = true })
			c := NewComputer(&fixedSolver{}, logx.Nop())
			sched, ok := c.Compute(context.Background(), cfg, tc.now)
			if !ok {
				t.Fatalf("compute failed")
			}
			if sched.Next == nil {
				t.Fatalf("expected a next countdown")
			}
			if sched.Next.Kind != tc.want {
				t.Fatalf("next = %s, want %s", sched.Next.Kind, tc.want)
			}
			if got := DateOf(sched.Next.Target.In(testLoc)); got != tc.day {
				t.Fatalf("next day = %s, want %s", got, tc.day)
			}
			if sched.Next.Remaining <= 0 {
				t.Fatalf("remaining must be positive, got %s", sched.Next.Remaining)
			}
		})
	}
}

func TestComputeAdjustmentShiftsOnlyThatKind(t *testing.T) {
	t.Parallel()

	date := mustDate("2026-01-14")
	cfg := testConfigured(func(s *Settings) { s.Adjustments[Fajr] = 5 })
	c := NewComputer(&fixedSolver{}, logx.Nop())
	day, ok := c.Day(context.Background(), cfg, date)
	if !ok {
		t.Fatalf("day failed")
	}
	raw := rawFor(date)
	if got := day.At(Fajr).Sub(raw.Fajr); got != 5*time.Minute {
		t.Fatalf("fajr shift = %s, want 5m", got)
	}
	if !day.At(Sunrise).Equal(raw.Sunrise) || !day.At(Dhuhr).Equal(raw.Dhuhr) || !day.At(Isha).Equal(raw.Isha) {
		t.Fatalf("other kinds moved: %+v", day.Times)
	}
	if !day.At(Imsak).Equal(raw.Fajr.Add(-ImsakLead)) {
		t.Fatalf("imsak derives from raw fajr, got %s", day.At(Imsak))
	}

	tr := NewTracker(nil)
	st := tr.Resolve(at(date, 5, 10), day, nil)
	if !st.Active || st.Deadline.Kind != Fajr || !st.Deadline.At.Equal(raw.Sunrise) {
		t.Fatalf("fajr deadline should be sunrise, got %+v", st)
	}
}

func TestComputeUnconfiguredAndUnsolvable(t *testing.T) {
	t.Parallel()

	date := mustDate("2026-01-14")
	c := NewComputer(&fixedSolver{missing: map[Date]bool{date: true}}, logx.Nop())

	sched, ok := c.Compute(context.Background(), Unconfigured{Reason: "no position"}, at(date, 9, 0))
	if !ok || len(sched.Entries) != 0 || sched.Next != nil {
		t.Fatalf("unconfigured should be an empty schedule, got ok=%v %+v", ok, sched)
	}

	if _, ok := c.Compute(context.Background(), testConfigured(nil), at(date, 9, 0)); ok {
		t.Fatalf("expected failure when today cannot be solved")
	}
}

func TestComputeWrapFailsWithoutTomorrow(t *testing.T) {
	t.Parallel()

	date := mustDate("2026-01-14")
	c := NewComputer(&fixedSolver{missing: map[Date]bool{date.AddDays(1): true}}, logx.Nop())
	sched, ok := c.Compute(context.Background(), testConfigured(nil), at(date, 21, 0))
	if !ok {
		t.Fatalf("today is solvable")
	}
	if sched.Next != nil {
		t.Fatalf("expected no next when tomorrow fails, got %+v", sched.Next)
	}
	for _, e := range sched.Entries {
		if e.IsNext {
			t.Fatalf("no entry may be next")
		}
		if !e.IsPassed {
			t.Fatalf("%s should be passed", e.Kind)
		}
	}
}

func TestComputeLabels(t *testing.T) {
	t.Parallel()

	friday := mustDate("2026-02-20")
	if friday.Weekday() != time.Friday {
		t.Fatalf("fixture is not a friday")
	}
	cfg := testConfigured(func(s *Settings) { s.ShowImsak = true })
	c := NewComputer(&fixedSolver{}, logx.Nop())
	now := at(friday, 9, 0)
	sched, ok := c.Compute(context.Background(), cfg, now)
	if !ok {
		t.Fatalf("compute failed")
	}
	lunar := DetectLunar(sched.Today, now, 0)
	if !lunar.Active() {
		t.Fatalf("2026-02-20 is in the fasting month")
	}
	annotated := sched.Annotate(DeadlineState{}, lunar)
	want := map[Kind]string{Imsak: LabelSuhoor, Dhuhr: LabelJumuah, Maghrib: LabelIftar}
	for _, e := range annotated.Entries {
		if e.Label != want[e.Kind] {
			t.Fatalf("%s label = %q, want %q", e.Kind, e.Label, want[e.Kind])
		}
	}
	for _, e := range sched.Entries {
		if e.Kind == Imsak && e.Label != "" {
			t.Fatalf("annotate must not mutate the source schedule")
		}
	}
}

func TestAnnotateMarksCurrentOnlyForTrueKinds(t *testing.T) {
	t.Parallel()

	date := mustDate("2026-01-14")
	cfg := testConfigured(func(s *Settings) { s.ShowImsak = true })
	c := NewComputer(&fixedSolver{}, logx.Nop())
	for h := 0; h < 24; h++ {
		now := at(date, h, 15)
		sched, ok := c.Compute(context.Background(), cfg, now)
		if !ok {
			t.Fatalf("compute failed")
		}
		tr := NewTracker(nil)
		st := tr.Resolve(now, sched.Today, func(offset int) (Day, bool) {
			return c.Day(context.Background(), cfg, date.AddDays(offset))
		})
		current := 0
		for _, e := range sched.Annotate(st, Lunar{}).Entries {
			if !e.IsCurrent {
				continue
			}
			current++
			if e.Kind.Informational() {
				t.Fatalf("%02d:15 informational kind %s marked current", h, e.Kind)
			}
			if e.Urgency == "" {
				t.Fatalf("current entry needs urgency")
			}
		}
		if current > 1 {
			t.Fatalf("%02d:15 more than one current entry", h)
		}
	}
}
