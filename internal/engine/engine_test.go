package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"adhanbot/internal/alerts"
	"adhanbot/internal/eventbus"
	"adhanbot/internal/prayer"
	"adhanbot/internal/storage"
	logx "adhanbot/pkg/logx"
)

var testLoc = time.FixedZone("AST", 3*60*60)

func fixedSolver() prayer.Solver {
	return prayer.SolverFunc(func(_ context.Context, req prayer.Request) (prayer.RawTimes, bool) {
		d := req.Date
		return prayer.RawTimes{
			Fajr:    d.At(testLoc, 5, 0),
			Sunrise: d.At(testLoc, 6, 20),
			Dhuhr:   d.At(testLoc, 12, 10),
			Asr:     d.At(testLoc, 15, 30),
			Maghrib: d.At(testLoc, 18, 0),
			Isha:    d.At(testLoc, 19, 30),
		}, true
	})
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingDispatcher struct {
	mu  sync.Mutex
	ops []string
}

func (d *recordingDispatcher) Schedule(_ context.Context, e alerts.Entry) error {
	d.mu.Lock()
	d.ops = append(d.ops, "add:"+e.Key)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) CancelAllWithPrefix(_ context.Context, prefix string) error {
	d.mu.Lock()
	d.ops = append(d.ops, "cancel:"+prefix)
	d.mu.Unlock()
	return nil
}

func (d *recordingDispatcher) Pending(context.Context) ([]string, error) { return nil, nil }

func (d *recordingDispatcher) snapshot() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ops...)
}

func configured() prayer.Configured {
	return prayer.Configured{
		Position: prayer.Position{Latitude: 21.42, Longitude: 39.83, Name: "Makkah", Location: testLoc},
		Settings: prayer.DefaultSettings(),
	}
}

type harness struct {
	svc   *Service
	clock *clock
	disp  *recordingDispatcher
	store storage.Store
	bus   eventbus.Bus
}

func newHarness(t *testing.T, setup prayer.Setup, now time.Time) *harness {
	t.Helper()
	h := &harness{clock: &clock{now: now}, disp: &recordingDispatcher{}, store: storage.NewMemory(), bus: eventbus.New()}
	comp := prayer.NewComputer(fixedSolver(), logx.Nop())
	proj := alerts.NewProjector(comp, h.disp, alerts.DefaultOptions(), logx.Nop())
	h.svc = New(Config{Now: h.clock.Now, Tick: 5 * time.Millisecond}, setup, comp, proj, h.store, h.bus, logx.Nop())
	return h
}

func at(day, hhmm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", day+" "+hhmm, testLoc)
	if err != nil {
		panic(err)
	}
	return t
}

func TestTriggerPublishesReadySnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, configured(), at("2026-03-02", "13:00"))
	events, unsub := h.bus.Subscribe(8)
	defer unsub()

	if got := h.svc.Snapshot().State; got != StatePending {
		t.Fatalf("state before start = %s", got)
	}
	h.svc.trigger(context.Background(), CauseStart)

	snap := h.svc.Snapshot()
	if snap.State != StateReady || snap.Place != "Makkah" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Next == nil || snap.Next.Kind != prayer.Asr || snap.Next.Remaining != 150*time.Minute {
		t.Fatalf("next = %+v", snap.Next)
	}
	if !snap.Deadline.Active || snap.Deadline.Deadline.Kind != prayer.Dhuhr || snap.Deadline.Deadline.Urgency != prayer.UrgencyPlenty {
		t.Fatalf("deadline = %+v", snap.Deadline)
	}
	var current int
	for _, e := range snap.Entries {
		if e.IsCurrent {
			current++
			if e.Kind != prayer.Dhuhr {
				t.Fatalf("current on %s", e.Kind)
			}
		}
	}
	if current != 1 {
		t.Fatalf("current entries = %d", current)
	}
	if snap.LastRun == nil || snap.LastRun.Planned != alerts.DefaultCap || snap.LastRun.Cause != CauseStart {
		t.Fatalf("last run = %+v", snap.LastRun)
	}
	if len(snap.Plan) != alerts.DefaultCap {
		t.Fatalf("plan = %d entries", len(snap.Plan))
	}
	// Ramadan 1447 covers 2026-03-02.
	if snap.Lunar == nil || !snap.Lunar.Active() {
		t.Fatalf("lunar = %+v", snap.Lunar)
	}

	ops := h.disp.snapshot()
	if !strings.HasPrefix(ops[0], "cancel:") {
		t.Fatalf("first op %q", ops[0])
	}
	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	if len(types) != 2 || types[0] != eventbus.TypeRecomputed || types[1] != eventbus.TypeRescheduled {
		t.Fatalf("events %v", types)
	}
}

func TestUnconfiguredClearsAlerts(t *testing.T) {
	t.Parallel()
	h := newHarness(t, prayer.Unconfigured{Reason: "device location"}, at("2026-03-02", "13:00"))
	h.svc.trigger(context.Background(), CauseStart)

	snap := h.svc.Snapshot()
	if snap.State != StateUnconfigured || snap.Reason != "device location" || len(snap.Entries) != 0 {
		t.Fatalf("snapshot %+v", snap)
	}
	if ops := h.disp.snapshot(); len(ops) != 1 || !strings.HasPrefix(ops[0], "cancel:") {
		t.Fatalf("ops %v", ops)
	}
}

func TestTickRecomputesWhenCountdownEnds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, configured(), at("2026-03-02", "15:29"))
	ctx := context.Background()
	h.svc.trigger(ctx, CauseStart)
	adds := len(h.disp.snapshot())

	h.clock.Set(at("2026-03-02", "15:30"))
	h.svc.tick(ctx, h.clock.Now())

	snap := h.svc.Snapshot()
	if snap.Next.Kind != prayer.Maghrib {
		t.Fatalf("next after rollover = %s", snap.Next.Kind)
	}
	if snap.Deadline.Deadline.Kind != prayer.Asr {
		t.Fatalf("deadline after rollover = %+v", snap.Deadline)
	}
	if len(h.disp.snapshot()) != adds {
		t.Fatal("tick must not reschedule")
	}
}

func TestTickExpiresDeadlineWithoutRecompute(t *testing.T) {
	t.Parallel()
	h := newHarness(t, configured(), at("2026-03-02", "06:00"))
	ctx := context.Background()
	h.svc.trigger(ctx, CauseStart)
	computed := h.svc.Snapshot().ComputedAt

	h.clock.Set(at("2026-03-02", "06:10"))
	h.svc.tick(ctx, h.clock.Now())
	if u := h.svc.Snapshot().Deadline.Deadline.Urgency; u != prayer.UrgencyUrgent {
		t.Fatalf("urgency at 10m left = %s", u)
	}

	h.clock.Set(at("2026-03-02", "06:20"))
	h.svc.tick(ctx, h.clock.Now())
	snap := h.svc.Snapshot()
	if snap.Deadline.Active {
		t.Fatalf("deadline must expire at sunrise: %+v", snap.Deadline)
	}
	if !snap.ComputedAt.Equal(computed) {
		t.Fatal("expiry must not recompute")
	}
	if snap.Next.Kind != prayer.Dhuhr || snap.Next.Remaining != 350*time.Minute {
		t.Fatalf("next = %+v", snap.Next)
	}
}

func TestTickRecomputesOnDateChange(t *testing.T) {
	t.Parallel()
	h := newHarness(t, configured(), at("2026-03-02", "20:00"))
	ctx := context.Background()
	h.svc.trigger(ctx, CauseStart)

	h.clock.Set(at("2026-03-03", "00:00"))
	h.svc.tick(ctx, h.clock.Now())
	snap := h.svc.Snapshot()
	if snap.Date.String() != "2026-03-03" {
		t.Fatalf("date = %s", snap.Date)
	}
	// isha of the previous day is still inside its window
	if !snap.Deadline.Active || snap.Deadline.Deadline.Kind != prayer.Isha {
		t.Fatalf("deadline = %+v", snap.Deadline)
	}
}

func TestCommandsThroughLoop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, configured(), at("2026-03-02", "13:00"))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h.svc.Start(ctx)

	if err := h.svc.Toggle(ctx, prayer.Asr, false); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	for _, e := range h.svc.Snapshot().Entries {
		if e.Kind == prayer.Asr && e.NotifyEnabled {
			t.Fatal("asr still enabled")
		}
	}
	if err := h.svc.Toggle(ctx, prayer.Sunrise, true); !errors.Is(err, ErrInformational) {
		t.Fatalf("sunrise toggle: %v", err)
	}

	sum, err := h.svc.Reschedule(ctx, CauseCron)
	if err != nil || sum.Cause != CauseCron || sum.Dispatched == 0 {
		t.Fatalf("Reschedule = %+v, %v", sum, err)
	}

	if err := h.svc.SetSetup(ctx, prayer.Unconfigured{Reason: "cleared"}); err != nil {
		t.Fatalf("SetSetup: %v", err)
	}
	if err := h.svc.Toggle(ctx, prayer.Fajr, true); !errors.Is(err, ErrUnconfigured) {
		t.Fatalf("toggle unconfigured: %v", err)
	}
	if err := h.svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if err := h.svc.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.svc.Refresh(ctx); !errors.Is(err, ErrStopped) {
		t.Fatalf("refresh after stop: %v", err)
	}
}
