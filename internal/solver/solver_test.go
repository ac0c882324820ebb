package solver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

var riyadh = time.FixedZone("AST", 3*60*60)

const timetableYAML = `
days:
  "2026-02-18": {fajr: "05:12", sunrise: "06:31", dhuhr: "12:15", asr: "15:35", asr_hanafi: "16:20", maghrib: "17:59", isha: "19:29"}
  "2026-02-19": {fajr: "05:11", sunrise: "06:30", dhuhr: "12:15", asr: "15:35", maghrib: "18:00", isha: "19:30"}
  "2026-02-20": {fajr: "05:11", sunrise: "bad", dhuhr: "12:15", asr: "15:35", maghrib: "18:00", isha: "19:30"}
methods:
  umm_al_qura:
    "2026-02-18": {fajr: "05:20", sunrise: "06:31", dhuhr: "12:15", asr: "15:35", maghrib: "17:59", isha: "19:29"}
`

func request(d string, m prayer.Method, mz prayer.Madhab) prayer.Request {
	date, _ := prayer.ParseDate(d)
	return prayer.Request{
		Position: prayer.Position{Latitude: 24.71, Longitude: 46.67, Location: riyadh},
		Date:     date,
		Method:   m,
		Madhab:   mz,
	}
}

func TestTimetableSolve(t *testing.T) {
	t.Parallel()

	tt, err := ParseTimetable([]byte(timetableYAML))
	if err != nil {
		t.Fatalf("ParseTimetable: %v", err)
	}
	ctx := context.Background()

	got, ok := tt.Solve(ctx, request("2026-02-18", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi))
	if !ok {
		t.Fatalf("expected a row")
	}
	if want := time.Date(2026, 2, 18, 5, 12, 0, 0, riyadh); !got.Fajr.Equal(want) {
		t.Fatalf("fajr = %s, want %s", got.Fajr, want)
	}

	hanafi, _ := tt.Solve(ctx, request("2026-02-18", prayer.MethodMuslimWorldLeague, prayer.MadhabHanafi))
	if hanafi.Asr.Hour() != 16 || hanafi.Asr.Minute() != 20 {
		t.Fatalf("hanafi asr = %s", hanafi.Asr)
	}

	uq, _ := tt.Solve(ctx, request("2026-02-18", prayer.MethodUmmAlQura, prayer.MadhabShafi))
	if uq.Fajr.Minute() != 20 {
		t.Fatalf("method section ignored: %s", uq.Fajr)
	}
	// Falls back to the default rows when the method has no entry.
	if uq2, ok := tt.Solve(ctx, request("2026-02-19", prayer.MethodUmmAlQura, prayer.MadhabShafi)); !ok || uq2.Fajr.Minute() != 11 {
		t.Fatalf("fallback row = %v %v", uq2.Fajr, ok)
	}

	if _, ok := tt.Solve(ctx, request("2026-02-20", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi)); ok {
		t.Fatalf("malformed row must not solve")
	}
	if _, ok := tt.Solve(ctx, request("2026-03-01", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi)); ok {
		t.Fatalf("missing row must not solve")
	}
}

func TestLoadTimetableErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cases := map[string]string{
		"bad-date.yaml":   "days:\n  \"2026-13-01\": {fajr: \"05:00\"}\n",
		"bad-method.yaml": "methods:\n  lunar: {}\n",
		"bad-tz.yaml":     "timezone: Mars/Olympus\n",
	}
	for name, body := range cases {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadTimetable(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := LoadTimetable(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

const feed = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//mosque//times//EN\r\n" +
	"BEGIN:VEVENT\r\nUID:f1\r\nDTSTAMP:20260101T000000Z\r\nDTSTART:20260218T021200Z\r\nSUMMARY:Fajr\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:s1\r\nDTSTAMP:20260101T000000Z\r\nDTSTART:20260218T033100Z\r\nSUMMARY:Sunrise\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:d1\r\nDTSTAMP:20260101T000000Z\r\nDTSTART:20260218T091500Z\r\nSUMMARY:Adhan: Dhuhr\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:a1\r\nDTSTAMP:20260101T000000Z\r\nDTSTART:20260218T123500Z\r\nSUMMARY:Asr prayer\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:m1\r\nDTSTAMP:20260101T000000Z\r\nDTSTART:20260218T145900Z\r\nSUMMARY:Maghrib (Iftar)\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:i1\r\nDTSTAMP:20260101T000000Z\r\nDTSTART:20260218T162900Z\r\nSUMMARY:Isha\r\nEND:VEVENT\r\n" +
	"BEGIN:VEVENT\r\nUID:x1\r\nDTSTAMP:20260101T000000Z\r\nDTSTART:20260218T170000Z\r\nSUMMARY:Study circle\r\nEND:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestCalendarFromFile(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "times.ics")
	if err := os.WriteFile(p, []byte(feed), 0o600); err != nil {
		t.Fatal(err)
	}
	c := NewCalendar(p, logx.Nop())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	got, ok := c.Solve(context.Background(), request("2026-02-18", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi))
	if !ok {
		t.Fatalf("expected the feed to solve 2026-02-18")
	}
	if want := time.Date(2026, 2, 18, 5, 12, 0, 0, riyadh); !got.Fajr.Equal(want) {
		t.Fatalf("fajr = %s, want %s", got.Fajr, want)
	}
	if _, ok := c.Solve(context.Background(), request("2026-02-19", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi)); ok {
		t.Fatalf("no events on 2026-02-19")
	}
}

func TestCalendarFromURLHonoursETag(t *testing.T) {
	t.Parallel()

	var hits, notModified atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			notModified.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(feed))
	}))
	defer srv.Close()

	c := NewCalendar(srv.URL+"/times.ics", logx.Nop())
	for i := 0; i < 2; i++ {
		if err := c.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh %d: %v", i, err)
		}
	}
	if hits.Load() != 2 || notModified.Load() != 1 {
		t.Fatalf("hits=%d notModified=%d", hits.Load(), notModified.Load())
	}
	if _, ok := c.Solve(context.Background(), request("2026-02-18", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi)); !ok {
		t.Fatalf("data must survive a 304")
	}
}

func TestCachedSolver(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	inner := prayer.SolverFunc(func(_ context.Context, req prayer.Request) (prayer.RawTimes, bool) {
		calls.Add(1)
		return prayer.RawTimes{}, false
	})
	c := NewCached(inner, 2)
	ctx := context.Background()
	a := request("2026-02-18", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi)
	b := request("2026-02-19", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi)
	d := request("2026-02-20", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi)

	c.Solve(ctx, a)
	c.Solve(ctx, a)
	if calls.Load() != 1 {
		t.Fatalf("negative result should be memoized, calls=%d", calls.Load())
	}
	c.Solve(ctx, b)
	c.Solve(ctx, d)
	if c.Len() != 2 {
		t.Fatalf("cache should stay bounded, len=%d", c.Len())
	}
	c.Solve(ctx, a)
	if calls.Load() != 4 {
		t.Fatalf("evicted entry should be re-solved, calls=%d", calls.Load())
	}
	c.Purge()
	if c.Len() != 0 {
		t.Fatalf("purge left %d entries", c.Len())
	}
}

func TestSwitch(t *testing.T) {
	t.Parallel()

	w := NewSwitch(nil)
	if _, ok := w.Solve(context.Background(), request("2026-02-18", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi)); ok {
		t.Fatal("empty switch must report none")
	}
	tt, err := ParseTimetable([]byte(timetableYAML))
	if err != nil {
		t.Fatal(err)
	}
	w.Set(tt)
	got, ok := w.Solve(context.Background(), request("2026-02-18", prayer.MethodMuslimWorldLeague, prayer.MadhabShafi))
	if !ok || got.Fajr.Hour() != 5 || got.Fajr.Minute() != 12 {
		t.Fatalf("Solve = %v %v", got.Fajr, ok)
	}
}
