package solver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"adhanbot/internal/prayer"
)

// DayRow is one timetable line. Times are "HH:MM" in the position's zone.
type DayRow struct {
	Fajr      string `yaml:"fajr"`
	Sunrise   string `yaml:"sunrise"`
	Dhuhr     string `yaml:"dhuhr"`
	Asr       string `yaml:"asr"`
	AsrHanafi string `yaml:"asr_hanafi"`
	Maghrib   string `yaml:"maghrib"`
	Isha      string `yaml:"isha"`
}

type timetableFile struct {
	Timezone string                       `yaml:"timezone"`
	Days     map[string]DayRow            `yaml:"days"`
	Methods  map[string]map[string]DayRow `yaml:"methods"`
}

// Timetable solves from a published table (mosque or ministry timetable).
// Per-method sections override the default rows.
type Timetable struct {
	mu      sync.RWMutex
	path    string
	loc     *time.Location
	days    map[string]DayRow
	methods map[prayer.Method]map[string]DayRow
}

// LoadTimetable reads and validates path.
func LoadTimetable(path string) (*Timetable, error) {
	t := &Timetable{path: path}
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseTimetable builds a timetable from raw YAML.
func ParseTimetable(b []byte) (*Timetable, error) {
	t := &Timetable{}
	if err := t.load(b); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the backing file.
func (t *Timetable) Reload() error {
	if t.path == "" {
		return nil
	}
	b, err := os.ReadFile(t.path)
	if err != nil {
		return fmt.Errorf("read timetable: %w", err)
	}
	return t.load(b)
}

func (t *Timetable) load(b []byte) error {
	var f timetableFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse timetable: %w", err)
	}
	var loc *time.Location
	if tz := strings.TrimSpace(f.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("timetable timezone: %w", err)
		}
		loc = l
	}
	if err := checkRows("days", f.Days); err != nil {
		return err
	}
	methods := make(map[prayer.Method]map[string]DayRow, len(f.Methods))
	for name, rows := range f.Methods {
		m := prayer.Method(strings.ToLower(strings.TrimSpace(name)))
		if !m.Valid() {
			return fmt.Errorf("timetable methods.%s: unknown method", name)
		}
		if err := checkRows("methods."+name, rows); err != nil {
			return err
		}
		methods[m] = rows
	}

	t.mu.Lock()
	t.loc = loc
	t.days = f.Days
	t.methods = methods
	t.mu.Unlock()
	return nil
}

func checkRows(path string, rows map[string]DayRow) error {
	for k := range rows {
		if _, err := prayer.ParseDate(k); err != nil {
			return fmt.Errorf("timetable %s: %w", path, err)
		}
	}
	return nil
}

// Len returns the number of default rows.
func (t *Timetable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.days)
}

func (t *Timetable) Solve(_ context.Context, req prayer.Request) (prayer.RawTimes, bool) {
	t.mu.RLock()
	row, ok := t.methods[req.Method][req.Date.String()]
	if !ok {
		row, ok = t.days[req.Date.String()]
	}
	loc := t.loc
	t.mu.RUnlock()
	if !ok {
		return prayer.RawTimes{}, false
	}
	if loc == nil {
		loc = req.Position.Loc()
	}

	asr := row.Asr
	if req.Madhab == prayer.MadhabHanafi && row.AsrHanafi != "" {
		asr = row.AsrHanafi
	}
	var (
		out  prayer.RawTimes
		errs int
	)
	parse := func(s string) time.Time {
		tm, err := clock(req.Date, loc, s)
		if err != nil {
			errs++
		}
		return tm
	}
	out.Fajr = parse(row.Fajr)
	out.Sunrise = parse(row.Sunrise)
	out.Dhuhr = parse(row.Dhuhr)
	out.Asr = parse(asr)
	out.Maghrib = parse(row.Maghrib)
	out.Isha = parse(row.Isha)
	if errs > 0 || !out.Valid() {
		return prayer.RawTimes{}, false
	}
	return out, true
}

// clock parses "HH:MM" or "HH:MM:SS" on d.
func clock(d prayer.Date, loc *time.Location, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if tm, err := time.Parse(layout, s); err == nil {
			return time.Date(d.Year, d.Month, d.Day, tm.Hour(), tm.Minute(), tm.Second(), 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid clock %q", s)
}
