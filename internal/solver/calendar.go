package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"adhanbot/internal/prayer"
	logx "adhanbot/pkg/logx"
)

// Calendar solves from an iCalendar feed that carries one VEVENT per prayer,
// e.g. a mosque's published subscription. Summaries name the prayer.
type Calendar struct {
	source string
	client *http.Client
	log    logx.Logger

	mu   sync.RWMutex
	days map[prayer.Date][prayer.KindCount]time.Time
	etag string
}

// NewCalendar returns a solver for source, which is a file path or an
// http(s) URL. Call Refresh before the first Solve.
func NewCalendar(source string, log logx.Logger) *Calendar {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Calendar{
		source: source,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log.With(logx.String("comp", "solver.ics")),
		days:   map[prayer.Date][prayer.KindCount]time.Time{},
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Refresh reloads the feed. An unchanged remote feed (304) keeps the
// current data.
func (c *Calendar) Refresh(ctx context.Context) error {
	body, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	if body == nil {
		c.log.Debug("feed not modified")
		return nil
	}
	days, err := ParseCalendarDays(body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.days = days
	c.mu.Unlock()
	c.log.Info("feed loaded", logx.Int("days", len(days)))
	return nil
}

func (c *Calendar) fetch(ctx context.Context) ([]byte, error) {
	if !isURL(c.source) {
		b, err := os.ReadFile(c.source)
		if err != nil {
			return nil, fmt.Errorf("read ics: %w", err)
		}
		return b, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.source, nil)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}
	c.mu.RUnlock()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch ics: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return nil, fmt.Errorf("read ics body: %w", err)
		}
		c.mu.Lock()
		c.etag = resp.Header.Get("ETag")
		c.mu.Unlock()
		return b, nil
	case http.StatusNotModified:
		return nil, nil
	default:
		return nil, fmt.Errorf("fetch ics: unexpected status %d", resp.StatusCode)
	}
}

// ParseCalendarDays groups VEVENT starts per local date and kind. Events whose
// summary does not name a prayer are ignored.
func ParseCalendarDays(body []byte) (map[prayer.Date][prayer.KindCount]time.Time, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ics body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics: %w", err)
	}
	out := map[prayer.Date][prayer.KindCount]time.Time{}
	for _, ev := range cal.Events() {
		p := ev.GetProperty(ical.ComponentPropertySummary)
		if p == nil {
			continue
		}
		k, ok := summaryKind(p.Value)
		if !ok {
			continue
		}
		start, err := ev.GetStartAt()
		if err != nil || start.IsZero() {
			continue
		}
		d := prayer.DateOf(start)
		row := out[d]
		row[k] = start
		out[d] = row
	}
	return out, nil
}

// summaryKind accepts "Fajr", "Fajr prayer", "Adhan: Maghrib" and similar.
func summaryKind(s string) (prayer.Kind, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ':' || r == '-' || r == '|' || r == '(' || r == ')'
	})
	for _, f := range fields {
		if k, err := prayer.ParseKind(f); err == nil {
			return k, true
		}
	}
	return 0, false
}

// Solve picks the events falling on req.Date in the position's zone. Feeds
// written in UTC may file early fajr under the previous date, so the
// neighbouring dates are scanned too.
func (c *Calendar) Solve(_ context.Context, req prayer.Request) (prayer.RawTimes, bool) {
	loc := req.Position.Loc()
	var row [prayer.KindCount]time.Time
	c.mu.RLock()
	for _, d := range []prayer.Date{req.Date.AddDays(-1), req.Date, req.Date.AddDays(1)} {
		for k, t := range c.days[d] {
			if t.IsZero() || prayer.DateOf(t.In(loc)) != req.Date {
				continue
			}
			row[k] = t
		}
	}
	c.mu.RUnlock()
	out := prayer.RawTimes{
		Fajr:    row[prayer.Fajr],
		Sunrise: row[prayer.Sunrise],
		Dhuhr:   row[prayer.Dhuhr],
		Asr:     row[prayer.Asr],
		Maghrib: row[prayer.Maghrib],
		Isha:    row[prayer.Isha],
	}
	if !out.Valid() {
		return prayer.RawTimes{}, false
	}
	return out, true
}
