// Package dispatch is the local alert dispatcher: every scheduled alert is a
// durable registry record plus a one-shot timer that hands the message to
// the notifier when it fires.
package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"adhanbot/internal/alerts"
	"adhanbot/internal/eventbus"
	"adhanbot/internal/scheduler"
	"adhanbot/internal/storage"
	"adhanbot/internal/transport"
	logx "adhanbot/pkg/logx"
)

type Config struct {
	Target transport.ChatTarget
	// Grace is how late a stored alert may still be delivered after a restart.
	Grace time.Duration
	// FireTimeout bounds a single fire (store delete + enqueue).
	FireTimeout time.Duration
}

// Timers is the one-shot half of scheduler.Service.
type Timers interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job scheduler.Job) error
	Remove(name string) bool
	RemovePrefix(prefix string) int
}

type Notifier interface {
	Notify(ctx context.Context, n transport.Notification) error
}

// FiredEvent is the Data of alert.fired events.
type FiredEvent struct {
	ID    string    `json:"id"`
	At    time.Time `json:"at"`
	Late  string    `json:"late,omitempty"`
	Error string    `json:"error,omitempty"`
}

type Service struct {
	mu  sync.RWMutex
	cfg Config

	store    storage.Store
	timers   Timers
	notifier Notifier
	bus      eventbus.Bus
	log      logx.Logger
}

var _ alerts.Dispatcher = (*Service)(nil)

func New(cfg Config, store storage.Store, timers Timers, notifier Notifier, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.FireTimeout <= 0 {
		cfg.FireTimeout = 15 * time.Second
	}
	if cfg.Grace < 0 {
		cfg.Grace = 0
	}
	return &Service{cfg: cfg, store: store, timers: timers, notifier: notifier, bus: bus, log: log}
}

// SetTarget changes the chat that receives alerts from now on.
func (s *Service) SetTarget(t transport.ChatTarget) {
	s.mu.Lock()
	s.cfg.Target = t
	s.mu.Unlock()
}

// SetGrace changes the restore window used by the next Restore.
func (s *Service) SetGrace(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	s.cfg.Grace = d
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) Schedule(ctx context.Context, e alerts.Entry) error {
	if e.Key == "" {
		return fmt.Errorf("alert without id")
	}
	rec := storage.Alert{
		ID:        e.Key,
		At:        e.At,
		Category:  string(e.Category),
		Kind:      e.Kind.String(),
		Title:     e.Title,
		Body:      e.Body,
		CreatedAt: time.Now(),
	}
	if err := s.store.PutAlert(ctx, rec); err != nil {
		return fmt.Errorf("store alert %s: %w", e.Key, err)
	}
	if err := s.arm(rec); err != nil {
		_ = s.store.DeleteAlert(ctx, e.Key)
		return err
	}
	return nil
}

func (s *Service) CancelAllWithPrefix(ctx context.Context, prefix string) error {
	disarmed := s.timers.RemovePrefix(prefix)
	n, err := s.store.DeleteAlertsWithPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("delete alerts %q: %w", prefix, err)
	}
	s.log.Debug("alerts cancelled", logx.String("prefix", prefix), logx.Int("timers", disarmed), logx.Int("records", n))
	return nil
}

func (s *Service) Pending(ctx context.Context) ([]string, error) {
	recs, err := s.store.ListAlerts(ctx, "")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Restore re-arms stored alerts after a restart. Records older than the
// grace window are deleted without delivery.
func (s *Service) Restore(ctx context.Context, now time.Time) (armed, dropped int, err error) {
	recs, err := s.store.ListAlerts(ctx, "")
	if err != nil {
		return 0, 0, err
	}
	grace := s.config().Grace
	for _, r := range recs {
		if r.At.Before(now.Add(-grace)) {
			if derr := s.store.DeleteAlert(ctx, r.ID); derr != nil {
				s.log.Warn("drop stale alert failed", logx.String("id", r.ID), logx.Err(derr))
			}
			dropped++
			continue
		}
		if aerr := s.arm(r); aerr != nil {
			s.log.Warn("re-arm alert failed", logx.String("id", r.ID), logx.Err(aerr))
			continue
		}
		armed++
	}
	s.log.Info("alerts restored", logx.Int("armed", armed), logx.Int("dropped", dropped))
	return armed, dropped, nil
}

func (s *Service) arm(rec storage.Alert) error {
	return s.timers.AddOnce(rec.ID, rec.At, s.config().FireTimeout, func(ctx context.Context) error {
		return s.fire(ctx, rec)
	})
}

func (s *Service) fire(ctx context.Context, rec storage.Alert) error {
	if err := s.store.DeleteAlert(ctx, rec.ID); err != nil {
		s.log.Warn("delete fired alert failed", logx.String("id", rec.ID), logx.Err(err))
	}

	ev := FiredEvent{ID: rec.ID, At: rec.At}
	if late := time.Since(rec.At); late > time.Second {
		ev.Late = late.Round(time.Second).String()
	}
	err := s.notifier.Notify(ctx, transport.Notification{
		Key:      rec.ID,
		Priority: priority(alerts.Category(rec.Category)),
		Target:   s.config().Target,
		Text:     messageText(rec),
		Options:  &transport.SendOptions{DisablePreview: true},
	})
	if err != nil {
		ev.Error = err.Error()
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeAlertFired, Data: ev})
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", rec.ID, err)
	}
	return nil
}

func priority(c alerts.Category) int {
	if c == alerts.CategoryPrayer {
		return 7
	}
	return 5
}

func messageText(rec storage.Alert) string {
	title := strings.TrimSpace(rec.Title)
	body := strings.TrimSpace(rec.Body)
	switch {
	case title == "":
		return body
	case body == "":
		return title
	default:
		return title + "\n" + body
	}
}
