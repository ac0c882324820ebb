package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"adhanbot/internal/api"
	"adhanbot/internal/notifier"
	"adhanbot/internal/prayer"
	"adhanbot/internal/scheduler"
	"adhanbot/internal/storage"
	"adhanbot/internal/transport"
	"adhanbot/internal/transport/telegram"
	logx "adhanbot/pkg/logx"
)

const (
	DefaultRefresh      = "0 5 0 * * *"
	DefaultRestoreGrace = 10 * time.Minute
	DefaultAPIAddr      = "127.0.0.1:8095"
)

// Solver drivers.
const (
	SolverTimetable = "timetable"
	SolverICS       = "ics"
)

// SolverOptions is the resolved solver section.
type SolverOptions struct {
	Driver    string
	Source    string // file path or URL
	Refresh   time.Duration
	CacheSize int
}

// Runtime is a validated config translated into component configs.
type Runtime struct {
	Setup prayer.Setup

	Solver    SolverOptions
	Storage   storage.Config
	Notifier  notifier.Config
	Logging   logx.Config
	Scheduler scheduler.Config
	Telegram  telegram.Config
	Target    transport.ChatTarget
	API       api.Config

	Refresh      string
	RestoreGrace time.Duration
}

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	_, err := Resolve(cfg)
	return err
}

// Resolve applies defaults and converts cfg. All errors are joined.
func Resolve(cfg *Config) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	rt := &Runtime{}

	setup, err := cfg.setup()
	add(err)
	rt.Setup = setup

	rt.Solver, err = resolveSolver(cfg.Solver)
	add(err)

	rt.Storage, err = resolveStorage(cfg.Storage)
	add(err)

	rt.Notifier, err = resolveNotifier(cfg.Notifier)
	add(err)

	rt.Logging = logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	if rt.Logging.File.Enabled && strings.TrimSpace(rt.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	rt.Telegram, rt.Target, err = resolveTelegram(cfg.Telegram)
	add(err)
	if rt.Logging.Chat.Enabled && rt.Telegram.Log.IsZero() {
		add(errors.New("logging.telegram: needs telegram.log_chat_id or telegram.chat_id"))
	}

	tz := strings.TrimSpace(cfg.Scheduler.Timezone)
	if tz == "" {
		tz = strings.TrimSpace(cfg.Location.Timezone)
	}
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	rt.Scheduler.Timezone = tz
	rt.Scheduler.DefaultTimeout, err = ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	add(err)
	rt.RestoreGrace, err = ParseDurationOrDefault("scheduler.restore_grace", cfg.Scheduler.RestoreGrace, DefaultRestoreGrace)
	add(err)
	rt.Refresh = strings.TrimSpace(cfg.Scheduler.Refresh)
	if rt.Refresh == "" {
		rt.Refresh = DefaultRefresh
	}
	if ps, err := scheduler.ParseSchedule(rt.Refresh); err != nil {
		add(fmt.Errorf("scheduler.refresh: %w", err))
	} else if err := ps.Validate(); err != nil {
		add(fmt.Errorf("scheduler.refresh: %w", err))
	}

	rt.API = api.Config{
		Enabled:       cfg.API.Enabled,
		Addr:          strings.TrimSpace(cfg.API.Addr),
		Token:         strings.TrimSpace(cfg.API.Token),
		AllowInsecure: cfg.API.AllowInsecure,
		Pprof:         cfg.API.Pprof,
	}
	if rt.API.Addr == "" {
		rt.API.Addr = DefaultAPIAddr
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return rt, nil
}

// setup maps the location and calculation sections. A missing coordinate
// is not an error: the daemon runs unconfigured until one is provided.
func (c *Config) setup() (prayer.Setup, error) {
	settings, err := c.Calculation.settings()
	loc := c.Location
	if loc.UseDeviceLocation {
		return prayer.Unconfigured{Reason: "device location is not available"}, err
	}
	if loc.Latitude == nil || loc.Longitude == nil {
		return prayer.Unconfigured{Reason: "no location"}, err
	}
	var errs []error
	if err != nil {
		errs = append(errs, err)
	}
	lat, lon := *loc.Latitude, *loc.Longitude
	if lat < -90 || lat > 90 {
		errs = append(errs, fmt.Errorf("location.latitude: %v outside [-90,90]", lat))
	}
	if lon < -180 || lon > 180 {
		errs = append(errs, fmt.Errorf("location.longitude: %v outside [-180,180]", lon))
	}
	tz := time.UTC
	if name := strings.TrimSpace(loc.Timezone); name != "" {
		l, err := time.LoadLocation(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("location.timezone: %w", err))
		} else {
			tz = l
		}
	}
	if len(errs) > 0 {
		return prayer.Unconfigured{Reason: "invalid location"}, errors.Join(errs...)
	}
	return prayer.Configured{
		Position: prayer.Position{Latitude: lat, Longitude: lon, Name: strings.TrimSpace(loc.Name), Location: tz},
		Settings: settings,
	}, nil
}

func (c CalculationConfig) settings() (prayer.Settings, error) {
	s := prayer.DefaultSettings()
	var errs []error
	if m := strings.TrimSpace(c.Method); m != "" {
		s.Method = prayer.Method(strings.ToLower(m))
	}
	if m := strings.TrimSpace(c.Madhab); m != "" {
		s.Madhab = prayer.Madhab(strings.ToLower(m))
	}
	for name, v := range c.Adjustments {
		k, err := prayer.ParseKind(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("calculation.adjustments: %w", err))
			continue
		}
		s.Adjustments[k] = v
	}
	for name, on := range c.Notify {
		k, err := prayer.ParseKind(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("calculation.notify: %w", err))
			continue
		}
		if k.Informational() {
			errs = append(errs, fmt.Errorf("calculation.notify.%s: informational kinds have no alerts", k))
			continue
		}
		s.Notify[k] = on
	}
	s.ShowImsak = c.ShowImsak
	if c.ShowSunrise != nil {
		s.ShowSunrise = *c.ShowSunrise
	}
	s.HijriAdjustment = c.HijriAdjustment
	if r := c.WeeklyReminder; r != nil {
		s.Weekly = overlayReminder(s.Weekly, r)
	}
	if r := c.FastingReminder; r != nil {
		s.Fasting = overlayReminder(s.Fasting, r)
	}
	if err := s.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("calculation: %w", err))
	}
	return s, errors.Join(errs...)
}

func resolveSolver(c SolverConfig) (SolverOptions, error) {
	out := SolverOptions{Driver: strings.ToLower(strings.TrimSpace(c.Driver)), CacheSize: c.CacheSize}
	if out.Driver == "" {
		out.Driver = SolverTimetable
	}
	var err error
	out.Refresh, err = ParseDurationOrDefault("solver.refresh", c.Refresh, 12*time.Hour)
	if err != nil {
		return out, err
	}
	switch out.Driver {
	case SolverTimetable:
		out.Source = strings.TrimSpace(c.Path)
		if out.Source == "" {
			return out, errors.New("solver.path: required for the timetable driver")
		}
	case SolverICS:
		out.Source = strings.TrimSpace(c.URL)
		if out.Source == "" {
			out.Source = strings.TrimSpace(c.Path)
		}
		if out.Source == "" {
			return out, errors.New("solver: ics driver needs url or path")
		}
	default:
		return out, fmt.Errorf("solver.driver: unknown %q", c.Driver)
	}
	return out, nil
}

func resolveStorage(c *StorageConfig) (storage.Config, error) {
	if c == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	out := storage.Config{Driver: strings.ToLower(strings.TrimSpace(c.Driver)), Path: strings.TrimSpace(c.Path)}
	var err error
	out.BusyTimeout, err = ParseDurationField("storage.busy_timeout", c.BusyTimeout)
	if err != nil {
		return out, err
	}
	switch out.Driver {
	case "", "memory":
		out.Driver = "memory"
	case "none":
	case "file", "sqlite":
		if out.Path == "" {
			return out, fmt.Errorf("storage.path: required for the %s driver", out.Driver)
		}
	default:
		return out, fmt.Errorf("storage.driver: unknown %q", c.Driver)
	}
	return out, nil
}

func resolveNotifier(c *NotifierConfig) (notifier.Config, error) {
	out := notifier.Config{Enabled: true}
	if c == nil {
		return out, nil
	}
	if c.Enabled != nil {
		out.Enabled = *c.Enabled
	}
	out.Workers = c.Workers
	out.QueueSize = c.QueueSize
	out.RatePerSec = c.RatePerSec
	out.RetryMax = c.RetryMax
	if c.Workers < 0 || c.QueueSize < 0 || c.RatePerSec < 0 || c.RetryMax < 0 {
		return out, errors.New("notifier: counts must be >= 0")
	}
	var errs []error
	var err error
	if out.RetryBase, err = ParseDurationField("notifier.retry_base", c.RetryBase); err != nil {
		errs = append(errs, err)
	}
	if out.RetryMaxDelay, err = ParseDurationField("notifier.retry_max_delay", c.RetryMaxDelay); err != nil {
		errs = append(errs, err)
	}
	if out.SendTimeout, err = ParseDurationField("notifier.send_timeout", c.SendTimeout); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

func resolveTelegram(c TelegramConfig) (telegram.Config, transport.ChatTarget, error) {
	out := telegram.Config{Token: strings.TrimSpace(c.Token)}
	target := transport.ChatTarget{ChatID: c.ChatID, ThreadID: c.ThreadID}
	out.Log = transport.ChatTarget{ChatID: c.LogChatID, ThreadID: c.LogThreadID}
	if out.Log.ChatID == 0 {
		out.Log = target
	}
	var err error
	out.Timeout, err = ParseDurationOrDefault("telegram.timeout", c.Timeout, 30*time.Second)
	if err != nil {
		return out, target, err
	}
	if out.Token != "" && target.ChatID == 0 {
		return out, target, errors.New("telegram.chat_id: required when a token is set")
	}
	return out, target, nil
}

// overlayReminder keeps the default lead time when minutes_before is omitted.
func overlayReminder(def prayer.Reminder, r *ReminderConfig) prayer.Reminder {
	out := prayer.Reminder{Enabled: r.Enabled, MinutesBefore: r.MinutesBefore}
	if out.MinutesBefore == 0 {
		out.MinutesBefore = def.MinutesBefore
	}
	return out
}
