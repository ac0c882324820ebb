package prayer

import (
	"errors"
	"fmt"
	"time"
)

// Reminder configures one of the sub-alerts (weekly, fasting).
type Reminder struct {
	Enabled       bool
	MinutesBefore int
}

// Settings is the calculation configuration consumed by every component.
// Per-kind tables are indexed by Kind.
type Settings struct {
	Method Method
	Madhab Madhab

	Adjustments [KindCount]int
	Notify      [KindCount]bool

	ShowImsak   bool
	ShowSunrise bool

	// HijriAdjustment shifts the lunar reference date by whole days to follow
	// local moon sighting.
	HijriAdjustment int

	Weekly  Reminder
	Fasting Reminder
}

const (
	MaxAdjustmentMinutes = 60
	MaxHijriAdjustment   = 3
)

// DefaultSettings enables alerts for the five obligatory kinds and both sub-alerts.
func DefaultSettings() Settings {
	s := Settings{
		Method:      MethodMuslimWorldLeague,
		Madhab:      MadhabShafi,
		ShowSunrise: true,
		Weekly:      Reminder{Enabled: true, MinutesBefore: 30},
		Fasting:     Reminder{Enabled: true, MinutesBefore: 30},
	}
	for _, k := range Obligatory() {
		s.Notify[k] = true
	}
	return s
}

// Visible reports whether k appears in the display list.
func (s Settings) Visible(k Kind) bool {
	switch k {
	case Imsak:
		return s.ShowImsak
	case Sunrise:
		return s.ShowSunrise
	default:
		return true
	}
}

// NotifyEnabled is false for informational kinds regardless of the table.
func (s Settings) NotifyEnabled(k Kind) bool {
	if !k.Valid() || k.Informational() {
		return false
	}
	return s.Notify[k]
}

func (s Settings) Adjustment(k Kind) time.Duration {
	if !k.Valid() {
		return 0
	}
	return time.Duration(s.Adjustments[k]) * time.Minute
}

// Validate enforces the ranges the preference surface allows.
func (s Settings) Validate() error {
	var errs []error
	if !s.Method.Valid() {
		errs = append(errs, fmt.Errorf("method: unknown %q", s.Method))
	}
	if !s.Madhab.Valid() {
		errs = append(errs, fmt.Errorf("madhab: unknown %q", s.Madhab))
	}
	for _, k := range Kinds() {
		if a := s.Adjustments[k]; a < -MaxAdjustmentMinutes || a > MaxAdjustmentMinutes {
			errs = append(errs, fmt.Errorf("adjustments.%s: %d outside [-%d,%d]", k, a, MaxAdjustmentMinutes, MaxAdjustmentMinutes))
		}
	}
	if s.HijriAdjustment < -MaxHijriAdjustment || s.HijriAdjustment > MaxHijriAdjustment {
		errs = append(errs, fmt.Errorf("hijri_adjustment: %d outside [-%d,%d]", s.HijriAdjustment, MaxHijriAdjustment, MaxHijriAdjustment))
	}
	if s.Weekly.Enabled {
		if err := checkStep("weekly_reminder.minutes_before", s.Weekly.MinutesBefore, 15, 120, 15); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Fasting.Enabled {
		if err := checkStep("fasting_reminder.minutes_before", s.Fasting.MinutesBefore, 10, 90, 5); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkStep(path string, v, lo, hi, step int) error {
	if v < lo || v > hi || (v-lo)%step != 0 {
		return fmt.Errorf("%s: %d must be in [%d,%d] in steps of %d", path, v, lo, hi, step)
	}
	return nil
}

// Position is where the schedule is computed. Location defines the civil day.
type Position struct {
	Latitude  float64
	Longitude float64
	Name      string
	Location  *time.Location
}

func (p Position) Loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Setup is either Unconfigured or Configured. Compute paths switch on it
// instead of checking for missing fields.
type Setup interface {
	isSetup()
}

// Unconfigured means no usable position is known.
type Unconfigured struct {
	Reason string
}

// Configured carries everything needed to compute a schedule.
type Configured struct {
	Position Position
	Settings Settings
}

func (Unconfigured) isSetup() {}
func (Configured) isSetup()   {}

// Today returns the civil date of now at the configured position.
func (c Configured) Today(now time.Time) Date {
	return DateOf(now.In(c.Position.Loc()))
}
