package prayer

import "time"

// FastingMonth is the Hijri month whose days are fasted.
const FastingMonth = 9

// FastingInfo is present only while the fasting month is active.
type FastingInfo struct {
	DayIndex       int           `json:"day_index"`
	DaysInMonth    int           `json:"days_in_month"`
	WindowStart    time.Time     `json:"window_start"`
	WindowEnd      time.Time     `json:"window_end"`
	WindowDuration time.Duration `json:"window_duration"`
}

// Lunar is the detector output.
type Lunar struct {
	Date    HijriDate    `json:"date"`
	Fasting *FastingInfo `json:"fasting,omitempty"`
}

func (l Lunar) Active() bool { return l.Fasting != nil }

// LunarReference returns the civil date whose Hijri conversion names the lunar
// day in effect at now. The lunar day starts at maghrib, so from today's maghrib
// on the reference moves to tomorrow. The sighting offset is applied after.
func LunarReference(today Day, now time.Time, offset int) Date {
	ref := today.Date
	if m := today.At(Maghrib); !m.IsZero() && !now.Before(m) {
		ref = ref.AddDays(1)
	}
	return ref.AddDays(offset)
}

// DetectLunar maps now to a Hijri date and reports the fasting window when the
// result falls in FastingMonth. The window is today's fajr to today's maghrib.
func DetectLunar(today Day, now time.Time, offset int) Lunar {
	h := ToHijri(LunarReference(today, now, offset))
	out := Lunar{Date: h}
	if h.Month != FastingMonth {
		return out
	}
	start, end := today.At(Fajr), today.At(Maghrib)
	out.Fasting = &FastingInfo{
		DayIndex:       h.Day,
		DaysInMonth:    HijriMonthLength(h.Year, h.Month),
		WindowStart:    start,
		WindowEnd:      end,
		WindowDuration: end.Sub(start),
	}
	return out
}

// IsFastingDay reports whether the daytime of d belongs to the fasting month.
// This is the detector's rule evaluated during d's pre-dawn hours: the previous
// evening's maghrib has already advanced the reference to d.
func IsFastingDay(d Date, offset int) bool {
	return ToHijri(d.AddDays(offset)).Month == FastingMonth
}
