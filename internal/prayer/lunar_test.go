package prayer

import (
	"testing"
	"time"
)

func TestToHijri(t *testing.T) {
	t.Parallel()

	cases := []struct {
		greg string
		want HijriDate
	}{
		{"2024-01-01", HijriDate{1445, 6, 19}},
		{"2024-03-11", HijriDate{1445, 9, 1}},
		{"2025-02-28", HijriDate{1446, 8, 29}},
		{"2025-03-01", HijriDate{1446, 9, 1}},
		{"2025-03-30", HijriDate{1446, 9, 30}},
		{"2025-03-31", HijriDate{1446, 10, 1}},
		{"2025-06-26", HijriDate{1446, 12, 29}},
		{"2025-06-27", HijriDate{1447, 1, 1}},
		{"2026-02-18", HijriDate{1447, 9, 1}},
		{"2026-03-19", HijriDate{1447, 9, 30}},
		{"2026-03-20", HijriDate{1447, 10, 1}},
	}
	for _, tc := range cases {
		if got := ToHijri(mustDate(tc.greg)); got != tc.want {
			t.Fatalf("ToHijri(%s) = %s, want %s", tc.greg, got, tc.want)
		}
	}
}

func TestHijriMonthLength(t *testing.T) {
	t.Parallel()

	if got := HijriMonthLength(1447, 9); got != 30 {
		t.Fatalf("month 9 = %d", got)
	}
	if got := HijriMonthLength(1447, 8); got != 29 {
		t.Fatalf("month 8 = %d", got)
	}
	// 1445 is a leap year in the 30-year cycle, 1446 is not.
	if !HijriLeap(1445) || HijriLeap(1446) {
		t.Fatalf("leap cycle mismatch")
	}
	if got := HijriMonthLength(1445, 12); got != 30 {
		t.Fatalf("leap month 12 = %d", got)
	}
	if got := HijriMonthLength(1446, 12); got != 29 {
		t.Fatalf("common month 12 = %d", got)
	}
}

func TestDetectLunarBoundaryAndOffset(t *testing.T) {
	t.Parallel()

	eve := mustDate("2026-02-17") // 1447-08-30 by day
	cases := []struct {
		name   string
		date   Date
		now    func(Day) time.Time
		offset int
		active bool
		day    int
	}{
		{name: "afternoon before first night", date: eve, now: func(d Day) time.Time { return d.At(Asr) }, active: false},
		{name: "first night starts at maghrib", date: eve, now: func(d Day) time.Time { return d.At(Maghrib) }, active: true, day: 1},
		{name: "first day", date: mustDate("2026-02-18"), now: func(d Day) time.Time { return d.At(Dhuhr) }, active: true, day: 1},
		{name: "offset pulls month earlier", date: eve, now: func(d Day) time.Time { return d.At(Dhuhr) }, offset: 1, active: true, day: 1},
		{name: "offset pushes month later", date: mustDate("2026-02-18"), now: func(d Day) time.Time { return d.At(Dhuhr) }, offset: -1, active: false},
		{name: "last day", date: mustDate("2026-03-19"), now: func(d Day) time.Time { return d.At(Dhuhr) }, active: true, day: 30},
		{name: "night after last day", date: mustDate("2026-03-19"), now: func(d Day) time.Time { return d.At(Isha) }, active: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			day := dayFor(t, tc.date)
			got := DetectLunar(day, tc.now(day), tc.offset)
			if got.Active() != tc.active {
				t.Fatalf("active = %v, want %v (hijri %s)", got.Active(), tc.active, got.Date)
			}
			if !tc.active {
				return
			}
			if got.Fasting.DayIndex != tc.day {
				t.Fatalf("day index = %d, want %d", got.Fasting.DayIndex, tc.day)
			}
			if got.Fasting.DaysInMonth != 30 {
				t.Fatalf("days in month = %d", got.Fasting.DaysInMonth)
			}
			if !got.Fasting.WindowStart.Equal(day.At(Fajr)) || !got.Fasting.WindowEnd.Equal(day.At(Maghrib)) {
				t.Fatalf("window = %s..%s", got.Fasting.WindowStart, got.Fasting.WindowEnd)
			}
			if got.Fasting.WindowDuration != 13*time.Hour {
				t.Fatalf("window duration = %s", got.Fasting.WindowDuration)
			}
		})
	}
}

func TestIsFastingDayIncludesFirstDay(t *testing.T) {
	t.Parallel()

	if IsFastingDay(mustDate("2026-02-17"), 0) {
		t.Fatalf("2026-02-17 is the last day of shaban")
	}
	if !IsFastingDay(mustDate("2026-02-18"), 0) {
		t.Fatalf("2026-02-18 is the first fasting day")
	}
	if !IsFastingDay(mustDate("2026-03-20"), -1) {
		t.Fatalf("a negative offset extends the month by a day")
	}
}
