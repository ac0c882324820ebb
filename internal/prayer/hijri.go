package prayer

import "fmt"

// HijriDate is a date in the tabular Islamic calendar.
type HijriDate struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// hijriEpoch is the Julian day number of 1 Muharram 1 AH (civil epoch).
const hijriEpoch = 1948440

var hijriMonthNames = [12]string{
	"Muharram", "Safar", "Rabi al-Awwal", "Rabi al-Thani", "Jumada al-Ula", "Jumada al-Akhirah",
	"Rajab", "Shaban", "Ramadan", "Shawwal", "Dhu al-Qadah", "Dhu al-Hijjah",
}

func (h HijriDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", h.Year, h.Month, h.Day)
}

// MonthName returns the transliterated month name.
func (h HijriDate) MonthName() string {
	if h.Month < 1 || h.Month > 12 {
		return fmt.Sprintf("month(%d)", h.Month)
	}
	return hijriMonthNames[h.Month-1]
}

// ToHijri converts a civil date with the 30-year tabular cycle.
func ToHijri(d Date) HijriDate {
	j := gregorianJDN(d)
	year := (30*(j-hijriEpoch) + 10646) / 10631
	x := j - (29 + hijriJDN(year, 1, 1))
	month := ceilDiv(2*x, 59) + 1
	if month < 1 {
		month = 1
	}
	if month > 12 {
		month = 12
	}
	day := j - hijriJDN(year, month, 1) + 1
	return HijriDate{Year: year, Month: month, Day: day}
}

// HijriLeap reports whether year has 355 days.
func HijriLeap(year int) bool {
	return mod(14+11*year, 30) < 11
}

// HijriMonthLength is 30 for odd months, 29 for even ones, and 30 for the last
// month of a leap year.
func HijriMonthLength(year, month int) int {
	if month%2 == 1 {
		return 30
	}
	if month == 12 && HijriLeap(year) {
		return 30
	}
	return 29
}

func gregorianJDN(d Date) int {
	a := (14 - int(d.Month)) / 12
	y := d.Year + 4800 - a
	m := int(d.Month) + 12*a - 3
	return d.Day + (153*m+2)/5 + 365*y + y/4 - y/100 + y/400 - 32045
}

func hijriJDN(year, month, day int) int {
	return day + (59*(month-1)+1)/2 + (year-1)*354 + (3+11*year)/30 + hijriEpoch - 1
}

func ceilDiv(a, b int) int {
	if a >= 0 {
		return (a + b - 1) / b
	}
	return a / b
}

func mod(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
