package prayer

import (
	"context"
	"time"
)

var testLoc = time.FixedZone("AST", 3*60*60)

// fixedSolver returns the same wall clock times for every date except the
// ones listed in missing.
type fixedSolver struct {
	missing map[Date]bool
	calls   []Date
}

func (s *fixedSolver) Solve(_ context.Context, req Request) (RawTimes, bool) {
	s.calls = append(s.calls, req.Date)
	if s.missing[req.Date] {
		return RawTimes{}, false
	}
	return rawFor(req.Date), true
}

func rawFor(d Date) RawTimes {
	return RawTimes{
		Fajr:    d.At(testLoc, 5, 0),
		Sunrise: d.At(testLoc, 6, 20),
		Dhuhr:   d.At(testLoc, 12, 10),
		Asr:     d.At(testLoc, 15, 30),
		Maghrib: d.At(testLoc, 18, 0),
		Isha:    d.At(testLoc, 19, 30),
	}
}

func testConfigured(mut func(*Settings)) Configured {
	s := DefaultSettings()
	if mut != nil {
		mut(&s)
	}
	return Configured{
		Position: Position{Latitude: 21.42, Longitude: 39.83, Name: "Makkah", Location: testLoc},
		Settings: s,
	}
}

func at(d Date, h, m int) time.Time { return d.At(testLoc, h, m) }

func mustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
