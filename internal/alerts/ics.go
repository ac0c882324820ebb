package alerts

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"
)

// WriteICS renders entries as an iCalendar feed. Each alert becomes a one
// minute VEVENT whose UID is the alert id.
func WriteICS(w io.Writer, entries []Entry, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//adhanbot//alerts//EN")
	cal.SetName("adhanbot alerts")
	for _, e := range entries {
		ev := cal.AddEvent(e.Key)
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(e.At.UTC())
		ev.SetEndAt(e.At.Add(time.Minute).UTC())
		ev.SetSummary(e.Title)
		if e.Body != "" {
			ev.SetDescription(e.Body)
		}
		ev.SetProperty(ical.ComponentPropertyCategories, string(e.Category))
	}
	_, err := io.WriteString(w, cal.Serialize())
	return err
}
