package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Event is a calendar entry.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// ICSExporter renders events as an iCalendar document.
type ICSExporter struct {
	ProductID string
	now       func() time.Time
}

// NewICSExporter constructs an exporter identifying itself with productID.
func NewICSExporter(productID string) *ICSExporter {
	if productID == "" {
		productID = "-//study-planner//weekly plan//EN"
	}
	return &ICSExporter{ProductID: productID, now: time.Now}
}

// Render builds a VCALENDAR with one VEVENT per event.
func (e *ICSExporter) Render(name string, events []Event) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.ProductID)
	if name != "" {
		cal.SetName(name)
	}
	stamp := e.now().UTC()
	for _, ev := range events {
		if ev.UID == "" {
			return nil, fmt.Errorf("event %q has no uid", ev.Summary)
		}
		if !ev.End.After(ev.Start) {
			return nil, fmt.Errorf("event %s ends before it starts", ev.UID)
		}
		vevent := cal.AddEvent(ev.UID)
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(ev.Start)
		vevent.SetEndAt(ev.End)
		vevent.SetSummary(ev.Summary)
		if ev.Description != "" {
			vevent.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			vevent.SetLocation(ev.Location)
		}
	}
	return []byte(cal.Serialize()), nil
}
