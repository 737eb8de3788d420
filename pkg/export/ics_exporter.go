package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// CalendarEvent is one timed entry of a calendar feed.
type CalendarEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
}

// Calendar is the content of an iCalendar export.
type Calendar struct {
	Name   string
	Stamp  time.Time
	Events []CalendarEvent
}

// ICSExporter renders calendars as RFC 5545 documents.
type ICSExporter struct {
	ProductID string
}

// NewICSExporter constructs an iCalendar exporter.
func NewICSExporter() *ICSExporter {
	return &ICSExporter{ProductID: "-//lab-timetable-api//week export//EN"}
}

// Render serialises the calendar. Events without a UID or with an end before
// their start are rejected.
func (e *ICSExporter) Render(data Calendar) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.ProductID)
	if data.Name != "" {
		cal.SetXWRCalName(data.Name)
	}
	stamp := data.Stamp
	if stamp.IsZero() {
		stamp = time.Now()
	}
	for _, ev := range data.Events {
		if ev.UID == "" {
			return nil, fmt.Errorf("ics event %q has no uid", ev.Summary)
		}
		if ev.End.Before(ev.Start) {
			return nil, fmt.Errorf("ics event %s ends before it starts", ev.UID)
		}
		event := cal.AddEvent(ev.UID)
		event.SetDtStampTime(stamp)
		event.SetStartAt(ev.Start)
		event.SetEndAt(ev.End)
		event.SetSummary(ev.Summary)
		if ev.Description != "" {
			event.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			event.SetLocation(ev.Location)
		}
	}
	return []byte(cal.Serialize()), nil
}
