// Package timetable holds the pure weekly timetable model: the period calendar,
// the week occupancy grid, placement policy and the reconcile state reducer.
// Nothing in this package performs I/O.
package timetable

import (
	"fmt"
	"time"
)

// PeriodsPerDay is the fixed number of teaching periods in a day.
const PeriodsPerDay = 8

// ClockTime is a wall-clock time of day in minutes after midnight.
type ClockTime int

// Clock builds a ClockTime from hours and minutes.
func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// String renders HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText encodes the clock as HH:MM.
func (c ClockTime) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes HH:MM.
func (c *ClockTime) UnmarshalText(text []byte) error {
	var hour, minute int
	if _, err := fmt.Sscanf(string(text), "%d:%d", &hour, &minute); err != nil {
		return fmt.Errorf("invalid clock time %q: %w", text, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid clock time %q", text)
	}
	*c = Clock(hour, minute)
	return nil
}

// On anchors the clock time onto the calendar day of date.
func (c ClockTime) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, date.Location())
}

// Period is one teaching period with its clock window.
type Period struct {
	Index int       `json:"index"`
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

var (
	morningPeriods = [4]Period{
		{Index: 1, Start: Clock(8, 0), End: Clock(8, 45)},
		{Index: 2, Start: Clock(8, 55), End: Clock(9, 40)},
		{Index: 3, Start: Clock(10, 0), End: Clock(10, 45)},
		{Index: 4, Start: Clock(10, 55), End: Clock(11, 40)},
	}
	summerAfternoon = [4]Period{
		{Index: 5, Start: Clock(14, 0), End: Clock(14, 45)},
		{Index: 6, Start: Clock(14, 55), End: Clock(15, 40)},
		{Index: 7, Start: Clock(16, 0), End: Clock(16, 45)},
		{Index: 8, Start: Clock(16, 55), End: Clock(17, 40)},
	}
	winterAfternoon = [4]Period{
		{Index: 5, Start: Clock(14, 30), End: Clock(15, 15)},
		{Index: 6, Start: Clock(15, 25), End: Clock(16, 10)},
		{Index: 7, Start: Clock(16, 30), End: Clock(17, 15)},
		{Index: 8, Start: Clock(17, 25), End: Clock(18, 10)},
	}
)

// IsSummer reports whether date falls within May 1 – Oct 7 (inclusive) of its own year.
func IsSummer(date time.Time) bool {
	m, d := date.Month(), date.Day()
	switch {
	case m < time.May:
		return false
	case m > time.October:
		return false
	case m == time.October:
		return d <= 7
	default:
		return true
	}
}

// PeriodsFor returns the eight periods of date, ordered by index.
func PeriodsFor(date time.Time) []Period {
	out := make([]Period, 0, PeriodsPerDay)
	out = append(out, morningPeriods[:]...)
	if IsSummer(date) {
		out = append(out, summerAfternoon[:]...)
	} else {
		out = append(out, winterAfternoon[:]...)
	}
	return out
}

// PeriodRange returns the clock window covered by duration periods starting at start.
// The range is clamped to the day.
func PeriodRange(date time.Time, start, duration int) (time.Time, time.Time, error) {
	if start < 1 || start > PeriodsPerDay {
		return time.Time{}, time.Time{}, fmt.Errorf("period %d out of range", start)
	}
	if duration < 1 {
		return time.Time{}, time.Time{}, fmt.Errorf("duration %d must be positive", duration)
	}
	duration, _ = Clamp(start, duration)
	periods := PeriodsFor(date)
	first := periods[start-1]
	last := periods[start+duration-2]
	return first.Start.On(date), last.End.On(date), nil
}

// SessionStatus classifies a session relative to now.
type SessionStatus string

const (
	StatusUpcoming SessionStatus = "upcoming"
	StatusOngoing  SessionStatus = "ongoing"
	StatusFinished SessionStatus = "finished"
)

// StatusAt derives the session status from its clock window. now is converted to date's location.
func StatusAt(now, date time.Time, start, duration int) SessionStatus {
	from, to, err := PeriodRange(date, start, duration)
	if err != nil {
		return StatusUpcoming
	}
	now = now.In(date.Location())
	switch {
	case now.Before(from):
		return StatusUpcoming
	case now.After(to):
		return StatusFinished
	default:
		return StatusOngoing
	}
}
