package timetable

import (
	"time"

	"github.com/noah-isme/lab-timetable-api/internal/models"
)

var testMonday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// weekOf expands head sessions into stored fragments the way the store does.
// Continuation fragment ids are head id * 100 + offset.
func weekOf(heads ...models.Session) models.WeekView {
	week := models.WeekView{LabID: 1, Monday: testMonday}
	for w := 1; w <= DaysPerWeek; w++ {
		day := models.DaySlots{Date: DateFor(testMonday, w), Weekday: w}
		for p := 1; p <= PeriodsPerDay; p++ {
			day.Slots = append(day.Slots, models.Slot{Period: p})
		}
		week.Days = append(week.Days, day)
	}
	for _, h := range heads {
		for i := 0; i < h.Duration && h.StartPeriod+i <= PeriodsPerDay; i++ {
			frag := h
			frag.Period = h.StartPeriod + i
			if i > 0 {
				frag.ID = h.ID*100 + int64(i)
			}
			f := frag
			week.Days[h.Weekday-1].Slots[frag.Period-1].Session = &f
		}
	}
	return week
}

func session(id int64, weekday, start, duration int, course string) models.Session {
	return models.Session{
		ID:          id,
		LabID:       1,
		Date:        DateFor(testMonday, weekday),
		Weekday:     weekday,
		Period:      start,
		StartPeriod: start,
		Duration:    duration,
		Course:      course,
		Teacher:     "Li",
	}
}
