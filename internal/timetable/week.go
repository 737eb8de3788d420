package timetable

import "time"

// DaysPerWeek is the number of weekdays in a grid, Monday = 1 through Sunday = 7.
const DaysPerWeek = 7

// WeekdayOf maps a date onto 1..7 with Monday = 1.
func WeekdayOf(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// MondayOf truncates date to the Monday that starts its week, at midnight.
func MondayOf(date time.Time) time.Time {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return day.AddDate(0, 0, 1-WeekdayOf(day))
}

// DateFor returns the calendar day of weekday within the week starting at monday.
func DateFor(monday time.Time, weekday int) time.Time {
	return MondayOf(monday).AddDate(0, 0, weekday-1)
}

// ValidWeekday reports whether weekday lies in 1..7.
func ValidWeekday(weekday int) bool {
	return weekday >= 1 && weekday <= DaysPerWeek
}

// ValidPeriod reports whether period lies in 1..8.
func ValidPeriod(period int) bool {
	return period >= 1 && period <= PeriodsPerDay
}
