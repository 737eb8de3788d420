package models

import "time"

// WeekView is the store's answer to a week fetch: 7 days of 8 slots each.
type WeekView struct {
	LabID  int64      `json:"lab_id"`
	Monday time.Time  `json:"monday"`
	Days   []DaySlots `json:"days"`
}

// DaySlots lists the period slots of a single day.
type DaySlots struct {
	Date    time.Time `json:"date"`
	Weekday int       `json:"weekday"`
	Slots   []Slot    `json:"slots"`
}

// Slot is one (day, period) position. Session is nil when the period is free.
type Slot struct {
	Period  int      `json:"period"`
	Session *Session `json:"session"`
}
