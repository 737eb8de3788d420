package models

import "time"

// Lab is a teaching laboratory. Its capacity applies to every session held in it.
type Lab struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LabFilter narrows lab listings.
type LabFilter struct {
	Search   string
	Page     int
	PageSize int
}

// ClassRoster records how many students a class has; used to derive enrolment from class names.
type ClassRoster struct {
	Name string `db:"name" json:"name"`
	Size int    `db:"size" json:"size"`
}
