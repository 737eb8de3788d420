package models

import (
	"strings"
	"time"
)

// Session is one persisted period fragment of a scheduled course occurrence.
// A course spanning N periods is stored as N fragments sharing StartPeriod and
// Duration; the fragment with Period == StartPeriod is the head.
type Session struct {
	ID          int64     `db:"id" json:"id"`
	LabID       int64     `db:"lab_id" json:"lab_id"`
	Date        time.Time `db:"session_date" json:"date"`
	Weekday     int       `db:"weekday" json:"weekday"`
	Period      int       `db:"period" json:"period"`
	StartPeriod int       `db:"start_period" json:"start_period"`
	Duration    int       `db:"duration" json:"duration"`
	Course      string    `db:"course" json:"course"`
	Teacher     string    `db:"teacher" json:"teacher"`
	Content     string    `db:"content" json:"content,omitempty"`
	Enrolled    int       `db:"enrolled" json:"enrolled"`
	ClassNames  string    `db:"class_names" json:"class_names,omitempty"`
	Capacity    int       `db:"capacity" json:"capacity"`
	AllowMakeup bool      `db:"-" json:"allow_makeup"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// IsHead reports whether the fragment is the first period of its session.
func (s Session) IsHead() bool {
	return s.Period == s.StartPeriod
}

// EndPeriod is the last period covered by the session.
func (s Session) EndPeriod() int {
	return s.StartPeriod + s.Duration - 1
}

// Covers reports whether period lies within the session range.
func (s Session) Covers(period int) bool {
	return period >= s.StartPeriod && period <= s.EndPeriod()
}

// Payload extracts the client-editable fields.
func (s Session) Payload() SessionPayload {
	return SessionPayload{
		Course:     s.Course,
		Teacher:    s.Teacher,
		Content:    s.Content,
		Enrolled:   s.Enrolled,
		Duration:   s.Duration,
		ClassNames: s.ClassNames,
	}
}

// Derive fills the lab-derived fields. Capacity and makeup eligibility are never client supplied.
func (s *Session) Derive(capacity int) {
	s.Capacity = capacity
	s.AllowMakeup = s.Enrolled < capacity
}

// SessionPayload is the body of create and update store calls.
type SessionPayload struct {
	Course     string `json:"course" validate:"required,max=100"`
	Teacher    string `json:"teacher" validate:"required,max=50"`
	Content    string `json:"content,omitempty" validate:"max=500"`
	Enrolled   int    `json:"enrolled" validate:"min=0"`
	Duration   int    `json:"duration" validate:"min=1,max=8"`
	ClassNames string `json:"class_names,omitempty" validate:"max=500"`
}

// DesiredEdit is what the user asked the reconciler to produce.
type DesiredEdit struct {
	Weekday     int    `json:"weekday" validate:"min=1,max=7"`
	StartPeriod int    `json:"start_period" validate:"min=1,max=8"`
	Duration    int    `json:"duration" validate:"min=1"`
	Course      string `json:"course" validate:"required,max=100"`
	Teacher     string `json:"teacher" validate:"required,max=50"`
	Content     string `json:"content,omitempty" validate:"max=500"`
	Enrolled    int    `json:"enrolled" validate:"min=0"`
	ClassNames  string `json:"class_names,omitempty" validate:"max=500"`
}

// Payload converts the edit into a store payload carrying duration.
func (d DesiredEdit) Payload() SessionPayload {
	return SessionPayload{
		Course:     d.Course,
		Teacher:    d.Teacher,
		Content:    d.Content,
		Enrolled:   d.Enrolled,
		Duration:   d.Duration,
		ClassNames: d.ClassNames,
	}
}

// SplitClassNames splits a class list on the delimiters spreadsheets tend to use.
func SplitClassNames(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', '，', '、', ';', '；', '/', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
