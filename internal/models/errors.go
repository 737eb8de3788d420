package models

import "fmt"

// SessionConflictError is returned when a placement overlaps a different session.
type SessionConflictError struct {
	Weekday     int      `json:"weekday"`
	StartPeriod int      `json:"start_period"`
	Duration    int      `json:"duration"`
	Conflict    *Session `json:"conflict"`
}

// Error implements the error interface.
func (e *SessionConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Conflict == nil {
		return fmt.Sprintf("weekday %d periods %d-%d already occupied", e.Weekday, e.StartPeriod, e.StartPeriod+e.Duration-1)
	}
	return fmt.Sprintf("weekday %d periods %d-%d overlap %q (periods %d-%d)",
		e.Weekday, e.StartPeriod, e.StartPeriod+e.Duration-1,
		e.Conflict.Course, e.Conflict.StartPeriod, e.Conflict.EndPeriod())
}

// MoveInconsistencyError reports a move whose deletes went through but whose create failed.
// Snapshot holds everything needed to re-create the session by hand.
type MoveInconsistencyError struct {
	LabID        int64       `json:"lab_id"`
	FromWeekday  int         `json:"from_weekday"`
	FromPeriod   int         `json:"from_period"`
	ToWeekday    int         `json:"to_weekday"`
	ToPeriod     int         `json:"to_period"`
	Snapshot     DesiredEdit `json:"snapshot"`
	CreateFailed string      `json:"create_error"`
}

// Error implements the error interface.
func (e *MoveInconsistencyError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("session %q removed from weekday %d period %d but not created at weekday %d period %d: %s",
		e.Snapshot.Course, e.FromWeekday, e.FromPeriod, e.ToWeekday, e.ToPeriod, e.CreateFailed)
}

// DryRunValidationError carries the per-row errors that refused a batch commit.
type DryRunValidationError struct {
	Result DryRunResult `json:"result"`
}

// Error implements the error interface.
func (e *DryRunValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("dry run rejected %d of %d rows", e.Result.Failed, e.Result.Success+e.Result.Failed)
}
