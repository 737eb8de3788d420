package models

// WarningKind classifies non-fatal notices returned alongside a successful result.
type WarningKind string

const (
	WarningClamp          WarningKind = "CLAMP"
	WarningPartialFailure WarningKind = "PARTIAL_FAILURE"
	WarningStaleCell      WarningKind = "STALE_CELL"
)

// Warning is surfaced to the user but never changes control flow.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Message   string      `json:"message"`
	Weekday   int         `json:"weekday,omitempty"`
	Period    int         `json:"period,omitempty"`
	SessionID int64       `json:"session_id,omitempty"`
	Operation string      `json:"operation,omitempty"`
}
