package timetable

import (
	"fmt"

	"github.com/noah-isme/lab-timetable-api/internal/models"
)

// Phase is the lifecycle position of one edit.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseEvaluating Phase = "evaluating"
	PhaseCreating   Phase = "creating"
	PhaseUpdating   Phase = "updating"
	PhaseMoving     Phase = "moving"
	PhaseDeleting   Phase = "deleting"
	PhaseSettled    Phase = "settled"
	PhaseFailed     Phase = "failed"
)

// Operation names what a reconcile decided to do.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpMove   Operation = "move"
	OpDelete Operation = "delete"
)

// StoreCall is one executed store operation.
type StoreCall struct {
	Kind      string `json:"kind"`
	Weekday   int    `json:"weekday"`
	Period    int    `json:"period"`
	SessionID int64  `json:"session_id,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// State is the reconcile state machine. Values are never mutated in place;
// Reduce always returns a fresh State.
type State struct {
	Phase     Phase            `json:"phase"`
	Operation Operation        `json:"operation,omitempty"`
	Grid      *Grid            `json:"-"`
	Warnings  []models.Warning `json:"warnings,omitempty"`
	Calls     []StoreCall      `json:"calls,omitempty"`
	Err       error            `json:"-"`
	Rejected  []string         `json:"rejected,omitempty"`
}

// NewState starts an idle edit over g.
func NewState(g *Grid) State {
	return State{Phase: PhaseIdle, Grid: g}
}

// Terminal reports whether the edit has finished.
func (s State) Terminal() bool {
	return s.Phase == PhaseSettled || s.Phase == PhaseFailed
}

// Event drives the reducer.
type Event interface {
	isEvent()
}

// EditSubmitted starts evaluation of a user edit.
type EditSubmitted struct{}

// OperationChosen moves from evaluation into the phase executing op.
type OperationChosen struct {
	Operation Operation
}

// WarningRaised records a non-fatal notice.
type WarningRaised struct {
	Warning models.Warning
}

// CallCompleted records the outcome of one store call.
type CallCompleted struct {
	Call StoreCall
}

// WeekLoaded replaces the grid with a freshly fetched projection.
type WeekLoaded struct {
	Grid *Grid
}

// EditSettled finishes the edit successfully, warnings notwithstanding.
type EditSettled struct{}

// EditFailed finishes the edit with a hard error.
type EditFailed struct {
	Err error
}

func (EditSubmitted) isEvent()   {}
func (OperationChosen) isEvent() {}
func (WarningRaised) isEvent()   {}
func (CallCompleted) isEvent()   {}
func (WeekLoaded) isEvent()      {}
func (EditSettled) isEvent()     {}
func (EditFailed) isEvent()      {}

var executing = map[Phase]bool{
	PhaseCreating: true,
	PhaseUpdating: true,
	PhaseMoving:   true,
	PhaseDeleting: true,
}

var phaseFor = map[Operation]Phase{
	OpCreate: PhaseCreating,
	OpUpdate: PhaseUpdating,
	OpMove:   PhaseMoving,
	OpDelete: PhaseDeleting,
}

// Reduce applies ev to s. Events that are illegal in the current phase leave
// the phase untouched and are noted in Rejected.
func Reduce(s State, ev Event) State {
	next := s
	reject := func() State {
		next.Rejected = appendCopy(s.Rejected, fmt.Sprintf("%T in %s", ev, s.Phase))
		return next
	}

	switch e := ev.(type) {
	case EditSubmitted:
		if s.Phase != PhaseIdle {
			return reject()
		}
		next.Phase = PhaseEvaluating
	case OperationChosen:
		phase, ok := phaseFor[e.Operation]
		if s.Phase != PhaseEvaluating || !ok {
			return reject()
		}
		next.Phase = phase
		next.Operation = e.Operation
	case WarningRaised:
		if s.Terminal() {
			return reject()
		}
		next.Warnings = appendCopy(s.Warnings, e.Warning)
	case CallCompleted:
		if !executing[s.Phase] {
			return reject()
		}
		next.Calls = appendCopy(s.Calls, e.Call)
	case WeekLoaded:
		if s.Terminal() {
			return reject()
		}
		next.Grid = e.Grid
	case EditSettled:
		if !executing[s.Phase] {
			return reject()
		}
		next.Phase = PhaseSettled
	case EditFailed:
		if s.Terminal() {
			return reject()
		}
		next.Phase = PhaseFailed
		next.Err = e.Err
	default:
		return reject()
	}
	return next
}

func appendCopy[T any](in []T, v T) []T {
	out := make([]T, len(in), len(in)+1)
	copy(out, in)
	return append(out, v)
}
