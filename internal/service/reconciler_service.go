package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/repository"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
)

// sessionStore is the remote store the reconciler drives. CreateSession
// receives only the head period; the store expands the trailing periods.
type sessionStore interface {
	FetchWeek(ctx context.Context, labID int64, weekAnchor time.Time) (*models.WeekView, error)
	CreateSession(ctx context.Context, labID int64, weekday, period int, payload models.SessionPayload, weekAnchor time.Time) (*models.Session, error)
	UpdateSession(ctx context.Context, labID int64, weekday, period int, payload models.SessionPayload, weekAnchor time.Time) (*models.Session, error)
	DeleteSession(ctx context.Context, labID, sessionID int64, weekAnchor time.Time) error
}

type editLocker interface {
	Acquire(ctx context.Context, labID int64, monday time.Time, ttl time.Duration) (func(), error)
}

// ReconcileRequest is one user edit against a lab week. Current addresses the
// cell the edit was opened from and is nil for a new session.
type ReconcileRequest struct {
	LabID            int64
	WeekAnchor       time.Time
	Current          *timetable.Coord
	Desired          models.DesiredEdit
	ConfirmOverwrite bool
}

// DeleteRequest removes whatever session occupies a cell.
type DeleteRequest struct {
	LabID      int64
	WeekAnchor time.Time
	Weekday    int
	Period     int
}

// ReconcileResult is the settled outcome of an edit. Week and Grid are the
// projection fetched after the last store call.
type ReconcileResult struct {
	Operation  timetable.Operation   `json:"operation"`
	Phase      timetable.Phase       `json:"phase"`
	Session    *models.Session       `json:"session,omitempty"`
	Week       *models.WeekView      `json:"week,omitempty"`
	Grid       *timetable.Grid       `json:"-"`
	Warnings   []models.Warning      `json:"warnings"`
	Operations []timetable.StoreCall `json:"operations"`
}

// ReconcilerService turns a desired edit into the sequence of store calls
// that brings the stored week to it.
type ReconcilerService struct {
	store     sessionStore
	locks     editLocker
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	lockTTL   time.Duration
	now       func() time.Time
}

// ReconcilerOption customises the service.
type ReconcilerOption func(*ReconcilerService)

// WithEditLocker guards each (lab, week) against concurrent edits.
func WithEditLocker(locks editLocker, ttl time.Duration) ReconcilerOption {
	return func(s *ReconcilerService) {
		s.locks = locks
		s.lockTTL = ttl
	}
}

// WithReconcileMetrics records reconcile metrics.
func WithReconcileMetrics(metrics *MetricsService) ReconcilerOption {
	return func(s *ReconcilerService) {
		s.metrics = metrics
	}
}

// NewReconcilerService constructs the reconciler.
func NewReconcilerService(store sessionStore, validate *validator.Validate, logger *zap.Logger, opts ...ReconcilerOption) *ReconcilerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReconcilerService{
		store:     store,
		validator: validate,
		logger:    logger,
		lockTTL:   30 * time.Second,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// edit carries one reconcile through its phases.
type edit struct {
	svc    *ReconcilerService
	ctx    context.Context
	labID  int64
	anchor time.Time
	state  timetable.State
	log    *zap.Logger
}

func (e *edit) dispatch(ev timetable.Event) {
	e.state = timetable.Reduce(e.state, ev)
}

func (e *edit) warn(w models.Warning) {
	w.Operation = string(e.state.Operation)
	e.log.Warn("reconcile warning", zap.String("kind", string(w.Kind)), zap.String("message", w.Message),
		zap.Int("weekday", w.Weekday), zap.Int("period", w.Period))
	e.svc.metrics.RecordWarning(string(w.Kind))
	e.dispatch(timetable.WarningRaised{Warning: w})
}

func (e *edit) fail(err error) error {
	e.dispatch(timetable.EditFailed{Err: err})
	return err
}

func (e *edit) record(kind string, weekday, period int, id int64, err error) {
	call := timetable.StoreCall{Kind: kind, Weekday: weekday, Period: period, SessionID: id, OK: err == nil}
	fields := []zap.Field{zap.String("call", kind), zap.Int("weekday", weekday), zap.Int("period", period), zap.Int64("session_id", id)}
	if err != nil {
		call.Error = err.Error()
		e.log.Warn("store call failed", append(fields, zap.Error(err))...)
	} else {
		e.log.Debug("store call", fields...)
	}
	e.svc.metrics.RecordStoreCall(kind, err == nil)
	e.dispatch(timetable.CallCompleted{Call: call})
}

// refetch rebuilds the grid from the store. The grid is never patched locally.
func (e *edit) refetch() (*models.WeekView, error) {
	week, err := e.svc.store.FetchWeek(e.ctx, e.labID, e.anchor)
	e.svc.metrics.RecordStoreCall("fetch_week", err == nil)
	if err != nil {
		return nil, err
	}
	e.dispatch(timetable.WeekLoaded{Grid: timetable.BuildGrid(*week)})
	return week, nil
}

func (e *edit) result(week *models.WeekView, session *models.Session) *ReconcileResult {
	warnings := e.state.Warnings
	if warnings == nil {
		warnings = []models.Warning{}
	}
	calls := e.state.Calls
	if calls == nil {
		calls = []timetable.StoreCall{}
	}
	return &ReconcileResult{
		Operation:  e.state.Operation,
		Phase:      e.state.Phase,
		Session:    session,
		Week:       week,
		Grid:       e.state.Grid,
		Warnings:   warnings,
		Operations: calls,
	}
}

func (s *ReconcilerService) begin(ctx context.Context, labID int64, anchor time.Time) (*edit, func(), error) {
	monday := timetable.MondayOf(anchor)
	release := func() {}
	if s.locks != nil {
		var err error
		release, err = s.locks.Acquire(ctx, labID, monday, s.lockTTL)
		if err != nil {
			if errors.Is(err, appErrors.ErrEditInFlight) {
				return nil, nil, err
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock week")
		}
	}
	e := &edit{
		svc:    s,
		ctx:    ctx,
		labID:  labID,
		anchor: monday,
		state:  timetable.NewState(nil),
		log:    s.logger.With(zap.Int64("lab_id", labID), zap.String("week", monday.Format("2006-01-02"))),
	}
	return e, release, nil
}

func (s *ReconcilerService) finish(e *edit, started time.Time) {
	s.metrics.ObserveReconcile(string(e.state.Operation), string(e.state.Phase), s.now().Sub(started))
	e.log.Info("reconcile finished",
		zap.String("operation", string(e.state.Operation)),
		zap.String("phase", string(e.state.Phase)),
		zap.Int("calls", len(e.state.Calls)),
		zap.Int("warnings", len(e.state.Warnings)))
}

// Reconcile applies one edit. Creation and in-place updates go straight to the
// store; a move deletes every old fragment, refetches, then creates once at
// the new head. Warnings never fail the call.
func (s *ReconcilerService) Reconcile(ctx context.Context, req ReconcileRequest) (*ReconcileResult, error) {
	if err := s.validator.Struct(req.Desired); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	started := s.now()
	e, release, err := s.begin(ctx, req.LabID, req.WeekAnchor)
	if err != nil {
		return nil, err
	}
	defer release()
	defer s.finish(e, started)

	if _, err := e.refetch(); err != nil {
		return nil, e.fail(storeError(err, "failed to load week"))
	}
	e.dispatch(timetable.EditSubmitted{})

	var head *models.Session
	if req.Current != nil {
		head, err = currentHead(e.state.Grid, *req.Current)
		if err != nil {
			return nil, e.fail(err)
		}
	}

	switch {
	case head == nil:
		return s.create(e, req)
	case head.Weekday == req.Desired.Weekday && head.StartPeriod == req.Desired.StartPeriod:
		return s.updateInPlace(e, req, head)
	default:
		return s.move(e, req, head)
	}
}

func currentHead(g *timetable.Grid, at timetable.Coord) (*models.Session, error) {
	if !timetable.ValidWeekday(at.Weekday) || !timetable.ValidPeriod(at.Period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cell %d/%d is outside the week grid", at.Weekday, at.Period))
	}
	res := g.Resolve(at.Weekday, at.Period)
	if res.Empty() {
		return nil, appErrors.Clone(appErrors.ErrStaleGrid, fmt.Sprintf("no session at weekday %d period %d, refresh and retry", at.Weekday, at.Period))
	}
	return res.Head, nil
}

// evaluate runs the placement policy for the desired edit and applies the
// overwrite confirmation rule. With confirmation, every other session in the
// target range is deleted before the edit continues.
func (s *ReconcilerService) evaluate(e *edit, req ReconcileRequest, excludingID int64) (timetable.Placement, error) {
	target := timetable.Placement{Weekday: req.Desired.Weekday, StartPeriod: req.Desired.StartPeriod, Duration: req.Desired.Duration}
	res, err := timetable.EvaluatePlacement(e.state.Grid, target, excludingID)
	if err != nil {
		return target, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if res.Clamp != nil {
		e.warn(res.Clamp.Warning(target.Weekday))
	}
	if res.OK {
		return res.Placement, nil
	}
	if !req.ConfirmOverwrite {
		conflict := res.ConflictError()
		return res.Placement, appErrors.WithDetails(appErrors.WrapAs(conflict, appErrors.ErrConflict, "target cells are occupied"), conflict)
	}
	return res.Placement, nil
}

// clearConflicts deletes every session other than excludingID overlapping p.
// It runs inside an executing phase and refetches once done.
func (s *ReconcilerService) clearConflicts(e *edit, p timetable.Placement, excludingID int64) error {
	g := e.state.Grid
	seen := make(map[int64]bool)
	deleted := 0
	for period := p.StartPeriod; period <= p.End(); period++ {
		occupant := g.Occupant(p.Weekday, period)
		if occupant == nil || occupant.ID == excludingID || seen[occupant.ID] {
			continue
		}
		seen[occupant.ID] = true
		deleted++
		s.deleteFragments(e, g, p.Weekday, period)
	}
	if deleted == 0 {
		return nil
	}
	if _, err := e.refetch(); err != nil {
		return storeError(err, "failed to reload week after overwrite")
	}
	res, err := timetable.EvaluatePlacement(e.state.Grid, p, excludingID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	if !res.OK {
		conflict := res.ConflictError()
		return appErrors.WithDetails(appErrors.WrapAs(conflict, appErrors.ErrConflict, "overwrite left cells occupied"), conflict)
	}
	return nil
}

// deleteFragments removes every stored fragment of the session occupying
// (weekday, period), one call each, without stopping on failure. It returns
// how many deletes succeeded and how many were attempted.
func (s *ReconcilerService) deleteFragments(e *edit, g *timetable.Grid, weekday, period int) (int, int) {
	cell := g.Cell(weekday, period)
	var frags []timetable.Fragment
	if cell.Orphan {
		frags = []timetable.Fragment{{Period: period, ID: cell.FragmentID}}
	} else {
		res := g.Resolve(weekday, period)
		if res.Empty() {
			return 0, 0
		}
		frags = g.FragmentsOf(res.Coord, res.Head.Duration)
	}

	okCount := 0
	seen := make(map[int64]bool, len(frags))
	for _, frag := range frags {
		if seen[frag.ID] {
			continue
		}
		seen[frag.ID] = true
		err := s.store.DeleteSession(e.ctx, e.labID, frag.ID, e.anchor)
		e.record("delete", weekday, frag.Period, frag.ID, err)
		if err != nil {
			e.warn(models.Warning{
				Kind:      models.WarningPartialFailure,
				Message:   fmt.Sprintf("delete of period %d failed: %v", frag.Period, err),
				Weekday:   weekday,
				Period:    frag.Period,
				SessionID: frag.ID,
			})
			continue
		}
		okCount++
	}
	return okCount, len(seen)
}

func (s *ReconcilerService) create(e *edit, req ReconcileRequest) (*ReconcileResult, error) {
	placement, err := s.evaluate(e, req, 0)
	if err != nil {
		return nil, e.fail(err)
	}
	e.dispatch(timetable.OperationChosen{Operation: timetable.OpCreate})
	if req.ConfirmOverwrite {
		if err := s.clearConflicts(e, placement, 0); err != nil {
			return nil, e.fail(err)
		}
	}

	payload := req.Desired.Payload()
	payload.Duration = placement.Duration
	session, err := s.store.CreateSession(e.ctx, e.labID, placement.Weekday, placement.StartPeriod, payload, e.anchor)
	e.record("create", placement.Weekday, placement.StartPeriod, sessionID(session), err)
	if err != nil {
		return nil, e.fail(storeError(err, "failed to create session"))
	}
	return s.settle(e, placement.Weekday, placement.StartPeriod, session), nil
}

// updateInPlace rewrites every stored fragment of the session one call at a
// time, head first. The head update resizes the stored range, so fragments
// past the new duration are gone by the time the loop reaches them.
func (s *ReconcilerService) updateInPlace(e *edit, req ReconcileRequest, head *models.Session) (*ReconcileResult, error) {
	placement, err := s.evaluate(e, req, head.ID)
	if err != nil {
		return nil, e.fail(err)
	}
	e.dispatch(timetable.OperationChosen{Operation: timetable.OpUpdate})
	if req.ConfirmOverwrite {
		if err := s.clearConflicts(e, placement, head.ID); err != nil {
			return nil, e.fail(err)
		}
	}

	g := e.state.Grid
	at := timetable.Coord{Weekday: head.Weekday, Period: head.StartPeriod}
	oldDuration, _ := timetable.Clamp(head.StartPeriod, head.Duration)
	payload := req.Desired.Payload()
	payload.Duration = placement.Duration

	var (
		updated    *models.Session
		attempted  int
		failed     int
		lastErr    error
		headFailed bool
	)
	for i := 0; i < oldDuration; i++ {
		period := head.StartPeriod + i
		cell := g.Cell(head.Weekday, period)
		if cell.Empty() || cell.Orphan || cell.Head != at || cell.FragmentID == 0 {
			continue
		}
		if i > 0 && i >= placement.Duration && !headFailed {
			continue
		}
		attempted++
		session, err := s.store.UpdateSession(e.ctx, e.labID, head.Weekday, period, payload, e.anchor)
		e.record("update", head.Weekday, period, cell.FragmentID, err)
		if err != nil {
			failed++
			lastErr = err
			if i == 0 {
				// The stored range was not resized, so the rest keep the old duration.
				headFailed = true
				payload.Duration = oldDuration
			}
			e.warn(models.Warning{
				Kind:      models.WarningPartialFailure,
				Message:   fmt.Sprintf("update of period %d failed: %v", period, err),
				Weekday:   head.Weekday,
				Period:    period,
				SessionID: cell.FragmentID,
			})
			continue
		}
		if i == 0 {
			updated = session
		}
	}
	if attempted > 0 && failed == attempted {
		return nil, e.fail(storeError(lastErr, "failed to update session"))
	}
	return s.settle(e, head.Weekday, head.StartPeriod, updated), nil
}

// move deletes the old occupancy, waits for a fresh week, then creates the
// session at its new head. When no delete goes through the move stops with
// the session untouched. A failure after at least one delete leaves the
// session nowhere and is reported as a move inconsistency.
func (s *ReconcilerService) move(e *edit, req ReconcileRequest, head *models.Session) (*ReconcileResult, error) {
	placement, err := s.evaluate(e, req, head.ID)
	if err != nil {
		return nil, e.fail(err)
	}
	e.dispatch(timetable.OperationChosen{Operation: timetable.OpMove})
	if req.ConfirmOverwrite {
		if err := s.clearConflicts(e, placement, head.ID); err != nil {
			return nil, e.fail(err)
		}
	}

	snapshot := req.Desired
	snapshot.Duration = placement.Duration
	inconsistent := func(cause error) error {
		detail := &models.MoveInconsistencyError{
			LabID:        e.labID,
			FromWeekday:  head.Weekday,
			FromPeriod:   head.StartPeriod,
			ToWeekday:    snapshot.Weekday,
			ToPeriod:     snapshot.StartPeriod,
			Snapshot:     snapshot,
			CreateFailed: cause.Error(),
		}
		e.log.Error("move left session unplaced", zap.Error(detail))
		return appErrors.WithDetails(appErrors.WrapAs(detail, appErrors.ErrMoveInconsistent, "move left session unplaced"), detail)
	}

	removed, attempted := s.deleteFragments(e, e.state.Grid, head.Weekday, head.StartPeriod)
	if attempted > 0 && removed == 0 {
		e.log.Warn("move aborted, no fragment removed", zap.Int("attempted", attempted))
		return nil, e.fail(appErrors.Clone(appErrors.ErrInternal, "failed to move session, it was left in place"))
	}

	if _, err := e.refetch(); err != nil {
		return nil, e.fail(inconsistent(fmt.Errorf("reload before create: %w", err)))
	}
	check, err := timetable.EvaluatePlacement(e.state.Grid, timetable.Placement{
		Weekday: snapshot.Weekday, StartPeriod: snapshot.StartPeriod, Duration: snapshot.Duration,
	}, head.ID)
	if err == nil && !check.OK {
		err = check.ConflictError()
	}
	if err != nil {
		return nil, e.fail(inconsistent(err))
	}

	session, err := s.store.CreateSession(e.ctx, e.labID, snapshot.Weekday, snapshot.StartPeriod, snapshot.Payload(), e.anchor)
	e.record("create", snapshot.Weekday, snapshot.StartPeriod, sessionID(session), err)
	if err != nil {
		return nil, e.fail(inconsistent(err))
	}
	return s.settle(e, snapshot.Weekday, snapshot.StartPeriod, session), nil
}

// Delete removes the session occupying a cell, continuation cells included.
// A stray fragment whose head is gone is removed on its own.
func (s *ReconcilerService) Delete(ctx context.Context, req DeleteRequest) (*ReconcileResult, error) {
	if !timetable.ValidWeekday(req.Weekday) || !timetable.ValidPeriod(req.Period) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cell %d/%d is outside the week grid", req.Weekday, req.Period))
	}

	started := s.now()
	e, release, err := s.begin(ctx, req.LabID, req.WeekAnchor)
	if err != nil {
		return nil, err
	}
	defer release()
	defer s.finish(e, started)

	if _, err := e.refetch(); err != nil {
		return nil, e.fail(storeError(err, "failed to load week"))
	}
	e.dispatch(timetable.EditSubmitted{})

	if e.state.Grid.Cell(req.Weekday, req.Period).Empty() {
		return nil, e.fail(appErrors.Clone(appErrors.ErrNotFound, "no session at this cell"))
	}
	e.dispatch(timetable.OperationChosen{Operation: timetable.OpDelete})

	ok, attempted := s.deleteFragments(e, e.state.Grid, req.Weekday, req.Period)
	if attempted > 0 && ok == 0 {
		return nil, e.fail(appErrors.Clone(appErrors.ErrInternal, "failed to delete session"))
	}
	return s.settle(e, req.Weekday, req.Period, nil), nil
}

// settle refetches the week for the caller. The store calls already succeeded,
// so a failed refetch only degrades the result to a warning.
func (s *ReconcilerService) settle(e *edit, weekday, period int, session *models.Session) *ReconcileResult {
	week, err := e.refetch()
	if err != nil {
		e.warn(models.Warning{
			Kind:    models.WarningStaleCell,
			Message: fmt.Sprintf("week reload failed, refresh before editing again: %v", err),
			Weekday: weekday,
			Period:  period,
		})
	} else if e.state.Operation != timetable.OpDelete {
		if fresh := e.state.Grid.Resolve(weekday, period).Head; fresh != nil {
			session = fresh
		}
	}
	e.dispatch(timetable.EditSettled{})
	return e.result(week, session)
}

func sessionID(s *models.Session) int64 {
	if s == nil {
		return 0
	}
	return s.ID
}

// storeError maps store failures onto API errors.
func storeError(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, repository.ErrLabNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "lab not found")
	case errors.Is(err, sql.ErrNoRows):
		return appErrors.WrapAs(err, appErrors.ErrStaleGrid, "")
	case errors.Is(err, repository.ErrSlotOccupied):
		return appErrors.WrapAs(err, appErrors.ErrConflict, err.Error())
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}
