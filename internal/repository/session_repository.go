package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
)

var (
	// ErrLabNotFound is returned when a session call names an unknown lab.
	ErrLabNotFound = errors.New("lab not found")
	// ErrSlotOccupied is returned when a create or resize would overlap stored fragments.
	ErrSlotOccupied = errors.New("period already occupied")
)

const sessionColumns = `s.id, s.lab_id, s.session_date, s.weekday, s.period, s.start_period, s.duration,
s.course, s.teacher, s.content, s.enrolled, s.class_names, l.capacity, s.created_at, s.updated_at`

// SessionRepository is the session store. Every period of a session is its own
// row; creating a session from its head period materialises the following
// duration-1 fragments in the same transaction.
type SessionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// FetchWeek returns the 7 x 8 slot table of the week containing weekAnchor.
func (r *SessionRepository) FetchWeek(ctx context.Context, labID int64, weekAnchor time.Time) (*models.WeekView, error) {
	monday := dateOnly(timetable.MondayOf(weekAnchor))
	sunday := monday.AddDate(0, 0, timetable.DaysPerWeek-1)

	query := `SELECT ` + sessionColumns + `
FROM lab_sessions s JOIN labs l ON l.id = s.lab_id
WHERE s.lab_id = $1 AND s.session_date BETWEEN $2 AND $3
ORDER BY s.session_date ASC, s.period ASC`
	var rows []models.Session
	if err := r.db.SelectContext(ctx, &rows, query, labID, monday, sunday); err != nil {
		return nil, fmt.Errorf("fetch week: %w", err)
	}

	week := emptyWeek(labID, monday)
	for i := range rows {
		s := rows[i]
		if !timetable.ValidWeekday(s.Weekday) || !timetable.ValidPeriod(s.Period) {
			continue
		}
		s.Derive(s.Capacity)
		week.Days[s.Weekday-1].Slots[s.Period-1].Session = &s
	}
	return week, nil
}

// CreateSession stores a session whose head is at (weekday, period) of the
// anchored week and expands it over payload.Duration periods, clamped to the day.
func (r *SessionRepository) CreateSession(ctx context.Context, labID int64, weekday, period int, payload models.SessionPayload, weekAnchor time.Time) (session *models.Session, err error) {
	if !timetable.ValidWeekday(weekday) || !timetable.ValidPeriod(period) {
		return nil, fmt.Errorf("create session: invalid cell %d/%d", weekday, period)
	}
	payload.Duration, _ = timetable.Clamp(period, max(payload.Duration, 1))
	date := dateOnly(timetable.DateFor(weekAnchor, weekday))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	capacity, err := labCapacity(ctx, tx, labID)
	if err != nil {
		return nil, err
	}
	if err = ensureFree(ctx, tx, labID, date, period, period+payload.Duration-1, 0); err != nil {
		return nil, err
	}
	if payload.Enrolled, err = deriveEnrolled(ctx, tx, payload); err != nil {
		return nil, err
	}

	ids, err := r.insertFragments(ctx, tx, labID, date, weekday, period, period, payload)
	if err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create session: %w", err)
	}

	now := r.now()
	session = &models.Session{
		ID:          ids[0],
		LabID:       labID,
		Date:        date,
		Weekday:     weekday,
		Period:      period,
		StartPeriod: period,
		Duration:    payload.Duration,
		Course:      payload.Course,
		Teacher:     payload.Teacher,
		Content:     payload.Content,
		Enrolled:    payload.Enrolled,
		ClassNames:  payload.ClassNames,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	session.Derive(capacity)
	return session, nil
}

// UpdateSession rewrites the fragment stored at (weekday, period). When that
// fragment is a head and the duration changes, trailing fragments are trimmed
// or materialised so the stored rows match the new range.
func (r *SessionRepository) UpdateSession(ctx context.Context, labID int64, weekday, period int, payload models.SessionPayload, weekAnchor time.Time) (session *models.Session, err error) {
	date := dateOnly(timetable.DateFor(weekAnchor, weekday))

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Session
	query := `SELECT ` + sessionColumns + `
FROM lab_sessions s JOIN labs l ON l.id = s.lab_id
WHERE s.lab_id = $1 AND s.session_date = $2 AND s.period = $3 FOR UPDATE OF s`
	if err = tx.GetContext(ctx, &current, query, labID, date, period); err != nil {
		return nil, err
	}
	if payload.Duration < 1 {
		payload.Duration = current.Duration
	}
	payload.Duration, _ = timetable.Clamp(current.StartPeriod, payload.Duration)
	if payload.Enrolled, err = deriveEnrolled(ctx, tx, payload); err != nil {
		return nil, err
	}

	if current.IsHead() && payload.Duration != current.Duration {
		if err = r.resize(ctx, tx, current, payload); err != nil {
			return nil, err
		}
	}

	now := r.now()
	const update = `UPDATE lab_sessions SET course = $1, teacher = $2, content = $3, enrolled = $4, class_names = $5, duration = $6, updated_at = $7 WHERE id = $8`
	if _, err = tx.ExecContext(ctx, update, payload.Course, payload.Teacher, payload.Content, payload.Enrolled, payload.ClassNames, payload.Duration, now, current.ID); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update session: %w", err)
	}

	current.Course = payload.Course
	current.Teacher = payload.Teacher
	current.Content = payload.Content
	current.Enrolled = payload.Enrolled
	current.ClassNames = payload.ClassNames
	current.Duration = payload.Duration
	current.UpdatedAt = now
	current.Derive(current.Capacity)
	return &current, nil
}

func (r *SessionRepository) resize(ctx context.Context, tx *sqlx.Tx, head models.Session, payload models.SessionPayload) error {
	oldEnd := head.EndPeriod()
	newEnd := head.StartPeriod + payload.Duration - 1
	if newEnd < oldEnd {
		const trim = `DELETE FROM lab_sessions WHERE lab_id = $1 AND session_date = $2 AND start_period = $3 AND period > $4`
		if _, err := tx.ExecContext(ctx, trim, head.LabID, head.Date, head.StartPeriod, newEnd); err != nil {
			return fmt.Errorf("trim session fragments: %w", err)
		}
	} else {
		if err := ensureFree(ctx, tx, head.LabID, head.Date, oldEnd+1, newEnd, head.StartPeriod); err != nil {
			return err
		}
		if _, err := r.insertFragments(ctx, tx, head.LabID, head.Date, head.Weekday, head.StartPeriod, oldEnd+1, payload); err != nil {
			return err
		}
	}
	const siblings = `UPDATE lab_sessions SET duration = $1 WHERE lab_id = $2 AND session_date = $3 AND start_period = $4`
	if _, err := tx.ExecContext(ctx, siblings, payload.Duration, head.LabID, head.Date, head.StartPeriod); err != nil {
		return fmt.Errorf("update fragment durations: %w", err)
	}
	return nil
}

// DeleteSession removes one stored fragment by id.
func (r *SessionRepository) DeleteSession(ctx context.Context, labID, sessionID int64, weekAnchor time.Time) error {
	monday := dateOnly(timetable.MondayOf(weekAnchor))
	sunday := monday.AddDate(0, 0, timetable.DaysPerWeek-1)
	res, err := r.db.ExecContext(ctx, `DELETE FROM lab_sessions WHERE id = $1 AND lab_id = $2 AND session_date BETWEEN $3 AND $4`, sessionID, labID, monday, sunday)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return expectAffected(res)
}

// DryRunBatch validates a replace-week batch without persisting anything.
func (r *SessionRepository) DryRunBatch(ctx context.Context, labID int64, weekAnchor time.Time, sessions []models.BatchSession) (*models.DryRunResult, error) {
	if _, err := labCapacity(ctx, r.db, labID); err != nil {
		return nil, err
	}
	result := ValidateBatch(weekAnchor, sessions)
	return &result, nil
}

// ReplaceWeek swaps every stored session of the anchored week for the batch in one transaction.
// Callers are expected to have passed the batch through DryRunBatch first.
func (r *SessionRepository) ReplaceWeek(ctx context.Context, labID int64, weekAnchor time.Time, sessions []models.BatchSession) (err error) {
	monday := dateOnly(timetable.MondayOf(weekAnchor))
	sunday := monday.AddDate(0, 0, timetable.DaysPerWeek-1)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace week: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = labCapacity(ctx, tx, labID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM lab_sessions WHERE lab_id = $1 AND session_date BETWEEN $2 AND $3`, labID, monday, sunday); err != nil {
		return fmt.Errorf("clear week: %w", err)
	}
	for _, item := range sessions {
		payload := item.SessionPayload
		payload.Duration, _ = timetable.Clamp(item.StartPeriod, max(payload.Duration, 1))
		if payload.Enrolled, err = deriveEnrolled(ctx, tx, payload); err != nil {
			return err
		}
		date := dateOnly(timetable.DateFor(monday, item.Weekday))
		if _, err = r.insertFragments(ctx, tx, labID, date, item.Weekday, item.StartPeriod, item.StartPeriod, payload); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace week: %w", err)
	}
	return nil
}

// ValidateBatch checks a batch against the anchored week: coordinates, required
// fields and overlaps within the batch. Durations past the day are clamped, not rejected.
func ValidateBatch(weekAnchor time.Time, sessions []models.BatchSession) models.DryRunResult {
	monday := dateOnly(timetable.MondayOf(weekAnchor))
	result := models.DryRunResult{Errors: []models.RowError{}}

	type placed struct {
		index      int
		start, end int
	}
	byDay := make(map[int][]placed)

	for i, item := range sessions {
		fail := func(field, message string) {
			result.Errors = append(result.Errors, models.RowError{Index: item.Index, Field: field, Message: message})
		}
		before := len(result.Errors)

		date := dateOnly(item.Date)
		switch {
		case !item.Date.IsZero() && !timetable.MondayOf(date).Equal(monday):
			fail("date", fmt.Sprintf("date %s is outside the week of %s", date.Format("2006-01-02"), monday.Format("2006-01-02")))
		case !timetable.ValidWeekday(item.Weekday):
			fail("weekday", fmt.Sprintf("weekday %d must be between 1 and 7", item.Weekday))
		case !item.Date.IsZero() && timetable.WeekdayOf(date) != item.Weekday:
			fail("weekday", fmt.Sprintf("weekday %d does not match date %s", item.Weekday, date.Format("2006-01-02")))
		}
		if !timetable.ValidPeriod(item.StartPeriod) {
			fail("start_period", fmt.Sprintf("start period %d must be between 1 and 8", item.StartPeriod))
		}
		if item.Duration < 1 {
			fail("duration", "duration must be at least 1")
		}
		if strings.TrimSpace(item.Course) == "" {
			fail("course", "course is required")
		}
		if strings.TrimSpace(item.Teacher) == "" {
			fail("teacher", "teacher is required")
		}
		if item.Enrolled < 0 {
			fail("enrolled", "enrolled cannot be negative")
		}

		if len(result.Errors) == before {
			duration, _ := timetable.Clamp(item.StartPeriod, item.Duration)
			p := placed{index: i, start: item.StartPeriod, end: item.StartPeriod + duration - 1}
			for _, other := range byDay[item.Weekday] {
				if p.start <= other.end && p.end >= other.start {
					fail("start_period", fmt.Sprintf("overlaps entry %d on weekday %d", sessions[other.index].Index, item.Weekday))
					break
				}
			}
			if len(result.Errors) == before {
				byDay[item.Weekday] = append(byDay[item.Weekday], p)
			}
		}

		if len(result.Errors) == before {
			result.Success++
		} else {
			result.Failed++
		}
	}
	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].Index < result.Errors[j].Index })
	return result
}

func (r *SessionRepository) insertFragments(ctx context.Context, exec sqlx.ExtContext, labID int64, date time.Time, weekday, start, from int, payload models.SessionPayload) ([]int64, error) {
	now := r.now()
	end := start + payload.Duration - 1
	const query = `INSERT INTO lab_sessions (lab_id, session_date, weekday, period, start_period, duration, course, teacher, content, enrolled, class_names, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`
	ids := make([]int64, 0, end-from+1)
	for p := from; p <= end; p++ {
		var id int64
		row := exec.QueryRowxContext(ctx, query, labID, date, weekday, p, start, payload.Duration,
			payload.Course, payload.Teacher, payload.Content, payload.Enrolled, payload.ClassNames, now, now)
		if err := row.Scan(&id); err != nil {
			return nil, fmt.Errorf("insert session fragment %d: %w", p, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func labCapacity(ctx context.Context, q sqlx.QueryerContext, labID int64) (int, error) {
	var capacity int
	if err := sqlx.GetContext(ctx, q, &capacity, `SELECT capacity FROM labs WHERE id = $1`, labID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrLabNotFound
		}
		return 0, fmt.Errorf("load lab capacity: %w", err)
	}
	return capacity, nil
}

// ensureFree fails with ErrSlotOccupied when any period in [from, to] is stored,
// ignoring fragments of the session headed at ownStart (0 ignores nothing).
func ensureFree(ctx context.Context, q sqlx.QueryerContext, labID int64, date time.Time, from, to, ownStart int) error {
	if to < from {
		return nil
	}
	var taken []int
	const query = `SELECT period FROM lab_sessions WHERE lab_id = $1 AND session_date = $2 AND period BETWEEN $3 AND $4 AND start_period <> $5 ORDER BY period`
	if err := sqlx.SelectContext(ctx, q, &taken, query, labID, date, from, to, ownStart); err != nil {
		return fmt.Errorf("check free periods: %w", err)
	}
	if len(taken) > 0 {
		return fmt.Errorf("%w: period %d", ErrSlotOccupied, taken[0])
	}
	return nil
}

// deriveEnrolled applies the enrolment rule: an explicit positive count wins;
// otherwise listed class names are summed from their rosters.
func deriveEnrolled(ctx context.Context, q sqlx.QueryerContext, payload models.SessionPayload) (int, error) {
	if payload.Enrolled > 0 {
		return payload.Enrolled, nil
	}
	names := models.SplitClassNames(payload.ClassNames)
	if len(names) == 0 {
		return payload.Enrolled, nil
	}
	var total int
	if err := sqlx.GetContext(ctx, q, &total, `SELECT COALESCE(SUM(size), 0) FROM class_rosters WHERE name = ANY($1)`, pq.Array(names)); err != nil {
		return 0, fmt.Errorf("derive enrolled from rosters: %w", err)
	}
	return total, nil
}

func emptyWeek(labID int64, monday time.Time) *models.WeekView {
	week := &models.WeekView{LabID: labID, Monday: monday, Days: make([]models.DaySlots, timetable.DaysPerWeek)}
	for w := 1; w <= timetable.DaysPerWeek; w++ {
		slots := make([]models.Slot, timetable.PeriodsPerDay)
		for p := range slots {
			slots[p] = models.Slot{Period: p + 1}
		}
		week.Days[w-1] = models.DaySlots{Date: monday.AddDate(0, 0, w-1), Weekday: w, Slots: slots}
	}
	return week
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
