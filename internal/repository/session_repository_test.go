package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lab-timetable-api/internal/models"
)

var sessionRowColumns = []string{"id", "lab_id", "session_date", "weekday", "period", "start_period", "duration",
	"course", "teacher", "content", "enrolled", "class_names", "capacity", "created_at", "updated_at"}

func newSessionRepoMock(t *testing.T) (*SessionRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := NewSessionRepository(sqlx.NewDb(db, "sqlmock"))
	return repo, mock, func() { db.Close() }
}

var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func TestSessionRepositoryFetchWeek(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	now := time.Now()
	rows := sqlmock.NewRows(sessionRowColumns).
		AddRow(10, 1, monday, 1, 1, 1, 2, "Embedded Lab", "Li", "", 30, "", 30, now, now).
		AddRow(11, 1, monday, 1, 2, 1, 2, "Embedded Lab", "Li", "", 30, "", 30, now, now).
		AddRow(12, 1, monday.AddDate(0, 0, 2), 3, 5, 5, 1, "Networks", "Wang", "", 12, "", 30, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM lab_sessions s JOIN labs l ON l.id = s.lab_id")).
		WithArgs(int64(1), monday, monday.AddDate(0, 0, 6)).
		WillReturnRows(rows)

	week, err := repo.FetchWeek(context.Background(), 1, monday.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, week.Days, 7)
	assert.Equal(t, monday, week.Monday)

	head := week.Days[0].Slots[0].Session
	require.NotNil(t, head)
	assert.Equal(t, int64(10), head.ID)
	assert.False(t, head.AllowMakeup)

	tail := week.Days[0].Slots[1].Session
	require.NotNil(t, tail)
	assert.Equal(t, 1, tail.StartPeriod)

	other := week.Days[2].Slots[4].Session
	require.NotNil(t, other)
	assert.True(t, other.AllowMakeup)
	assert.Nil(t, week.Days[6].Slots[7].Session)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateSessionExpandsDuration(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM labs WHERE id = $1")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(40))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT period FROM lab_sessions")).
		WithArgs(int64(1), monday.AddDate(0, 0, 2), 7, 8, 0).
		WillReturnRows(sqlmock.NewRows([]string{"period"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lab_sessions")).
		WithArgs(int64(1), monday.AddDate(0, 0, 2), 3, 7, 7, 2, "Compilers", "Zhao", "", 20, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(21))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lab_sessions")).
		WithArgs(int64(1), monday.AddDate(0, 0, 2), 3, 8, 7, 2, "Compilers", "Zhao", "", 20, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(22))
	mock.ExpectCommit()

	payload := models.SessionPayload{Course: "Compilers", Teacher: "Zhao", Enrolled: 20, Duration: 4}
	session, err := repo.CreateSession(context.Background(), 1, 3, 7, payload, monday)
	require.NoError(t, err)
	assert.Equal(t, int64(21), session.ID)
	assert.Equal(t, 2, session.Duration)
	assert.Equal(t, 40, session.Capacity)
	assert.True(t, session.AllowMakeup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateSessionOccupied(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM labs")).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(40))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT period FROM lab_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"period"}).AddRow(2))
	mock.ExpectRollback()

	payload := models.SessionPayload{Course: "Compilers", Teacher: "Zhao", Duration: 2}
	_, err := repo.CreateSession(context.Background(), 1, 1, 1, payload, monday)
	require.ErrorIs(t, err, ErrSlotOccupied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateSessionUnknownLab(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM labs")).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}))
	mock.ExpectRollback()

	_, err := repo.CreateSession(context.Background(), 9, 1, 1, models.SessionPayload{Course: "X", Teacher: "Y", Duration: 1}, monday)
	require.ErrorIs(t, err, ErrLabNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateSessionDerivesEnrolledFromRosters(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM labs")).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(60))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT period FROM lab_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"period"}))
	mock.ExpectQuery(regexp.QuoteMeta("FROM class_rosters WHERE name = ANY($1)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(58))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lab_sessions")).
		WithArgs(int64(1), monday, 1, 1, 1, 1, "Physics", "Sun", "", 58, "CS-1, CS-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
	mock.ExpectCommit()

	payload := models.SessionPayload{Course: "Physics", Teacher: "Sun", Duration: 1, ClassNames: "CS-1, CS-2"}
	session, err := repo.CreateSession(context.Background(), 1, 1, 1, payload, monday)
	require.NoError(t, err)
	assert.Equal(t, 58, session.Enrolled)
	assert.True(t, session.AllowMakeup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreateSessionExplicitEnrolledWins(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM labs")).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(60))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT period FROM lab_sessions")).
		WillReturnRows(sqlmock.NewRows([]string{"period"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lab_sessions")).
		WithArgs(int64(1), monday, 1, 1, 1, 1, "Physics", "Sun", "", 25, "CS-1, CS-2", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(6))
	mock.ExpectCommit()

	payload := models.SessionPayload{Course: "Physics", Teacher: "Sun", Duration: 1, Enrolled: 25, ClassNames: "CS-1, CS-2"}
	session, err := repo.CreateSession(context.Background(), 1, 1, 1, payload, monday)
	require.NoError(t, err)
	assert.Equal(t, 25, session.Enrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateSessionExplicitEnrolledWins(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF s")).
		WithArgs(int64(1), monday, 3).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow(41, 1, monday, 1, 3, 3, 1, "OS", "Qian", "", 10, "", 30, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lab_sessions SET course = $1")).
		WithArgs("OS", "Qian", "", 25, "CS-1, CS-2", 1, sqlmock.AnyArg(), int64(41)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payload := models.SessionPayload{Course: "OS", Teacher: "Qian", Enrolled: 25, ClassNames: "CS-1, CS-2", Duration: 1}
	session, err := repo.UpdateSession(context.Background(), 1, 1, 3, payload, monday)
	require.NoError(t, err)
	assert.Equal(t, 25, session.Enrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateSessionShrinksHead(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF s")).
		WithArgs(int64(1), monday, 4).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow(40, 1, monday, 1, 4, 4, 2, "OS", "Qian", "", 30, "", 30, now, now))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lab_sessions WHERE lab_id = $1 AND session_date = $2 AND start_period = $3 AND period > $4")).
		WithArgs(int64(1), monday, 4, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lab_sessions SET duration = $1")).
		WithArgs(1, int64(1), monday, 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lab_sessions SET course = $1")).
		WithArgs("OS", "Qian", "", 25, "", 1, sqlmock.AnyArg(), int64(40)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payload := models.SessionPayload{Course: "OS", Teacher: "Qian", Enrolled: 25, Duration: 1}
	session, err := repo.UpdateSession(context.Background(), 1, 1, 4, payload, monday)
	require.NoError(t, err)
	assert.Equal(t, 1, session.Duration)
	assert.Equal(t, 25, session.Enrolled)
	assert.True(t, session.AllowMakeup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateSessionGrowsHead(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF s")).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow(40, 1, monday, 1, 4, 4, 1, "OS", "Qian", "", 30, "", 30, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT period FROM lab_sessions")).
		WithArgs(int64(1), monday, 5, 5, 4).
		WillReturnRows(sqlmock.NewRows([]string{"period"}))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lab_sessions")).
		WithArgs(int64(1), monday, 1, 5, 4, 2, "OS", "Qian", "", 30, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(41))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lab_sessions SET duration = $1")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE lab_sessions SET course = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payload := models.SessionPayload{Course: "OS", Teacher: "Qian", Enrolled: 30, Duration: 2}
	session, err := repo.UpdateSession(context.Background(), 1, 1, 4, payload, monday)
	require.NoError(t, err)
	assert.Equal(t, 2, session.Duration)
	assert.False(t, session.AllowMakeup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryUpdateSessionMissing(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE OF s")).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns))
	mock.ExpectRollback()

	_, err := repo.UpdateSession(context.Background(), 1, 1, 4, models.SessionPayload{Course: "OS", Teacher: "Qian", Duration: 1}, monday)
	require.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDeleteSession(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lab_sessions WHERE id = $1 AND lab_id = $2")).
		WithArgs(int64(7), int64(1), monday, monday.AddDate(0, 0, 6)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lab_sessions WHERE id = $1 AND lab_id = $2")).
		WithArgs(int64(8), int64(1), monday, monday.AddDate(0, 0, 6)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteSession(context.Background(), 1, 7, monday.AddDate(0, 0, 4)))
	require.ErrorIs(t, repo.DeleteSession(context.Background(), 1, 8, monday), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryReplaceWeek(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM labs")).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM lab_sessions WHERE lab_id = $1 AND session_date BETWEEN $2 AND $3")).
		WithArgs(int64(1), monday, monday.AddDate(0, 0, 6)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lab_sessions")).
		WithArgs(int64(1), monday.AddDate(0, 0, 1), 2, 3, 3, 2, "DB", "Zhou", "", 10, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO lab_sessions")).
		WithArgs(int64(1), monday.AddDate(0, 0, 1), 2, 4, 3, 2, "DB", "Zhou", "", 10, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	batch := []models.BatchSession{{
		Index: 0, Date: monday.AddDate(0, 0, 1), Weekday: 2, StartPeriod: 3,
		SessionPayload: models.SessionPayload{Course: "DB", Teacher: "Zhou", Enrolled: 10, Duration: 2},
	}}
	require.NoError(t, repo.ReplaceWeek(context.Background(), 1, monday, batch))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryDryRunBatchPersistsNothing(t *testing.T) {
	repo, mock, cleanup := newSessionRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT capacity FROM labs")).
		WillReturnRows(sqlmock.NewRows([]string{"capacity"}).AddRow(30))

	batch := []models.BatchSession{
		{Index: 0, Weekday: 1, StartPeriod: 1, SessionPayload: models.SessionPayload{Course: "A", Teacher: "T", Duration: 2}},
		{Index: 1, Weekday: 1, StartPeriod: 2, SessionPayload: models.SessionPayload{Course: "B", Teacher: "T", Duration: 1}},
	}
	result, err := repo.DryRunBatch(context.Background(), 1, monday, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateBatch(t *testing.T) {
	tuesday := monday.AddDate(0, 0, 1)
	payload := func(course string, duration int) models.SessionPayload {
		return models.SessionPayload{Course: course, Teacher: "T", Duration: duration}
	}

	t.Run("clamps overflow silently", func(t *testing.T) {
		result := ValidateBatch(monday, []models.BatchSession{
			{Index: 0, Date: tuesday, Weekday: 2, StartPeriod: 7, SessionPayload: payload("A", 4)},
		})
		assert.True(t, result.OK())
		assert.Equal(t, 1, result.Success)
	})

	t.Run("reports every offending row", func(t *testing.T) {
		result := ValidateBatch(monday, []models.BatchSession{
			{Index: 0, Date: tuesday, Weekday: 2, StartPeriod: 1, SessionPayload: payload("A", 3)},
			{Index: 1, Date: tuesday, Weekday: 2, StartPeriod: 3, SessionPayload: payload("B", 1)},
			{Index: 2, Date: monday.AddDate(0, 0, 9), Weekday: 3, StartPeriod: 1, SessionPayload: payload("C", 1)},
			{Index: 3, Date: tuesday, Weekday: 4, StartPeriod: 1, SessionPayload: payload("D", 1)},
			{Index: 4, Weekday: 5, StartPeriod: 9, SessionPayload: payload("", 0)},
		})
		assert.False(t, result.OK())
		assert.Equal(t, 1, result.Success)
		assert.Equal(t, 4, result.Failed)

		byIndex := map[int][]string{}
		for _, e := range result.Errors {
			byIndex[e.Index] = append(byIndex[e.Index], e.Field)
		}
		assert.Equal(t, []string{"start_period"}, byIndex[1])
		assert.Equal(t, []string{"date"}, byIndex[2])
		assert.Equal(t, []string{"weekday"}, byIndex[3])
		assert.ElementsMatch(t, []string{"start_period", "duration", "course"}, byIndex[4])
	})

	t.Run("different days never overlap", func(t *testing.T) {
		result := ValidateBatch(monday, []models.BatchSession{
			{Index: 0, Weekday: 1, StartPeriod: 1, SessionPayload: payload("A", 8)},
			{Index: 1, Weekday: 2, StartPeriod: 1, SessionPayload: payload("B", 8)},
		})
		assert.True(t, result.OK())
	})
}
