package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/repository"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
)

var testMonday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// memoryStore is an in-memory session store that keeps the same contract as
// the SQL store: one row per period, with creates and head resizes expanding
// the trailing fragments.
type memoryStore struct {
	mu       sync.Mutex
	capacity int
	nextID   int64
	rows     map[int64]models.Session
	calls    []string

	failCreate  error
	failFetchAt int
	failUpdate  map[int]error
	failDelete  map[int64]error
	fetches     int
	batches     map[string][]models.BatchSession
	dryRuns     int
}

func newMemoryStore(capacity int) *memoryStore {
	return &memoryStore{
		capacity:   capacity,
		nextID:     1,
		rows:       make(map[int64]models.Session),
		failUpdate: make(map[int]error),
		failDelete: make(map[int64]error),
		batches:    make(map[string][]models.BatchSession),
	}
}

// seed stores a session directly and returns the fragment ids, head first.
func (m *memoryStore) seed(weekday, start, duration int, course string, enrolled int) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload := models.SessionPayload{Course: course, Teacher: "Teacher", Enrolled: enrolled, Duration: duration}
	return m.insert(weekday, start, start, payload)
}

// seedFragment stores a lone fragment, e.g. a stray left by a failed delete.
func (m *memoryStore) seedFragment(weekday, period, start, duration int, course string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.rows[id] = models.Session{
		ID: id, LabID: 1, Date: timetable.DateFor(testMonday, weekday), Weekday: weekday,
		Period: period, StartPeriod: start, Duration: duration, Course: course, Teacher: "Teacher",
	}
	return id
}

func (m *memoryStore) insert(weekday, start, from int, payload models.SessionPayload) []int64 {
	var ids []int64
	for p := from; p < start+payload.Duration; p++ {
		id := m.nextID
		m.nextID++
		m.rows[id] = models.Session{
			ID: id, LabID: 1, Date: timetable.DateFor(testMonday, weekday), Weekday: weekday,
			Period: p, StartPeriod: start, Duration: payload.Duration,
			Course: payload.Course, Teacher: payload.Teacher, Content: payload.Content,
			Enrolled: payload.Enrolled, ClassNames: payload.ClassNames,
		}
		ids = append(ids, id)
	}
	return ids
}

func (m *memoryStore) at(weekday, period int) (models.Session, bool) {
	for _, s := range m.rows {
		if s.Weekday == weekday && s.Period == period {
			return s, true
		}
	}
	return models.Session{}, false
}

func (m *memoryStore) log(format string, args ...interface{}) {
	m.calls = append(m.calls, fmt.Sprintf(format, args...))
}

func (m *memoryStore) mutations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if c != "fetch" {
			out = append(out, c)
		}
	}
	return out
}

func (m *memoryStore) FetchWeek(_ context.Context, labID int64, weekAnchor time.Time) (*models.WeekView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	m.log("fetch")
	if m.failFetchAt > 0 && m.fetches == m.failFetchAt {
		return nil, fmt.Errorf("fetch unavailable")
	}

	monday := timetable.MondayOf(weekAnchor)
	week := &models.WeekView{LabID: labID, Monday: monday, Days: make([]models.DaySlots, timetable.DaysPerWeek)}
	for w := 1; w <= timetable.DaysPerWeek; w++ {
		slots := make([]models.Slot, timetable.PeriodsPerDay)
		for p := range slots {
			slots[p] = models.Slot{Period: p + 1}
		}
		week.Days[w-1] = models.DaySlots{Date: timetable.DateFor(monday, w), Weekday: w, Slots: slots}
	}
	ids := make([]int64, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		s := m.rows[id]
		s.Derive(m.capacity)
		week.Days[s.Weekday-1].Slots[s.Period-1].Session = &s
	}
	return week, nil
}

func (m *memoryStore) CreateSession(_ context.Context, _ int64, weekday, period int, payload models.SessionPayload, _ time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("create %d/%d x%d", weekday, period, payload.Duration)
	if m.failCreate != nil {
		return nil, m.failCreate
	}
	payload.Duration, _ = timetable.Clamp(period, payload.Duration)
	for p := period; p < period+payload.Duration; p++ {
		if _, taken := m.at(weekday, p); taken {
			return nil, fmt.Errorf("%w: period %d", repository.ErrSlotOccupied, p)
		}
	}
	ids := m.insert(weekday, period, period, payload)
	head := m.rows[ids[0]]
	head.Derive(m.capacity)
	return &head, nil
}

func (m *memoryStore) UpdateSession(_ context.Context, _ int64, weekday, period int, payload models.SessionPayload, _ time.Time) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("update %d/%d", weekday, period)
	if err := m.failUpdate[period]; err != nil {
		return nil, err
	}
	current, ok := m.at(weekday, period)
	if !ok {
		return nil, sql.ErrNoRows
	}
	payload.Duration, _ = timetable.Clamp(current.StartPeriod, payload.Duration)
	if current.IsHead() && payload.Duration != current.Duration {
		oldEnd := current.EndPeriod()
		newEnd := current.StartPeriod + payload.Duration - 1
		for id, s := range m.rows {
			if s.Weekday == weekday && s.StartPeriod == current.StartPeriod && s.Period > newEnd {
				delete(m.rows, id)
			}
		}
		if newEnd > oldEnd {
			for p := oldEnd + 1; p <= newEnd; p++ {
				if _, taken := m.at(weekday, p); taken {
					return nil, fmt.Errorf("%w: period %d", repository.ErrSlotOccupied, p)
				}
			}
			m.insert(weekday, current.StartPeriod, oldEnd+1, payload)
		}
		for id, s := range m.rows {
			if s.Weekday == weekday && s.StartPeriod == current.StartPeriod {
				s.Duration = payload.Duration
				m.rows[id] = s
			}
		}
	}
	current = m.rows[current.ID]
	current.Course = payload.Course
	current.Teacher = payload.Teacher
	current.Content = payload.Content
	current.Enrolled = payload.Enrolled
	current.ClassNames = payload.ClassNames
	current.Duration = payload.Duration
	m.rows[current.ID] = current
	current.Derive(m.capacity)
	return &current, nil
}

func (m *memoryStore) DeleteSession(_ context.Context, _ int64, sessionID int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log("delete %d", sessionID)
	if err := m.failDelete[sessionID]; err != nil {
		return err
	}
	if _, ok := m.rows[sessionID]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, sessionID)
	return nil
}

func (m *memoryStore) DryRunBatch(_ context.Context, labID int64, weekAnchor time.Time, sessions []models.BatchSession) (*models.DryRunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dryRuns++
	m.log("dry-run %s x%d", timetable.MondayOf(weekAnchor).Format("2006-01-02"), len(sessions))
	result := repository.ValidateBatch(weekAnchor, sessions)
	return &result, nil
}

func (m *memoryStore) ReplaceWeek(_ context.Context, labID int64, weekAnchor time.Time, sessions []models.BatchSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := timetable.MondayOf(weekAnchor).Format("2006-01-02")
	m.log("replace %s x%d", key, len(sessions))
	m.batches[key] = sessions
	return nil
}
