package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
	"github.com/noah-isme/lab-timetable-api/pkg/export"
)

type weekFetcher interface {
	FetchWeek(ctx context.Context, labID int64, weekAnchor time.Time) (*models.WeekView, error)
}

type labFinder interface {
	FindByID(ctx context.Context, id int64) (*models.Lab, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type icsRenderer interface {
	Render(data export.Calendar) ([]byte, error)
}

// ExportFormat names a week export encoding.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
	ExportICS ExportFormat = "ics"
)

// WeekConfig tunes week rendering.
type WeekConfig struct {
	Location      *time.Location
	ExportEnabled bool
	PDFTitle      string
}

// WeekSnapshot is a fetched lab week with its grid projection.
type WeekSnapshot struct {
	Lab      *models.Lab
	Week     *models.WeekView
	Grid     *timetable.Grid
	Periods  map[int][]timetable.Period
	Statuses map[int64]timetable.SessionStatus
}

// ExportFile is a rendered week export.
type ExportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// WeekService serves read-only week views.
type WeekService struct {
	weeks  weekFetcher
	labs   labFinder
	csv    csvRenderer
	pdf    pdfRenderer
	ics    icsRenderer
	cfg    WeekConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewWeekService constructs a WeekService.
func NewWeekService(weeks weekFetcher, labs labFinder, cfg WeekConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer, ics icsRenderer) *WeekService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PDFTitle == "" {
		cfg.PDFTitle = "Lab timetable"
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if ics == nil {
		ics = export.NewICSExporter()
	}
	return &WeekService{weeks: weeks, labs: labs, csv: csv, pdf: pdf, ics: ics, cfg: cfg, logger: logger, now: time.Now}
}

// Get returns the week containing date for a lab.
func (s *WeekService) Get(ctx context.Context, labID int64, date time.Time) (*WeekSnapshot, error) {
	lab, err := s.labs.FindByID(ctx, labID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lab not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab")
	}
	week, err := s.weeks.FetchWeek(ctx, labID, date)
	if err != nil {
		return nil, storeError(err, "failed to load week")
	}

	g := timetable.BuildGrid(*week)
	snapshot := &WeekSnapshot{
		Lab:      lab,
		Week:     week,
		Grid:     g,
		Periods:  make(map[int][]timetable.Period, timetable.DaysPerWeek),
		Statuses: make(map[int64]timetable.SessionStatus),
	}
	now := s.now()
	for w := 1; w <= timetable.DaysPerWeek; w++ {
		snapshot.Periods[w] = timetable.PeriodsFor(g.Date(w))
	}
	for _, head := range g.Heads() {
		day := s.localDate(g.Date(head.Weekday))
		snapshot.Statuses[head.ID] = timetable.StatusAt(now, day, head.StartPeriod, head.Duration)
	}
	if orphans := g.Orphans(); len(orphans) > 0 {
		s.logger.Warn("week has stray fragments", zap.Int64("lab_id", labID), zap.Int("count", len(orphans)))
	}
	return snapshot, nil
}

// Export renders the week containing date as a CSV or PDF grid with one row
// per period, or as an iCalendar feed with one event per session.
func (s *WeekService) Export(ctx context.Context, labID int64, date time.Time, format ExportFormat) (*ExportFile, error) {
	if !s.cfg.ExportEnabled {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled")
	}
	snapshot, err := s.Get(ctx, labID, date)
	if err != nil {
		return nil, err
	}

	dataset := weekDataset(snapshot)
	base := fmt.Sprintf("lab-%d-week-%s", labID, snapshot.Grid.Monday.Format("2006-01-02"))
	switch ExportFormat(strings.ToLower(string(format))) {
	case ExportCSV:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportFile{Filename: base + ".csv", ContentType: "text/csv; charset=utf-8", Body: body}, nil
	case ExportPDF:
		title := fmt.Sprintf("%s - %s - %s", s.cfg.PDFTitle, snapshot.Lab.Name, snapshot.Grid.Monday.Format("2006-01-02"))
		body, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Body: body}, nil
	case ExportICS:
		body, err := s.ics.Render(s.weekCalendar(snapshot))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render calendar")
		}
		return &ExportFile{Filename: base + ".ics", ContentType: "text/calendar; charset=utf-8", Body: body}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *WeekService) localDate(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, s.cfg.Location)
}

func (s *WeekService) weekCalendar(snapshot *WeekSnapshot) export.Calendar {
	g := snapshot.Grid
	cal := export.Calendar{
		Name:  fmt.Sprintf("%s %s", snapshot.Lab.Name, g.Monday.Format("2006-01-02")),
		Stamp: s.now(),
	}
	for _, head := range g.Heads() {
		from, to, err := timetable.PeriodRange(s.localDate(g.Date(head.Weekday)), head.StartPeriod, head.Duration)
		if err != nil {
			continue
		}
		description := head.Teacher
		if head.Content != "" {
			description += "\n" + head.Content
		}
		cal.Events = append(cal.Events, export.CalendarEvent{
			UID:         fmt.Sprintf("lab-%d-session-%d@lab-timetable-api", snapshot.Lab.ID, head.ID),
			Summary:     head.Course,
			Description: description,
			Location:    snapshot.Lab.Name,
			Start:       from,
			End:         to,
		})
	}
	return cal
}

var weekdayLabels = [timetable.DaysPerWeek]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func weekDataset(snapshot *WeekSnapshot) export.Dataset {
	g := snapshot.Grid
	headers := make([]string, 0, timetable.DaysPerWeek+1)
	headers = append(headers, "Period")
	for w := 1; w <= timetable.DaysPerWeek; w++ {
		headers = append(headers, fmt.Sprintf("%s %s", weekdayLabels[w-1], g.Date(w).Format("01-02")))
	}

	rows := make([]map[string]string, 0, timetable.PeriodsPerDay)
	for p := 1; p <= timetable.PeriodsPerDay; p++ {
		row := make(map[string]string, len(headers))
		row[headers[0]] = periodLabel(snapshot.Periods, p)
		for w := 1; w <= timetable.DaysPerWeek; w++ {
			row[headers[w]] = cellLabel(g, w, p)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

// periodLabel shows the clock window only when every day of the week shares it.
// Weeks that cross May 1 or Oct 7 differ in the afternoon.
func periodLabel(periods map[int][]timetable.Period, p int) string {
	first := periods[1][p-1]
	for w := 2; w <= timetable.DaysPerWeek; w++ {
		if periods[w][p-1] != first {
			return strconv.Itoa(p)
		}
	}
	return fmt.Sprintf("%d (%s-%s)", p, first.Start, first.End)
}

func cellLabel(g *timetable.Grid, weekday, period int) string {
	cell := g.Cell(weekday, period)
	switch {
	case cell.Empty():
		return ""
	case cell.Orphan:
		return "?"
	case cell.Kind == timetable.CellContinuation:
		return "(cont.)"
	}
	s := cell.Session
	label := fmt.Sprintf("%s / %s (%d/%d)", s.Course, s.Teacher, s.Enrolled, s.Capacity)
	if s.Duration > 1 {
		label += fmt.Sprintf(" x%d", s.Duration)
	}
	return label
}
