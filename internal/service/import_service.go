package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/repository"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
)

// batchStore is the bulk side of the session store. DryRunBatch must never persist.
type batchStore interface {
	DryRunBatch(ctx context.Context, labID int64, weekAnchor time.Time, sessions []models.BatchSession) (*models.DryRunResult, error)
	ReplaceWeek(ctx context.Context, labID int64, weekAnchor time.Time, sessions []models.BatchSession) error
}

// ImportConfig limits spreadsheet imports.
type ImportConfig struct {
	MaxRows  int
	Location *time.Location
}

// ParsedImport is a spreadsheet after header aliasing. Rows that could not be
// parsed are reported in Errors and never reach the store.
type ParsedImport struct {
	Filename string            `json:"filename"`
	Rows     []models.ImportRow `json:"rows"`
	Errors   []models.RowError  `json:"errors"`
}

// ImportService validates and commits timetable spreadsheets. Every commit
// passes the store dry run with the identical payload first; any row error
// refuses the whole import.
type ImportService struct {
	store   batchStore
	cfg     ImportConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewImportService constructs an ImportService.
func NewImportService(store batchStore, cfg ImportConfig, metrics *MetricsService, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 2000
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &ImportService{store: store, cfg: cfg, metrics: metrics, logger: logger}
}

const (
	colDate       = "date"
	colWeekday    = "weekday"
	colPeriod     = "period"
	colDuration   = "duration"
	colCourse     = "course"
	colTeacher    = "teacher"
	colContent    = "content"
	colEnrolled   = "enrolled"
	colClassNames = "class_names"
)

var headerAliases = map[string]string{
	"日期": colDate, "date": colDate, "session_date": colDate,
	"星期": colWeekday, "weekday": colWeekday, "day": colWeekday,
	"节次": colPeriod, "period": colPeriod, "start_period": colPeriod, "periods": colPeriod,
	"节数": colDuration, "duration": colDuration, "length": colDuration,
	"课程": colCourse, "课程名称": colCourse, "course": colCourse,
	"教师": colTeacher, "任课教师": colTeacher, "teacher": colTeacher,
	"内容": colContent, "实验内容": colContent, "content": colContent,
	"人数": colEnrolled, "学生人数": colEnrolled, "enrolled": colEnrolled,
	"班级": colClassNames, "class_names": colClassNames, "classes": colClassNames,
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "2006/1/2", "2006.01.02", "2006.1.2", "2006-1-2", "01-02-06"}

// Parse reads an .xlsx or .csv upload.
func (s *ImportService) Parse(filename string, r io.Reader) (*ParsedImport, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		records, err = readWorkbook(r)
	case ".csv":
		records, err = readCSV(r)
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "only .xlsx and .csv files can be imported")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable spreadsheet")
	}
	if len(records) < 2 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "spreadsheet has no data rows below the header")
	}

	cols := headerIndex(records[0])
	for _, required := range []string{colDate, colPeriod, colCourse, colTeacher} {
		if _, ok := cols[required]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("header is missing the %s column", required))
		}
	}

	parsed := &ParsedImport{Filename: filename, Rows: []models.ImportRow{}, Errors: []models.RowError{}}
	for i := 1; i < len(records); i++ {
		record := records[i]
		if blank(record) {
			continue
		}
		if len(parsed.Rows)+len(parsed.Errors) >= s.cfg.MaxRows {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("spreadsheet exceeds %d rows", s.cfg.MaxRows))
		}
		row, rowErr := s.parseRow(i+1, record, cols)
		if rowErr != nil {
			rowErr.Index = -1
			parsed.Errors = append(parsed.Errors, *rowErr)
			continue
		}
		parsed.Rows = append(parsed.Rows, row)
	}
	return parsed, nil
}

func (s *ImportService) parseRow(line int, record []string, cols map[string]int) (models.ImportRow, *models.RowError) {
	get := func(col string) string {
		idx, ok := cols[col]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}
	fail := func(field, format string, args ...interface{}) (models.ImportRow, *models.RowError) {
		return models.ImportRow{}, &models.RowError{Row: line, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	row := models.ImportRow{
		Row:        line,
		Course:     get(colCourse),
		Teacher:    get(colTeacher),
		Content:    get(colContent),
		ClassNames: get(colClassNames),
	}

	date, err := s.parseDate(get(colDate))
	if err != nil {
		return fail("date", "%v", err)
	}
	row.Date = date

	start, end, err := parsePeriods(get(colPeriod))
	if err != nil {
		return fail("start_period", "%v", err)
	}
	row.StartPeriod = start
	row.Duration = end - start + 1

	if raw := get(colDuration); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fail("duration", "duration %q is not a number", raw)
		}
		row.Duration = n
	}
	if raw := get(colEnrolled); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fail("enrolled", "enrolled %q is not a number", raw)
		}
		row.Enrolled = n
	}
	if raw := get(colWeekday); raw != "" {
		wd, err := parseWeekday(raw)
		if err != nil {
			return fail("weekday", "%v", err)
		}
		if wd != timetable.WeekdayOf(row.Date) {
			return fail("weekday", "weekday %q does not match date %s", raw, row.Date.Format("2006-01-02"))
		}
	}
	return row, nil
}

// Preview runs the dry run for every week the rows touch. Nothing is persisted.
func (s *ImportService) Preview(ctx context.Context, labID int64, parsed *ParsedImport) (*models.ImportReport, error) {
	report, _, err := s.dryRun(ctx, labID, parsed)
	return report, err
}

// Commit passes the dry-run gate and then replaces each touched week with its rows.
func (s *ImportService) Commit(ctx context.Context, labID int64, parsed *ParsedImport) (*models.ImportReport, error) {
	report, weeks, err := s.dryRun(ctx, labID, parsed)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.Int64("lab_id", labID), zap.String("batch_id", report.BatchID))
	if !report.DryRun.OK() {
		s.metrics.RecordDryRunRejected()
		log.Info("import refused by dry run", zap.Int("failed", report.DryRun.Failed))
		detail := &models.DryRunValidationError{Result: report.DryRun}
		return report, appErrors.WithDetails(appErrors.WrapAs(detail, appErrors.ErrDryRunRejected, ""), detail)
	}

	for _, week := range weeks {
		if err := s.store.ReplaceWeek(ctx, labID, week.monday, week.sessions); err != nil {
			log.Error("replace week failed", zap.Time("week", week.monday), zap.Error(err))
			return nil, storeError(err, fmt.Sprintf("failed to commit week of %s", week.monday.Format("2006-01-02")))
		}
	}
	report.Committed = true
	s.metrics.RecordImportedRows(report.Rows)
	log.Info("import committed", zap.Int("rows", report.Rows), zap.Int("weeks", len(weeks)))
	return report, nil
}

type weekBatch struct {
	monday   time.Time
	sessions []models.BatchSession
}

func (s *ImportService) dryRun(ctx context.Context, labID int64, parsed *ParsedImport) (*models.ImportReport, []weekBatch, error) {
	if parsed == nil || len(parsed.Rows)+len(parsed.Errors) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "nothing to import")
	}

	weeks := groupByWeek(parsed.Rows)
	report := &models.ImportReport{
		BatchID: uuid.NewString(),
		Rows:    len(parsed.Rows),
		Weeks:   make([]time.Time, 0, len(weeks)),
		DryRun:  models.DryRunResult{Errors: []models.RowError{}},
	}
	for _, week := range weeks {
		report.Weeks = append(report.Weeks, week.monday)
		result, err := s.store.DryRunBatch(ctx, labID, week.monday, week.sessions)
		if err != nil {
			if errors.Is(err, repository.ErrLabNotFound) {
				return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "lab not found")
			}
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "dry run failed")
		}
		report.DryRun.Success += result.Success
		report.DryRun.Failed += result.Failed
		for _, rowErr := range result.Errors {
			if rowErr.Index >= 0 && rowErr.Index < len(parsed.Rows) {
				rowErr.Row = parsed.Rows[rowErr.Index].Row
			}
			report.DryRun.Errors = append(report.DryRun.Errors, rowErr)
		}
	}
	report.DryRun.Failed += len(parsed.Errors)
	report.DryRun.Errors = append(report.DryRun.Errors, parsed.Errors...)
	sort.SliceStable(report.DryRun.Errors, func(i, j int) bool {
		return report.DryRun.Errors[i].Row < report.DryRun.Errors[j].Row
	})
	return report, weeks, nil
}

func groupByWeek(rows []models.ImportRow) []weekBatch {
	byMonday := make(map[time.Time]*weekBatch)
	for i, row := range rows {
		monday := timetable.MondayOf(row.Date)
		batch, ok := byMonday[monday]
		if !ok {
			batch = &weekBatch{monday: monday}
			byMonday[monday] = batch
		}
		batch.sessions = append(batch.sessions, models.BatchSession{
			Index:       i,
			Date:        row.Date,
			Weekday:     timetable.WeekdayOf(row.Date),
			StartPeriod: row.StartPeriod,
			SessionPayload: models.SessionPayload{
				Course:     row.Course,
				Teacher:    row.Teacher,
				Content:    row.Content,
				Enrolled:   row.Enrolled,
				Duration:   row.Duration,
				ClassNames: row.ClassNames,
			},
		})
	}
	out := make([]weekBatch, 0, len(byMonday))
	for _, batch := range byMonday {
		out = append(out, *batch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].monday.Before(out[j].monday) })
	return out
}

func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read first sheet: %w", err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) > 0 && len(records[0]) > 0 {
		records[0][0] = strings.TrimPrefix(records[0][0], "\ufeff")
	}
	return records, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if canonical, ok := headerAliases[key]; ok {
			if _, seen := cols[canonical]; !seen {
				cols[canonical] = i
			}
		}
	}
	return cols
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (s *ImportService) parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, s.cfg.Location); err == nil {
			return dateOf(t), nil
		}
	}
	// spreadsheets sometimes keep dates as serial numbers
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return dateOf(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("date %q is not a recognised date", raw)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parsePeriods accepts "3", "3-4" or "3~4".
func parsePeriods(raw string) (int, int, error) {
	if raw == "" {
		return 0, 0, fmt.Errorf("period is required")
	}
	raw = strings.NewReplacer("~", "-", "—", "-", "－", "-", "第", "", "节", "").Replace(raw)
	parts := strings.SplitN(raw, "-", 2)
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("period %q is not a number", raw)
	}
	end := start
	if len(parts) == 2 {
		if end, err = strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return 0, 0, fmt.Errorf("period range %q is malformed", raw)
		}
	}
	if end < start {
		return 0, 0, fmt.Errorf("period range %q ends before it starts", raw)
	}
	return start, end, nil
}

var weekdayNames = map[string]int{
	"mon": 1, "monday": 1, "周一": 1, "星期一": 1,
	"tue": 2, "tuesday": 2, "周二": 2, "星期二": 2,
	"wed": 3, "wednesday": 3, "周三": 3, "星期三": 3,
	"thu": 4, "thursday": 4, "周四": 4, "星期四": 4,
	"fri": 5, "friday": 5, "周五": 5, "星期五": 5,
	"sat": 6, "saturday": 6, "周六": 6, "星期六": 6,
	"sun": 7, "sunday": 7, "周日": 7, "星期日": 7, "星期天": 7,
}

func parseWeekday(raw string) (int, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if wd, ok := weekdayNames[key]; ok {
		return wd, nil
	}
	if n, err := strconv.Atoi(key); err == nil && timetable.ValidWeekday(n) {
		return n, nil
	}
	return 0, fmt.Errorf("weekday %q is not recognised", raw)
}
