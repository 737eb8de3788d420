package models

import "time"

// ImportRow is one spreadsheet row after header aliasing.
type ImportRow struct {
	Row         int       `json:"row"`
	Date        time.Time `json:"date"`
	StartPeriod int       `json:"start_period"`
	Duration    int       `json:"duration"`
	Course      string    `json:"course"`
	Teacher     string    `json:"teacher"`
	Content     string    `json:"content,omitempty"`
	Enrolled    int       `json:"enrolled"`
	ClassNames  string    `json:"class_names,omitempty"`
}

// BatchSession is one entry of a bulk week payload.
type BatchSession struct {
	Index       int       `json:"index"`
	Date        time.Time `json:"date"`
	Weekday     int       `json:"weekday"`
	StartPeriod int       `json:"start_period"`
	SessionPayload
}

// RowError points at the offending entry of a batch.
type RowError struct {
	Index   int    `json:"index"`
	Row     int    `json:"row,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// DryRunResult is the validation summary of a batch; nothing is persisted.
type DryRunResult struct {
	Success int        `json:"success"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

// OK reports whether the batch may be committed.
func (r DryRunResult) OK() bool {
	return r.Failed == 0 && len(r.Errors) == 0
}

// ImportReport summarises a preview or commit.
type ImportReport struct {
	BatchID   string       `json:"batch_id"`
	Rows      int          `json:"rows"`
	Weeks     []time.Time  `json:"weeks"`
	DryRun    DryRunResult `json:"dry_run"`
	Committed bool         `json:"committed"`
}
