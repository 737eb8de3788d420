package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	exporter := NewCSVExporter()
	out, err := exporter.Render(Dataset{
		Headers: []string{"Period", "Mon"},
		Rows: []map[string]string{
			{"Period": "1", "Mon": "Embedded Lab"},
			{"Period": "2"},
		},
	})
	require.NoError(t, err)
	text := strings.TrimPrefix(string(out), "\ufeff")
	assert.Equal(t, "Period,Mon\n1,Embedded Lab\n2,\n", text)
	assert.True(t, bytes.HasPrefix(out, []byte("\ufeff")))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Dataset{
		Headers: []string{"Period", "Mon", "Tue"},
		Rows:    []map[string]string{{"Period": "1", "Mon": "Circuits"}},
	}, "Week of 2024-03-04")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestICSExporterRender(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	out, err := NewICSExporter().Render(Calendar{
		Name:  "Optics Lab",
		Stamp: start,
		Events: []CalendarEvent{{
			UID:      "lab-1-session-7@lab-timetable-api",
			Summary:  "Optics",
			Location: "Optics Lab",
			Start:    start,
			End:      start.Add(100 * time.Minute),
		}},
	})
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "BEGIN:VCALENDAR")
	assert.Contains(t, text, "UID:lab-1-session-7@lab-timetable-api")
	assert.Contains(t, text, "SUMMARY:Optics")
	assert.Contains(t, text, "DTSTART:20240304T080000Z")
	assert.Contains(t, text, "DTEND:20240304T094000Z")
}

func TestICSExporterRejectsBackwardsEvent(t *testing.T) {
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	_, err := NewICSExporter().Render(Calendar{Events: []CalendarEvent{{UID: "x", Start: start, End: start.Add(-time.Minute)}}})
	assert.Error(t, err)
}
