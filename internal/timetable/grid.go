package timetable

import (
	"time"

	"github.com/noah-isme/lab-timetable-api/internal/models"
)

// Coord addresses a grid cell.
type Coord struct {
	Weekday int `json:"weekday"`
	Period  int `json:"period"`
}

// CellKind tells what occupies a cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellHead
	CellContinuation
)

// Cell is one (weekday, period) position of the grid.
//
// A head cell carries the full session. A continuation cell only carries the
// coordinates of its head plus the id of the persisted fragment stored at that
// period, if any. Orphan is set for a fragment whose head is missing from the
// week, which happens after a partially failed delete; it then keeps the raw
// fragment in Session so the stray can still be shown and removed.
type Cell struct {
	Kind       CellKind        `json:"kind"`
	Session    *models.Session `json:"session,omitempty"`
	Head       Coord           `json:"head"`
	FragmentID int64           `json:"fragment_id,omitempty"`
	Orphan     bool            `json:"orphan,omitempty"`
}

// Empty reports whether nothing occupies the cell.
func (c Cell) Empty() bool {
	return c.Kind == CellEmpty
}

// Grid is an immutable occupancy table for one lab week.
type Grid struct {
	LabID  int64
	Monday time.Time
	dates  [DaysPerWeek]time.Time
	cells  [DaysPerWeek][PeriodsPerDay]Cell
}

// Fragment is a persisted period row belonging to a session.
type Fragment struct {
	Period int   `json:"period"`
	ID     int64 `json:"id"`
}

// Resolution is the answer to a cell query with continuations redirected to their head.
type Resolution struct {
	Coord          Coord           `json:"coord"`
	Head           *models.Session `json:"head,omitempty"`
	IsContinuation bool            `json:"is_continuation"`
	Stale          bool            `json:"stale"`
}

// Empty reports whether the query resolved to no session.
func (r Resolution) Empty() bool {
	return r.Head == nil
}

// BuildGrid projects a fetched week into a grid. Heads are placed first, then
// the cells they cover are marked as continuations, then the ids of the stored
// continuation fragments are attached.
func BuildGrid(week models.WeekView) *Grid {
	g := &Grid{LabID: week.LabID, Monday: MondayOf(week.Monday)}
	for i := range g.dates {
		g.dates[i] = DateFor(g.Monday, i+1)
	}

	for _, day := range week.Days {
		if !ValidWeekday(day.Weekday) {
			continue
		}
		for _, slot := range day.Slots {
			s := slot.Session
			if s == nil || !ValidPeriod(slot.Period) || s.StartPeriod != slot.Period {
				continue
			}
			g.cells[day.Weekday-1][slot.Period-1] = Cell{
				Kind:       CellHead,
				Session:    s,
				Head:       Coord{Weekday: day.Weekday, Period: slot.Period},
				FragmentID: s.ID,
			}
		}
	}

	for w := 1; w <= DaysPerWeek; w++ {
		for p := 1; p <= PeriodsPerDay; p++ {
			cell := g.cells[w-1][p-1]
			if cell.Kind != CellHead {
				continue
			}
			duration, _ := Clamp(p, cell.Session.Duration)
			for q := p + 1; q < p+duration; q++ {
				if g.cells[w-1][q-1].Kind != CellEmpty {
					continue
				}
				g.cells[w-1][q-1] = Cell{Kind: CellContinuation, Head: cell.Head}
			}
		}
	}

	for _, day := range week.Days {
		if !ValidWeekday(day.Weekday) {
			continue
		}
		for _, slot := range day.Slots {
			s := slot.Session
			if s == nil || !ValidPeriod(slot.Period) || s.StartPeriod == slot.Period {
				continue
			}
			cell := &g.cells[day.Weekday-1][slot.Period-1]
			head := Coord{Weekday: day.Weekday, Period: s.StartPeriod}
			switch {
			case cell.Kind == CellContinuation && cell.Head == head:
				cell.FragmentID = s.ID
			case cell.Kind == CellEmpty:
				*cell = Cell{Kind: CellContinuation, Head: head, FragmentID: s.ID, Orphan: true, Session: s}
			}
		}
	}
	return g
}

// Cell returns the raw cell, or an empty cell for out-of-range coordinates.
func (g *Grid) Cell(weekday, period int) Cell {
	if g == nil || !ValidWeekday(weekday) || !ValidPeriod(period) {
		return Cell{}
	}
	return g.cells[weekday-1][period-1]
}

// Date returns the calendar day of weekday in this grid's week.
func (g *Grid) Date(weekday int) time.Time {
	if g == nil || !ValidWeekday(weekday) {
		return time.Time{}
	}
	return g.dates[weekday-1]
}

// Resolve answers a cell query. Heads and empty cells are returned as they are;
// a continuation is redirected to the nearest head before it on the same day
// whose range covers the period. If none covers it the grid is stale and the
// cell is reported empty with Stale set.
func (g *Grid) Resolve(weekday, period int) Resolution {
	at := Coord{Weekday: weekday, Period: period}
	cell := g.Cell(weekday, period)
	switch cell.Kind {
	case CellEmpty:
		return Resolution{Coord: at}
	case CellHead:
		return Resolution{Coord: at, Head: cell.Session}
	}
	for q := period - 1; q >= 1; q-- {
		candidate := g.cells[weekday-1][q-1]
		if candidate.Kind == CellHead && candidate.Session.Covers(period) {
			return Resolution{
				Coord:          Coord{Weekday: weekday, Period: q},
				Head:           candidate.Session,
				IsContinuation: true,
			}
		}
	}
	return Resolution{Coord: at, Stale: true}
}

// Occupant returns the session occupying a cell, following continuations.
// Orphan fragments are reported as themselves.
func (g *Grid) Occupant(weekday, period int) *models.Session {
	cell := g.Cell(weekday, period)
	if cell.Orphan {
		return cell.Session
	}
	return g.Resolve(weekday, period).Head
}

// FragmentsOf lists the persisted fragments belonging to the session whose head
// is at head, walking duration periods from the head. Fragments without a
// persisted id are skipped.
func (g *Grid) FragmentsOf(head Coord, duration int) []Fragment {
	duration, _ = Clamp(head.Period, duration)
	out := make([]Fragment, 0, duration)
	for i := 0; i < duration; i++ {
		p := head.Period + i
		cell := g.Cell(head.Weekday, p)
		if cell.Kind == CellEmpty || cell.Head != head || cell.FragmentID == 0 {
			continue
		}
		out = append(out, Fragment{Period: p, ID: cell.FragmentID})
	}
	return out
}

// Heads returns every head session ordered by weekday then period.
func (g *Grid) Heads() []*models.Session {
	if g == nil {
		return nil
	}
	var out []*models.Session
	for w := 0; w < DaysPerWeek; w++ {
		for p := 0; p < PeriodsPerDay; p++ {
			if g.cells[w][p].Kind == CellHead {
				out = append(out, g.cells[w][p].Session)
			}
		}
	}
	return out
}

// Orphans returns the coordinates of fragments whose head is missing.
func (g *Grid) Orphans() []Coord {
	if g == nil {
		return nil
	}
	var out []Coord
	for w := 0; w < DaysPerWeek; w++ {
		for p := 0; p < PeriodsPerDay; p++ {
			if g.cells[w][p].Orphan {
				out = append(out, Coord{Weekday: w + 1, Period: p + 1})
			}
		}
	}
	return out
}

// Rows renders the grid as [weekday][period] cells for serialisation.
func (g *Grid) Rows() [][]Cell {
	rows := make([][]Cell, DaysPerWeek)
	for w := range rows {
		rows[w] = make([]Cell, PeriodsPerDay)
		if g != nil {
			copy(rows[w], g.cells[w][:])
		}
	}
	return rows
}
