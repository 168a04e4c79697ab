// Package sheets is the spreadsheet data access layer: a gateway over the
// backing workbook, a read cache with request throttling, and header-based
// column resolution.
package sheets

import (
	"context"
	"errors"
)

var (
	ErrSheetNotFound  = errors.New("sheet not found")
	ErrRateLimited    = errors.New("spreadsheet rate limit exceeded")
	ErrColumnNotFound = errors.New("column not found")
)

// Gateway is the set of operations the shop needs from a spreadsheet.
type Gateway interface {
	// Read returns the header row and the data rows of a tab. An empty rng
	// reads the whole tab.
	Read(ctx context.Context, sheet, rng string) (*Table, error)
	// AppendRows adds rows after the last data row.
	AppendRows(ctx context.Context, sheet string, rows [][]string) error
	// UpdateRange writes rows into an A1 range such as "A5:K5".
	UpdateRange(ctx context.Context, sheet, rng string, rows [][]string) error
	// OverwriteRange clears the tab and writes rows (header first) from A1.
	OverwriteRange(ctx context.Context, sheet string, rows [][]string) error
}

// Table is a tab read as a header row plus data rows. Every row is padded
// to at least the header width.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]string
}

func newTable(sheet string, values [][]string) *Table {
	t := &Table{Sheet: sheet}
	if len(values) == 0 {
		return t
	}
	t.Header = append([]string(nil), values[0]...)
	for _, row := range values[1:] {
		if isBlank(row) {
			t.Rows = append(t.Rows, make([]string, len(t.Header)))
			continue
		}
		t.Rows = append(t.Rows, pad(row, len(t.Header)))
	}
	return t
}

// SheetRow is the 1-based sheet row number of data row i.
func (t *Table) SheetRow(i int) int {
	return i + 2
}

// Values returns header and rows as one grid, for OverwriteRange.
func (t *Table) Values() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	out = append(out, t.Rows...)
	return out
}

// Clone deep-copies the table so callers can edit rows without touching
// cached data.
func (t *Table) Clone() *Table {
	c := &Table{Sheet: t.Sheet, Header: append([]string(nil), t.Header...)}
	c.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		c.Rows[i] = append([]string(nil), row...)
	}
	return c
}

func pad(row []string, width int) []string {
	if len(row) >= width {
		return append([]string(nil), row...)
	}
	out := make([]string, width)
	copy(out, row)
	return out
}

func isBlank(row []string) bool {
	for _, v := range row {
		if v != "" {
			return false
		}
	}
	return true
}
