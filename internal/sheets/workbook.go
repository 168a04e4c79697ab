package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/xuri/excelize/v2"
)

// WorkbookGateway keeps the shop data in a local .xlsx file. Every write is
// saved straight back to disk.
type WorkbookGateway struct {
	mu   sync.Mutex
	path string
	file *excelize.File
}

// NewWorkbookGateway opens path, creating the workbook when it does not
// exist. Tabs listed in layout are created with their header row when
// missing.
func NewWorkbookGateway(path string, layout map[string][]string) (*WorkbookGateway, error) {
	var f *excelize.File
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
	} else {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
	}

	g := &WorkbookGateway{path: path, file: f}
	for name, header := range layout {
		if err := g.ensureSheet(name, header); err != nil {
			return nil, err
		}
	}
	if idx, err := f.GetSheetIndex("Sheet1"); err == nil && idx >= 0 && len(f.GetSheetList()) > 1 {
		if _, ok := layout["Sheet1"]; !ok {
			if err := f.DeleteSheet("Sheet1"); err != nil {
				return nil, fmt.Errorf("failed to drop default sheet: %w", err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("failed to save workbook: %w", err)
	}
	return g, nil
}

func (g *WorkbookGateway) ensureSheet(name string, header []string) error {
	idx, err := g.file.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx >= 0 {
		return nil
	}
	if _, err := g.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", name, err)
	}
	return g.writeRow(name, 1, header)
}

func (g *WorkbookGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.file.Close()
}

func (g *WorkbookGateway) rows(sheet string) ([][]string, error) {
	idx, err := g.file.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	rows, err := g.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	return rows, nil
}

func (g *WorkbookGateway) Read(ctx context.Context, sheet, rng string) (*Table, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rows, err := g.rows(sheet)
	if err != nil {
		return nil, err
	}
	if rng == "" {
		return newTable(sheet, rows), nil
	}
	sub, err := subGrid(rows, rng)
	if err != nil {
		return nil, err
	}
	return newTable(sheet, sub), nil
}

func (g *WorkbookGateway) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := g.rows(sheet)
	if err != nil {
		return err
	}
	last := len(existing)
	for last > 0 && isBlank(existing[last-1]) {
		last--
	}
	for i, row := range rows {
		if err := g.writeRow(sheet, last+i+1, row); err != nil {
			return err
		}
	}
	return g.save()
}

func (g *WorkbookGateway) UpdateRange(ctx context.Context, sheet, rng string, rows [][]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := g.rows(sheet); err != nil {
		return err
	}
	col, row, _, _, err := splitRange(rng)
	if err != nil {
		return err
	}
	for i, values := range rows {
		for j, v := range values {
			cell, err := CellName(col+j, row+i)
			if err != nil {
				return err
			}
			if err := g.file.SetCellValue(sheet, cell, cellValue(v)); err != nil {
				return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
			}
		}
	}
	return g.save()
}

func (g *WorkbookGateway) OverwriteRange(ctx context.Context, sheet string, rows [][]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	existing, err := g.rows(sheet)
	if err != nil {
		return err
	}
	for r := len(existing); r >= 1; r-- {
		if err := g.file.RemoveRow(sheet, r); err != nil {
			return fmt.Errorf("failed to clear %s: %w", sheet, err)
		}
	}
	for i, row := range rows {
		if err := g.writeRow(sheet, i+1, row); err != nil {
			return err
		}
	}
	return g.save()
}

func (g *WorkbookGateway) writeRow(sheet string, row int, values []string) error {
	cell, err := CellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = cellValue(v)
	}
	if err := g.file.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func (g *WorkbookGateway) save() error {
	if err := g.file.SaveAs(g.path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// cellValue stores integers as numbers, like a USER_ENTERED write, unless
// the value was marked with Literal.
func cellValue(v string) interface{} {
	if v != literalValue(v) {
		return literalValue(v)
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil && len(v) < 16 && (len(v) == 1 || v[0] != '0') {
		return n
	}
	return v
}
