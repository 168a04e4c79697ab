// Package export copies spreadsheet tabs into a standalone .xlsx workbook.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/xuri/excelize/v2"

	"phoneshop/internal/logger"
	"phoneshop/internal/models"
	"phoneshop/internal/sheets"
)

var ErrUnknownSheet = errors.New("unknown sheet")

// Sheets lists the tabs that may be exported, in workbook order.
var Sheets = []string{
	models.SheetInventory,
	models.SheetAccessories,
	models.SheetOrders,
	models.SheetCustomers,
	models.SheetPackages,
	models.SheetWarranty,
	models.SheetHistory,
}

type Exporter struct {
	gateway sheets.Gateway
	logger  *logger.Logger
}

func New(gateway sheets.Gateway, logger *logger.Logger) *Exporter {
	return &Exporter{
		gateway: gateway,
		logger:  logger,
	}
}

// Known reports whether name is an exportable tab.
func Known(name string) bool {
	for _, s := range Sheets {
		if s == name {
			return true
		}
	}
	return false
}

// Export reads the named tabs (all of them when none are given) and returns
// the workbook bytes.
func (e *Exporter) Export(ctx context.Context, names ...string) ([]byte, error) {
	f, err := e.build(ctx, names)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportToFile writes the workbook to path.
func (e *Exporter) ExportToFile(ctx context.Context, path string, names ...string) error {
	data, err := e.Export(ctx, names...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	e.logger.Info("Exported %d bytes to %s", len(data), path)
	return nil
}

func (e *Exporter) build(ctx context.Context, names []string) (*excelize.File, error) {
	if len(names) == 0 {
		names = Sheets
	}
	for _, name := range names {
		if !Known(name) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSheet, name)
		}
	}

	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	for i, name := range names {
		table, err := e.gateway.Read(ctx, name, "")
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				f.Close()
				return nil, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, err
		}
		if err := writeTable(f, name, table, bold); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to export %s: %w", name, err)
		}
		e.logger.Debug("Exported %s: %d rows", name, len(table.Rows))
	}
	return f, nil
}

func writeTable(f *excelize.File, name string, table *sheets.Table, headerStyle int) error {
	for i, row := range table.Values() {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &cells); err != nil {
			return err
		}
	}
	if len(table.Header) == 0 {
		return nil
	}

	last, err := excelize.CoordinatesToCellName(len(table.Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", last, headerStyle); err != nil {
		return err
	}
	return f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}


// cellValue writes amounts and counts as numbers. Longer digit strings are
// IMEIs or serials and stay text so spreadsheet apps do not round them.
func cellValue(v string) interface{} {
	if len(v) == 0 || len(v) > 12 || (len(v) > 1 && v[0] == '0') {
		return v
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}
