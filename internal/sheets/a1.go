package sheets

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// CellName converts 1-based column/row numbers to "B7".
func CellName(col, row int) (string, error) {
	return excelize.CoordinatesToCellName(col, row)
}

// RowRange is the A1 range covering width cells of one sheet row,
// e.g. RowRange(5, 11) == "A5:K5".
func RowRange(row, width int) (string, error) {
	if width < 1 {
		return "", fmt.Errorf("row range width %d", width)
	}
	start, err := CellName(1, row)
	if err != nil {
		return "", err
	}
	end, err := CellName(width, row)
	if err != nil {
		return "", err
	}
	return start + ":" + end, nil
}

// qualify prefixes a range with a quoted tab name: 'Kho'!A1:K9.
func qualify(sheet, rng string) string {
	quoted := "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
	if rng == "" {
		return quoted
	}
	return quoted + "!" + rng
}

// splitRange parses "A5:K9" into its 1-based corners. A single cell is its
// own end.
func splitRange(rng string) (col1, row1, col2, row2 int, err error) {
	parts := strings.Split(strings.TrimSpace(rng), ":")
	if len(parts) == 0 || len(parts) > 2 {
		return 0, 0, 0, 0, fmt.Errorf("invalid range %q", rng)
	}
	col1, row1, err = excelize.CellNameToCoordinates(parts[0])
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("invalid range %q: %w", rng, err)
	}
	col2, row2 = col1, row1
	if len(parts) == 2 {
		col2, row2, err = excelize.CellNameToCoordinates(parts[1])
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("invalid range %q: %w", rng, err)
		}
	}
	return col1, row1, col2, row2, nil
}

// Literal marks an all-digit value (IMEI, phone) as text so a USER_ENTERED
// write does not coerce it into a number and drop leading zeros.
func Literal(v string) string {
	if v == "" {
		return v
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return v
		}
	}
	return "'" + v
}

// literalValue is how a spreadsheet stores a typed value: a leading
// apostrophe only forces text and is not part of the cell.
func literalValue(v string) string {
	return strings.TrimPrefix(v, "'")
}
