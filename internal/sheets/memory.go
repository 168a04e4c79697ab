package sheets

import (
	"context"
	"fmt"
	"sync"
)

// MemoryGateway keeps tabs in process. It backs SHEETS_BACKEND=memory and
// the service tests.
type MemoryGateway struct {
	mu     sync.Mutex
	tabs   map[string][][]string
	reads  int
	writes int
	fail   []error
}

func NewMemoryGateway(seed map[string][][]string) *MemoryGateway {
	g := &MemoryGateway{tabs: make(map[string][][]string)}
	for name, values := range seed {
		g.tabs[name] = copyGrid(values)
	}
	return g
}

// FailNext makes the next upstream calls return errs in order.
func (g *MemoryGateway) FailNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = append(g.fail, errs...)
}

// Calls reports how many reads and writes reached the gateway.
func (g *MemoryGateway) Calls() (reads, writes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reads, g.writes
}

// Snapshot returns a copy of a tab's raw grid.
func (g *MemoryGateway) Snapshot(sheet string) [][]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyGrid(g.tabs[sheet])
}

func (g *MemoryGateway) popFailure() error {
	if len(g.fail) == 0 {
		return nil
	}
	err := g.fail[0]
	g.fail = g.fail[1:]
	return err
}

func (g *MemoryGateway) Read(ctx context.Context, sheet, rng string) (*Table, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reads++
	if err := g.popFailure(); err != nil {
		return nil, err
	}

	grid, ok := g.tabs[sheet]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	if rng == "" {
		return newTable(sheet, copyGrid(grid)), nil
	}

	sub, err := subGrid(grid, rng)
	if err != nil {
		return nil, err
	}
	return newTable(sheet, sub), nil
}

func (g *MemoryGateway) AppendRows(ctx context.Context, sheet string, rows [][]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes++
	if err := g.popFailure(); err != nil {
		return err
	}

	grid, ok := g.tabs[sheet]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	last := len(grid)
	for last > 0 && isBlank(grid[last-1]) {
		last--
	}
	grid = append(grid[:last], literalGrid(rows)...)
	g.tabs[sheet] = grid
	return nil
}

func (g *MemoryGateway) UpdateRange(ctx context.Context, sheet, rng string, rows [][]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes++
	if err := g.popFailure(); err != nil {
		return err
	}

	grid, ok := g.tabs[sheet]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	col1, row1, _, _, err := splitRange(rng)
	if err != nil {
		return err
	}
	for i, values := range rows {
		r := row1 + i
		for len(grid) < r {
			grid = append(grid, nil)
		}
		row := grid[r-1]
		for j, v := range values {
			c := col1 + j
			for len(row) < c {
				row = append(row, "")
			}
			row[c-1] = literalValue(v)
		}
		grid[r-1] = row
	}
	g.tabs[sheet] = grid
	return nil
}

func (g *MemoryGateway) OverwriteRange(ctx context.Context, sheet string, rows [][]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes++
	if err := g.popFailure(); err != nil {
		return err
	}

	if _, ok := g.tabs[sheet]; !ok {
		return fmt.Errorf("%w: %s", ErrSheetNotFound, sheet)
	}
	g.tabs[sheet] = literalGrid(rows)
	return nil
}

func copyGrid(values [][]string) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = append([]string(nil), row...)
	}
	return out
}

func literalGrid(values [][]string) [][]string {
	out := copyGrid(values)
	for _, row := range out {
		for j, v := range row {
			row[j] = literalValue(v)
		}
	}
	return out
}

// subGrid cuts an A1 range out of a grid, filling missing cells with "".
func subGrid(grid [][]string, rng string) ([][]string, error) {
	col1, row1, col2, row2, err := splitRange(rng)
	if err != nil {
		return nil, err
	}
	var sub [][]string
	for r := row1; r <= row2 && r <= len(grid); r++ {
		row := grid[r-1]
		cells := make([]string, 0, col2-col1+1)
		for c := col1; c <= col2; c++ {
			if c <= len(row) {
				cells = append(cells, row[c-1])
			} else {
				cells = append(cells, "")
			}
		}
		sub = append(sub, cells)
	}
	return sub, nil
}
