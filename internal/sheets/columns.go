package sheets

import (
	"context"
	"fmt"
	"strings"

	"phoneshop/internal/vn"
)

// Field describes one logical column and the header spellings it accepts.
type Field struct {
	Name     string
	Aliases  []string
	Optional bool
}

// Schema is the ordered list of fields a service expects in a tab. The first
// alias of each field is the canonical header used when creating the tab.
type Schema []Field

// Header returns the canonical header row.
func (s Schema) Header() []string {
	out := make([]string, len(s))
	for i, f := range s {
		out[i] = f.Aliases[0]
	}
	return out
}

// Columns maps field names to 0-based positions in a concrete header.
type Columns struct {
	index map[string]int
	width int
}

// Resolve matches header cells against the schema. Exact matches on the
// folded header win over substring matches; the leftmost header wins ties.
func (s Schema) Resolve(header []string) (*Columns, error) {
	keys := make([]string, len(header))
	for i, h := range header {
		keys[i] = vn.Key(h)
	}

	cols := &Columns{index: make(map[string]int, len(s)), width: len(header)}
	taken := make(map[int]bool, len(s))
	var missing []string

	for _, f := range s {
		cols.index[f.Name] = -1
		if idx := matchExact(keys, f.Aliases, taken); idx >= 0 {
			taken[idx] = true
			cols.index[f.Name] = idx
		}
	}
	for _, f := range s {
		if cols.index[f.Name] >= 0 {
			continue
		}
		if idx := matchContains(keys, f.Aliases, taken); idx >= 0 {
			taken[idx] = true
			cols.index[f.Name] = idx
			continue
		}
		if !f.Optional {
			missing = append(missing, f.Aliases[0])
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, strings.Join(missing, ", "))
	}
	return cols, nil
}

func matchExact(keys []string, aliases []string, taken map[int]bool) int {
	for _, alias := range aliases {
		want := vn.Key(alias)
		for i, k := range keys {
			if !taken[i] && k == want {
				return i
			}
		}
	}
	return -1
}

func matchContains(keys []string, aliases []string, taken map[int]bool) int {
	for _, alias := range aliases {
		want := vn.Key(alias)
		if want == "" {
			continue
		}
		for i, k := range keys {
			if !taken[i] && k != "" && strings.Contains(k, want) {
				return i
			}
		}
	}
	return -1
}

// Index is the position of field, or -1 when an optional field is absent.
func (c *Columns) Index(field string) int {
	idx, ok := c.index[field]
	if !ok {
		return -1
	}
	return idx
}

// Has reports whether the field was found in the header.
func (c *Columns) Has(field string) bool {
	return c.Index(field) >= 0
}

// Width is the header width the columns were resolved against.
func (c *Columns) Width() int {
	return c.width
}

// Get reads a trimmed cell; absent fields and short rows read as "".
func (c *Columns) Get(row []string, field string) string {
	idx := c.Index(field)
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Set writes a cell, growing the row when needed, and returns the row.
// Writes to absent optional fields are dropped.
func (c *Columns) Set(row []string, field, value string) []string {
	idx := c.Index(field)
	if idx < 0 {
		return row
	}
	for len(row) <= idx {
		row = append(row, "")
	}
	row[idx] = value
	return row
}

// NewRow builds a row of header width from field values.
func (c *Columns) NewRow(values map[string]string) []string {
	row := make([]string, c.width)
	for field, v := range values {
		row = c.Set(row, field, v)
	}
	return row
}

// Load reads a whole tab and resolves its header against schema.
func Load(ctx context.Context, gw Gateway, sheet string, schema Schema) (*Table, *Columns, error) {
	table, err := gw.Read(ctx, sheet, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	cols, err := schema.Resolve(table.Header)
	if err != nil {
		return nil, nil, fmt.Errorf("sheet %s: %w", sheet, err)
	}
	return table, cols, nil
}

// Invalidator is implemented by gateways that cache reads.
type Invalidator interface {
	Invalidate(sheet string)
}

// LoadFresh is Load past any read cache. Writers locate their target rows
// with it, so row positions match the tab as it is upstream right now.
func LoadFresh(ctx context.Context, gw Gateway, sheet string, schema Schema) (*Table, *Columns, error) {
	if inv, ok := gw.(Invalidator); ok {
		inv.Invalidate(sheet)
	}
	return Load(ctx, gw, sheet, schema)
}

// WithLiterals returns a copy of row with the given fields marked as text,
// for rows rewritten from values that were read back.
func (c *Columns) WithLiterals(row []string, fields ...string) []string {
	out := append([]string(nil), row...)
	for _, field := range fields {
		if idx := c.Index(field); idx >= 0 && idx < len(out) {
			out[idx] = Literal(out[idx])
		}
	}
	return out
}
