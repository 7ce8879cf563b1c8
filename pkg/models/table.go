package models

import "fmt"

// Table is an ordered set of rows over named columns. Values are kept exactly
// as the source supplied them.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Has reports whether the table carries a column with exactly this name.
func (t *Table) Has(name string) bool {
	return t.Index(name) >= 0
}

// Value returns the cell at row for column name ("" when either is missing or
// the row is short).
func (t *Table) Value(row int, name string) string {
	idx := t.Index(name)
	if idx < 0 || row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][idx]
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]string, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = append([]string(nil), r...)
	}
	return out
}

// Records returns one column->value map per row, for JSON consumers that
// prefer objects over positional rows.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for i := range t.Rows {
		rec := make(map[string]string, len(t.Columns))
		for _, c := range t.Columns {
			rec[c] = t.Value(i, c)
		}
		out = append(out, rec)
	}
	return out
}

// Melt reshapes the table from wide to long form. Every input row yields one
// output row per value column, holding the id columns, the value column's name
// under varName and its cell under valueName. When idVars is empty every
// column outside valueVars is kept as an id column.
func (t *Table) Melt(spec MeltSpec) (*Table, error) {
	cols := MeltColumns(spec, t.Columns)
	ids := cols[:len(cols)-2]
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("melt: output column %q appears twice", c)
		}
		seen[c] = struct{}{}
	}
	for _, c := range append(append([]string(nil), ids...), spec.ValueVars...) {
		if !t.Has(c) {
			return nil, fmt.Errorf("melt: column %q not in table", c)
		}
	}

	out := &Table{Columns: cols, Rows: make([][]string, 0, len(t.Rows)*len(spec.ValueVars))}
	for _, v := range spec.ValueVars {
		for i := range t.Rows {
			row := make([]string, 0, len(cols))
			for _, id := range ids {
				row = append(row, t.Value(i, id))
			}
			row = append(row, v, t.Value(i, v))
			out.Rows = append(out.Rows, row)
		}
	}
	return out, nil
}

// MeltColumns is the column set Melt would produce, without touching rows.
func MeltColumns(spec MeltSpec, columns []string) []string {
	ids := spec.IDVars
	if len(ids) == 0 {
		skip := make(map[string]struct{}, len(spec.ValueVars))
		for _, v := range spec.ValueVars {
			skip[v] = struct{}{}
		}
		for _, c := range columns {
			if _, ok := skip[c]; !ok {
				ids = append(ids, c)
			}
		}
	}
	return append(append([]string(nil), ids...), spec.VarName, spec.ValueName)
}
