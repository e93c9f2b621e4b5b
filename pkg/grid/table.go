package grid

import (
	"fmt"
)

// Table is the tabular view of a sheet handed to scripts: ordered labelled
// columns over row-major values. Every row has exactly one value per column.
type Table struct {
	columns []string
	rows    [][]any
}

// NewTable builds a table from possibly ragged rows. Columns are labelled
// positionally over the widest row and short rows are padded with missing
// values.
func NewTable(rows [][]any) (*Table, error) {
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	columns := make([]string, width)
	for i := range columns {
		label, err := ColumnLabel(i)
		if err != nil {
			return nil, err
		}
		columns[i] = label
	}
	t := &Table{columns: columns, rows: make([][]any, len(rows))}
	for i, row := range rows {
		out := make([]any, width)
		for j, v := range row {
			out[j] = Normalize(v)
		}
		t.rows[i] = out
	}
	return t, nil
}

// NewLabeledTable builds a table with explicit column labels. Short rows are
// padded; rows wider than the label list are rejected.
func NewLabeledTable(columns []string, rows [][]any) (*Table, error) {
	t := &Table{columns: append([]string(nil), columns...), rows: make([][]any, len(rows))}
	for i, row := range rows {
		if len(row) > len(columns) {
			return nil, fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(columns))
		}
		out := make([]any, len(columns))
		for j, v := range row {
			out[j] = Normalize(v)
		}
		t.rows[i] = out
	}
	return t, nil
}

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return len(t.rows), len(t.columns)
}

func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// ColumnPos returns the position of the column with the given label.
func (t *Table) ColumnPos(label string) (int, bool) {
	for i, c := range t.columns {
		if c == label {
			return i, true
		}
	}
	return -1, false
}

func (t *Table) At(row, col int) (any, error) {
	if err := t.check(row, col); err != nil {
		return nil, err
	}
	return t.rows[row][col], nil
}

// Set stores v at (row, col). Writing one past the last row or column
// grows the table by that row or column first.
func (t *Table) Set(row, col int, v any) error {
	if row < 0 || row > len(t.rows) {
		return fmt.Errorf("row %d out of range [0, %d]", row, len(t.rows))
	}
	if col < 0 || col > len(t.columns) {
		return fmt.Errorf("column %d out of range [0, %d]", col, len(t.columns))
	}
	if col == len(t.columns) {
		label, err := t.nextLabel()
		if err != nil {
			return err
		}
		t.addColumn(label, nil)
	}
	if row == len(t.rows) {
		if err := t.AppendRow(nil); err != nil {
			return err
		}
	}
	t.rows[row][col] = Normalize(v)
	return nil
}

// Row returns a copy of one row.
func (t *Table) Row(row int) ([]any, error) {
	if row < 0 || row >= len(t.rows) {
		return nil, fmt.Errorf("row %d out of range [0, %d)", row, len(t.rows))
	}
	return append([]any(nil), t.rows[row]...), nil
}

// Rows returns a copy of the values, row-major in column order.
func (t *Table) Rows() [][]any {
	out := make([][]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = append([]any(nil), row...)
	}
	return out
}

// Column returns a copy of one column's values.
func (t *Table) Column(label string) ([]any, bool) {
	pos, ok := t.ColumnPos(label)
	if !ok {
		return nil, false
	}
	out := make([]any, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[pos]
	}
	return out, true
}

// SetColumn replaces the column with the given label, or appends a new one.
// A table with no columns takes its row count from values.
func (t *Table) SetColumn(label string, values []any) error {
	if len(t.columns) == 0 && len(t.rows) == 0 {
		for range values {
			t.rows = append(t.rows, []any{})
		}
	}
	if len(values) != len(t.rows) {
		return fmt.Errorf("column %q has %d values, table has %d rows", label, len(values), len(t.rows))
	}
	pos, ok := t.ColumnPos(label)
	if !ok {
		t.addColumn(label, values)
		return nil
	}
	for i := range t.rows {
		t.rows[i][pos] = Normalize(values[i])
	}
	return nil
}

// DropColumn removes a column by label.
func (t *Table) DropColumn(label string) error {
	pos, ok := t.ColumnPos(label)
	if !ok {
		return fmt.Errorf("no column %q", label)
	}
	t.columns = append(t.columns[:pos:pos], t.columns[pos+1:]...)
	for i, row := range t.rows {
		t.rows[i] = append(row[:pos:pos], row[pos+1:]...)
	}
	return nil
}

// AppendRow adds a row at the bottom, truncating or padding it to the
// table width. Extra values beyond the width grow the table.
func (t *Table) AppendRow(values []any) error {
	return t.InsertRow(len(t.rows), values)
}

func (t *Table) InsertRow(at int, values []any) error {
	if at < 0 || at > len(t.rows) {
		return fmt.Errorf("row %d out of range [0, %d]", at, len(t.rows))
	}
	for len(values) > len(t.columns) {
		label, err := t.nextLabel()
		if err != nil {
			return err
		}
		t.addColumn(label, nil)
	}
	row := make([]any, len(t.columns))
	for i, v := range values {
		row[i] = Normalize(v)
	}
	t.rows = append(t.rows, nil)
	copy(t.rows[at+1:], t.rows[at:])
	t.rows[at] = row
	return nil
}

func (t *Table) DropRow(at int) error {
	if at < 0 || at >= len(t.rows) {
		return fmt.Errorf("row %d out of range [0, %d)", at, len(t.rows))
	}
	t.rows = append(t.rows[:at], t.rows[at+1:]...)
	return nil
}

// Head returns a copy of the first n rows.
func (t *Table) Head(n int) *Table {
	if n < 0 {
		n = len(t.rows) + n
		if n < 0 {
			n = 0
		}
	}
	if n > len(t.rows) {
		n = len(t.rows)
	}
	out := &Table{columns: t.Columns(), rows: make([][]any, n)}
	for i := 0; i < n; i++ {
		out.rows[i] = append([]any(nil), t.rows[i]...)
	}
	return out
}

func (t *Table) Copy() *Table {
	return t.Head(len(t.rows))
}

// Map returns a new table with fn applied to every value.
func (t *Table) Map(fn func(any) (any, error)) (*Table, error) {
	out := t.Copy()
	for _, row := range out.rows {
		for j, v := range row {
			nv, err := fn(v)
			if err != nil {
				return nil, err
			}
			row[j] = Normalize(nv)
		}
	}
	return out, nil
}

// Concat stacks tables row-wise. Columns are matched by label; labels
// missing from a table yield missing values.
func Concat(tables ...*Table) *Table {
	out := &Table{}
	seen := map[string]bool{}
	for _, t := range tables {
		for _, c := range t.columns {
			if !seen[c] {
				seen[c] = true
				out.columns = append(out.columns, c)
			}
		}
	}
	for _, t := range tables {
		for _, row := range t.rows {
			nr := make([]any, len(out.columns))
			for j, c := range t.columns {
				pos, _ := out.ColumnPos(c)
				nr[pos] = row[j]
			}
			out.rows = append(out.rows, nr)
		}
	}
	return out
}

func (t *Table) addColumn(label string, values []any) {
	t.columns = append(t.columns, label)
	for i := range t.rows {
		var v any
		if i < len(values) {
			v = Normalize(values[i])
		}
		t.rows[i] = append(t.rows[i], v)
	}
}

func (t *Table) nextLabel() (string, error) {
	for i := len(t.columns); ; i++ {
		label, err := ColumnLabel(i)
		if err != nil {
			return "", err
		}
		if _, taken := t.ColumnPos(label); !taken {
			return label, nil
		}
	}
}

func (t *Table) check(row, col int) error {
	if row < 0 || row >= len(t.rows) {
		return fmt.Errorf("row %d out of range [0, %d)", row, len(t.rows))
	}
	if col < 0 || col >= len(t.columns) {
		return fmt.Errorf("column %d out of range [0, %d)", col, len(t.columns))
	}
	return nil
}
