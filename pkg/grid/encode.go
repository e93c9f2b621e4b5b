package grid

// Encode writes tables back into the sheets they came from and returns the
// reconciled sheets in the original order. Sheets without a table are passed
// through untouched. Tables under names that match no sheet are ignored.
//
// A reconciled sheet is never smaller than the original in either
// dimension, every cell is text, and formats are reset to empty records.
// The input slice is not modified.
func Encode(sheets []Sheet, tables map[string]*Table) ([]Sheet, error) {
	out := make([]Sheet, len(sheets))
	for i, sheet := range sheets {
		t, ok := tables[sheet.Name]
		if !ok || t == nil {
			out[i] = sheet
			continue
		}
		rebuilt, err := reconcile(sheet, t)
		if err != nil {
			return nil, err
		}
		out[i] = rebuilt
	}
	return out, nil
}

func reconcile(sheet Sheet, t *Table) (Sheet, error) {
	origRows, origCols := sheet.Dims()
	newRows, newCols := t.Shape()
	if newRows == 0 {
		newCols = 0
	}
	rows := max(origRows, newRows)
	cols := max(origCols, newCols)

	cells := make([][]any, rows)
	for r := range cells {
		row := make([]any, cols)
		for c := range row {
			row[c] = ""
		}
		if r < newRows {
			for c := 0; c < newCols; c++ {
				row[c] = Stringify(t.rows[r][c])
			}
		}
		cells[r] = row
	}

	widths, err := repeatFirst(sheet, "columnWidths", sheet.ColumnWidths, cols)
	if err != nil {
		return Sheet{}, err
	}
	heights, err := repeatFirst(sheet, "rowHeights", sheet.RowHeights, rows)
	if err != nil {
		return Sheet{}, err
	}

	formats := make([][]map[string]any, rows)
	for r := range formats {
		formats[r] = make([]map[string]any, cols)
		for c := range formats[r] {
			formats[r][c] = map[string]any{}
		}
	}

	out := sheet.Clone()
	out.Cells = cells
	out.ColumnWidths = widths
	out.RowHeights = heights
	out.Formats = formats
	return out, nil
}

func repeatFirst(sheet Sheet, field string, values []any, n int) ([]any, error) {
	out := make([]any, n)
	if n == 0 {
		return out, nil
	}
	if len(values) == 0 {
		return nil, &ReconcileError{Sheet: sheet.Name, Field: field, Reason: "no template value to repeat"}
	}
	for i := range out {
		out[i] = values[0]
	}
	return out, nil
}
