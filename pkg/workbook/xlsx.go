package workbook

import (
	"fmt"
	"io"

	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/xuri/excelize/v2"
)

// ReadXLSX loads every worksheet with its raw cell values, column widths
// and row heights.
func ReadXLSX(r io.Reader) ([]grid.Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sheets []grid.Sheet
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		cols := 0
		cells := make([][]any, len(rows))
		for r, row := range rows {
			cols = max(cols, len(row))
			cells[r] = make([]any, len(row))
			for c, v := range row {
				cells[r][c] = parseValue(v)
			}
		}

		widths := make([]any, cols)
		for c := range widths {
			label, err := excelize.ColumnNumberToName(c + 1)
			if err != nil {
				return nil, err
			}
			w, err := f.GetColWidth(name, label)
			if err != nil {
				return nil, fmt.Errorf("read width of %s!%s: %w", name, label, err)
			}
			widths[c] = w
		}
		heights := make([]any, len(rows))
		for r := range heights {
			h, err := f.GetRowHeight(name, r+1)
			if err != nil {
				return nil, fmt.Errorf("read height of %s row %d: %w", name, r+1, err)
			}
			heights[r] = h
		}
		sheets = append(sheets, newSheet(name, cells, widths, heights))
	}
	return sheets, nil
}

// WriteXLSX writes sheets in order. Numeric text is stored as numbers.
func WriteXLSX(w io.Writer, sheets []grid.Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	defaultName := f.GetSheetName(0)
	for i, sheet := range sheets {
		if i == 0 {
			if err := f.SetSheetName(defaultName, sheet.Name); err != nil {
				return fmt.Errorf("name sheet %q: %w", sheet.Name, err)
			}
		} else if _, err := f.NewSheet(sheet.Name); err != nil {
			return fmt.Errorf("add sheet %q: %w", sheet.Name, err)
		}
		if err := writeSheet(f, sheet); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet grid.Sheet) error {
	for r, row := range sheet.Cells {
		values := make([]any, len(row))
		for c, v := range row {
			if s, ok := v.(string); ok {
				values[c] = parseValue(s)
				continue
			}
			values[c] = grid.Normalize(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet.Name, cell, &values); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet.Name, r+1, err)
		}
	}
	for c, v := range sheet.ColumnWidths {
		width, ok := toFloat(v)
		if !ok || width <= 0 {
			continue
		}
		label, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet.Name, label, label, width); err != nil {
			return fmt.Errorf("set width of %s!%s: %w", sheet.Name, label, err)
		}
	}
	for r, v := range sheet.RowHeights {
		height, ok := toFloat(v)
		if !ok || height <= 0 {
			continue
		}
		if err := f.SetRowHeight(sheet.Name, r+1, height); err != nil {
			return fmt.Errorf("set height of %s row %d: %w", sheet.Name, r+1, err)
		}
	}
	return nil
}
