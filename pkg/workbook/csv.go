package workbook

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/sameehj/gridbridge/pkg/grid"
)

// Default sizes for sheets read from formats that carry none.
const (
	defaultColumnWidth = 100
	defaultRowHeight   = 21
)

// ReadCSV loads one sheet. Rows may have different lengths.
func ReadCSV(r io.Reader, name string) ([]grid.Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	cols := 0
	cells := make([][]any, len(records))
	for i, record := range records {
		cols = max(cols, len(record))
		cells[i] = make([]any, len(record))
		for j, v := range record {
			cells[i][j] = parseValue(v)
		}
	}
	widths := make([]any, cols)
	for i := range widths {
		widths[i] = defaultColumnWidth
	}
	heights := make([]any, len(records))
	for i := range heights {
		heights[i] = defaultRowHeight
	}
	return []grid.Sheet{newSheet(name, cells, widths, heights)}, nil
}

func WriteCSV(w io.Writer, sheet grid.Sheet) error {
	writer := csv.NewWriter(w)
	for _, row := range sheet.Cells {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = grid.Stringify(v)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
