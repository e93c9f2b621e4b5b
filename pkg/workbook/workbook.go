// Package workbook reads and writes sheets as xlsx, csv or JSON files so
// transforms can run from the command line.
package workbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/ulikunitz/xz"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

type Compression string

const (
	CompressionNone Compression = ""
	CompressionZstd Compression = "zst"
	CompressionXZ   Compression = "xz"
)

var ErrUnsupportedFormat = errors.New("unsupported workbook format")

// Detect returns the format and compression implied by a file name, for
// example book.json.zst.
func Detect(path string) (Format, Compression, error) {
	name := strings.ToLower(filepath.Base(path))
	comp := CompressionNone
	switch {
	case strings.HasSuffix(name, ".zst"):
		comp = CompressionZstd
		name = strings.TrimSuffix(name, ".zst")
	case strings.HasSuffix(name, ".xz"):
		comp = CompressionXZ
		name = strings.TrimSuffix(name, ".xz")
	}
	switch filepath.Ext(name) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, comp, nil
	case ".csv":
		return FormatCSV, comp, nil
	case ".json":
		return FormatJSON, comp, nil
	}
	return "", comp, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// Read loads every sheet from path.
func Read(path string) ([]grid.Sheet, error) {
	format, comp, err := Detect(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r, closeFn, err := decompress(f, comp)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	switch format {
	case FormatXLSX:
		return ReadXLSX(r)
	case FormatCSV:
		return ReadCSV(r, sheetNameFromPath(path))
	default:
		return ReadJSON(r)
	}
}

// Write stores sheets at path in the format its name implies.
func Write(path string, sheets []grid.Sheet) (err error) {
	format, comp, err := Detect(path)
	if err != nil {
		return err
	}
	if format == FormatCSV && len(sheets) != 1 {
		return fmt.Errorf("csv output holds exactly one sheet, got %d", len(sheets))
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w, closeFn, err := compress(f, comp)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); err == nil {
			err = cerr
		}
	}()

	switch format {
	case FormatXLSX:
		return WriteXLSX(w, sheets)
	case FormatCSV:
		return WriteCSV(w, sheets[0])
	default:
		return WriteJSON(w, sheets)
	}
}

func decompress(r io.Reader, comp Compression) (io.Reader, func(), error) {
	switch comp {
	case CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return decoder, decoder.Close, nil
	case CompressionXZ:
		xzReader, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xzReader, func() {}, nil
	default:
		return r, func() {}, nil
	}
}

func compress(w io.Writer, comp Compression) (io.Writer, func() error, error) {
	switch comp {
	case CompressionZstd:
		encoder, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return encoder, encoder.Close, nil
	case CompressionXZ:
		xzWriter, err := xz.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create xz writer: %w", err)
		}
		return xzWriter, xzWriter.Close, nil
	default:
		return w, func() error { return nil }, nil
	}
}

// ReadJSON accepts either a list of sheets or an object with a sheets key,
// which is the shape of both transform requests and responses.
func ReadJSON(r io.Reader) ([]grid.Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var sheets []grid.Sheet
		if err := json.Unmarshal(data, &sheets); err != nil {
			return nil, fmt.Errorf("parse sheets: %w", err)
		}
		return sheets, nil
	}
	var wrapper struct {
		Sheets []grid.Sheet `json:"sheets"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse sheets: %w", err)
	}
	return wrapper.Sheets, nil
}

func WriteJSON(w io.Writer, sheets []grid.Sheet) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sheets)
}

// newSheet builds a sheet with empty formats and the given size hints.
func newSheet(name string, cells [][]any, widths, heights []any) grid.Sheet {
	cols := 0
	for _, row := range cells {
		cols = max(cols, len(row))
	}
	formats := make([][]map[string]any, len(cells))
	for r := range formats {
		formats[r] = make([]map[string]any, cols)
		for c := range formats[r] {
			formats[r][c] = map[string]any{}
		}
	}
	return grid.Sheet{Name: name, Cells: cells, ColumnWidths: widths, RowHeights: heights, Formats: formats}
}

// parseValue turns canonical numeric text into a number and leaves
// everything else as text, so "007" stays a string and "2.0" stays a float.
func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(i, 10) == s {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !grid.IsMissing(f) && grid.Stringify(f) == s {
		return f
	}
	return s
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func sheetNameFromPath(path string) string {
	name := filepath.Base(path)
	for _, ext := range []string{".zst", ".xz", ".csv", ".CSV"} {
		name = strings.TrimSuffix(name, ext)
	}
	if name == "" {
		return "Sheet1"
	}
	return name
}
