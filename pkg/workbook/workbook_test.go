package workbook

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sameehj/gridbridge/pkg/grid"
)

func sampleSheets() []grid.Sheet {
	return []grid.Sheet{
		newSheet("Data", [][]any{{"name", "qty"}, {"apple", int64(3)}, {"pear", 2.5}}, []any{120.0, 80.0}, []any{20.0, 20.0, 20.0}),
		newSheet("Notes", [][]any{{"007"}}, []any{100.0}, []any{15.0}),
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		path   string
		format Format
		comp   Compression
	}{
		{"book.xlsx", FormatXLSX, CompressionNone},
		{"dir/Book.JSON.zst", FormatJSON, CompressionZstd},
		{"a.csv.xz", FormatCSV, CompressionXZ},
	}
	for _, tc := range cases {
		format, comp, err := Detect(tc.path)
		if err != nil || format != tc.format || comp != tc.comp {
			t.Fatalf("Detect(%s) = %s %q %v", tc.path, format, comp, err)
		}
	}
	if _, _, err := Detect("book.ods"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestJSONRoundTripCompressed(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"book.json", "book.json.zst", "book.json.xz"} {
		path := filepath.Join(dir, name)
		if err := Write(path, sampleSheets()); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
		sheets, err := Read(path)
		if err != nil {
			t.Fatalf("Read(%s): %v", name, err)
		}
		if len(sheets) != 2 || sheets[0].Name != "Data" || sheets[1].Name != "Notes" {
			t.Fatalf("%s: unexpected sheets %+v", name, sheets)
		}
		if grid.Stringify(sheets[0].Cells[1][1]) != "3" {
			t.Fatalf("%s: unexpected qty %#v", name, sheets[0].Cells[1][1])
		}
	}
}

func TestReadJSONAcceptsResponseShape(t *testing.T) {
	sheets, err := ReadJSON(strings.NewReader(`{"sheets":[{"name":"S","cells":[["x"]]}],"stdout":"hi"}`))
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if len(sheets) != 1 || sheets[0].Name != "S" {
		t.Fatalf("unexpected sheets %+v", sheets)
	}
}

func TestParseValueKeepsCellText(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"3", int64(3)},
		{"2.0", 2.0},
		{"2.5", 2.5},
		{"007", "007"},
		{"2.50", "2.50"},
		{"nan", "nan"},
	}
	for _, tc := range cases {
		if got := parseValue(tc.in); got != tc.want {
			t.Fatalf("parseValue(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestCSVRoundTrip(t *testing.T) {
	sheets, err := ReadCSV(strings.NewReader("a,b,c\n1,2\n007,x,y\n"), "input")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	sheet := sheets[0]
	if sheet.Name != "input" || len(sheet.ColumnWidths) != 3 || len(sheet.RowHeights) != 3 {
		t.Fatalf("unexpected sheet %+v", sheet)
	}
	if sheet.Cells[1][0] != int64(1) || sheet.Cells[2][0] != "007" {
		t.Fatalf("unexpected values %#v %#v", sheet.Cells[1][0], sheet.Cells[2][0])
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, sheet); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if buf.String() != "a,b,c\n1,2\n007,x,y\n" {
		t.Fatalf("unexpected csv %q", buf.String())
	}

	if err := Write(filepath.Join(t.TempDir(), "out.csv"), sampleSheets()); err == nil {
		t.Fatalf("expected error writing two sheets to csv")
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.xlsx")
	if err := Write(path, sampleSheets()); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatalf("expected xlsx on disk: %v", err)
	}
	sheets, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(sheets) != 2 || sheets[0].Name != "Data" || sheets[1].Name != "Notes" {
		t.Fatalf("unexpected sheets %+v", sheets)
	}
	data := sheets[0]
	if rows, cols := data.Dims(); rows != 3 || cols != 2 {
		t.Fatalf("unexpected dims %dx%d", rows, cols)
	}
	if data.Cells[1][1] != int64(3) || data.Cells[2][1] != 2.5 {
		t.Fatalf("unexpected numbers %#v %#v", data.Cells[1][1], data.Cells[2][1])
	}
	if w, _ := toFloat(data.ColumnWidths[0]); w < 119 || w > 121 {
		t.Fatalf("unexpected width %v", data.ColumnWidths[0])
	}
	if sheets[1].Cells[0][0] != "007" {
		t.Fatalf("expected leading zeros kept, got %#v", sheets[1].Cells[0][0])
	}
}

func TestDiff(t *testing.T) {
	before := []grid.Sheet{
		newSheet("A", [][]any{{"x", "y"}, {"1", "2"}}, nil, nil),
		newSheet("B", [][]any{{"same"}}, nil, nil),
	}
	after := []grid.Sheet{
		newSheet("A", [][]any{{"x", "y"}, {"1", "3"}, {"4", ""}}, nil, nil),
		newSheet("B", [][]any{{"same"}}, nil, nil),
	}
	diffs := Diff(before, after)
	if len(diffs) != 2 {
		t.Fatalf("expected 2 diffs, got %d", len(diffs))
	}
	if diffs[0].Added != 2 || diffs[0].Removed != 1 || !diffs[0].Changed() {
		t.Fatalf("unexpected diff for A: %+v", diffs[0])
	}
	if diffs[1].Changed() {
		t.Fatalf("expected B unchanged: %+v", diffs[1])
	}

	var buf bytes.Buffer
	if err := WriteDiff(&buf, diffs); err != nil {
		t.Fatalf("WriteDiff: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "@@ A (+2 -1)") || !strings.Contains(out, "-   2  1\t2") || !strings.Contains(out, "+   2  1\t3") {
		t.Fatalf("unexpected diff output:\n%s", out)
	}
	if strings.Contains(out, "@@ B") {
		t.Fatalf("unchanged sheet printed:\n%s", out)
	}
}
