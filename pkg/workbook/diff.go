package workbook

import (
	"fmt"
	"io"
	"strings"

	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/sergi/go-diff/diffmatchpatch"
)

const MaxDiffLines = 5000

const (
	LineContext = "context"
	LineAdded   = "added"
	LineRemoved = "removed"
)

type Line struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	OldLine int    `json:"old_line,omitempty"`
	NewLine int    `json:"new_line,omitempty"`
}

// SheetDiff is the row-level change to one sheet. Rows are compared as
// tab-separated text.
type SheetDiff struct {
	Sheet   string `json:"sheet"`
	Lines   []Line `json:"lines,omitempty"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	// TooLarge is set when the sheet exceeded MaxDiffLines and was skipped.
	TooLarge bool `json:"too_large,omitempty"`
}

func (d SheetDiff) Changed() bool {
	return d.Added > 0 || d.Removed > 0 || d.TooLarge
}

// Diff compares sheets by name in the order of before.
func Diff(before, after []grid.Sheet) []SheetDiff {
	next := make(map[string]grid.Sheet, len(after))
	for _, sheet := range after {
		next[sheet.Name] = sheet
	}
	out := make([]SheetDiff, 0, len(before))
	for _, sheet := range before {
		out = append(out, diffSheet(sheet.Name, sheetText(sheet), sheetText(next[sheet.Name])))
	}
	return out
}

func diffSheet(name, before, after string) SheetDiff {
	result := SheetDiff{Sheet: name}
	if lineCount(before)+lineCount(after) > MaxDiffLines {
		result.TooLarge = before != after
		return result
	}

	dmp := diffmatchpatch.New()
	beforeChars, afterChars, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(beforeChars, afterChars, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	oldLine, newLine := 1, 1
	for _, d := range diffs {
		chunk := strings.Split(d.Text, "\n")
		if len(chunk) > 0 && chunk[len(chunk)-1] == "" {
			chunk = chunk[:len(chunk)-1]
		}
		for _, text := range chunk {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				result.Lines = append(result.Lines, Line{Type: LineContext, Text: text, OldLine: oldLine, NewLine: newLine})
				oldLine++
				newLine++
			case diffmatchpatch.DiffDelete:
				result.Lines = append(result.Lines, Line{Type: LineRemoved, Text: text, OldLine: oldLine})
				result.Removed++
				oldLine++
			case diffmatchpatch.DiffInsert:
				result.Lines = append(result.Lines, Line{Type: LineAdded, Text: text, NewLine: newLine})
				result.Added++
				newLine++
			}
		}
	}
	return result
}

// WriteDiff prints changed rows of every changed sheet.
func WriteDiff(w io.Writer, diffs []SheetDiff) error {
	for _, d := range diffs {
		if !d.Changed() {
			continue
		}
		if _, err := fmt.Fprintf(w, "@@ %s (+%d -%d)\n", d.Sheet, d.Added, d.Removed); err != nil {
			return err
		}
		if d.TooLarge {
			if _, err := fmt.Fprintln(w, "  (diff too large)"); err != nil {
				return err
			}
			continue
		}
		for _, line := range d.Lines {
			var prefix string
			var num int
			switch line.Type {
			case LineAdded:
				prefix, num = "+", line.NewLine
			case LineRemoved:
				prefix, num = "-", line.OldLine
			default:
				continue
			}
			if _, err := fmt.Fprintf(w, "%s%4d  %s\n", prefix, num, line.Text); err != nil {
				return err
			}
		}
	}
	return nil
}

func sheetText(sheet grid.Sheet) string {
	var b strings.Builder
	for _, row := range sheet.Cells {
		for i, v := range row {
			if i > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(grid.Stringify(v))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func lineCount(value string) int {
	if value == "" {
		return 0
	}
	return strings.Count(value, "\n") + 1
}
