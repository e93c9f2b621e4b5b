package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Sheet is one named grid as exchanged with the spreadsheet front-end.
// Cells may be ragged. Keys the bridge does not know are kept in Extra and
// written back unchanged.
type Sheet struct {
	Name         string
	Cells        [][]any
	ColumnWidths []any
	RowHeights   []any
	Formats      [][]map[string]any
	Extra        map[string]json.RawMessage

	// raw holds the inbound encoding until the sheet is rebuilt, so a sheet
	// nobody touched is re-emitted byte for byte.
	raw json.RawMessage
}

var knownKeys = map[string]bool{
	"name":         true,
	"cells":        true,
	"columnWidths": true,
	"rowHeights":   true,
	"formats":      true,
}

func (s *Sheet) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: sheet is not an object: %v", ErrInvalidGrid, err)
	}
	if fields == nil {
		return fmt.Errorf("%w: sheet is null", ErrInvalidGrid)
	}

	out := Sheet{}
	if raw, ok := fields["name"]; ok {
		if err := json.Unmarshal(raw, &out.Name); err != nil {
			return fmt.Errorf("%w: sheet name must be a string", ErrInvalidGrid)
		}
	}
	if raw, ok := fields["cells"]; ok {
		var rows []json.RawMessage
		if err := decodeNumbers(raw, &rows); err != nil {
			return fmt.Errorf("%w: sheet %q: cells must be a list of rows", ErrInvalidGrid, out.Name)
		}
		out.Cells = make([][]any, len(rows))
		for i, row := range rows {
			var cells []any
			if err := decodeNumbers(row, &cells); err != nil {
				return fmt.Errorf("%w: sheet %q: row %d is not a list", ErrInvalidGrid, out.Name, i)
			}
			out.Cells[i] = cells
		}
	}
	if raw, ok := fields["columnWidths"]; ok {
		if err := decodeNumbers(raw, &out.ColumnWidths); err != nil {
			return fmt.Errorf("%w: sheet %q: columnWidths must be a list", ErrInvalidGrid, out.Name)
		}
	}
	if raw, ok := fields["rowHeights"]; ok {
		if err := decodeNumbers(raw, &out.RowHeights); err != nil {
			return fmt.Errorf("%w: sheet %q: rowHeights must be a list", ErrInvalidGrid, out.Name)
		}
	}
	if raw, ok := fields["formats"]; ok {
		// Formats are opaque and never read; a shape we cannot parse is dropped.
		var formats [][]map[string]any
		if err := json.Unmarshal(raw, &formats); err == nil {
			out.Formats = formats
		}
	}
	for key, raw := range fields {
		if knownKeys[key] {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage)
		}
		out.Extra[key] = raw
	}
	out.raw = append(json.RawMessage(nil), data...)
	*s = out
	return nil
}

func (s Sheet) MarshalJSON() ([]byte, error) {
	if s.raw != nil {
		return s.raw, nil
	}
	out := make(map[string]any, len(s.Extra)+5)
	for key, raw := range s.Extra {
		out[key] = raw
	}
	out["name"] = s.Name
	if s.Cells != nil {
		out["cells"] = s.Cells
	}
	if s.ColumnWidths != nil {
		out["columnWidths"] = s.ColumnWidths
	}
	if s.RowHeights != nil {
		out["rowHeights"] = s.RowHeights
	}
	if s.Formats != nil {
		out["formats"] = s.Formats
	}
	return json.Marshal(out)
}

// Dims reports the row count and the width of the first row.
func (s Sheet) Dims() (rows, cols int) {
	rows = len(s.Cells)
	if rows > 0 {
		cols = len(s.Cells[0])
	}
	return rows, cols
}

// Clone returns a deep copy of the cell grid and metadata. The copy is
// marshalled from its fields, not from the inbound encoding.
func (s Sheet) Clone() Sheet {
	out := Sheet{Name: s.Name}
	if s.Cells != nil {
		out.Cells = make([][]any, len(s.Cells))
		for i, row := range s.Cells {
			out.Cells[i] = append([]any(nil), row...)
		}
	}
	if s.ColumnWidths != nil {
		out.ColumnWidths = append([]any(nil), s.ColumnWidths...)
	}
	if s.RowHeights != nil {
		out.RowHeights = append([]any(nil), s.RowHeights...)
	}
	if s.Formats != nil {
		out.Formats = make([][]map[string]any, len(s.Formats))
		for i, row := range s.Formats {
			out.Formats[i] = append([]map[string]any(nil), row...)
		}
	}
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
