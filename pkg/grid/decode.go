package grid

import "fmt"

// Decode turns each sheet into a table keyed by sheet name. When two sheets
// share a name the later one wins.
func Decode(sheets []Sheet) (map[string]*Table, error) {
	tables := make(map[string]*Table, len(sheets))
	for _, sheet := range sheets {
		t, err := NewTable(sheet.Cells)
		if err != nil {
			return nil, fmt.Errorf("decode sheet %q: %w", sheet.Name, err)
		}
		tables[sheet.Name] = t
	}
	return tables, nil
}
