package runtime

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"
)

func toStarlark(v any) starlark.Value {
	switch x := v.(type) {
	case nil:
		return starlark.None
	case string:
		return starlark.String(x)
	case int64:
		return starlark.MakeInt64(x)
	case float64:
		return starlark.Float(x)
	case bool:
		return starlark.Bool(x)
	default:
		return starlark.String(fmt.Sprint(x))
	}
}

// fromStarlark converts a script value into a cell value.
func fromStarlark(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.String:
		return string(x), nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i, nil
		}
		return x.String(), nil
	case starlark.Float:
		return float64(x), nil
	case starlark.Bool:
		return bool(x), nil
	default:
		return nil, fmt.Errorf("cannot store %s in a cell", v.Type())
	}
}

func listToCells(v starlark.Value) ([]any, error) {
	if col, ok := v.(*Column); ok {
		values, _ := col.frame.table.Column(col.label)
		return values, nil
	}
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("got %s, want list of cell values", v.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var out []any
	var item starlark.Value
	for iter.Next(&item) {
		cell, err := fromStarlark(item)
		if err != nil {
			return nil, err
		}
		out = append(out, cell)
	}
	return out, nil
}

func rowsFromStarlark(v starlark.Value) ([][]any, error) {
	iterable, ok := v.(starlark.Iterable)
	if !ok {
		return nil, fmt.Errorf("got %s, want list of rows", v.Type())
	}
	iter := iterable.Iterate()
	defer iter.Done()
	var rows [][]any
	var item starlark.Value
	for iter.Next(&item) {
		row, err := listToCells(item)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(rows), err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cellsToList(values []any) *starlark.List {
	elems := make([]starlark.Value, len(values))
	for i, v := range values {
		elems[i] = toStarlark(v)
	}
	return starlark.NewList(elems)
}

func isMissing(v starlark.Value) bool {
	switch x := v.(type) {
	case starlark.NoneType:
		return true
	case starlark.Float:
		return math.IsNaN(float64(x))
	}
	return false
}

// index resolves a possibly negative position against n.
func index(v starlark.Value, n int, what string) (int, error) {
	i, err := starlark.AsInt32(v)
	if err != nil {
		return 0, fmt.Errorf("%s index: %w", what, err)
	}
	if i < 0 {
		i += n
	}
	return i, nil
}
