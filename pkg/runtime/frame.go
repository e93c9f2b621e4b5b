package runtime

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"

	"github.com/sameehj/gridbridge/pkg/grid"
)

const previewRows = 20

// Frame exposes a grid.Table to scripts as a DataFrame-like value.
type Frame struct {
	table  *grid.Table
	frozen bool
}

var (
	_ starlark.HasAttrs  = (*Frame)(nil)
	_ starlark.HasSetKey = (*Frame)(nil)
	_ starlark.Sequence  = (*Frame)(nil)
)

func NewFrame(t *grid.Table) *Frame {
	return &Frame{table: t}
}

func (f *Frame) Table() *grid.Table { return f.table }

func (f *Frame) String() string {
	rows, cols := f.table.Shape()
	var b strings.Builder
	b.WriteString(strings.Join(f.table.Columns(), "\t"))
	for i := 0; i < rows && i < previewRows; i++ {
		row, _ := f.table.Row(i)
		b.WriteByte('\n')
		for j, v := range row {
			if j > 0 {
				b.WriteByte('\t')
			}
			b.WriteString(grid.Stringify(v))
		}
	}
	if rows > previewRows {
		fmt.Fprintf(&b, "\n... (%d more rows)", rows-previewRows)
	}
	fmt.Fprintf(&b, "\n[%d rows x %d columns]", rows, cols)
	return b.String()
}

func (f *Frame) Type() string          { return "DataFrame" }
func (f *Frame) Freeze()               { f.frozen = true }
func (f *Frame) Truth() starlark.Bool  { return starlark.True }
func (f *Frame) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: DataFrame") }

func (f *Frame) Len() int {
	rows, _ := f.table.Shape()
	return rows
}

// Iterate yields column labels.
func (f *Frame) Iterate() starlark.Iterator {
	labels := f.table.Columns()
	elems := make(starlark.Tuple, len(labels))
	for i, l := range labels {
		elems[i] = starlark.String(l)
	}
	return elems.Iterate()
}

// Get implements df["A"].
func (f *Frame) Get(k starlark.Value) (starlark.Value, bool, error) {
	label, ok := starlark.AsString(k)
	if !ok {
		return nil, false, fmt.Errorf("DataFrame column key must be a string, got %s", k.Type())
	}
	if _, found := f.table.ColumnPos(label); !found {
		return nil, false, fmt.Errorf("no column %q (columns: %s)", label, strings.Join(f.table.Columns(), ", "))
	}
	return &Column{frame: f, label: label}, true, nil
}

// SetKey implements df["A"] = values. A scalar is broadcast to every row.
func (f *Frame) SetKey(k, v starlark.Value) error {
	if err := f.checkMutable(); err != nil {
		return err
	}
	label, ok := starlark.AsString(k)
	if !ok {
		return fmt.Errorf("DataFrame column key must be a string, got %s", k.Type())
	}
	values, err := columnValues(v, f.Len())
	if err != nil {
		return fmt.Errorf("set column %q: %w", label, err)
	}
	return f.table.SetColumn(label, values)
}

func columnValues(v starlark.Value, rows int) ([]any, error) {
	if cell, err := fromStarlark(v); err == nil {
		values := make([]any, rows)
		for i := range values {
			values[i] = cell
		}
		return values, nil
	}
	return listToCells(v)
}

func (f *Frame) checkMutable() error {
	if f.frozen {
		return fmt.Errorf("cannot modify frozen DataFrame")
	}
	return nil
}

var frameMethods = map[string]*starlark.Builtin{
	"rows":       starlark.NewBuiltin("rows", frameRows),
	"to_rows":    starlark.NewBuiltin("to_rows", frameRows),
	"append":     starlark.NewBuiltin("append", frameAppend),
	"insert_row": starlark.NewBuiltin("insert_row", frameInsertRow),
	"drop_row":   starlark.NewBuiltin("drop_row", frameDropRow),
	"drop":       starlark.NewBuiltin("drop", frameDrop),
	"head":       starlark.NewBuiltin("head", frameHead),
	"copy":       starlark.NewBuiltin("copy", frameCopy),
	"fillna":     starlark.NewBuiltin("fillna", frameFillna),
	"apply":      starlark.NewBuiltin("apply", frameApply),
}

func (f *Frame) Attr(name string) (starlark.Value, error) {
	switch name {
	case "shape":
		rows, cols := f.table.Shape()
		return starlark.Tuple{starlark.MakeInt(rows), starlark.MakeInt(cols)}, nil
	case "columns":
		labels := f.table.Columns()
		elems := make([]starlark.Value, len(labels))
		for i, l := range labels {
			elems[i] = starlark.String(l)
		}
		return starlark.NewList(elems), nil
	case "empty":
		rows, cols := f.table.Shape()
		return starlark.Bool(rows == 0 || cols == 0), nil
	case "iloc":
		return &positionIndexer{frame: f}, nil
	case "at":
		return &labelIndexer{frame: f}, nil
	}
	if b, ok := frameMethods[name]; ok {
		return b.BindReceiver(f), nil
	}
	return nil, nil
}

func (f *Frame) AttrNames() []string {
	names := []string{"shape", "columns", "empty", "iloc", "at"}
	for name := range frameMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func receiverFrame(b *starlark.Builtin) *Frame {
	return b.Receiver().(*Frame)
}

func frameRows(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	rows := receiverFrame(b).table.Rows()
	out := make([]starlark.Value, len(rows))
	for i, row := range rows {
		out[i] = cellsToList(row)
	}
	return starlark.NewList(out), nil
}

func frameAppend(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var row starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &row); err != nil {
		return nil, err
	}
	f := receiverFrame(b)
	if err := f.checkMutable(); err != nil {
		return nil, err
	}
	cells, err := listToCells(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if err := f.table.AppendRow(cells); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func frameInsertRow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var at int
	var row starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &at, &row); err != nil {
		return nil, err
	}
	f := receiverFrame(b)
	if err := f.checkMutable(); err != nil {
		return nil, err
	}
	cells, err := listToCells(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if err := f.table.InsertRow(at, cells); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func frameDropRow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var at starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &at); err != nil {
		return nil, err
	}
	f := receiverFrame(b)
	if err := f.checkMutable(); err != nil {
		return nil, err
	}
	i, err := index(at, f.Len(), "row")
	if err != nil {
		return nil, err
	}
	if err := f.table.DropRow(i); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func frameDrop(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var label string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &label); err != nil {
		return nil, err
	}
	f := receiverFrame(b)
	if err := f.checkMutable(); err != nil {
		return nil, err
	}
	if err := f.table.DropColumn(label); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func frameHead(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return NewFrame(receiverFrame(b).table.Head(n)), nil
}

func frameCopy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return NewFrame(receiverFrame(b).table.Copy()), nil
}

func frameFillna(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &value); err != nil {
		return nil, err
	}
	fill, err := fromStarlark(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	out, err := receiverFrame(b).table.Map(func(v any) (any, error) {
		if grid.IsMissing(v) {
			return fill, nil
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return NewFrame(out), nil
}

// frameApply calls fn on every cell and returns a new DataFrame.
func frameApply(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &fn); err != nil {
		return nil, err
	}
	out, err := receiverFrame(b).table.Map(func(v any) (any, error) {
		res, err := starlark.Call(thread, fn, starlark.Tuple{toStarlark(v)}, nil)
		if err != nil {
			return nil, err
		}
		return fromStarlark(res)
	})
	if err != nil {
		return nil, err
	}
	return NewFrame(out), nil
}
