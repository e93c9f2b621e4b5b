package runtime

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/sameehj/gridbridge/pkg/grid"
)

// Column is a live view of one labelled column of a Frame.
type Column struct {
	frame *Frame
	label string
}

var (
	_ starlark.HasSetIndex = (*Column)(nil)
	_ starlark.Iterable    = (*Column)(nil)
	_ starlark.HasAttrs    = (*Column)(nil)
)

func (c *Column) values() []any {
	values, _ := c.frame.table.Column(c.label)
	return values
}

func (c *Column) String() string {
	return fmt.Sprintf("Column(%q, %d rows)", c.label, c.Len())
}

func (c *Column) Type() string          { return "Column" }
func (c *Column) Freeze()               { c.frame.Freeze() }
func (c *Column) Truth() starlark.Bool  { return c.Len() > 0 }
func (c *Column) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Column") }
func (c *Column) Len() int              { return len(c.values()) }

func (c *Column) Index(i int) starlark.Value {
	values := c.values()
	if i < 0 || i >= len(values) {
		return starlark.None
	}
	return toStarlark(values[i])
}

func (c *Column) SetIndex(i int, v starlark.Value) error {
	if err := c.frame.checkMutable(); err != nil {
		return err
	}
	pos, ok := c.frame.table.ColumnPos(c.label)
	if !ok {
		return fmt.Errorf("column %q was dropped", c.label)
	}
	cell, err := fromStarlark(v)
	if err != nil {
		return err
	}
	return c.frame.table.Set(i, pos, cell)
}

func (c *Column) Iterate() starlark.Iterator {
	return cellsToList(c.values()).Iterate()
}

var columnMethods = map[string]*starlark.Builtin{
	"tolist": starlark.NewBuiltin("tolist", columnToList),
	"apply":  starlark.NewBuiltin("apply", columnApply),
	"sum":    starlark.NewBuiltin("sum", columnSum),
}

func (c *Column) Attr(name string) (starlark.Value, error) {
	if name == "name" {
		return starlark.String(c.label), nil
	}
	if b, ok := columnMethods[name]; ok {
		return b.BindReceiver(c), nil
	}
	return nil, nil
}

func (c *Column) AttrNames() []string {
	return []string{"apply", "name", "sum", "tolist"}
}

func columnToList(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return cellsToList(b.Receiver().(*Column).values()), nil
}

// columnApply returns a list of fn(cell) for every cell of the column.
func columnApply(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &fn); err != nil {
		return nil, err
	}
	values := b.Receiver().(*Column).values()
	out := make([]starlark.Value, len(values))
	for i, v := range values {
		res, err := starlark.Call(thread, fn, starlark.Tuple{toStarlark(v)}, nil)
		if err != nil {
			return nil, err
		}
		out[i] = res
	}
	return starlark.NewList(out), nil
}

// columnSum adds numeric cells, skipping missing values. Strings are an error.
func columnSum(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	var total starlark.Value = starlark.MakeInt(0)
	for _, v := range b.Receiver().(*Column).values() {
		if grid.IsMissing(v) {
			continue
		}
		next, err := starlark.Binary(syntax.PLUS, total, toStarlark(v))
		if err != nil {
			return nil, fmt.Errorf("sum: %w", err)
		}
		total = next
	}
	return total, nil
}

// positionIndexer implements df.iloc[r, c] and df.iloc[r].
type positionIndexer struct {
	frame *Frame
}

var _ starlark.HasSetKey = (*positionIndexer)(nil)

func (p *positionIndexer) String() string        { return "<iloc indexer>" }
func (p *positionIndexer) Type() string          { return "iloc" }
func (p *positionIndexer) Freeze()               { p.frame.Freeze() }
func (p *positionIndexer) Truth() starlark.Bool  { return starlark.True }
func (p *positionIndexer) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: iloc") }

func (p *positionIndexer) Get(k starlark.Value) (starlark.Value, bool, error) {
	rows, cols := p.frame.table.Shape()
	if key, ok := k.(starlark.Tuple); ok {
		r, c, err := cellKey(key, rows, cols)
		if err != nil {
			return nil, false, err
		}
		v, err := p.frame.table.At(r, c)
		if err != nil {
			return nil, false, fmt.Errorf("iloc: %w", err)
		}
		return toStarlark(v), true, nil
	}
	r, err := index(k, rows, "row")
	if err != nil {
		return nil, false, err
	}
	row, err := p.frame.table.Row(r)
	if err != nil {
		return nil, false, fmt.Errorf("iloc: %w", err)
	}
	return cellsToList(row), true, nil
}

func (p *positionIndexer) SetKey(k, v starlark.Value) error {
	if err := p.frame.checkMutable(); err != nil {
		return err
	}
	rows, cols := p.frame.table.Shape()
	key, ok := k.(starlark.Tuple)
	if !ok {
		r, err := index(k, rows, "row")
		if err != nil {
			return err
		}
		cells, err := listToCells(v)
		if err != nil {
			return fmt.Errorf("iloc row %d: %w", r, err)
		}
		for c, cell := range cells {
			if err := p.frame.table.Set(r, c, cell); err != nil {
				return fmt.Errorf("iloc: %w", err)
			}
		}
		return nil
	}
	r, c, err := cellKey(key, rows, cols)
	if err != nil {
		return err
	}
	cell, err := fromStarlark(v)
	if err != nil {
		return err
	}
	if err := p.frame.table.Set(r, c, cell); err != nil {
		return fmt.Errorf("iloc: %w", err)
	}
	return nil
}

func cellKey(key starlark.Tuple, rows, cols int) (int, int, error) {
	if len(key) != 2 {
		return 0, 0, fmt.Errorf("iloc key must be [row, column], got %d elements", len(key))
	}
	r, err := index(key[0], rows, "row")
	if err != nil {
		return 0, 0, err
	}
	c, err := index(key[1], cols, "column")
	if err != nil {
		return 0, 0, err
	}
	return r, c, nil
}

// labelIndexer implements df.at[r, "A"].
type labelIndexer struct {
	frame *Frame
}

var _ starlark.HasSetKey = (*labelIndexer)(nil)

func (l *labelIndexer) String() string        { return "<at indexer>" }
func (l *labelIndexer) Type() string          { return "at" }
func (l *labelIndexer) Freeze()               { l.frame.Freeze() }
func (l *labelIndexer) Truth() starlark.Bool  { return starlark.True }
func (l *labelIndexer) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: at") }

func (l *labelIndexer) key(k starlark.Value) (int, int, error) {
	key, ok := k.(starlark.Tuple)
	if !ok || len(key) != 2 {
		return 0, 0, fmt.Errorf("at key must be [row, label]")
	}
	rows, _ := l.frame.table.Shape()
	r, err := index(key[0], rows, "row")
	if err != nil {
		return 0, 0, err
	}
	label, ok := starlark.AsString(key[1])
	if !ok {
		return 0, 0, fmt.Errorf("at column label must be a string, got %s", key[1].Type())
	}
	c, found := l.frame.table.ColumnPos(label)
	if !found {
		return 0, 0, fmt.Errorf("no column %q", label)
	}
	return r, c, nil
}

func (l *labelIndexer) Get(k starlark.Value) (starlark.Value, bool, error) {
	r, c, err := l.key(k)
	if err != nil {
		return nil, false, err
	}
	v, err := l.frame.table.At(r, c)
	if err != nil {
		return nil, false, fmt.Errorf("at: %w", err)
	}
	return toStarlark(v), true, nil
}

func (l *labelIndexer) SetKey(k, v starlark.Value) error {
	if err := l.frame.checkMutable(); err != nil {
		return err
	}
	r, c, err := l.key(k)
	if err != nil {
		return err
	}
	cell, err := fromStarlark(v)
	if err != nil {
		return err
	}
	if err := l.frame.table.Set(r, c, cell); err != nil {
		return fmt.Errorf("at: %w", err)
	}
	return nil
}
