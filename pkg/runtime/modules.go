package runtime

import (
	"fmt"
	"io"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/sameehj/gridbridge/pkg/grid"
)

// pdModule is the table library handle bound as pd.
var pdModule = &starlarkstruct.Module{
	Name: "pd",
	Members: starlark.StringDict{
		"DataFrame": starlark.NewBuiltin("DataFrame", pdDataFrame),
		"concat":    starlark.NewBuiltin("concat", pdConcat),
		"isna":      starlark.NewBuiltin("isna", pdIsNA),
		"notna":     starlark.NewBuiltin("notna", pdNotNA),
		"NA":        starlark.None,
	},
}

func pdDataFrame(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data?", &data); err != nil {
		return nil, err
	}
	switch x := data.(type) {
	case starlark.NoneType:
		t, _ := grid.NewTable(nil)
		return NewFrame(t), nil
	case *Frame:
		return NewFrame(x.table.Copy()), nil
	case *starlark.Dict:
		return frameFromDict(x)
	}
	rows, err := rowsFromStarlark(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	t, err := grid.NewTable(rows)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return NewFrame(t), nil
}

// frameFromDict builds a frame from {label: [values...]} in key order.
func frameFromDict(d *starlark.Dict) (starlark.Value, error) {
	t, _ := grid.NewTable(nil)
	for _, item := range d.Items() {
		label, ok := starlark.AsString(item[0])
		if !ok {
			return nil, fmt.Errorf("DataFrame: column label must be a string, got %s", item[0].Type())
		}
		values, err := listToCells(item[1])
		if err != nil {
			return nil, fmt.Errorf("DataFrame: column %q: %w", label, err)
		}
		if err := t.SetColumn(label, values); err != nil {
			return nil, fmt.Errorf("DataFrame: %w", err)
		}
	}
	return NewFrame(t), nil
}

func pdConcat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var frames *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "frames", &frames); err != nil {
		return nil, err
	}
	tables := make([]*grid.Table, 0, frames.Len())
	for i := 0; i < frames.Len(); i++ {
		f, ok := frames.Index(i).(*Frame)
		if !ok {
			return nil, fmt.Errorf("%s: element %d is %s, want DataFrame", b.Name(), i, frames.Index(i).Type())
		}
		tables = append(tables, f.table)
	}
	return NewFrame(grid.Concat(tables...)), nil
}

func pdIsNA(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return starlark.Bool(isMissing(v)), nil
}

func pdNotNA(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	return starlark.Bool(!isMissing(v)), nil
}

// textModule carries Unicode-aware string helpers.
var textModule = &starlarkstruct.Module{
	Name: "text",
	Members: starlark.StringDict{
		"fold":  stringFunc("fold", func(s string) string { return cases.Fold().String(s) }),
		"title": stringFunc("title", func(s string) string { return cases.Title(language.Und).String(s) }),
		"upper": stringFunc("upper", func(s string) string { return cases.Upper(language.Und).String(s) }),
		"lower": stringFunc("lower", func(s string) string { return cases.Lower(language.Und).String(s) }),
		"nfc":   stringFunc("nfc", norm.NFC.String),
		"nfkc":  stringFunc("nfkc", norm.NFKC.String),
		"width": stringFunc("width", width.Narrow.String),
	},
}

func stringFunc(name string, fn func(string) string) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var v starlark.Value
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
			return nil, err
		}
		if isMissing(v) {
			return starlark.None, nil
		}
		s, ok := starlark.AsString(v)
		if !ok {
			s = v.String()
		}
		return starlark.String(fn(s)), nil
	})
}

// stream is a writable output bound as sys.stdout or sys.stderr.
type stream struct {
	name string
	w    io.Writer
}

func (s *stream) String() string        { return "<" + s.name + ">" }
func (s *stream) Type() string          { return "stream" }
func (s *stream) Freeze()               {}
func (s *stream) Truth() starlark.Bool  { return starlark.True }
func (s *stream) Hash() (uint32, error) { return starlark.String(s.name).Hash() }

func (s *stream) Attr(name string) (starlark.Value, error) {
	if name != "write" {
		return nil, nil
	}
	return starlark.NewBuiltin("write", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var text string
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
			return nil, err
		}
		n, _ := io.WriteString(s.w, text)
		return starlark.MakeInt(n), nil
	}), nil
}

func (s *stream) AttrNames() []string { return []string{"write"} }

func sysModule(stdout, stderr *stream) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name:    "sys",
		Members: starlark.StringDict{"stdout": stdout, "stderr": stderr},
	}
}

const stdoutLocal = "gridbridge.stdout"

func threadStdout(thread *starlark.Thread) *stream {
	if st, ok := thread.Local(stdoutLocal).(*stream); ok {
		return st
	}
	return &stream{name: "stdout", w: io.Discard}
}

// printBuiltin mirrors print(*args, sep=" ", end="\n", file=sys.stdout).
// Output goes to the stream attached to the calling thread, so functions
// from cached library modules print into the current request.
var printBuiltin = starlark.NewBuiltin("print", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep, end := " ", "\n"
	out := threadStdout(thread)
	for _, kv := range kwargs {
		key, _ := starlark.AsString(kv[0])
		switch key {
		case "sep", "end":
			s, ok := starlark.AsString(kv[1])
			if !ok && kv[1] != starlark.None {
				return nil, fmt.Errorf("print: %s must be a string", key)
			}
			if ok && key == "sep" {
				sep = s
			} else if ok {
				end = s
			}
		case "file":
			st, ok := kv[1].(*stream)
			if !ok {
				return nil, fmt.Errorf("print: file must be sys.stdout or sys.stderr")
			}
			out = st
		default:
			return nil, fmt.Errorf("print: unexpected keyword argument %s", key)
		}
	}
	var buf strings.Builder
	for i, v := range args {
		if i > 0 {
			buf.WriteString(sep)
		}
		if s, ok := starlark.AsString(v); ok {
			buf.WriteString(s)
		} else {
			buf.WriteString(v.String())
		}
	}
	buf.WriteString(end)
	_, _ = io.WriteString(out.w, buf.String())
	return starlark.None, nil
})
