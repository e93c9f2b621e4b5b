package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"

	"github.com/sameehj/gridbridge/pkg/exec"
	"github.com/sameehj/gridbridge/pkg/grid"
)

// StarlarkEngineName is the name of the default hermetic engine.
const StarlarkEngineName = "starlark"

// ScriptFilename is the name user code is compiled under; it appears in
// positions and traces.
const ScriptFilename = "transform.star"

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// ScriptSource resolves modules named in load() statements.
type ScriptSource interface {
	Source(name string) (src []byte, version string, ok bool)
}

// StarlarkEngine runs user code as Starlark. Scripts have no access to
// files, network, processes or clocks; they see dfs, pd, text, sys and
// whatever they load() from the script library.
type StarlarkEngine struct {
	scripts ScriptSource

	mu    sync.Mutex
	cache map[string]*cachedModule
}

type cachedModule struct {
	version string
	globals starlark.StringDict
}

func NewStarlarkEngine(scripts ScriptSource) *StarlarkEngine {
	return &StarlarkEngine{scripts: scripts, cache: make(map[string]*cachedModule)}
}

func (e *StarlarkEngine) Name() string { return StarlarkEngineName }

func (e *StarlarkEngine) Execute(ctx context.Context, params ExecuteParams) (ExecuteResult, error) {
	stdoutBuf := exec.NewLimitedBuffer(params.MaxOutput)
	stderrBuf := exec.NewLimitedBuffer(params.MaxOutput)
	stdout := &stream{name: "stdout", w: stdoutBuf}
	stderr := &stream{name: "stderr", w: stderrBuf}

	dfs := starlark.NewDict(len(params.Tables))
	names := make([]string, 0, len(params.Tables))
	for name := range params.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := dfs.SetKey(starlark.String(name), NewFrame(params.Tables[name])); err != nil {
			return ExecuteResult{}, err
		}
	}

	predeclared := scriptPredeclared()
	predeclared["dfs"] = dfs
	predeclared["sys"] = sysModule(stdout, stderr)

	loader := &moduleLoader{engine: e, ctx: ctx, params: params, stdout: stdout, loading: map[string]bool{}}
	thread := loader.newThread("transform")

	stop := watchContext(ctx, thread)
	globals, err := starlark.ExecFileOptions(fileOptions, thread, ScriptFilename, params.Code, predeclared)
	stop()

	result := ExecuteResult{
		Stdout:    stdoutBuf.String(),
		Stderr:    stderrBuf.String(),
		Truncated: stdoutBuf.Truncated() || stderrBuf.Truncated(),
		Steps:     thread.ExecutionSteps(),
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		if params.MaxSteps > 0 && thread.ExecutionSteps() >= params.MaxSteps {
			return result, fmt.Errorf("%w: step budget of %d exhausted", ErrLimitExceeded, params.MaxSteps)
		}
		return result, toCodeError(err)
	}

	var final starlark.Value = dfs
	if rebound, ok := globals["dfs"]; ok {
		final = rebound
	}
	tables, rejected, err := collectFrames(final)
	if err != nil {
		return result, err
	}
	result.Tables = tables
	result.Rejected = rejected
	return result, nil
}

// Check compiles code without running it.
func (e *StarlarkEngine) Check(code string) error {
	predeclared := scriptPredeclared()
	predeclared["dfs"] = starlark.None
	predeclared["sys"] = starlark.None
	_, _, err := starlark.SourceProgramOptions(fileOptions, ScriptFilename, code, predeclared.Has)
	if err != nil {
		return toCodeError(err)
	}
	return nil
}

// Forget drops a cached library module so the next load() recompiles it.
func (e *StarlarkEngine) Forget(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, name)
}

func scriptPredeclared() starlark.StringDict {
	return starlark.StringDict{
		"pd":     pdModule,
		"text":   textModule,
		"print":  printBuiltin,
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}
}

func watchContext(ctx context.Context, thread *starlark.Thread) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()
	return func() { close(done) }
}

// collectFrames reads the final dfs mapping. Non-string keys are ignored;
// values that are not DataFrames are reported by type in rejected.
func collectFrames(v starlark.Value) (map[string]*grid.Table, map[string]string, error) {
	mapping, ok := v.(starlark.IterableMapping)
	if !ok {
		return nil, nil, &grid.ReconcileError{Reason: fmt.Sprintf("dfs is a %s after execution, want dict", v.Type())}
	}
	tables := make(map[string]*grid.Table)
	rejected := make(map[string]string)
	for _, item := range mapping.Items() {
		name, ok := starlark.AsString(item[0])
		if !ok {
			continue
		}
		if f, ok := item[1].(*Frame); ok {
			tables[name] = f.table
			continue
		}
		rejected[name] = item[1].Type()
	}
	return tables, rejected, nil
}

// moduleLoader resolves load() for one execution. Compiled modules are
// shared across executions while their source version is unchanged.
type moduleLoader struct {
	engine  *StarlarkEngine
	ctx     context.Context
	params  ExecuteParams
	stdout  *stream
	loading map[string]bool
}

func (l *moduleLoader) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Print: func(_ *starlark.Thread, msg string) {
			_, _ = io.WriteString(l.stdout.w, msg+"\n")
		},
		Load: l.load,
	}
	thread.SetLocal(stdoutLocal, l.stdout)
	if l.params.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(l.params.MaxSteps)
	}
	return thread
}

func (l *moduleLoader) load(_ *starlark.Thread, module string) (starlark.StringDict, error) {
	e := l.engine
	if e.scripts == nil {
		return nil, fmt.Errorf("no script library configured")
	}
	src, version, ok := e.scripts.Source(module)
	if !ok {
		return nil, fmt.Errorf("module %q not found in script library", module)
	}

	e.mu.Lock()
	cached, hit := e.cache[module]
	e.mu.Unlock()
	if hit && cached.version == version {
		return cached.globals, nil
	}

	if l.loading[module] {
		return nil, fmt.Errorf("cycle in load graph at %q", module)
	}
	l.loading[module] = true
	defer delete(l.loading, module)

	thread := l.newThread("load:" + module)
	stop := watchContext(l.ctx, thread)
	globals, err := starlark.ExecFileOptions(fileOptions, thread, module, src, scriptPredeclared())
	stop()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[module] = &cachedModule{version: version, globals: globals}
	e.mu.Unlock()
	return globals, nil
}

// toCodeError converts compile and evaluation failures into CodeErrors
// with a traceback.
func toCodeError(err error) *CodeError {
	var evalErr *starlark.EvalError
	var syntaxErr syntax.Error
	var resolveErrs resolve.ErrorList
	switch {
	case errors.As(err, &syntaxErr):
		return &CodeError{
			Kind:    "SyntaxError",
			Message: syntaxErr.Msg,
			Line:    int(syntaxErr.Pos.Line),
			Column:  int(syntaxErr.Pos.Col),
			Trace:   compileTrace("SyntaxError", syntaxErr.Pos, syntaxErr.Msg),
			Err:     err,
		}
	case errors.As(err, &resolveErrs) && len(resolveErrs) > 0:
		first := resolveErrs[0]
		var lines []string
		for _, re := range resolveErrs {
			lines = append(lines, fmt.Sprintf("%s: %s", re.Pos, re.Msg))
		}
		return &CodeError{
			Kind:    "NameError",
			Message: first.Msg,
			Line:    int(first.Pos.Line),
			Column:  int(first.Pos.Col),
			Trace:   "Traceback (most recent call last):\n  " + strings.Join(lines, "\n  ") + "\nNameError: " + first.Msg,
			Err:     err,
		}
	case errors.As(err, &evalErr):
		ce := &CodeError{Kind: "EvalError", Message: evalErr.Msg, Trace: evalErr.Backtrace(), Err: err}
		for i := len(evalErr.CallStack) - 1; i >= 0; i-- {
			pos := evalErr.CallStack[i].Pos
			if pos.Filename() == ScriptFilename {
				ce.Line, ce.Column = int(pos.Line), int(pos.Col)
				break
			}
		}
		return ce
	default:
		return &CodeError{Kind: "Error", Message: err.Error(), Err: err}
	}
}

func compileTrace(kind string, pos syntax.Position, msg string) string {
	return fmt.Sprintf("Traceback (most recent call last):\n  %s: in <toplevel>\n%s: %s", pos, kind, msg)
}
