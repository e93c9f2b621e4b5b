// Package python runs transformation code under an embedded CPython
// interpreter in a child process. Each execution is a fresh process fed a
// JSON payload on stdin; the process is killed when the context ends.
package python

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/kluctl/go-embed-python/python"

	"github.com/sameehj/gridbridge/pkg/exec"
	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/sameehj/gridbridge/pkg/runtime"
)

// EngineName is the name requests use to select this engine.
const EngineName = "python"

// processOutputLimit bounds the JSON the child may write back.
const processOutputLimit = 64 << 20

//go:embed bootstrap.py
var bootstrap string

type Config struct {
	// InstanceName keys the extracted interpreter directory.
	InstanceName string
	// PythonPaths are added to sys.path, e.g. a site-packages with pandas.
	PythonPaths []string
	Logger      *slog.Logger
}

type Engine struct {
	cfg Config

	once    sync.Once
	ep      *python.EmbeddedPython
	initErr error
}

func New(cfg Config) *Engine {
	if cfg.InstanceName == "" {
		cfg.InstanceName = "gridbridge"
	}
	return &Engine{cfg: cfg}
}

func (e *Engine) Name() string { return EngineName }

// interpreter extracts the embedded distribution on first use.
func (e *Engine) interpreter() (*python.EmbeddedPython, error) {
	e.once.Do(func() {
		ep, err := python.NewEmbeddedPython(e.cfg.InstanceName)
		if err != nil {
			e.initErr = fmt.Errorf("init embedded python: %w", err)
			return
		}
		for _, p := range e.cfg.PythonPaths {
			ep.AddPythonPath(p)
		}
		e.ep = ep
		e.logInfo("python_ready", "instance", e.cfg.InstanceName)
	})
	return e.ep, e.initErr
}

type wireTable struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

type request struct {
	Code   string               `json:"code"`
	Tables map[string]wireTable `json:"tables"`
}

type response struct {
	OK       bool                 `json:"ok"`
	Tables   map[string]wireTable `json:"tables"`
	Rejected map[string]string    `json:"rejected"`
	Invalid  string               `json:"invalid"`
	Stdout   string               `json:"stdout"`
	Stderr   string               `json:"stderr"`
	Error    *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Line    int    `json:"line"`
		Trace   string `json:"trace"`
	} `json:"error"`
}

func (e *Engine) Execute(ctx context.Context, params runtime.ExecuteParams) (runtime.ExecuteResult, error) {
	ep, err := e.interpreter()
	if err != nil {
		return runtime.ExecuteResult{}, err
	}

	req := request{Code: params.Code, Tables: make(map[string]wireTable, len(params.Tables))}
	for name, t := range params.Tables {
		req.Tables[name] = wireTable{Columns: t.Columns(), Rows: t.Rows()}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return runtime.ExecuteResult{}, fmt.Errorf("encode payload: %w", err)
	}

	cmd, err := ep.PythonCmd("-c", bootstrap)
	if err != nil {
		return runtime.ExecuteResult{}, fmt.Errorf("prepare python command: %w", err)
	}
	executor := &exec.SafeExecutor{MaxOutput: processOutputLimit}
	res, err := executor.Run(ctx, cmd.Path, cmd.Args[1:], exec.RunOptions{
		Stdin: bytes.NewReader(payload),
		Env:   cmd.Env,
		Dir:   cmd.Dir,
	})
	if err != nil {
		var truncated exec.OutputTruncatedError
		switch {
		case ctx.Err() != nil:
			return runtime.ExecuteResult{}, ctx.Err()
		case errors.As(err, &truncated):
			return runtime.ExecuteResult{}, &runtime.CodeError{Kind: "OutputError", Message: truncated.Error()}
		default:
			return runtime.ExecuteResult{}, fmt.Errorf("run python: %w", err)
		}
	}
	e.logDebug("python_exit", "code", res.Code, "duration_ms", res.Duration.Milliseconds())
	return decodeResponse(res, params.MaxOutput)
}

func decodeResponse(res *exec.Result, maxOutput int) (runtime.ExecuteResult, error) {
	var resp response
	dec := json.NewDecoder(strings.NewReader(res.Stdout))
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		msg := res.Stderr
		if msg == "" {
			msg = fmt.Sprintf("interpreter exited with code %d and no result", res.Code)
		}
		return runtime.ExecuteResult{}, &runtime.CodeError{Kind: "ProcessError", Message: msg, Trace: res.Stderr}
	}

	result := runtime.ExecuteResult{
		Stdout: clip(resp.Stdout, maxOutput),
		Stderr: clip(resp.Stderr, maxOutput),
	}
	result.Truncated = len(result.Stdout) < len(resp.Stdout) || len(result.Stderr) < len(resp.Stderr)

	if !resp.OK {
		ce := &runtime.CodeError{Kind: "PythonError", Message: "script failed"}
		if resp.Error != nil {
			ce.Kind = resp.Error.Type
			ce.Message = resp.Error.Message
			ce.Line = resp.Error.Line
			ce.Trace = resp.Error.Trace
		}
		return result, ce
	}
	if resp.Invalid != "" {
		return result, &grid.ReconcileError{Reason: fmt.Sprintf("dfs is a %s after execution, want dict", resp.Invalid)}
	}

	result.Tables = make(map[string]*grid.Table, len(resp.Tables))
	for name, wt := range resp.Tables {
		t, err := grid.NewLabeledTable(wt.Columns, wt.Rows)
		if err != nil {
			return result, &grid.ReconcileError{Sheet: name, Reason: err.Error()}
		}
		result.Tables[name] = t
	}
	result.Rejected = resp.Rejected
	return result, nil
}

func clip(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit]
}

func (e *Engine) logInfo(msg string, args ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Info(msg, args...)
	}
}

func (e *Engine) logDebug(msg string, args ...any) {
	if e.cfg.Logger != nil {
		e.cfg.Logger.Debug(msg, args...)
	}
}

var _ runtime.Engine = (*Engine)(nil)
