package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sameehj/gridbridge/pkg/policy"
)

type stubEngine struct {
	name string
	fn   func(ctx context.Context, params ExecuteParams) (ExecuteResult, error)
}

func (s stubEngine) Name() string { return s.name }

func (s stubEngine) Execute(ctx context.Context, params ExecuteParams) (ExecuteResult, error) {
	return s.fn(ctx, params)
}

func TestNewExecutorRequiresEngines(t *testing.T) {
	_, err := NewExecutor(Config{})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	_, err = NewExecutor(Config{Engines: []Engine{NewStarlarkEngine(nil)}, DefaultEngine: "lua"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown default, got %v", err)
	}
}

func TestExecutorResolve(t *testing.T) {
	py := stubEngine{name: "python"}
	exec, err := NewExecutor(Config{
		Engines: []Engine{NewStarlarkEngine(nil), py},
		Policy:  policy.Default(),
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if e, err := exec.Resolve(""); err != nil || e.Name() != StarlarkEngineName {
		t.Fatalf("expected default starlark engine, got %v %v", e, err)
	}
	if _, err := exec.Resolve("python"); !errors.Is(err, ErrEngineDenied) {
		t.Fatalf("expected ErrEngineDenied, got %v", err)
	}
	if _, err := exec.Resolve("ruby"); !errors.Is(err, ErrUnknownEngine) {
		t.Fatalf("expected ErrUnknownEngine, got %v", err)
	}
	engines := exec.Engines()
	if !engines["starlark"] || engines["python"] {
		t.Fatalf("unexpected engine availability %v", engines)
	}
}

func TestExecutorTimeout(t *testing.T) {
	exec, err := NewExecutor(Config{
		Engines:        []Engine{NewStarlarkEngine(nil)},
		DefaultTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	_, err = exec.Execute(context.Background(), "", ExecuteParams{Code: "while True:\n    pass"})
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
}

func TestExecutorCapsRequestTimeout(t *testing.T) {
	var seen time.Duration
	engine := stubEngine{name: "stub", fn: func(ctx context.Context, params ExecuteParams) (ExecuteResult, error) {
		seen = params.Timeout
		return ExecuteResult{}, nil
	}}
	exec, err := NewExecutor(Config{Engines: []Engine{engine}, DefaultTimeout: time.Second, MaxTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	if _, err := exec.Execute(context.Background(), "", ExecuteParams{Timeout: 500 * time.Millisecond}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != 500*time.Millisecond {
		t.Fatalf("expected requested timeout, got %v", seen)
	}
	if _, err := exec.Execute(context.Background(), "", ExecuteParams{Timeout: time.Minute}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if seen != time.Second {
		t.Fatalf("expected default timeout for oversized request, got %v", seen)
	}
}

func TestExecutorRecoversPanics(t *testing.T) {
	engine := stubEngine{name: "stub", fn: func(ctx context.Context, params ExecuteParams) (ExecuteResult, error) {
		panic("boom")
	}}
	exec, err := NewExecutor(Config{Engines: []Engine{engine}})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	_, err = exec.Execute(context.Background(), "", ExecuteParams{})
	if !errors.Is(err, ErrCodeExecution) {
		t.Fatalf("expected recovered panic as code error, got %v", err)
	}
}
