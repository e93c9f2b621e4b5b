package python

import (
	"errors"
	"testing"

	"github.com/sameehj/gridbridge/pkg/exec"
	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/sameehj/gridbridge/pkg/runtime"
)

func TestDecodeResponseTables(t *testing.T) {
	res := &exec.Result{Stdout: `{"ok":true,"tables":{"S":{"columns":["A","B"],"rows":[[1,"x"],[2.5,null]]}},"rejected":{"n":"int"},"stdout":"hi\n","stderr":""}`}
	out, err := decodeResponse(res, 0)
	if err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	tbl := out.Tables["S"]
	if rows, cols := tbl.Shape(); rows != 2 || cols != 2 {
		t.Fatalf("expected 2x2, got %dx%d", rows, cols)
	}
	if v, _ := tbl.At(0, 0); v != int64(1) {
		t.Fatalf("expected int64 1, got %#v", v)
	}
	if v, _ := tbl.At(1, 0); v != 2.5 {
		t.Fatalf("expected 2.5, got %#v", v)
	}
	if out.Stdout != "hi\n" || out.Rejected["n"] != "int" {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestDecodeResponseScriptError(t *testing.T) {
	res := &exec.Result{Stdout: `{"ok":false,"error":{"type":"ZeroDivisionError","message":"division by zero","line":3,"trace":"Traceback (most recent call last):\n..."},"stdout":"","stderr":""}`}
	_, err := decodeResponse(res, 0)
	var ce *runtime.CodeError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CodeError, got %v", err)
	}
	if ce.Kind != "ZeroDivisionError" || ce.Line != 3 || !errors.Is(err, runtime.ErrCodeExecution) {
		t.Fatalf("unexpected code error %+v", ce)
	}
}

func TestDecodeResponseGarbage(t *testing.T) {
	res := &exec.Result{Stdout: "", Stderr: "ImportError: no module", Code: 1}
	_, err := decodeResponse(res, 0)
	var ce *runtime.CodeError
	if !errors.As(err, &ce) || ce.Kind != "ProcessError" {
		t.Fatalf("expected ProcessError, got %v", err)
	}
}

func TestDecodeResponseInvalidDfs(t *testing.T) {
	res := &exec.Result{Stdout: `{"ok":true,"invalid":"list","stdout":"","stderr":""}`}
	_, err := decodeResponse(res, 0)
	if !errors.Is(err, grid.ErrReconcile) {
		t.Fatalf("expected reconcile error, got %v", err)
	}
}

func TestDecodeResponseClipsOutput(t *testing.T) {
	res := &exec.Result{Stdout: `{"ok":true,"tables":{},"stdout":"0123456789","stderr":""}`}
	out, err := decodeResponse(res, 4)
	if err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	if out.Stdout != "0123" || !out.Truncated {
		t.Fatalf("expected clipped stdout, got %q", out.Stdout)
	}
}
