package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrCodeExecution marks faults raised by user code: syntax errors,
	// failed lookups, bad cell values, explicit fail() calls.
	ErrCodeExecution = errors.New("code execution error")

	// ErrLimitExceeded marks runs stopped by the wall-clock or step budget,
	// or cancelled by the caller.
	ErrLimitExceeded = errors.New("limit exceeded")

	// ErrConfiguration marks an executor built from incomplete settings.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownEngine is returned for an engine name nobody registered.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrEngineDenied is returned when policy forbids the requested engine.
	ErrEngineDenied = errors.New("engine not allowed")
)

// CodeError is a fault in user code with an optional source position and a
// formatted trace suitable for showing to the author.
type CodeError struct {
	// Kind is a short category such as SyntaxError or EvalError.
	Kind    string
	Message string
	// Line and Column are 1-based; zero means unknown.
	Line   int
	Column int
	Trace  string
	Err    error
}

func (e *CodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d, col %d)", e.Kind, e.Message, e.Line, e.Column)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Message
}

func (e *CodeError) Unwrap() error {
	return e.Err
}

func (e *CodeError) Is(target error) bool {
	return target == ErrCodeExecution
}

// Traceback returns the multi-line diagnostic for the fault, falling back to
// the one-line form when the engine recorded no trace.
func (e *CodeError) Traceback() string {
	if e.Trace != "" {
		return e.Trace
	}
	return e.Error()
}
