package transform

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/sameehj/gridbridge/pkg/runtime"
)

// Kind classifies a failed transform for callers.
type Kind string

const (
	KindMissingInput Kind = "missing_input"
	KindInvalidInput Kind = "invalid_input"
	KindExecution    Kind = "execution"
	KindTimeout      Kind = "timeout"
	KindReconcile    Kind = "reconcile"
)

const missingInputMessage = "Missing 'code' or 'sheets' in request."

// Error is the single failure a transform reports. Message is what callers
// show; Trace holds the multi-line diagnostic for execution faults.
type Error struct {
	Kind    Kind
	Message string
	Trace   string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status maps the kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindMissingInput, KindInvalidInput:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// FailureBody is the wire shape of a failed transform.
type FailureBody struct {
	Error string `json:"error"`
	Kind  Kind   `json:"kind"`
}

func (e *Error) Body() FailureBody {
	return FailureBody{Error: e.Message, Kind: e.Kind}
}

func missingInput() *Error {
	return &Error{Kind: KindMissingInput, Message: missingInputMessage}
}

func invalidInput(err error) *Error {
	return &Error{Kind: KindInvalidInput, Message: "Invalid input: " + err.Error(), Err: err}
}

func reconcileFailure(err error) *Error {
	return &Error{Kind: KindReconcile, Message: "Reconciliation error:\n" + err.Error(), Err: err}
}

// executionFailure classifies an error returned by the executor.
func executionFailure(err error) *Error {
	var ce *runtime.CodeError
	codeFault := errors.As(err, &ce)
	switch {
	case errors.Is(err, grid.ErrReconcile):
		return reconcileFailure(err)
	case errors.Is(err, runtime.ErrLimitExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return &Error{Kind: KindTimeout, Message: "Script timed out: " + err.Error(), Err: err}
	case codeFault:
		// Grid errors raised by the caller's own code are execution faults.
	case errors.Is(err, runtime.ErrUnknownEngine),
		errors.Is(err, runtime.ErrEngineDenied),
		errors.Is(err, grid.ErrInvalidGrid),
		errors.Is(err, grid.ErrTooManyColumns):
		return invalidInput(err)
	}
	trace := err.Error()
	if codeFault {
		trace = ce.Traceback()
	}
	return &Error{Kind: KindExecution, Message: "Script execution error:\n" + trace, Trace: trace, Err: err}
}

// AsError returns err as a transform Error, classifying foreign errors as
// execution faults.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return executionFailure(err)
}

func panicFailure(r any) *Error {
	return reconcileFailure(fmt.Errorf("internal error: %v", r))
}
