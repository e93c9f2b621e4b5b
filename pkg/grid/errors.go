package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGrid marks inbound sheets that cannot be decoded.
	ErrInvalidGrid = errors.New("invalid grid")
	// ErrTooManyColumns marks grids wider than the spreadsheet column limit.
	ErrTooManyColumns = errors.New("too many columns")
	// ErrReconcile marks failures while writing tables back into sheets.
	ErrReconcile = errors.New("reconcile failed")
)

// ReconcileError reports a sheet that could not be rebuilt from its table.
type ReconcileError struct {
	Sheet  string
	Field  string
	Reason string
}

func (e *ReconcileError) Error() string {
	if e.Sheet == "" {
		return e.Reason
	}
	if e.Field != "" {
		return fmt.Sprintf("sheet %q: %s: %s", e.Sheet, e.Field, e.Reason)
	}
	return fmt.Sprintf("sheet %q: %s", e.Sheet, e.Reason)
}

func (e *ReconcileError) Is(target error) bool {
	return target == ErrReconcile
}
