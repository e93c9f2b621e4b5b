package transform

import (
	"context"
	"log/slog"
	"time"

	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/sameehj/gridbridge/pkg/runtime"
	"github.com/sameehj/gridbridge/pkg/runtime/logging"
)

// Runner executes user code against decoded tables.
type Runner interface {
	Execute(ctx context.Context, engine string, params runtime.ExecuteParams) (runtime.ExecuteResult, error)
}

// Request is one transform call.
type Request struct {
	Code   string       `json:"code"`
	Sheets []grid.Sheet `json:"sheets"`
	// ActiveSheetName is accepted for compatibility and only logged.
	ActiveSheetName string `json:"activeSheetName,omitempty"`
	Engine          string `json:"engine,omitempty"`
	TimeoutMs       int64  `json:"timeoutMs,omitempty"`
}

// Result is the wire shape of a successful transform.
type Result struct {
	Sheets []grid.Sheet `json:"sheets"`
	Stdout string       `json:"stdout,omitempty"`
	Stderr string       `json:"stderr,omitempty"`
}

type Service struct {
	runner Runner
	logger *slog.Logger
}

func NewService(runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Service{runner: runner, logger: logger}
}

// Transform decodes the request sheets, runs the code over them and
// reconciles the resulting tables back into sheets. Any failure is returned
// as *Error and no sheets are returned with it.
func (s *Service) Transform(ctx context.Context, req Request) (result *Result, err error) {
	logger := logging.FromContext(ctx, s.logger)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, panicFailure(r)
		}
		s.logOutcome(logger, req, start, err)
	}()

	if req.Code == "" || len(req.Sheets) == 0 {
		return nil, missingInput()
	}

	tables, err := grid.Decode(req.Sheets)
	if err != nil {
		return nil, invalidInput(err)
	}

	logger.Debug("transform_start",
		"sheets", len(req.Sheets),
		"active_sheet", req.ActiveSheetName,
		"engine", req.Engine,
		"code", logging.Snippet(req.Code, 120),
	)

	execResult, err := s.runner.Execute(ctx, req.Engine, runtime.ExecuteParams{
		Code:    req.Code,
		Tables:  tables,
		Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		return nil, executionFailure(err)
	}

	sheets, err := grid.Encode(req.Sheets, execResult.Tables)
	if err != nil {
		return nil, reconcileFailure(err)
	}
	return &Result{Sheets: sheets, Stdout: execResult.Stdout, Stderr: execResult.Stderr}, nil
}

func (s *Service) logOutcome(logger *slog.Logger, req Request, start time.Time, err error) {
	elapsed := time.Since(start).Milliseconds()
	if err == nil {
		logger.Info("transform_done", "sheets", len(req.Sheets), "duration_ms", elapsed)
		return
	}
	te := AsError(err)
	if te.Kind == KindMissingInput {
		logger.Debug("transform_rejected", "kind", te.Kind)
		return
	}
	logger.Warn("transform_failed", "kind", te.Kind, "duration_ms", elapsed, "error", te.Err)
}
