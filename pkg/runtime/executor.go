package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sameehj/gridbridge/pkg/grid"
	"github.com/sameehj/gridbridge/pkg/policy"
)

// Config holds executor settings.
type Config struct {
	// Engines available to requests. Required, at least one.
	Engines []Engine
	// DefaultEngine is used when a request names none. Defaults to the
	// first registered engine.
	DefaultEngine string

	DefaultTimeout time.Duration
	// MaxTimeout caps per-request timeouts. Zero means DefaultTimeout.
	MaxTimeout time.Duration
	MaxSteps   uint64
	MaxOutput  int

	Policy *policy.Policy
	Logger *slog.Logger
}

func (c *Config) Validate() error {
	var missing []string
	if len(c.Engines) == 0 {
		missing = append(missing, "Engines")
	}
	for i, e := range c.Engines {
		if e == nil {
			missing = append(missing, fmt.Sprintf("Engines[%d]", i))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s", ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// Executor resolves an engine for each request and enforces the time,
// step, and output budgets around it. It is safe for concurrent use.
type Executor struct {
	cfg     Config
	engines map[string]Engine
}

func NewExecutor(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engines := make(map[string]Engine, len(cfg.Engines))
	for _, e := range cfg.Engines {
		engines[strings.ToLower(e.Name())] = e
	}
	if cfg.DefaultEngine == "" {
		cfg.DefaultEngine = cfg.Engines[0].Name()
	}
	if _, ok := engines[strings.ToLower(cfg.DefaultEngine)]; !ok {
		return nil, fmt.Errorf("%w: default engine %q is not registered", ErrConfiguration, cfg.DefaultEngine)
	}
	if cfg.MaxTimeout == 0 {
		cfg.MaxTimeout = cfg.DefaultTimeout
	}
	return &Executor{cfg: cfg, engines: engines}, nil
}

// Engines lists registered engine names with whether policy allows each.
func (e *Executor) Engines() map[string]bool {
	out := make(map[string]bool, len(e.engines))
	for name := range e.engines {
		out[name] = e.cfg.Policy.IsAllowed(name)
	}
	return out
}

func (e *Executor) EngineNames() []string {
	names := make([]string, 0, len(e.engines))
	for name := range e.Engines() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Executor) DefaultEngine() string {
	return e.cfg.DefaultEngine
}

// Resolve returns the engine for name, or the default when name is empty.
func (e *Executor) Resolve(name string) (Engine, error) {
	if name == "" {
		name = e.cfg.DefaultEngine
	}
	engine, ok := e.engines[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEngine, name)
	}
	if !e.cfg.Policy.IsAllowed(engine.Name()) {
		return nil, fmt.Errorf("%w: %s", ErrEngineDenied, engine.Name())
	}
	return engine, nil
}

// Execute runs params.Code on the named engine. Deadline and cancellation
// errors are wrapped with ErrLimitExceeded; engine panics become CodeErrors.
func (e *Executor) Execute(ctx context.Context, engineName string, params ExecuteParams) (result ExecuteResult, err error) {
	engine, err := e.Resolve(engineName)
	if err != nil {
		return ExecuteResult{}, err
	}

	timeout := e.cfg.DefaultTimeout
	if params.Timeout > 0 && (e.cfg.MaxTimeout == 0 || params.Timeout <= e.cfg.MaxTimeout) {
		timeout = params.Timeout
	}
	params.Timeout = timeout
	if params.MaxSteps == 0 || (e.cfg.MaxSteps > 0 && params.MaxSteps > e.cfg.MaxSteps) {
		params.MaxSteps = e.cfg.MaxSteps
	}
	if params.MaxOutput == 0 {
		params.MaxOutput = e.cfg.MaxOutput
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &CodeError{Kind: "InternalError", Message: fmt.Sprintf("engine %s panicked: %v", engine.Name(), r)}
		}
		result.DurationMs = time.Since(start).Milliseconds()
		e.logResult(engine.Name(), result, err)
	}()

	result, err = engine.Execute(ctx, params)
	if err == nil {
		err = checkRejected(params.Tables, result.Rejected)
	}
	if err != nil && !errors.Is(err, ErrLimitExceeded) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			err = fmt.Errorf("%w: timeout after %v", ErrLimitExceeded, timeout)
		case errors.Is(err, context.Canceled):
			err = fmt.Errorf("%w: cancelled: %w", ErrLimitExceeded, err)
		}
	}
	return result, err
}

// checkRejected fails when a script replaced an original sheet's table with
// something that is not a table.
func checkRejected(original map[string]*grid.Table, rejected map[string]string) error {
	names := make([]string, 0, len(rejected))
	for name := range rejected {
		if _, ok := original[name]; ok {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return &grid.ReconcileError{Sheet: names[0], Reason: fmt.Sprintf("dfs value is a %s, want DataFrame", rejected[names[0]])}
}

func (e *Executor) logResult(engine string, result ExecuteResult, err error) {
	if e.cfg.Logger == nil {
		return
	}
	if err != nil {
		e.cfg.Logger.Warn("script_failed", "engine", engine, "duration_ms", result.DurationMs, "error", err)
		return
	}
	e.cfg.Logger.Debug("script_done", "engine", engine, "duration_ms", result.DurationMs, "steps", result.Steps, "tables", len(result.Tables))
}
