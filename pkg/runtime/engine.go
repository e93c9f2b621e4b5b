package runtime

import (
	"context"
	"time"

	"github.com/sameehj/gridbridge/pkg/grid"
)

// Engine runs one block of user code against a set of named tables.
//
// Implementations must honour ctx cancellation and return promptly once it
// is done. Faults in user code are returned as *CodeError; the tables in
// params may be mutated in place.
type Engine interface {
	Name() string
	Execute(ctx context.Context, params ExecuteParams) (ExecuteResult, error)
}

type ExecuteParams struct {
	Code string
	// Tables maps sheet names to their decoded tables. Scripts see it as dfs.
	Tables map[string]*grid.Table
	// Timeout overrides the executor default when positive and below the
	// configured maximum.
	Timeout   time.Duration
	MaxSteps  uint64
	MaxOutput int
}

type ExecuteResult struct {
	// Tables is the final dfs mapping. Entries whose value is not a table
	// are listed in Rejected with the type the script stored instead.
	Tables   map[string]*grid.Table
	Rejected map[string]string

	Stdout    string
	Stderr    string
	Truncated bool

	Steps      uint64
	DurationMs int64
}
