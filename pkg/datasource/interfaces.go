package datasource

import (
	"context"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// MaxQueryLimit is the hard cap on rows returned by RunQuery.
// This protects against unbounded fetches that could exhaust memory or
// produce unreasonably large report files.
const MaxQueryLimit = 1000

// MaxSampleRows caps the number of rows a probe may sample.
const MaxSampleRows = 10

// ProbeResult holds the outcome of probing a single relation.
type ProbeResult struct {
	Exists     bool  `json:"exists"`
	RowCount   int64 `json:"row_count"`
	SampleRows []Row `json:"sample_rows,omitempty"`
}

// Cond is one compiled filter condition. Args carries operand values in
// operator order; they are always bound as query parameters, never
// concatenated into SQL text.
type Cond struct {
	Column string
	Op     models.Operator
	Args   []any
}

// Predicate is an ordered conjunction of conditions. An empty predicate
// matches all rows.
type Predicate struct {
	Conds []Cond
}

// IsEmpty reports whether the predicate constrains anything.
func (p Predicate) IsEmpty() bool {
	return len(p.Conds) == 0
}

// And appends a condition and returns the extended predicate.
func (p Predicate) And(column string, op models.Operator, args ...any) Predicate {
	p.Conds = append(p.Conds, Cond{Column: column, Op: op, Args: args})
	return p
}

// QueryClient is the backing data store collaborator. All calls are
// name-parameterized; identifiers are quoted per dialect and values travel
// as bound parameters.
//
// Each implementation owns its connection and must be closed when done.
type QueryClient interface {
	// Probe checks a relation for existence, counts its rows, and samples
	// up to sampleLimit rows. A nonexistent relation or unreachable backend
	// returns an error; callers above the prober never see it.
	Probe(ctx context.Context, relation string, sampleLimit int) (*ProbeResult, error)

	// RunQuery fetches rows from a relation with the predicate applied.
	// The limit is clamped to MaxQueryLimit.
	RunQuery(ctx context.Context, relation string, pred Predicate, limit int) ([]Row, error)

	// Close releases the underlying connection.
	Close() error
}

// ClampLimit normalizes a caller-supplied row limit into (0, MaxQueryLimit].
func ClampLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}

// ClampSampleLimit normalizes a sample size into [1, MaxSampleRows].
func ClampSampleLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxSampleRows {
		return MaxSampleRows
	}
	return limit
}
