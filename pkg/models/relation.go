package models

import "time"

// RelationKind distinguishes tables from views in the backing store.
type RelationKind string

const (
	RelationKindTable RelationKind = "table"
	RelationKindView  RelationKind = "view"
)

// RelationDescriptor is an immutable snapshot of a discovered relation.
// Descriptors are recomputed per discovery run and never persisted.
type RelationDescriptor struct {
	Name         string       `json:"name"`
	Kind         RelationKind `json:"kind"`
	SchemaName   string       `json:"schema_name,omitempty"`
	Description  string       `json:"description,omitempty"`
	RowCount     int64        `json:"row_count"`
	LastProbedAt time.Time    `json:"last_probed_at"`
}

// HasRows reports whether the relation contained data at probe time.
func (r RelationDescriptor) HasRows() bool {
	return r.RowCount > 0
}

// InferredType is a coarse column type derived from a sampled value.
type InferredType string

const (
	TypeUUID      InferredType = "uuid"
	TypeDate      InferredType = "date"
	TypeTimestamp InferredType = "timestamp"
	TypeEmail     InferredType = "email"
	TypeInteger   InferredType = "integer"
	TypeDecimal   InferredType = "decimal"
	TypeBoolean   InferredType = "boolean"
	TypeString    InferredType = "string"
)

// ColumnDescriptor describes one column of a relation, inferred from a
// single sampled row. A relation without data yields an empty descriptor
// set rather than an error.
type ColumnDescriptor struct {
	Name                   string       `json:"name"`
	InferredType           InferredType `json:"inferred_type"`
	Nullable               bool         `json:"nullable"`
	IsKeyCandidate         bool         `json:"is_key_candidate"`
	SampleDerivedMaxLength int          `json:"sample_derived_max_length,omitempty"`
}

// RelationAnalysis is one scored candidate from a recommendation run.
type RelationAnalysis struct {
	Relation RelationDescriptor `json:"relation"`
	Score    float64            `json:"score"`
	Reasons  []string           `json:"reasons,omitempty"`
}

// Recommendation is the ranked output of scoring discovered relations
// against a report domain.
type Recommendation struct {
	Recommended  *RelationAnalysis  `json:"recommended,omitempty"`
	Alternatives []RelationAnalysis `json:"alternatives"`
	Analysis     []RelationAnalysis `json:"analysis"`
}
