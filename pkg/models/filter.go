package models

// ConditionType selects how a filter condition's value is produced.
type ConditionType string

const (
	ConditionFixed     ConditionType = "fixed"
	ConditionDynamic   ConditionType = "dynamic"
	ConditionUserInput ConditionType = "user_input"
)

// Operator is one of the fixed set of comparison operators a condition can
// compile to. Predicate translation targets exactly this set.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpLike       Operator = "like"
	OpNotLike    Operator = "not_like"
	OpIn         Operator = "in"
	OpNotIn      Operator = "not_in"
	OpBetween    Operator = "between"
	OpNotBetween Operator = "not_between"
	OpIsNull     Operator = "is_null"
	OpIsNotNull  Operator = "is_not_null"
)

// IsNullOp reports whether the operator needs no operand value.
func (o Operator) IsNullOp() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// IsRangeOp reports whether the operator compares against an inclusive
// [Value, ValueEnd] range.
func (o Operator) IsRangeOp() bool {
	return o == OpBetween || o == OpNotBetween
}

// IsSetOp reports whether the operator compares against a value set.
func (o Operator) IsSetOp() bool {
	return o == OpIn || o == OpNotIn
}

// KnownOperators lists every operator the filter engine accepts.
var KnownOperators = []Operator{
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
	OpLike, OpNotLike, OpIn, OpNotIn,
	OpBetween, OpNotBetween, OpIsNull, OpIsNotNull,
}

// DynamicKind names a time-relative value computed at execution time.
type DynamicKind string

const (
	DynamicCurrentDate  DynamicKind = "current_date"
	DynamicCurrentMonth DynamicKind = "current_month"
	DynamicCurrentYear  DynamicKind = "current_year"
	DynamicLastNDays    DynamicKind = "last_n_days"
	DynamicLastNMonths  DynamicKind = "last_n_months"
)

// DynamicSpec describes a dynamically computed filter value. Specs are
// resolved against "now" on every request and never cached.
type DynamicSpec struct {
	Kind   DynamicKind `json:"kind"`
	Offset int         `json:"offset,omitempty"`
}

// InputSpec describes the user input a user_input condition expects.
type InputSpec struct {
	Required bool   `json:"required"`
	Type     string `json:"type,omitempty"`
}

// FilterCondition is one declarative constraint on a report field. Many
// conditions may target the same field; each is independently enabled.
type FilterCondition struct {
	ID            string        `json:"id"`
	FieldKey      string        `json:"field_key"`
	Enabled       bool          `json:"enabled"`
	ConditionType ConditionType `json:"condition_type"`
	Operator      Operator      `json:"operator"`
	Value         any           `json:"value,omitempty"`
	ValueEnd      any           `json:"value_end,omitempty"`
	Values        []any         `json:"values,omitempty"`
	DynamicSpec   *DynamicSpec  `json:"dynamic_spec,omitempty"`
	InputSpec     *InputSpec    `json:"input_spec,omitempty"`
}

// FieldFilters groups conditions by the field they constrain. Composition
// across fields and across conditions on one field is conjunctive, so
// contradictory conditions legitimately yield zero rows.
type FieldFilters map[string][]FilterCondition

// UserInputs carries caller-supplied values for user_input conditions,
// keyed by condition ID.
type UserInputs map[string]any
