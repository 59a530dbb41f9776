package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
	sqlguard "github.com/vmxmy/salary-system-v3-sub002/pkg/sql"
)

// ErrMissingRequiredInput is returned by ResolveValue when a required
// user_input condition has no supplied value.
var ErrMissingRequiredInput = errors.New("missing required input")

// FilterEngine resolves declarative filter conditions into values and
// compiles them into a query predicate. Resolution of dynamic values is
// relative to the clock injected at construction, so tests can pin "now".
type FilterEngine struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewFilterEngine creates an engine using the wall clock.
func NewFilterEngine(logger *zap.Logger) *FilterEngine {
	return NewFilterEngineWithClock(time.Now, logger)
}

// NewFilterEngineWithClock creates an engine with an explicit clock.
func NewFilterEngineWithClock(now func() time.Time, logger *zap.Logger) *FilterEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterEngine{now: now, logger: logger.Named("filters")}
}

// ResolveValue produces the operand value for one condition. A nil value
// with a nil error means the condition has no defined value and should be
// skipped (unless its operator is a null check).
func (e *FilterEngine) ResolveValue(cond models.FilterCondition, inputs models.UserInputs) (any, error) {
	switch cond.ConditionType {
	case models.ConditionFixed:
		return cond.Value, nil

	case models.ConditionUserInput:
		value, ok := inputs[cond.ID]
		if !ok || value == nil {
			if cond.InputSpec != nil && cond.InputSpec.Required {
				return nil, fmt.Errorf("condition %s (%s): %w", cond.ID, cond.FieldKey, ErrMissingRequiredInput)
			}
			return nil, nil
		}
		return value, nil

	case models.ConditionDynamic:
		if cond.DynamicSpec == nil {
			return nil, fmt.Errorf("condition %s (%s): dynamic condition without spec", cond.ID, cond.FieldKey)
		}
		return resolveDynamic(*cond.DynamicSpec, e.now()), nil

	default:
		return nil, fmt.Errorf("condition %s: unknown condition type %q", cond.ID, cond.ConditionType)
	}
}

// resolveDynamic computes a time-relative value. Month arithmetic is done
// on year/month integers so year rollover normalizes correctly.
func resolveDynamic(spec models.DynamicSpec, now time.Time) any {
	switch spec.Kind {
	case models.DynamicCurrentDate:
		return now.Format("2006-01-02")
	case models.DynamicCurrentMonth:
		return now.Format("2006-01")
	case models.DynamicCurrentYear:
		return now.Year()
	case models.DynamicLastNDays:
		return now.AddDate(0, 0, -spec.Offset).Format("2006-01-02")
	case models.DynamicLastNMonths:
		year, month := now.Year(), int(now.Month())
		month -= spec.Offset
		for month < 1 {
			month += 12
			year--
		}
		for month > 12 {
			month -= 12
			year++
		}
		return fmt.Sprintf("%04d-%02d", year, month)
	default:
		return nil
	}
}

// BuildPredicate compiles enabled conditions into a conjunctive predicate.
// Conditions whose resolved value is undefined are skipped unless the
// operator is a null check. Contradictory conditions on one field combine
// with AND and legitimately yield zero rows.
func (e *FilterEngine) BuildPredicate(filters models.FieldFilters, inputs models.UserInputs) (datasource.Predicate, error) {
	var pred datasource.Predicate

	for _, fieldKey := range sortedFieldKeys(filters) {
		for _, cond := range filters[fieldKey] {
			if !cond.Enabled {
				continue
			}

			if cond.Operator.IsNullOp() {
				pred = pred.And(fieldKey, cond.Operator)
				continue
			}

			value, err := e.ResolveValue(cond, inputs)
			if err != nil {
				return datasource.Predicate{}, err
			}
			// Fixed set conditions carry their operands in Values, not Value.
			if value == nil && !(cond.Operator.IsSetOp() && len(cond.Values) > 0) {
				continue
			}

			args, ok := operandArgs(cond, value)
			if !ok {
				continue
			}
			pred = pred.And(fieldKey, cond.Operator, args...)
		}
	}
	return pred, nil
}

// operandArgs shapes the resolved value into operator operands.
func operandArgs(cond models.FilterCondition, value any) ([]any, bool) {
	switch {
	case cond.Operator.IsSetOp():
		if len(cond.Values) > 0 {
			return cond.Values, true
		}
		if arr, ok := value.([]any); ok {
			if len(arr) == 0 {
				return nil, false
			}
			return arr, true
		}
		return []any{value}, true

	case cond.Operator.IsRangeOp():
		// A user-supplied range arrives as a 2-element array; a fixed range
		// uses Value/ValueEnd.
		if arr, ok := value.([]any); ok {
			if len(arr) != 2 {
				return nil, false
			}
			return arr, true
		}
		if cond.ValueEnd == nil {
			return nil, false
		}
		return []any{value, cond.ValueEnd}, true

	default:
		return []any{value}, true
	}
}

func sortedFieldKeys(filters models.FieldFilters) []string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks every enabled condition and reports all violations at
// once. It is pure: no backend access, no side effects.
func (e *FilterEngine) Validate(filters models.FieldFilters, inputs models.UserInputs) apperrors.ValidationErrors {
	var violations apperrors.ValidationErrors

	add := func(cond models.FilterCondition, msg string) {
		violations = append(violations, apperrors.ValidationError{
			Field:     cond.FieldKey,
			Condition: cond.ID,
			Message:   msg,
		})
	}

	for _, fieldKey := range sortedFieldKeys(filters) {
		for _, cond := range filters[fieldKey] {
			if !cond.Enabled {
				continue
			}

			userValue, hasUserValue := inputs[cond.ID]
			if hasUserValue && userValue == nil {
				hasUserValue = false
			}

			switch {
			case cond.ConditionType == models.ConditionUserInput &&
				cond.InputSpec != nil && cond.InputSpec.Required && !hasUserValue &&
				!cond.Operator.IsNullOp():
				add(cond, "required input is missing")

			case cond.Operator.IsRangeOp() && cond.ConditionType == models.ConditionFixed &&
				(cond.Value == nil || cond.ValueEnd == nil):
				add(cond, fmt.Sprintf("%s condition requires both bounds", cond.Operator))

			case cond.Operator.IsRangeOp() && cond.ConditionType == models.ConditionUserInput && hasUserValue:
				if arr, ok := userValue.([]any); !ok || len(arr) != 2 {
					add(cond, fmt.Sprintf("%s input must be a two-element range", cond.Operator))
				}

			case cond.Operator.IsSetOp() && cond.ConditionType == models.ConditionFixed &&
				len(cond.Values) == 0:
				add(cond, fmt.Sprintf("%s condition requires a non-empty value set", cond.Operator))

			case cond.Operator.IsSetOp() && cond.ConditionType == models.ConditionUserInput && hasUserValue:
				if arr, ok := userValue.([]any); !ok || len(arr) == 0 {
					add(cond, fmt.Sprintf("%s input must be a non-empty array", cond.Operator))
				}
			}

			// Screen user-supplied strings for SQL injection fingerprints.
			// Values are parameterized downstream; this catches hostile
			// input early with a clear validation message.
			if cond.ConditionType == models.ConditionUserInput && hasUserValue {
				if r := sqlguard.CheckFilterInput(cond.ID, userValue); r != nil {
					add(cond, "input contains a SQL injection pattern")
				}
			}
		}
	}
	return violations
}
