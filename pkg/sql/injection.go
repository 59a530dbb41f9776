package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a SQL injection pattern detected in a
// user-supplied filter input.
type InjectionCheckResult struct {
	Fingerprint string // libinjection fingerprint of the detected pattern
	ConditionID string // filter condition whose input failed the check
	Value       any    // the offending value
}

// CheckFilterInput screens one user-supplied filter value for SQL
// injection patterns. Filter values are always bound as query parameters,
// so this is defense in depth, not the primary barrier.
//
// Only string values are checked; numbers and booleans cannot carry
// injection payloads. Returns nil when the value is clean.
func CheckFilterInput(conditionID string, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Fingerprint: string(fingerprint),
		ConditionID: conditionID,
		Value:       value,
	}
}
