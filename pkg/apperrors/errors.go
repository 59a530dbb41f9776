package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrTemplateInactive     = errors.New("report template is inactive")
	ErrJobNotCancellable    = errors.New("job is not cancellable in its current state")
	ErrInvalidTransition    = errors.New("invalid job status transition")
	ErrBlobStoreUnavailable = errors.New("blob store unavailable")
)

// ValidationError describes a single violation found while validating a
// relation name or a filter configuration. Validation never touches the
// backend, so a ValidationError always precedes any network call.
type ValidationError struct {
	Field     string `json:"field,omitempty"`
	Condition string `json:"condition,omitempty"`
	Message   string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors aggregates every violation found in one pass so callers
// can fix all issues at once.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Error()
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ProbeError wraps a backend failure during a schema probe. Probe errors are
// absorbed at the prober boundary (exists=false, zero counts) and only
// surface in logs.
type ProbeError struct {
	Relation string
	Op       string
	Err      error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s on %q: %v", e.Op, e.Relation, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// JobExecutionError marks a failure inside a report job run. It is captured
// into the job's error message and terminal failed status, never returned to
// the submitter.
type JobExecutionError struct {
	Step string
	Err  error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("report step %s: %v", e.Step, e.Err)
}

func (e *JobExecutionError) Unwrap() error { return e.Err }

// ConfigurationError indicates a missing or unusable report template. It
// fails a job at the first pipeline step. Err carries the underlying
// sentinel so status mapping still sees it.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is (or wraps) a validation failure.
func IsValidation(err error) bool {
	var single *ValidationError
	var many ValidationErrors
	return errors.As(err, &single) || errors.As(err, &many)
}
