package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a report generation job.
// Transitions are monotonic: pending -> running -> completed|failed, plus
// pending/running -> failed on error. Terminal states never change.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether a transition from s to next is legal.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next == JobStatusFailed
	case JobStatusRunning:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// OutputFormat is the rendered file format of a report.
type OutputFormat string

const (
	FormatCSV  OutputFormat = "csv"
	FormatJSON OutputFormat = "json"
)

// ReportJob is one tracked execution of report generation.
// Progress is non-decreasing while running; progress 100 implies completed;
// ResultFile is set if and only if the job completed.
type ReportJob struct {
	ID            uuid.UUID    `json:"id"`
	TemplateID    uuid.UUID    `json:"template_id"`
	Status        JobStatus    `json:"status"`
	Progress      int          `json:"progress"`
	ProgressLabel string       `json:"progress_label,omitempty"`
	Filters       FieldFilters `json:"filters"`
	Inputs        UserInputs   `json:"inputs,omitempty"`
	Format        OutputFormat `json:"format"`
	ResultFile    string       `json:"result_file,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
}

// ReportHistoryEntry is the durable record of one successfully completed
// job. Exactly one entry is written when a job completes; it stores the
// submitted filter configuration so the report can be regenerated.
type ReportHistoryEntry struct {
	ID            uuid.UUID    `json:"id"`
	TemplateID    uuid.UUID    `json:"template_id"`
	JobID         uuid.UUID    `json:"job_id"`
	FileName      string       `json:"file_name"`
	FilePath      string       `json:"file_path"`
	RecordCount   int          `json:"record_count"`
	FileSize      int64        `json:"file_size"`
	Format        OutputFormat `json:"format"`
	Filters       FieldFilters `json:"filters"`
	Inputs        UserInputs   `json:"inputs,omitempty"`
	GeneratedAt   time.Time    `json:"generated_at"`
	DownloadCount int          `json:"download_count"`
}

// FieldMapping maps a source column onto a report field with display
// metadata. SortOrder fixes the column order of tabular output.
type FieldMapping struct {
	FieldKey    string            `json:"field_key"`
	DisplayName string            `json:"display_name"`
	Visible     bool              `json:"visible"`
	SortOrder   int               `json:"sort_order"`
	Conditions  []FilterCondition `json:"conditions,omitempty"`
}

// ReportTemplate is the read-only template definition owned by the
// surrounding configuration subsystem.
type ReportTemplate struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	SourceRelation string         `json:"source_relation"`
	FieldMappings  []FieldMapping `json:"field_mappings"`
	IsActive       bool           `json:"is_active"`
}

// FieldFilterSet collects the enabled filter conditions declared on the
// template's field mappings, grouped by field key.
func (t *ReportTemplate) FieldFilterSet() FieldFilters {
	filters := make(FieldFilters)
	for _, fm := range t.FieldMappings {
		if len(fm.Conditions) == 0 {
			continue
		}
		filters[fm.FieldKey] = append(filters[fm.FieldKey], fm.Conditions...)
	}
	return filters
}
