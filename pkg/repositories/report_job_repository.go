package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/database"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

// ReportJobRepository provides data access for report job records.
// Status transitions are guarded at the storage layer: each update names
// the states it may move from, so a terminal job can never regress.
type ReportJobRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReportJob, error)

	// MarkRunning transitions pending -> running and stamps started_at.
	MarkRunning(ctx context.Context, id uuid.UUID) error

	// UpdateProgress records a progress step. Only applies while the job is
	// running and the new progress is not below the stored one.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int, label string) error

	// MarkCompleted transitions running -> completed with the result file,
	// forces progress to 100, and stamps completed_at.
	MarkCompleted(ctx context.Context, id uuid.UUID, resultFile string) error

	// MarkFailed transitions any non-terminal state -> failed with the
	// triggering message and stamps completed_at.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
}

type reportJobRepository struct {
	db *database.DB
}

// NewReportJobRepository creates a PostgreSQL-backed job repository.
func NewReportJobRepository(db *database.DB) ReportJobRepository {
	return &reportJobRepository{db: db}
}

var _ ReportJobRepository = (*reportJobRepository)(nil)

func (r *reportJobRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	filtersJSON, err := json.Marshal(job.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}
	inputsJSON, err := json.Marshal(job.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	query := `
		INSERT INTO report_jobs (
			id, template_id, status, progress, progress_label,
			filters, inputs, format, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = r.db.Exec(ctx, query,
		job.ID,
		job.TemplateID,
		job.Status,
		job.Progress,
		job.ProgressLabel,
		filtersJSON,
		inputsJSON,
		job.Format,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create report job: %w", err)
	}
	return nil
}

func (r *reportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReportJob, error) {
	query := `
		SELECT id, template_id, status, progress, progress_label,
		       filters, inputs, format, result_file, error_message,
		       created_at, started_at, completed_at
		FROM report_jobs
		WHERE id = $1`

	var job models.ReportJob
	var filtersJSON, inputsJSON []byte
	var resultFile, errorMessage *string

	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.TemplateID,
		&job.Status,
		&job.Progress,
		&job.ProgressLabel,
		&filtersJSON,
		&inputsJSON,
		&job.Format,
		&resultFile,
		&errorMessage,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report job: %w", err)
	}

	if err := json.Unmarshal(filtersJSON, &job.Filters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal filters: %w", err)
	}
	if err := json.Unmarshal(inputsJSON, &job.Inputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
	}
	if resultFile != nil {
		job.ResultFile = *resultFile
	}
	if errorMessage != nil {
		job.ErrorMessage = *errorMessage
	}
	return &job, nil
}

func (r *reportJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE report_jobs
		SET status = $2, started_at = now()
		WHERE id = $1 AND status = $3`

	tag, err := r.db.Exec(ctx, query, id, models.JobStatusRunning, models.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

func (r *reportJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int, label string) error {
	query := `
		UPDATE report_jobs
		SET progress = $2, progress_label = $3
		WHERE id = $1 AND status = $4 AND progress <= $2`

	_, err := r.db.Exec(ctx, query, id, progress, label, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (r *reportJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, resultFile string) error {
	query := `
		UPDATE report_jobs
		SET status = $2, progress = 100, result_file = $3, completed_at = now()
		WHERE id = $1 AND status = $4`

	tag, err := r.db.Exec(ctx, query, id, models.JobStatusCompleted, resultFile, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}
	return nil
}

func (r *reportJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE report_jobs
		SET status = $2, error_message = $3, result_file = NULL, completed_at = now()
		WHERE id = $1 AND status IN ($4, $5)`

	tag, err := r.db.Exec(ctx, query, id,
		models.JobStatusFailed, errorMessage,
		models.JobStatusPending, models.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrInvalidTransition
	}
	return nil
}
