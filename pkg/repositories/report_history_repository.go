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

// ReportHistoryRepository provides data access for generated report records.
type ReportHistoryRepository interface {
	Create(ctx context.Context, entry *models.ReportHistoryEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReportHistoryEntry, error)

	// List returns history entries most recent first, capped at limit.
	List(ctx context.Context, templateID *uuid.UUID, limit int) ([]models.ReportHistoryEntry, error)

	// IncrementDownloadCount bumps the download counter on a served entry.
	IncrementDownloadCount(ctx context.Context, id uuid.UUID) error
}

type reportHistoryRepository struct {
	db *database.DB
}

// NewReportHistoryRepository creates a PostgreSQL-backed history repository.
func NewReportHistoryRepository(db *database.DB) ReportHistoryRepository {
	return &reportHistoryRepository{db: db}
}

var _ ReportHistoryRepository = (*reportHistoryRepository)(nil)

const defaultHistoryLimit = 50

func (r *reportHistoryRepository) Create(ctx context.Context, entry *models.ReportHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.GeneratedAt.IsZero() {
		entry.GeneratedAt = time.Now()
	}

	filtersJSON, err := json.Marshal(entry.Filters)
	if err != nil {
		return fmt.Errorf("failed to marshal filters: %w", err)
	}
	inputsJSON, err := json.Marshal(entry.Inputs)
	if err != nil {
		return fmt.Errorf("failed to marshal inputs: %w", err)
	}

	query := `
		INSERT INTO report_history (
			id, template_id, job_id, file_name, file_path,
			record_count, file_size, format, filters, inputs,
			generated_at, download_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err = r.db.Exec(ctx, query,
		entry.ID,
		entry.TemplateID,
		entry.JobID,
		entry.FileName,
		entry.FilePath,
		entry.RecordCount,
		entry.FileSize,
		entry.Format,
		filtersJSON,
		inputsJSON,
		entry.GeneratedAt,
		entry.DownloadCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create report history entry: %w", err)
	}
	return nil
}

func (r *reportHistoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReportHistoryEntry, error) {
	query := `
		SELECT id, template_id, job_id, file_name, file_path,
		       record_count, file_size, format, filters, inputs,
		       generated_at, download_count
		FROM report_history
		WHERE id = $1`

	entry, err := scanHistoryRow(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report history entry: %w", err)
	}
	return entry, nil
}

func (r *reportHistoryRepository) List(ctx context.Context, templateID *uuid.UUID, limit int) ([]models.ReportHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	query := `
		SELECT id, template_id, job_id, file_name, file_path,
		       record_count, file_size, format, filters, inputs,
		       generated_at, download_count
		FROM report_history
		WHERE ($1::uuid IS NULL OR template_id = $1)
		ORDER BY generated_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, templateID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list report history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.ReportHistoryEntry, 0)
	for rows.Next() {
		entry, err := scanHistoryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report history row: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read report history rows: %w", err)
	}
	return entries, nil
}

func (r *reportHistoryRepository) IncrementDownloadCount(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE report_history
		SET download_count = download_count + 1
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanHistoryRow(row pgx.Row) (*models.ReportHistoryEntry, error) {
	var entry models.ReportHistoryEntry
	var filtersJSON, inputsJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.TemplateID,
		&entry.JobID,
		&entry.FileName,
		&entry.FilePath,
		&entry.RecordCount,
		&entry.FileSize,
		&entry.Format,
		&filtersJSON,
		&inputsJSON,
		&entry.GeneratedAt,
		&entry.DownloadCount,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(filtersJSON, &entry.Filters); err != nil {
		return nil, fmt.Errorf("failed to unmarshal filters: %w", err)
	}
	if err := json.Unmarshal(inputsJSON, &entry.Inputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal inputs: %w", err)
	}
	return &entry, nil
}
