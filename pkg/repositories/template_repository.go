package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/database"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

// TemplateRepository provides read access to report template definitions.
type TemplateRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ReportTemplate, error)
	List(ctx context.Context, activeOnly bool) ([]models.ReportTemplate, error)
}

type templateRepository struct {
	db *database.DB
}

// NewTemplateRepository creates a PostgreSQL-backed template repository.
func NewTemplateRepository(db *database.DB) TemplateRepository {
	return &templateRepository{db: db}
}

var _ TemplateRepository = (*templateRepository)(nil)

func (r *templateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ReportTemplate, error) {
	query := `
		SELECT id, name, source_relation, field_mappings, is_active
		FROM report_templates
		WHERE id = $1`

	tmpl, err := scanTemplateRow(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report template: %w", err)
	}
	return tmpl, nil
}

func (r *templateRepository) List(ctx context.Context, activeOnly bool) ([]models.ReportTemplate, error) {
	query := `
		SELECT id, name, source_relation, field_mappings, is_active
		FROM report_templates
		WHERE $1 = false OR is_active = true
		ORDER BY name ASC`

	rows, err := r.db.Query(ctx, query, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list report templates: %w", err)
	}
	defer rows.Close()

	templates := make([]models.ReportTemplate, 0)
	for rows.Next() {
		tmpl, err := scanTemplateRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report template row: %w", err)
		}
		templates = append(templates, *tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read report template rows: %w", err)
	}
	return templates, nil
}

func scanTemplateRow(row pgx.Row) (*models.ReportTemplate, error) {
	var tmpl models.ReportTemplate
	var mappingsJSON []byte

	err := row.Scan(
		&tmpl.ID,
		&tmpl.Name,
		&tmpl.SourceRelation,
		&mappingsJSON,
		&tmpl.IsActive,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(mappingsJSON, &tmpl.FieldMappings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal field mappings: %w", err)
	}
	return &tmpl, nil
}
