package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

// MemoryJobRepository is an in-memory ReportJobRepository for tests and
// database-less deployments. It enforces the same transition guards as the
// PostgreSQL implementation.
type MemoryJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*models.ReportJob
}

// NewMemoryJobRepository creates an empty in-memory job repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[uuid.UUID]*models.ReportJob)}
}

var _ ReportJobRepository = (*MemoryJobRepository)(nil)

func (r *MemoryJobRepository) Create(_ context.Context, job *models.ReportJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *MemoryJobRepository) GetByID(_ context.Context, id uuid.UUID) (*models.ReportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (r *MemoryJobRepository) MarkRunning(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if job.Status != models.JobStatusPending {
		return apperrors.ErrInvalidTransition
	}
	now := time.Now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	return nil
}

func (r *MemoryJobRepository) UpdateProgress(_ context.Context, id uuid.UUID, progress int, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if job.Status != models.JobStatusRunning || progress < job.Progress {
		return nil
	}
	job.Progress = progress
	job.ProgressLabel = label
	return nil
}

func (r *MemoryJobRepository) MarkCompleted(_ context.Context, id uuid.UUID, resultFile string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if job.Status != models.JobStatusRunning {
		return apperrors.ErrInvalidTransition
	}
	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.Progress = 100
	job.ResultFile = resultFile
	job.CompletedAt = &now
	return nil
}

func (r *MemoryJobRepository) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return apperrors.ErrInvalidTransition
	}
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.ErrorMessage = errorMessage
	job.ResultFile = ""
	job.CompletedAt = &now
	return nil
}

// MemoryHistoryRepository is an in-memory ReportHistoryRepository.
type MemoryHistoryRepository struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*models.ReportHistoryEntry
}

// NewMemoryHistoryRepository creates an empty in-memory history repository.
func NewMemoryHistoryRepository() *MemoryHistoryRepository {
	return &MemoryHistoryRepository{entries: make(map[uuid.UUID]*models.ReportHistoryEntry)}
}

var _ ReportHistoryRepository = (*MemoryHistoryRepository)(nil)

func (r *MemoryHistoryRepository) Create(_ context.Context, entry *models.ReportHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.GeneratedAt.IsZero() {
		entry.GeneratedAt = time.Now()
	}
	stored := *entry
	r.entries[entry.ID] = &stored
	return nil
}

func (r *MemoryHistoryRepository) GetByID(_ context.Context, id uuid.UUID) (*models.ReportHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (r *MemoryHistoryRepository) List(_ context.Context, templateID *uuid.UUID, limit int) ([]models.ReportHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	entries := make([]models.ReportHistoryEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if templateID != nil && entry.TemplateID != *templateID {
			continue
		}
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].GeneratedAt.After(entries[j].GeneratedAt)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *MemoryHistoryRepository) IncrementDownloadCount(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	entry.DownloadCount++
	return nil
}

// MemoryTemplateRepository is an in-memory TemplateRepository.
type MemoryTemplateRepository struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*models.ReportTemplate
}

// NewMemoryTemplateRepository creates an empty in-memory template repository.
func NewMemoryTemplateRepository() *MemoryTemplateRepository {
	return &MemoryTemplateRepository{templates: make(map[uuid.UUID]*models.ReportTemplate)}
}

var _ TemplateRepository = (*MemoryTemplateRepository)(nil)

// Put stores or replaces a template definition.
func (r *MemoryTemplateRepository) Put(tmpl *models.ReportTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}
	stored := *tmpl
	r.templates[tmpl.ID] = &stored
}

func (r *MemoryTemplateRepository) GetByID(_ context.Context, id uuid.UUID) (*models.ReportTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tmpl, ok := r.templates[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *tmpl
	return &copied, nil
}

func (r *MemoryTemplateRepository) List(_ context.Context, activeOnly bool) ([]models.ReportTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	templates := make([]models.ReportTemplate, 0, len(r.templates))
	for _, tmpl := range r.templates {
		if activeOnly && !tmpl.IsActive {
			continue
		}
		templates = append(templates, *tmpl)
	}
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})
	return templates, nil
}
