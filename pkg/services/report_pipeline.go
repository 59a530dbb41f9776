package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/blobstore"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/config"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/render"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/repositories"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/services/jobqueue"
)

// cancelledByUser is the error message stored on jobs cancelled through
// the API, distinguishing them from jobs that failed on their own.
const cancelledByUser = "cancelled by user"

// SubmitRequest is one request to generate a report.
type SubmitRequest struct {
	TemplateID uuid.UUID           `json:"template_id"`
	Filters    models.FieldFilters `json:"filters,omitempty"`
	Inputs     models.UserInputs   `json:"inputs,omitempty"`
	Format     models.OutputFormat `json:"format,omitempty"`
}

// ReportService runs the report generation pipeline: validate, fetch,
// render, store, record. Jobs execute asynchronously on a bounded queue;
// callers poll job status by ID.
type ReportService struct {
	client    datasource.QueryClient
	filters   *FilterEngine
	jobs      repositories.ReportJobRepository
	history   repositories.ReportHistoryRepository
	templates repositories.TemplateRepository
	blobs     blobstore.Store
	queue     *jobqueue.Queue
	cfg       *config.ReportConfig
	logger    *zap.Logger

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
}

// NewReportService creates the report pipeline service.
func NewReportService(
	client datasource.QueryClient,
	filters *FilterEngine,
	jobs repositories.ReportJobRepository,
	history repositories.ReportHistoryRepository,
	templates repositories.TemplateRepository,
	blobs blobstore.Store,
	queue *jobqueue.Queue,
	cfg *config.ReportConfig,
	logger *zap.Logger,
) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		client:    client,
		filters:   filters,
		jobs:      jobs,
		history:   history,
		templates: templates,
		blobs:     blobs,
		queue:     queue,
		cfg:       cfg,
		logger:    logger.Named("report-pipeline"),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit validates the request and, only if every check passes, creates a
// pending job and enqueues its execution. Validation failures return the
// full violation list and leave no job record behind.
func (s *ReportService) Submit(ctx context.Context, req SubmitRequest) (*models.ReportJob, error) {
	tmpl, err := s.templates.GetByID(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, &apperrors.ConfigurationError{
			Reason: fmt.Sprintf("template %q cannot run", tmpl.Name),
			Err:    apperrors.ErrTemplateInactive,
		}
	}

	filters := req.Filters
	if len(filters) == 0 {
		filters = tmpl.FieldFilterSet()
	}

	format := req.Format
	if format == "" {
		format = models.FormatCSV
	}
	if format != models.FormatCSV && format != models.FormatJSON {
		return nil, apperrors.ValidationErrors{{
			Field:   "format",
			Message: fmt.Sprintf("unsupported output format %q", format),
		}}
	}

	if violations := s.filters.Validate(filters, req.Inputs); len(violations) > 0 {
		return nil, violations
	}

	job := &models.ReportJob{
		ID:         uuid.New(),
		TemplateID: tmpl.ID,
		Status:     models.JobStatusPending,
		Filters:    filters,
		Inputs:     req.Inputs,
		Format:     format,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	s.queue.Enqueue(&reportTask{service: s, jobID: job.ID, name: tmpl.Name})

	s.logger.Info("report job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("template", tmpl.Name),
		zap.String("format", string(format)))
	return job, nil
}

// GetJob returns the current state of a job.
func (s *ReportService) GetJob(ctx context.Context, id uuid.UUID) (*models.ReportJob, error) {
	return s.jobs.GetByID(ctx, id)
}

// Cancel stops a running job. Only running jobs can be cancelled; the job
// is marked failed with a user-cancellation message before its context is
// torn down, so the run loop cannot overwrite the record.
func (s *ReportService) Cancel(ctx context.Context, id uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusRunning {
		return fmt.Errorf("job is %s: %w", job.Status, apperrors.ErrJobNotCancellable)
	}

	if err := s.jobs.MarkFailed(ctx, id, cancelledByUser); err != nil {
		return err
	}

	s.mu.Lock()
	cancel := s.cancels[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.logger.Info("report job cancelled", zap.String("job_id", id.String()))
	return nil
}

// Regenerate submits a new job reusing the filter configuration stored on
// a history entry.
func (s *ReportService) Regenerate(ctx context.Context, historyID uuid.UUID) (*models.ReportJob, error) {
	entry, err := s.history.GetByID(ctx, historyID)
	if err != nil {
		return nil, err
	}
	return s.Submit(ctx, SubmitRequest{
		TemplateID: entry.TemplateID,
		Filters:    entry.Filters,
		Inputs:     entry.Inputs,
		Format:     entry.Format,
	})
}

// Download returns the stored bytes of a generated report and bumps its
// download counter.
func (s *ReportService) Download(ctx context.Context, historyID uuid.UUID) (*models.ReportHistoryEntry, []byte, error) {
	entry, err := s.history.GetByID(ctx, historyID)
	if err != nil {
		return nil, nil, err
	}

	data, err := s.blobs.Get(ctx, entry.FilePath)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, fmt.Errorf("report file expired: %w", apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := s.history.IncrementDownloadCount(ctx, historyID); err != nil {
		s.logger.Warn("failed to record download",
			zap.String("history_id", historyID.String()), zap.Error(err))
	}
	return entry, data, nil
}

// ListHistory returns recent history entries, optionally filtered by
// template.
func (s *ReportService) ListHistory(ctx context.Context, templateID *uuid.UUID, limit int) ([]models.ReportHistoryEntry, error) {
	return s.history.List(ctx, templateID, limit)
}

// run executes one job end to end. It reports progress at every step
// boundary and checks for cancellation between steps.
func (s *ReportService) run(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		// Cancelled or already handled before execution started.
		return nil
	}

	if err := s.jobs.MarkRunning(ctx, jobID); err != nil {
		return err
	}

	err = s.execute(ctx, job)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		// Cancel already marked the job failed; leave its record alone.
		s.logger.Info("report job run aborted", zap.String("job_id", jobID.String()))
		return nil
	}

	// MarkFailed is a no-op error when Cancel won the race.
	if markErr := s.jobs.MarkFailed(context.WithoutCancel(ctx), jobID, err.Error()); markErr != nil && !errors.Is(markErr, apperrors.ErrInvalidTransition) {
		s.logger.Error("failed to record job failure",
			zap.String("job_id", jobID.String()), zap.Error(markErr))
	}
	s.logger.Warn("report job failed",
		zap.String("job_id", jobID.String()), zap.Error(err))
	return err
}

func (s *ReportService) execute(ctx context.Context, job *models.ReportJob) error {
	s.progress(ctx, job.ID, 10, "loading template")

	tmpl, err := s.templates.GetByID(ctx, job.TemplateID)
	if err != nil {
		return &apperrors.JobExecutionError{Step: "load template", Err: err}
	}
	if !tmpl.IsActive {
		return &apperrors.JobExecutionError{Step: "load template", Err: &apperrors.ConfigurationError{
			Reason: fmt.Sprintf("template %q cannot run", tmpl.Name),
			Err:    apperrors.ErrTemplateInactive,
		}}
	}
	if err := ValidateRelationName(tmpl.SourceRelation); err != nil {
		return &apperrors.JobExecutionError{Step: "load template", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.progress(ctx, job.ID, 30, "fetching data")

	pred, err := s.filters.BuildPredicate(job.Filters, job.Inputs)
	if err != nil {
		return &apperrors.JobExecutionError{Step: "resolve filters", Err: err}
	}
	rows, err := s.client.RunQuery(ctx, tmpl.SourceRelation, pred, s.cfg.FetchRowCap)
	if err != nil {
		return &apperrors.JobExecutionError{Step: "fetch data", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.progress(ctx, job.ID, 60, "rendering output")

	renderer, err := render.ForFormat(job.Format, render.Options{DropZeroColumns: s.cfg.DropZeroColumns})
	if err != nil {
		return &apperrors.JobExecutionError{Step: "render output", Err: err}
	}
	data, err := renderer.Render(render.ColumnsFor(tmpl), rows)
	if err != nil {
		return &apperrors.JobExecutionError{Step: "render output", Err: err}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	s.progress(ctx, job.ID, 80, "storing file")

	fileName := buildFileName(tmpl.Name, job.ID, renderer.Extension())
	put, err := s.blobs.Put(ctx, data, fileName)
	if err != nil {
		return &apperrors.JobExecutionError{Step: "store file", Err: err}
	}

	if err := s.jobs.MarkCompleted(ctx, job.ID, put.Path); err != nil {
		return &apperrors.JobExecutionError{Step: "finalize", Err: err}
	}

	entry := &models.ReportHistoryEntry{
		TemplateID:  tmpl.ID,
		JobID:       job.ID,
		FileName:    fileName,
		FilePath:    put.Path,
		RecordCount: len(rows),
		FileSize:    put.Size,
		Format:      job.Format,
		Filters:     job.Filters,
		Inputs:      job.Inputs,
	}
	if err := s.history.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("failed to record report history",
			zap.String("job_id", job.ID.String()), zap.Error(err))
	}

	s.logger.Info("report job completed",
		zap.String("job_id", job.ID.String()),
		zap.String("file", fileName),
		zap.Int("records", len(rows)))
	return nil
}

func (s *ReportService) progress(ctx context.Context, jobID uuid.UUID, pct int, label string) {
	if err := s.jobs.UpdateProgress(ctx, jobID, pct, label); err != nil {
		s.logger.Warn("failed to update job progress",
			zap.String("job_id", jobID.String()), zap.Error(err))
	}
}

// buildFileName derives the stored file name from the template name, the
// generation month, and the job ID for uniqueness.
func buildFileName(templateName string, jobID uuid.UUID, ext string) string {
	slug := strings.ToLower(strings.TrimSpace(templateName))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_', r == '.':
			return '_'
		default:
			return r
		}
	}, slug)
	if slug == "" {
		slug = "report"
	}
	period := time.Now().Format("2006-01")
	short := strings.Split(jobID.String(), "-")[0]
	return fmt.Sprintf("%s_%s_%s.%s", slug, period, short, ext)
}

// reportTask adapts a job to the queue's Task interface.
type reportTask struct {
	service *ReportService
	jobID   uuid.UUID
	name    string
}

var _ jobqueue.Task = (*reportTask)(nil)

func (t *reportTask) ID() string { return t.jobID.String() }

func (t *reportTask) Name() string { return "report: " + t.name }

func (t *reportTask) Execute(ctx context.Context) error {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.service.mu.Lock()
	t.service.cancels[t.jobID] = cancel
	t.service.mu.Unlock()
	defer func() {
		t.service.mu.Lock()
		delete(t.service.cancels, t.jobID)
		t.service.mu.Unlock()
	}()

	return t.service.run(jobCtx, t.jobID)
}
