package services

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/blobstore"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/config"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/datasource"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/repositories"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/services/jobqueue"
)

type pipelineFixture struct {
	client    *fakeQueryClient
	jobs      *repositories.MemoryJobRepository
	history   *repositories.MemoryHistoryRepository
	templates *repositories.MemoryTemplateRepository
	blobs     *blobstore.MemoryStore
	queue     *jobqueue.Queue
	service   *ReportService
	template  *models.ReportTemplate
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	client := newFakeQueryClient()
	client.addRelation("v_payroll_summary", 3)
	client.rows["v_payroll_summary"] = []datasource.Row{
		{"employee_name": "张明", "gross_pay": 12000.0, "pay_period": "2025-06"},
		{"employee_name": "李华", "gross_pay": 9800.5, "pay_period": "2025-06"},
		{"employee_name": "王芳", "gross_pay": 11000.0, "pay_period": "2025-06"},
	}

	template := &models.ReportTemplate{
		ID:             uuid.New(),
		Name:           "Payroll Details",
		SourceRelation: "v_payroll_summary",
		IsActive:       true,
		FieldMappings: []models.FieldMapping{
			{FieldKey: "employee_name", DisplayName: "姓名", Visible: true, SortOrder: 1},
			{FieldKey: "gross_pay", DisplayName: "应发工资", Visible: true, SortOrder: 2},
			{FieldKey: "pay_period", DisplayName: "期间", Visible: true, SortOrder: 3},
		},
	}

	templates := repositories.NewMemoryTemplateRepository()
	templates.Put(template)

	f := &pipelineFixture{
		client:    client,
		jobs:      repositories.NewMemoryJobRepository(),
		history:   repositories.NewMemoryHistoryRepository(),
		templates: templates,
		blobs:     blobstore.NewMemoryStore(),
		queue:     jobqueue.New(nil, jobqueue.WithMaxConcurrent(2)),
		template:  template,
	}
	f.service = NewReportService(
		f.client, pinnedEngine(),
		f.jobs, f.history, f.templates,
		f.blobs, f.queue,
		&config.ReportConfig{FetchRowCap: 1000, SampleRowLimit: 1, MaxConcurrentJobs: 2},
		nil,
	)
	return f
}

func (f *pipelineFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = f.queue.Wait(ctx)
}

func TestSubmitAndRunToCompletion(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	job, err := f.service.Submit(ctx, SubmitRequest{TemplateID: f.template.ID})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.wait(t)

	final, err := f.service.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected completed, got %s (error: %s)", final.Status, final.ErrorMessage)
	}
	if final.Progress != 100 {
		t.Errorf("expected progress 100, got %d", final.Progress)
	}
	if final.ResultFile == "" {
		t.Error("expected result file on completed job")
	}
	if final.CompletedAt == nil || final.StartedAt == nil {
		t.Error("expected timestamps on completed job")
	}

	entries, err := f.service.ListHistory(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.JobID != job.ID {
		t.Errorf("history entry points at wrong job: %s", entry.JobID)
	}
	if entry.RecordCount != 3 {
		t.Errorf("expected 3 records, got %d", entry.RecordCount)
	}
	if entry.FileSize <= 0 {
		t.Error("expected a positive file size")
	}
}

func TestDownloadReturnsStoredBytes(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	if _, err := f.service.Submit(ctx, SubmitRequest{TemplateID: f.template.ID}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.wait(t)

	entries, err := f.service.ListHistory(ctx, nil, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d (%v)", len(entries), err)
	}

	entry, data, err := f.service.Download(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		t.Error("expected CSV bytes to start with a UTF-8 BOM")
	}
	if !bytes.Contains(data, []byte("姓名")) {
		t.Error("expected display-name header in CSV output")
	}
	if entry.Format != models.FormatCSV {
		t.Errorf("expected csv format, got %s", entry.Format)
	}

	refetched, err := f.history.GetByID(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if refetched.DownloadCount != 1 {
		t.Errorf("expected download count 1, got %d", refetched.DownloadCount)
	}
}

func TestSubmitValidationFailureCreatesNoJob(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	filters := models.FieldFilters{
		"pay_period": {{
			ID: "c_period", FieldKey: "pay_period", Enabled: true,
			ConditionType: models.ConditionUserInput, Operator: models.OpEq,
			InputSpec: &models.InputSpec{Required: true},
		}},
	}

	_, err := f.service.Submit(ctx, SubmitRequest{TemplateID: f.template.ID, Filters: filters})
	if err == nil {
		t.Fatal("expected validation error")
	}
	var violations apperrors.ValidationErrors
	if !errors.As(err, &violations) {
		t.Fatalf("expected ValidationErrors, got %T: %v", err, err)
	}
	if len(violations) != 1 {
		t.Errorf("expected 1 violation, got %d", len(violations))
	}
	if !f.queue.IsComplete() {
		t.Error("expected no queued work after rejected submission")
	}
}

func TestSubmitInactiveTemplate(t *testing.T) {
	f := newPipelineFixture(t)
	inactive := *f.template
	inactive.ID = uuid.New()
	inactive.IsActive = false
	f.templates.Put(&inactive)

	_, err := f.service.Submit(context.Background(), SubmitRequest{TemplateID: inactive.ID})
	if !errors.Is(err, apperrors.ErrTemplateInactive) {
		t.Errorf("expected ErrTemplateInactive, got %v", err)
	}
	var cfgErr *apperrors.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected a ConfigurationError, got %T", err)
	}
}

func TestSubmitUnknownTemplate(t *testing.T) {
	f := newPipelineFixture(t)

	_, err := f.service.Submit(context.Background(), SubmitRequest{TemplateID: uuid.New()})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestJobFailureRecordsMessage(t *testing.T) {
	f := newPipelineFixture(t)
	f.client.queryErr = errors.New("permission denied for relation v_payroll_summary")
	ctx := context.Background()

	job, err := f.service.Submit(ctx, SubmitRequest{TemplateID: f.template.ID})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.wait(t)

	final, err := f.service.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if final.Status != models.JobStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.ErrorMessage == "" {
		t.Error("expected an error message on failed job")
	}
	if final.ResultFile != "" {
		t.Error("failed job must not carry a result file")
	}

	entries, err := f.service.ListHistory(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no history for failed job, got %d entries", len(entries))
	}
}

func TestCancelOnlyFromRunning(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	pending := &models.ReportJob{TemplateID: f.template.ID, Format: models.FormatCSV}
	if err := f.jobs.Create(ctx, pending); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := f.service.Cancel(ctx, pending.ID); !errors.Is(err, apperrors.ErrJobNotCancellable) {
		t.Errorf("expected ErrJobNotCancellable for pending job, got %v", err)
	}

	if err := f.jobs.MarkRunning(ctx, pending.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := f.service.Cancel(ctx, pending.ID); err != nil {
		t.Fatalf("Cancel of running job failed: %v", err)
	}

	job, err := f.service.GetJob(ctx, pending.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != models.JobStatusFailed {
		t.Errorf("expected cancelled job to be failed, got %s", job.Status)
	}
	if job.ErrorMessage != "cancelled by user" {
		t.Errorf("expected cancellation message, got %q", job.ErrorMessage)
	}

	// Terminal jobs cannot be cancelled again.
	if err := f.service.Cancel(ctx, pending.ID); !errors.Is(err, apperrors.ErrJobNotCancellable) {
		t.Errorf("expected ErrJobNotCancellable for terminal job, got %v", err)
	}
}

func TestRegenerateReusesStoredConfiguration(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	filters := models.FieldFilters{
		"pay_period": {{
			ID: "c_period", FieldKey: "pay_period", Enabled: true,
			ConditionType: models.ConditionFixed, Operator: models.OpEq, Value: "2025-06",
		}},
	}
	if _, err := f.service.Submit(ctx, SubmitRequest{TemplateID: f.template.ID, Filters: filters}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.wait(t)

	entries, err := f.service.ListHistory(ctx, nil, 1)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one history entry, got %d (%v)", len(entries), err)
	}

	rejob, err := f.service.Regenerate(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	f.wait(t)

	final, err := f.service.GetJob(ctx, rejob.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected regenerated job completed, got %s (%s)", final.Status, final.ErrorMessage)
	}
	if len(final.Filters["pay_period"]) != 1 {
		t.Errorf("expected stored filters to carry over, got %v", final.Filters)
	}

	all, err := f.service.ListHistory(ctx, nil, 10)
	if err != nil {
		t.Fatalf("ListHistory failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(all))
	}
}

func TestRunQueryReceivesPredicateAndCap(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	filters := models.FieldFilters{
		"pay_period": {{
			ID: "c_period", FieldKey: "pay_period", Enabled: true,
			ConditionType: models.ConditionFixed, Operator: models.OpEq, Value: "2025-06",
		}},
	}
	if _, err := f.service.Submit(ctx, SubmitRequest{TemplateID: f.template.ID, Filters: filters}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	f.wait(t)

	if f.client.lastLimit != 1000 {
		t.Errorf("expected fetch cap 1000, got %d", f.client.lastLimit)
	}
	if len(f.client.lastPred.Conds) != 1 {
		t.Fatalf("expected 1 predicate condition, got %d", len(f.client.lastPred.Conds))
	}
	if f.client.lastPred.Conds[0].Column != "pay_period" {
		t.Errorf("expected pay_period condition, got %s", f.client.lastPred.Conds[0].Column)
	}
}
