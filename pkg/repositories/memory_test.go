package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/apperrors"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
)

func TestMemoryJobLifecycle(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	job := &models.ReportJob{TemplateID: uuid.New(), Format: models.FormatCSV}
	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if job.ID == uuid.Nil {
		t.Fatal("expected generated job ID")
	}

	stored, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if stored.Status != models.JobStatusPending {
		t.Errorf("expected pending, got %s", stored.Status)
	}

	if err := repo.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning failed: %v", err)
	}
	if err := repo.UpdateProgress(ctx, job.ID, 40, "fetching data"); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	if err := repo.MarkCompleted(ctx, job.ID, "report_files/x.csv"); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	final, _ := repo.GetByID(ctx, job.ID)
	if final.Status != models.JobStatusCompleted || final.Progress != 100 {
		t.Errorf("expected completed at 100%%, got %s at %d", final.Status, final.Progress)
	}
	if final.ResultFile != "report_files/x.csv" {
		t.Errorf("expected result file, got %q", final.ResultFile)
	}
}

func TestMemoryJobTransitionGuards(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	job := &models.ReportJob{TemplateID: uuid.New()}
	_ = repo.Create(ctx, job)

	// completed/failed require running
	if err := repo.MarkCompleted(ctx, job.ID, "f"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition completing pending job, got %v", err)
	}

	_ = repo.MarkRunning(ctx, job.ID)
	if err := repo.MarkRunning(ctx, job.ID); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition re-running job, got %v", err)
	}

	_ = repo.MarkCompleted(ctx, job.ID, "f")
	if err := repo.MarkFailed(ctx, job.ID, "late failure"); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition failing terminal job, got %v", err)
	}

	final, _ := repo.GetByID(ctx, job.ID)
	if final.Status != models.JobStatusCompleted {
		t.Errorf("terminal status must not change, got %s", final.Status)
	}
}

func TestMemoryJobProgressMonotonic(t *testing.T) {
	repo := NewMemoryJobRepository()
	ctx := context.Background()

	job := &models.ReportJob{TemplateID: uuid.New()}
	_ = repo.Create(ctx, job)
	_ = repo.MarkRunning(ctx, job.ID)

	_ = repo.UpdateProgress(ctx, job.ID, 60, "rendering")
	_ = repo.UpdateProgress(ctx, job.ID, 30, "stale update")

	stored, _ := repo.GetByID(ctx, job.ID)
	if stored.Progress != 60 {
		t.Errorf("progress regressed to %d", stored.Progress)
	}
	if stored.ProgressLabel != "rendering" {
		t.Errorf("label regressed to %q", stored.ProgressLabel)
	}
}

func TestMemoryJobNotFound(t *testing.T) {
	repo := NewMemoryJobRepository()

	if _, err := repo.GetByID(context.Background(), uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryHistoryListAndCount(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	tmplA, tmplB := uuid.New(), uuid.New()
	base := time.Now()
	for i := 0; i < 3; i++ {
		entry := &models.ReportHistoryEntry{
			TemplateID:  tmplA,
			JobID:       uuid.New(),
			FileName:    "a.csv",
			GeneratedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, entry); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	_ = repo.Create(ctx, &models.ReportHistoryEntry{TemplateID: tmplB, JobID: uuid.New(), GeneratedAt: base})

	all, err := repo.List(ctx, nil, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].GeneratedAt.Before(all[i].GeneratedAt) {
			t.Error("expected most recent first")
		}
	}

	scoped, err := repo.List(ctx, &tmplB, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(scoped) != 1 {
		t.Errorf("expected 1 entry for template B, got %d", len(scoped))
	}

	limited, _ := repo.List(ctx, nil, 2)
	if len(limited) != 2 {
		t.Errorf("expected limit applied, got %d", len(limited))
	}

	entry := all[0]
	if err := repo.IncrementDownloadCount(ctx, entry.ID); err != nil {
		t.Fatalf("IncrementDownloadCount failed: %v", err)
	}
	refetched, _ := repo.GetByID(ctx, entry.ID)
	if refetched.DownloadCount != 1 {
		t.Errorf("expected download count 1, got %d", refetched.DownloadCount)
	}
}

func TestMemoryTemplates(t *testing.T) {
	repo := NewMemoryTemplateRepository()
	ctx := context.Background()

	repo.Put(&models.ReportTemplate{Name: "b-report", IsActive: true})
	repo.Put(&models.ReportTemplate{Name: "a-report", IsActive: false})

	all, err := repo.List(ctx, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 || all[0].Name != "a-report" {
		t.Errorf("expected name-sorted list, got %+v", all)
	}

	active, err := repo.List(ctx, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(active) != 1 || active[0].Name != "b-report" {
		t.Errorf("expected only active template, got %+v", active)
	}

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
