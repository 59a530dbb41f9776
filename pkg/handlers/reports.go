package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/services"
)

// ReportsHandler exposes report job submission, tracking, and history.
type ReportsHandler struct {
	reports *services.ReportService
	filters *services.FilterEngine
	logger  *zap.Logger
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(reports *services.ReportService, filters *services.FilterEngine, logger *zap.Logger) *ReportsHandler {
	return &ReportsHandler{reports: reports, filters: filters, logger: logger}
}

// RegisterRoutes registers the report routes on the given mux.
func (h *ReportsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reports", h.SubmitJob)
	mux.HandleFunc("POST /api/reports/validate", h.ValidateFilters)
	mux.HandleFunc("GET /api/reports/jobs/{id}", h.GetJobStatus)
	mux.HandleFunc("POST /api/reports/jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /api/reports/history", h.ListHistory)
	mux.HandleFunc("POST /api/reports/history/{id}/regenerate", h.Regenerate)
	mux.HandleFunc("GET /api/reports/history/{id}/download", h.Download)
}

// ValidateFiltersRequest is the body of a standalone validation request.
type ValidateFiltersRequest struct {
	Filters models.FieldFilters `json:"filters"`
	Inputs  models.UserInputs   `json:"inputs,omitempty"`
}

// SubmitJob handles POST /api/reports requests.
// Validates the filter configuration and enqueues a generation job.
func (h *ReportsHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req services.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if req.TemplateID == uuid.Nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_template_id", "template_id is required")
		return
	}

	job, err := h.reports.Submit(r.Context(), req)
	if err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, job); err != nil {
		h.logger.Error("Failed to write job response", zap.Error(err))
	}
}

// ValidateFilters handles POST /api/reports/validate requests.
// Runs filter validation without creating a job. Always returns 200 with
// the violation list so clients can show errors inline.
func (h *ReportsHandler) ValidateFilters(w http.ResponseWriter, r *http.Request) {
	var req ValidateFiltersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	violations := h.filters.Validate(req.Filters, req.Inputs)
	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"valid":  len(violations) == 0,
		"errors": violations,
	}); err != nil {
		h.logger.Error("Failed to write validation response", zap.Error(err))
	}
}

// GetJobStatus handles GET /api/reports/jobs/{id} requests.
func (h *ReportsHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	job, err := h.reports.GetJob(r.Context(), id)
	if err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, job); err != nil {
		h.logger.Error("Failed to write job status response", zap.Error(err))
	}
}

// CancelJob handles POST /api/reports/jobs/{id}/cancel requests.
// Only running jobs can be cancelled; anything else returns 409.
func (h *ReportsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.reports.Cancel(r.Context(), id); err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"}); err != nil {
		h.logger.Error("Failed to write cancel response", zap.Error(err))
	}
}

// ListHistory handles GET /api/reports/history requests.
// Optional query parameters: template_id, limit.
func (h *ReportsHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	var templateID *uuid.UUID
	if raw := r.URL.Query().Get("template_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_template_id", "Invalid template ID format")
			return
		}
		templateID = &id
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_limit", "Invalid limit")
			return
		}
		limit = n
	}

	entries, err := h.reports.ListHistory(r.Context(), templateID, limit)
	if err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"history": entries,
		"count":   len(entries),
	}); err != nil {
		h.logger.Error("Failed to write history response", zap.Error(err))
	}
}

// Regenerate handles POST /api/reports/history/{id}/regenerate requests.
// Submits a fresh job with the filter configuration stored on the entry.
func (h *ReportsHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	job, err := h.reports.Regenerate(r.Context(), id)
	if err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusAccepted, job); err != nil {
		h.logger.Error("Failed to write regenerate response", zap.Error(err))
	}
}

// Download handles GET /api/reports/history/{id}/download requests.
// Streams the stored file bytes with attachment headers.
func (h *ReportsHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	entry, data, err := h.reports.Download(r.Context(), id)
	if err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}

	contentType := "application/octet-stream"
	switch entry.Format {
	case models.FormatCSV:
		contentType = "text/csv; charset=utf-8"
	case models.FormatJSON:
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entry.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		h.logger.Error("Failed to write download response", zap.Error(err))
	}
}

func (h *ReportsHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "invalid_id", "Invalid ID format"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return uuid.Nil, false
	}
	return id, true
}
