package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vmxmy/salary-system-v3-sub002/pkg/models"
	"github.com/vmxmy/salary-system-v3-sub002/pkg/services"
)

// SourcesHandler exposes relation discovery and column inference.
type SourcesHandler struct {
	discovery *services.DiscoveryService
	prober    *services.SchemaProber
	logger    *zap.Logger
}

// NewSourcesHandler creates a new SourcesHandler.
func NewSourcesHandler(discovery *services.DiscoveryService, prober *services.SchemaProber, logger *zap.Logger) *SourcesHandler {
	return &SourcesHandler{discovery: discovery, prober: prober, logger: logger}
}

// RegisterRoutes registers the source discovery routes on the given mux.
func (h *SourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/report-sources", h.DiscoverSources)
	mux.HandleFunc("GET /api/report-sources/recommend", h.Recommend)
	mux.HandleFunc("GET /api/report-sources/{name}/columns", h.GetColumns)
}

// DiscoverSources handles GET /api/report-sources requests.
// Returns every reachable relation the configured strategies found,
// populated relations first.
func (h *SourcesHandler) DiscoverSources(w http.ResponseWriter, r *http.Request) {
	relations, err := h.discovery.DiscoverAll(r.Context())
	if err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"sources": relations,
		"count":   len(relations),
	}); err != nil {
		h.logger.Error("Failed to write sources response", zap.Error(err))
	}
}

// Recommend handles GET /api/report-sources/recommend requests.
// The optional domain query parameter selects the scoring heuristics.
func (h *SourcesHandler) Recommend(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")

	recommendation, err := h.discovery.RecommendFor(r.Context(), domain)
	if err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}

	if err := WriteJSON(w, http.StatusOK, recommendation); err != nil {
		h.logger.Error("Failed to write recommendation response", zap.Error(err))
	}
}

// GetColumns handles GET /api/report-sources/{name}/columns requests.
// Infers column descriptors from a sample row of the named relation.
func (h *SourcesHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := services.ValidateRelationName(name); err != nil {
		if werr := ErrorResponse(w, http.StatusBadRequest, "invalid_relation_name", err.Error()); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return
	}

	columns, err := h.prober.InferColumns(r.Context(), name)
	if err != nil {
		ServiceErrorResponse(w, err, h.logger)
		return
	}
	if columns == nil {
		columns = []models.ColumnDescriptor{}
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{
		"relation": name,
		"columns":  columns,
	}); err != nil {
		h.logger.Error("Failed to write columns response", zap.Error(err))
	}
}
