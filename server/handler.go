package server

import (
	"context"
	"encoding/json"
	"net/http"

	"esim-dashboard/models"
	"esim-dashboard/services"
)

// ReportSource produces the current dashboard snapshot.
type ReportSource interface {
	Refresh(ctx context.Context) *services.Snapshot
}

// Handler serves the dashboard JSON endpoints.
type Handler struct {
	source ReportSource
}

// NewHandler creates a Handler reading snapshots from source.
func NewHandler(source ReportSource) *Handler {
	return &Handler{source: source}
}

type sourcesResponse struct {
	Sources     []models.ProviderFile `json:"sources"`
	Diagnostics []models.Diagnostic   `json:"diagnostics"`
}

// GetReport serves the full report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Refresh(r.Context())
	writeJSON(w, http.StatusOK, snap.Report)
}

// ListProducts serves the unified, normalized dataset.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Refresh(r.Context())
	ds := snap.Dataset
	if ds == nil {
		ds = models.NewDataset()
	}
	writeJSON(w, http.StatusOK, ds)
}

// ListSources serves the discovered files and the refresh diagnostics.
func (h *Handler) ListSources(w http.ResponseWriter, r *http.Request) {
	snap := h.source.Refresh(r.Context())
	resp := sourcesResponse{
		Sources:     snap.Report.Sources,
		Diagnostics: snap.Report.Diagnostics,
	}
	if resp.Sources == nil {
		resp.Sources = []models.ProviderFile{}
	}
	if resp.Diagnostics == nil {
		resp.Diagnostics = []models.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health is the liveness probe.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
