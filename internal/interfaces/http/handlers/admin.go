package handlers

import (
	"net/http"
	"strconv"

	"github.com/brewsignal/brewsignal/internal/health"
	"github.com/brewsignal/brewsignal/internal/models"
)

const defaultAdminLimit = 50

// SourceHealth serves the per-source health rollup.
func (h *Handlers) SourceHealth(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.deps.Health.SourceSummaries(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, summaries)
}

// CoverageMatrix serves the IP-by-source coverage grid.
func (h *Handlers) CoverageMatrix(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultAdminLimit)
	onlyIssues := r.URL.Query().Get("only_issues") == "true"

	matrix, err := h.deps.Health.CoverageMatrix(r.Context(), limit, onlyIssues)
	if err != nil {
		h.fail(w, err)
		return
	}
	if matrix == nil {
		matrix = []health.MatrixRow{}
	}
	respond(w, http.StatusOK, matrix)
}

// RecentRuns serves recent source runs, optionally filtered by source key.
func (h *Handlers) RecentRuns(w http.ResponseWriter, r *http.Request) {
	sourceKey := r.URL.Query().Get("source_key")
	limit := queryInt(r, "limit", defaultAdminLimit)

	runs, err := h.deps.Health.RecentRuns(r.Context(), sourceKey, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if runs == nil {
		runs = []models.SourceRun{}
	}
	respond(w, http.StatusOK, runs)
}

// SourceRegistry serves the static source registry.
func (h *Handlers) SourceRegistry(w http.ResponseWriter, r *http.Request) {
	registry, err := h.deps.Store.Health.ListRegistry(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, registry)
}

// Confidence serves the stored confidence row, computing it on first read.
func (h *Handlers) Confidence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	row, err := h.deps.Health.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, row)
}

// RecalculateConfidence recomputes and stores the confidence row.
func (h *Handlers) RecalculateConfidence(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	row, err := h.deps.Health.Recompute(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, row)
}

func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
