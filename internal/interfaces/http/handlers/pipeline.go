package handlers

import (
	"net/http"
	"time"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

type pipelineCreateBody struct {
	Stage            models.PipelineStage `json:"stage"`
	TargetLaunchDate *time.Time           `json:"target_launch_date"`
	BDStartDate      *time.Time           `json:"bd_start_date"`
	LicenseStartDate *time.Time           `json:"license_start_date"`
	LicenseEndDate   *time.Time           `json:"license_end_date"`
	MGAmountUSD      *int                 `json:"mg_amount_usd"`
	Notes            *string              `json:"notes"`
}

type pipelineUpdateBody struct {
	Stage            *models.PipelineStage `json:"stage"`
	TargetLaunchDate *time.Time            `json:"target_launch_date"`
	BDStartDate      *time.Time            `json:"bd_start_date"`
	LicenseStartDate *time.Time            `json:"license_start_date"`
	LicenseEndDate   *time.Time            `json:"license_end_date"`
	MGAmountUSD      *int                  `json:"mg_amount_usd"`
	Notes            *string               `json:"notes"`
}

// GetPipeline serves the BD pipeline row of an IP.
func (h *Handlers) GetPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	pipeline, err := h.deps.Store.Scores.GetPipeline(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, pipeline)
}

// CreatePipeline opens the BD pipeline for an IP. An IP carries at most one
// pipeline row; a second create reads as a conflict.
func (h *Handlers) CreatePipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	var body pipelineCreateBody
	if err := decode(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Stage == "" {
		body.Stage = models.StageCandidate
	}
	if !models.ValidStage(body.Stage) {
		respondError(w, http.StatusBadRequest, "invalid stage")
		return
	}

	if _, err := h.deps.Store.IPs.Get(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}

	row := &models.IPPipeline{
		IPID:             id,
		Stage:            body.Stage,
		TargetLaunchDate: body.TargetLaunchDate,
		BDStartDate:      body.BDStartDate,
		LicenseStartDate: body.LicenseStartDate,
		LicenseEndDate:   body.LicenseEndDate,
		MGAmountUSD:      body.MGAmountUSD,
		Notes:            body.Notes,
	}
	if err := h.deps.Store.Scores.CreatePipeline(r.Context(), row); err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, row)
}

// UpdatePipeline changes pipeline fields; the stage must stay valid.
func (h *Handlers) UpdatePipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	var body pipelineUpdateBody
	if err := decode(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Stage != nil && !models.ValidStage(*body.Stage) {
		respondError(w, http.StatusBadRequest, "invalid stage")
		return
	}

	pipeline, err := h.deps.Store.Scores.UpdatePipeline(r.Context(), id, persistence.PipelineUpdate{
		Stage:            body.Stage,
		TargetLaunchDate: body.TargetLaunchDate,
		BDStartDate:      body.BDStartDate,
		LicenseStartDate: body.LicenseStartDate,
		LicenseEndDate:   body.LicenseEndDate,
		MGAmountUSD:      body.MGAmountUSD,
		Notes:            body.Notes,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, pipeline)
}
