package handlers

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/brewsignal/brewsignal/internal/indicator"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/opportunity"
)

type opportunityResponse struct {
	IPID       uuid.UUID             `json:"ip_id"`
	Geo        string                `json:"geo"`
	Timeframe  string                `json:"timeframe"`
	Indicators []indicator.Indicator `json:"indicators"`
	opportunity.Score
}

// Opportunity serves the opportunity score with the full indicator
// breakdown.
func (h *Handlers) Opportunity(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	geo, timeframe := scope(r)

	if _, err := h.deps.Store.IPs.Get(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	inds, err := h.deps.Indicators.Compute(r.Context(), id, geo, timeframe)
	if err != nil {
		h.fail(w, err)
		return
	}

	respond(w, http.StatusOK, opportunityResponse{
		IPID:       id,
		Geo:        geo,
		Timeframe:  timeframe,
		Indicators: inds,
		Score:      opportunity.Compute(inds, h.deps.Config.Opportunity),
	})
}

type opportunityInputBody struct {
	Inputs map[string]float64 `json:"inputs"`
}

// UpdateOpportunityInputs upserts manual indicator values. Keys must be known
// manual-input indicators and values must sit in [0, 1].
func (h *Handlers) UpdateOpportunityInputs(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	var body opportunityInputBody
	if err := decode(r, &body); err != nil || len(body.Inputs) == 0 {
		respondError(w, http.StatusBadRequest, "inputs map is required")
		return
	}

	for key, value := range body.Inputs {
		if !indicator.ValidInputKey(key) {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid indicator key: %s", key))
			return
		}
		if value < 0 || value > 1 {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("value for %s must be between 0.0 and 1.0", key))
			return
		}
	}

	results := make([]models.ManualInput, 0, len(body.Inputs))
	for key, value := range body.Inputs {
		row, err := h.deps.Store.Scores.UpsertManualInput(r.Context(), id, key, value)
		if err != nil {
			h.fail(w, err)
			return
		}
		results = append(results, *row)
	}
	respond(w, http.StatusOK, results)
}

// BDScore serves the business-development score for one IP.
func (h *Handlers) BDScore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	geo, timeframe := scope(r)

	if _, err := h.deps.Store.IPs.Get(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	result, err := h.deps.BD.ScoreIP(r.Context(), id, geo, timeframe)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// BDRanking serves every tracked IP scored and sorted for BD allocation.
func (h *Handlers) BDRanking(w http.ResponseWriter, r *http.Request) {
	geo, timeframe := scope(r)
	ranking, err := h.deps.BD.Ranking(r.Context(), geo, timeframe)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, ranking)
}

// LaunchPlan serves the weekly launch-timing grid for one IP.
func (h *Handlers) LaunchPlan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	geo, timeframe := scope(r)

	plan, err := h.deps.Launch.Plan(r.Context(), id, geo, timeframe)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, plan)
}
