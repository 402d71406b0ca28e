package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/brewsignal/brewsignal/internal/syncsvc"
)

type collectRunBody struct {
	IPID      uuid.UUID `json:"ip_id"`
	Geo       string    `json:"geo"`
	Timeframe string    `json:"timeframe"`
}

// CollectRun triggers a manual collection pass for one (ip, geo, timeframe).
func (h *Handlers) CollectRun(w http.ResponseWriter, r *http.Request) {
	var body collectRunBody
	if err := decode(r, &body); err != nil || body.IPID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "ip_id is required")
		return
	}
	if body.Geo == "" {
		body.Geo = defaultGeo
	}
	if body.Timeframe == "" {
		body.Timeframe = defaultTimeframe
	}

	result, err := h.deps.Runner.Run(r.Context(), body.IPID, body.Geo, body.Timeframe)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// CatalogSync runs the catalogue sync for one IP.
func (h *Handlers) CatalogSync(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	result, err := h.deps.Catalog.SyncIP(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// VideoSync runs the video sync for one IP. A missing API key reads as a
// validation error, not a server fault.
func (h *Handlers) VideoSync(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	result, err := h.deps.Video.SyncIP(r.Context(), id)
	if errors.Is(err, syncsvc.ErrNoAPIKey) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

// MerchSync runs the merch sync for one IP.
func (h *Handlers) MerchSync(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	result, err := h.deps.Merch.SyncIP(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}
