package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

type aliasCreateBody struct {
	Alias   string   `json:"alias"`
	Locale  string   `json:"locale"`
	Weight  *float64 `json:"weight"`
	Enabled *bool    `json:"enabled"`
}

func (b aliasCreateBody) toModel() models.Alias {
	a := models.Alias{Alias: b.Alias, Locale: b.Locale, Weight: 1.0, Enabled: true}
	if b.Weight != nil {
		a.Weight = *b.Weight
	}
	if b.Enabled != nil {
		a.Enabled = *b.Enabled
	}
	return a
}

type ipCreateBody struct {
	Name    string            `json:"name"`
	Aliases []aliasCreateBody `json:"aliases"`
}

type ipUpdateBody struct {
	Name *string `json:"name"`
}

type ipListItem struct {
	ID          uuid.UUID           `json:"id"`
	Name        string              `json:"name"`
	CreatedAt   time.Time           `json:"created_at"`
	Aliases     []models.Alias      `json:"aliases"`
	LastUpdated *time.Time          `json:"last_updated,omitempty"`
	SignalLight *models.SignalLight `json:"signal_light,omitempty"`
}

// ListIPs returns every tracked IP with its aliases and the latest signal
// light across all scopes.
func (h *Handlers) ListIPs(w http.ResponseWriter, r *http.Request) {
	ips, err := h.deps.Store.IPs.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	items := make([]ipListItem, 0, len(ips))
	for _, ip := range ips {
		item := ipListItem{ID: ip.ID, Name: ip.Name, CreatedAt: ip.CreatedAt, Aliases: ip.Aliases}
		if item.Aliases == nil {
			item.Aliases = []models.Alias{}
		}
		latest, err := h.deps.Store.Trends.LatestCompositeAnyScope(r.Context(), ip.ID)
		if err == nil && latest != nil {
			d := latest.Date
			item.LastUpdated = &d
			item.SignalLight = latest.SignalLight
		}
		items = append(items, item)
	}
	respond(w, http.StatusOK, items)
}

// CreateIP registers an IP with its initial aliases.
func (h *Handlers) CreateIP(w http.ResponseWriter, r *http.Request) {
	var body ipCreateBody
	if err := decode(r, &body); err != nil || body.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	aliases := make([]models.Alias, 0, len(body.Aliases))
	for _, a := range body.Aliases {
		if a.Alias == "" {
			respondError(w, http.StatusBadRequest, "alias text is required")
			return
		}
		aliases = append(aliases, a.toModel())
	}

	ip := &models.IP{Name: body.Name}
	if err := h.deps.Store.IPs.Create(r.Context(), ip, aliases); err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, ip)
}

// GetIP returns one IP with its aliases.
func (h *Handlers) GetIP(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	ip, err := h.deps.Store.IPs.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, ip)
}

// UpdateIP renames an IP.
func (h *Handlers) UpdateIP(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	var body ipUpdateBody
	if err := decode(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if body.Name != nil {
		if err := h.deps.Store.IPs.UpdateName(r.Context(), id, *body.Name); err != nil {
			h.fail(w, err)
			return
		}
	}
	ip, err := h.deps.Store.IPs.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, ip)
}

// DeleteIP removes an IP and everything it owns.
func (h *Handlers) DeleteIP(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	if err := h.deps.Store.IPs.Delete(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// AddAlias attaches a new alias to an IP.
func (h *Handlers) AddAlias(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	var body aliasCreateBody
	if err := decode(r, &body); err != nil || body.Alias == "" {
		respondError(w, http.StatusBadRequest, "alias text is required")
		return
	}
	if _, err := h.deps.Store.IPs.Get(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}

	alias := body.toModel()
	alias.IPID = id
	if err := h.deps.Store.IPs.AddAlias(r.Context(), &alias); err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusCreated, alias)
}

type aliasUpdateBody struct {
	Alias   *string  `json:"alias"`
	Locale  *string  `json:"locale"`
	Weight  *float64 `json:"weight"`
	Enabled *bool    `json:"enabled"`
}

// UpdateAlias changes alias text, locale, weight, or enabled state.
func (h *Handlers) UpdateAlias(w http.ResponseWriter, r *http.Request) {
	aid, ok := pathUUID(r, "aid")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid alias id")
		return
	}
	var body aliasUpdateBody
	if err := decode(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid body")
		return
	}
	alias, err := h.deps.Store.IPs.UpdateAlias(r.Context(), aid, persistence.AliasUpdate{
		Alias:   body.Alias,
		Locale:  body.Locale,
		Weight:  body.Weight,
		Enabled: body.Enabled,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, alias)
}

// DeleteAlias removes one alias.
func (h *Handlers) DeleteAlias(w http.ResponseWriter, r *http.Request) {
	aid, ok := pathUUID(r, "aid")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid alias id")
		return
	}
	if err := h.deps.Store.IPs.DeleteAlias(r.Context(), aid); err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

// ResetAliasWeight restores an alias to its original weight.
func (h *Handlers) ResetAliasWeight(w http.ResponseWriter, r *http.Request) {
	aid, ok := pathUUID(r, "aid")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid alias id")
		return
	}
	alias, err := h.deps.Store.IPs.ResetAliasWeight(r.Context(), aid)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, alias)
}
