package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/trend"
)

// signalsWindowRows is how much trailing series the alert detector sees.
const signalsWindowRows = 90

type rawPoint struct {
	Date   time.Time `json:"date"`
	Value  int       `json:"value"`
	Alias  string    `json:"alias"`
	Source string    `json:"source"`
}

type trendResponse struct {
	IPID      uuid.UUID `json:"ip_id"`
	Geo       string    `json:"geo"`
	Timeframe string    `json:"timeframe"`
	Mode      string    `json:"mode"`
	Points    any       `json:"points"`
}

// Trend serves the trend series for one scope: the derived composite rows by
// default, or the raw per-alias samples with mode=by_alias.
func (h *Handlers) Trend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	geo, timeframe := scope(r)
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "composite"
	}

	resp := trendResponse{IPID: id, Geo: geo, Timeframe: timeframe, Mode: mode}
	switch mode {
	case "by_alias":
		samples, err := h.deps.Store.Trends.ListSamplesWithAlias(r.Context(), id, geo, timeframe)
		if err != nil {
			h.fail(w, err)
			return
		}
		points := make([]rawPoint, 0, len(samples))
		for _, s := range samples {
			points = append(points, rawPoint{Date: s.Date, Value: s.Value, Alias: s.AliasText, Source: s.Source})
		}
		resp.Points = points
	case "composite":
		rows, err := h.deps.Store.Trends.CompositeSeries(r.Context(), id, geo, timeframe)
		if err != nil {
			h.fail(w, err)
			return
		}
		if rows == nil {
			rows = []models.CompositeDaily{}
		}
		resp.Points = rows
	default:
		respondError(w, http.StatusBadRequest, "mode must be composite or by_alias")
		return
	}
	respond(w, http.StatusOK, resp)
}

type signalsResponse struct {
	IPID               uuid.UUID           `json:"ip_id"`
	Geo                string              `json:"geo"`
	Timeframe          string              `json:"timeframe"`
	Date               *time.Time          `json:"date,omitempty"`
	CompositeValue     *float64            `json:"composite_value,omitempty"`
	WoWGrowth          *float64            `json:"wow_growth,omitempty"`
	Acceleration       *bool               `json:"acceleration,omitempty"`
	BreakoutPercentile *float64            `json:"breakout_percentile,omitempty"`
	SignalLight        *models.SignalLight `json:"signal_light,omitempty"`
	Alerts             []trend.Alert       `json:"alerts"`
}

// Signals serves the latest signal state plus alert conditions detected on
// the trailing series.
func (h *Handlers) Signals(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	geo, timeframe := scope(r)

	recent, err := h.deps.Store.Trends.RecentComposites(r.Context(), id, geo, timeframe, signalsWindowRows)
	if err != nil {
		h.fail(w, err)
		return
	}
	// RecentComposites is newest-first; the detector wants date order.
	rows := make([]models.CompositeDaily, len(recent))
	for i, row := range recent {
		rows[len(recent)-1-i] = row
	}

	resp := signalsResponse{IPID: id, Geo: geo, Timeframe: timeframe}
	resp.Alerts = trend.DetectAlerts(rows, h.deps.Config.Signal)
	if resp.Alerts == nil {
		resp.Alerts = []trend.Alert{}
	}
	if len(rows) > 0 {
		latest := rows[len(rows)-1]
		d := latest.Date
		v := latest.CompositeValue
		resp.Date = &d
		resp.CompositeValue = &v
		resp.WoWGrowth = latest.WoWGrowth
		resp.Acceleration = latest.Acceleration
		resp.BreakoutPercentile = latest.BreakoutPercentile
		resp.SignalLight = latest.SignalLight
	}
	respond(w, http.StatusOK, resp)
}

// IPHealth serves the 14-day collector reliability report for one scope.
func (h *Handlers) IPHealth(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid ip id")
		return
	}
	geo, timeframe := scope(r)
	source := r.URL.Query().Get("source")
	if source == "" {
		source = h.deps.Config.Collector.Source
	}

	report, err := h.deps.Health.Report(r.Context(), id, geo, timeframe, source)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond(w, http.StatusOK, report)
}
