// Package handlers implements the JSON API of the Brew Signal backend. Every
// handler reads path/query parameters, delegates to a service or repository,
// and writes a JSON body; errors map onto 400/404/409/500 with a detail
// message.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/bd"
	"github.com/brewsignal/brewsignal/internal/collector"
	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/health"
	"github.com/brewsignal/brewsignal/internal/indicator"
	"github.com/brewsignal/brewsignal/internal/launch"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
	"github.com/brewsignal/brewsignal/internal/syncsvc"
)

// Scope defaults when the query string omits geo/timeframe.
const (
	defaultGeo       = "TW"
	defaultTimeframe = "12m"
)

// CollectorRunner runs a full collection pass for one (ip, geo, timeframe).
type CollectorRunner interface {
	Run(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (*collector.RunResult, error)
}

// IndicatorEngine computes the indicator set for one IP.
type IndicatorEngine interface {
	Compute(ctx context.Context, ipID uuid.UUID, geo, timeframe string) ([]indicator.Indicator, error)
}

// BDScorer scores IPs for business-development allocation.
type BDScorer interface {
	ScoreIP(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (*bd.Score, error)
	Ranking(ctx context.Context, geo, timeframe string) ([]bd.RankedIP, error)
}

// LaunchPlanner builds the weekly launch grid for one IP.
type LaunchPlanner interface {
	Plan(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (*launch.Plan, error)
}

// HealthService serves confidence rows and operator health views.
type HealthService interface {
	Get(ctx context.Context, ipID uuid.UUID) (*models.IPConfidence, error)
	Recompute(ctx context.Context, ipID uuid.UUID) (*models.IPConfidence, error)
	Report(ctx context.Context, ipID uuid.UUID, geo, timeframe, sourceKey string) (*health.CollectorReport, error)
	SourceSummaries(ctx context.Context) ([]health.SourceSummary, error)
	CoverageMatrix(ctx context.Context, limit int, onlyIssues bool) ([]health.MatrixRow, error)
	RecentRuns(ctx context.Context, sourceKey string, limit int) ([]models.SourceRun, error)
}

// CatalogSyncer runs a catalogue sync for one IP.
type CatalogSyncer interface {
	SyncIP(ctx context.Context, ipID uuid.UUID) (*syncsvc.CatalogResult, error)
}

// VideoSyncer runs a video sync for one IP.
type VideoSyncer interface {
	SyncIP(ctx context.Context, ipID uuid.UUID) (*syncsvc.VideoResult, error)
}

// MerchSyncer runs a merch sync for one IP.
type MerchSyncer interface {
	SyncIP(ctx context.Context, ipID uuid.UUID) (*syncsvc.MerchResult, error)
}

// Deps bundles everything the handlers reach for.
type Deps struct {
	Store      *persistence.Store
	Config     config.Config
	Runner     CollectorRunner
	Indicators IndicatorEngine
	BD         BDScorer
	Launch     LaunchPlanner
	Health     HealthService
	Catalog    CatalogSyncer
	Video      VideoSyncer
	Merch      MerchSyncer
	Log        zerolog.Logger
}

// Handlers is the API handler set.
type Handlers struct {
	deps Deps
	log  zerolog.Logger
}

// New wires the handler set.
func New(deps Deps) *Handlers {
	return &Handlers{
		deps: deps,
		log:  deps.Log.With().Str("component", "http").Logger(),
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respond(w, status, errorBody{Detail: detail})
}

// fail maps service errors onto status codes: unknown rows read as 404,
// uniqueness collisions as 409, anything else as 500.
func (h *Handlers) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, persistence.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	return id, err == nil
}

func scope(r *http.Request) (geo, timeframe string) {
	geo = r.URL.Query().Get("geo")
	if geo == "" {
		geo = defaultGeo
	}
	timeframe = r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = defaultTimeframe
	}
	return geo, timeframe
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
