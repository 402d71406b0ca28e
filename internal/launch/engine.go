package launch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

// demandWindowRows bounds how many recent composite rows feed the ma28 slope.
const demandWindowRows = 60

// Engine assembles launch plans from stored trend, event, merch, and
// confidence data.
type Engine struct {
	store *persistence.Store
	cfg   config.LaunchConfig
	log   zerolog.Logger
	now   func() time.Time
}

// NewEngine wires the launch-timing engine.
func NewEngine(store *persistence.Store, cfg config.LaunchConfig, log zerolog.Logger) *Engine {
	return &Engine{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "launch").Logger(),
		now:   time.Now,
	}
}

// Plan builds the launch plan for one IP. A missing pipeline row or licence
// window falls back to the [today+12w, today+6mo] planning horizon.
func (e *Engine) Plan(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (*Plan, error) {
	today := e.now().UTC().Truncate(24 * time.Hour)

	ipName := "Unknown"
	ip, err := e.store.IPs.Get(ctx, ipID)
	switch {
	case err == nil:
		ipName = ip.Name
	case !errors.Is(err, persistence.ErrNotFound):
		return nil, fmt.Errorf("failed to load ip: %w", err)
	}

	windowStart, windowEnd := e.window(ctx, ipID, today)

	baseDemand, slopePerWeek, err := e.demandTrend(ctx, ipID, geo, timeframe)
	if err != nil {
		return nil, err
	}

	margin := time.Duration(eventMarginWeeks) * 7 * 24 * time.Hour
	events, err := e.store.Events.ListWindow(ctx, ipID, windowStart.Add(-margin), windowEnd.Add(margin))
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}

	totalMerch, err := e.store.Scores.TotalMerchCount(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to total merch counts: %w", err)
	}
	saturation := saturationFrom(totalMerch)

	confidence, err := e.store.Health.GetConfidence(ctx, ipID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("failed to load confidence: %w", err)
	}

	grid := buildGrid(today, windowStart, windowEnd, baseDemand, slopePerWeek, events, saturation, e.cfg)
	recommended, backups := recommend(grid)

	var plan Plan
	plan.IPID = ipID
	plan.IPName = ipName
	plan.Geo = geo
	plan.Timeframe = timeframe
	plan.LicenseStartDate = windowStart
	plan.LicenseEndDate = windowEnd
	plan.RecommendedWeek = recommended
	plan.BackupWeeks = backups
	plan.Grid = grid
	plan.EventsInWindow = events
	plan.Saturation = round2(saturation)
	plan.Confidence = confidence

	if recommended != nil {
		plan.Milestones = milestones(*recommended, e.cfg)
	}
	var confScore *int
	if confidence != nil {
		confScore = &confidence.ConfidenceScore
	}
	plan.Explanations = explanations(grid, recommended, events, saturation, confScore)

	e.log.Debug().Str("ip_id", ipID.String()).Int("grid_weeks", len(grid)).
		Float64("saturation", plan.Saturation).Msg("launch plan built")
	return &plan, nil
}

// window resolves the planning window from the pipeline licence dates, or
// falls back to a forward horizon. The start never lands in the past.
func (e *Engine) window(ctx context.Context, ipID uuid.UUID, today time.Time) (time.Time, time.Time) {
	start := today.AddDate(0, 0, 7*12)
	end := today.AddDate(0, 0, 30*e.cfg.FallbackMonths)

	pipeline, err := e.store.Scores.GetPipeline(ctx, ipID)
	if err == nil && pipeline.LicenseStartDate != nil && pipeline.LicenseEndDate != nil {
		start = *pipeline.LicenseStartDate
		end = *pipeline.LicenseEndDate
	}
	if start.Before(today) {
		start = today.AddDate(0, 0, 7*4)
	}
	return start, end
}

// demandTrend derives the demand baseline and weekly slope from the most
// recent ma28 values.
func (e *Engine) demandTrend(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (float64, float64, error) {
	rows, err := e.store.Trends.RecentComposites(ctx, ipID, geo, timeframe, demandWindowRows)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to load recent composites: %w", err)
	}

	var withMA []models.CompositeDaily
	for _, r := range rows {
		if r.MA28 != nil {
			withMA = append(withMA, r)
		}
	}

	baseDemand, slopePerWeek := 50.0, 0.0
	switch {
	case len(withMA) >= 2:
		oldest, newest := withMA[0], withMA[len(withMA)-1]
		span := weeksBetween(oldest.Date, newest.Date)
		if span < 1 {
			span = 1
		}
		baseDemand = clamp(0, 100, *newest.MA28)
		slopePerWeek = (*newest.MA28 - *oldest.MA28) / span
	case len(withMA) == 1:
		baseDemand = clamp(0, 100, *withMA[0].MA28)
	}
	return baseDemand, slopePerWeek, nil
}
