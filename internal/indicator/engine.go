package indicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brewsignal/brewsignal/internal/persistence"
)

// Engine loads the inputs for one IP and evaluates the indicator set.
type Engine struct {
	store     *persistence.Store
	leadWeeks int
	now       func() time.Time
}

// NewEngine wires the indicator engine. leadWeeks is the timing-window lead
// time target.
func NewEngine(store *persistence.Store, leadWeeks int) *Engine {
	return &Engine{store: store, leadWeeks: leadWeeks, now: time.Now}
}

// Compute evaluates all 13 indicators for the IP in one (geo, timeframe).
func (e *Engine) Compute(ctx context.Context, ipID uuid.UUID, geo, timeframe string) ([]Indicator, error) {
	latest, err := e.store.Trends.LatestComposite(ctx, ipID, geo, timeframe)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, fmt.Errorf("failed to load latest composite: %w", err)
	}

	manualRows, err := e.store.Scores.ListManualInputs(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load manual inputs: %w", err)
	}
	manual := make(map[string]float64, len(manualRows))
	for _, row := range manualRows {
		manual[row.IndicatorKey] = row.Value
	}

	events, err := e.store.Events.ListByIP(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}

	series, err := e.loadAliasSeries(ctx, ipID, geo, timeframe)
	if err != nil {
		return nil, err
	}

	return ComputeAll(Inputs{
		Latest:      latest,
		AliasSeries: series,
		Events:      events,
		Manual:      manual,
		LeadWeeks:   e.leadWeeks,
		Now:         e.now(),
	}), nil
}

func (e *Engine) loadAliasSeries(ctx context.Context, ipID uuid.UUID, geo, timeframe string) ([]AliasSeries, error) {
	aliases, err := e.store.IPs.ListEnabledAliases(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load aliases: %w", err)
	}

	since := e.now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -14)
	series := make([]AliasSeries, 0, len(aliases))
	for _, alias := range aliases {
		samples, err := e.store.Trends.ListAliasSamplesSince(ctx, ipID, alias.ID, geo, timeframe, since)
		if err != nil {
			return nil, fmt.Errorf("failed to load samples for alias %q: %w", alias.Alias, err)
		}
		series = append(series, AliasSeries{Alias: alias.Alias, Samples: samples})
	}
	return series, nil
}
