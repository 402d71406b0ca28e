// Package trend folds per-alias samples into a weighted composite series and
// derives the momentum statistics the scorers consume: moving averages,
// week-over-week growth, acceleration, breakout percentile, and the
// traffic-light state.
package trend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

// breakoutWindowDays bounds the trailing distribution for the percentile.
const breakoutWindowDays = 180

// writeWindowDays bounds how far back recomputed rows are persisted.
const writeWindowDays = 365

// Aggregator recomputes the composite series for one (ip, geo, timeframe).
// Recomputation is deterministic and idempotent on the same sample set.
type Aggregator struct {
	store *persistence.Store
	cfg   config.SignalConfig
	log   zerolog.Logger
}

// NewAggregator wires the aggregation engine.
func NewAggregator(store *persistence.Store, cfg config.SignalConfig, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		store: store,
		cfg:   cfg,
		log:   log.With().Str("component", "aggregator").Logger(),
	}
}

// Recompute rebuilds the CompositeDaily slice from the current samples of the
// IP's enabled aliases. With no enabled aliases left, the slice is deleted.
func (a *Aggregator) Recompute(ctx context.Context, ipID uuid.UUID, geo, timeframe string) error {
	aliases, err := a.store.IPs.ListEnabledAliases(ctx, ipID)
	if err != nil {
		return fmt.Errorf("failed to load aliases: %w", err)
	}
	if len(aliases) == 0 {
		if err := a.store.Trends.DeleteComposites(ctx, ipID, geo, timeframe); err != nil {
			return fmt.Errorf("failed to delete composites: %w", err)
		}
		a.log.Info().Str("ip_id", ipID.String()).Msg("no enabled aliases, composites removed")
		return nil
	}

	weights := make(map[uuid.UUID]float64, len(aliases))
	ids := make([]uuid.UUID, 0, len(aliases))
	for _, al := range aliases {
		weights[al.ID] = al.Weight
		ids = append(ids, al.ID)
	}

	samples, err := a.store.Trends.ListSamples(ctx, ipID, geo, timeframe, ids)
	if err != nil {
		return fmt.Errorf("failed to load samples: %w", err)
	}
	if len(samples) == 0 {
		return nil
	}

	dates, values := CompositeSeries(samples, weights)
	rows := DeriveRows(dates, values, a.cfg)
	for i := range rows {
		rows[i].IPID = ipID
		rows[i].Geo = geo
		rows[i].Timeframe = timeframe
	}

	// Only rows inside the write window are persisted; older dates keep
	// their stored values.
	cutoff := dates[len(dates)-1].AddDate(0, 0, -writeWindowDays)
	recent := rows[:0]
	for _, row := range rows {
		if !row.Date.Before(cutoff) {
			recent = append(recent, row)
		}
	}

	if err := a.store.Trends.UpsertComposites(ctx, recent); err != nil {
		return fmt.Errorf("failed to store composites: %w", err)
	}
	a.log.Debug().Str("ip_id", ipID.String()).Str("geo", geo).
		Int("rows", len(recent)).Msg("composites recomputed")
	return nil
}

// CompositeSeries collapses samples into one weighted value per date. Only
// aliases present in weights contribute; each date averages over the aliases
// that reported that day.
func CompositeSeries(samples []models.Sample, weights map[uuid.UUID]float64) ([]time.Time, []float64) {
	type acc struct {
		weighted float64
		total    float64
	}
	byDate := make(map[time.Time]*acc)
	for _, s := range samples {
		w, ok := weights[s.AliasID]
		if !ok {
			continue
		}
		day := s.Date.UTC().Truncate(24 * time.Hour)
		entry := byDate[day]
		if entry == nil {
			entry = &acc{}
			byDate[day] = entry
		}
		entry.weighted += float64(s.Value) * w
		entry.total += w
	}

	dates := make([]time.Time, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	values := make([]float64, len(dates))
	for i, d := range dates {
		entry := byDate[d]
		if entry.total > 0 {
			values[i] = entry.weighted / entry.total
		}
	}
	return dates, values
}

// DeriveRows computes the derived statistics over the date-sorted composite
// series and assigns the traffic light per row.
func DeriveRows(dates []time.Time, values []float64, cfg config.SignalConfig) []models.CompositeDaily {
	rows := make([]models.CompositeDaily, len(dates))
	var prevWoW *float64

	for i := range dates {
		row := models.CompositeDaily{
			Date:           dates[i],
			CompositeValue: values[i],
		}

		row.MA7 = trailingMean(values, i, 7)
		row.MA28 = trailingMean(values, i, 28)
		row.WoWGrowth = wowGrowth(values, i)

		if row.WoWGrowth != nil {
			accel := *row.WoWGrowth > 0 &&
				prevWoW != nil && *prevWoW > 0 &&
				*row.WoWGrowth > *prevWoW
			row.Acceleration = &accel
			prevWoW = row.WoWGrowth
		}

		row.BreakoutPercentile = breakoutPercentile(dates, values, i, row.MA7)
		row.SignalLight = signalLight(row, cfg)
		rows[i] = row
	}
	return rows
}

// trailingMean averages the window values ending at index i, nil when the
// series is shorter than the window.
func trailingMean(values []float64, i, window int) *float64 {
	if i+1 < window {
		return nil
	}
	sum := 0.0
	for j := i + 1 - window; j <= i; j++ {
		sum += values[j]
	}
	m := sum / float64(window)
	return &m
}

// wowGrowth compares the trailing week against the week before it. Zero when
// the prior week averaged zero.
func wowGrowth(values []float64, i int) *float64 {
	if i+1 < 14 {
		return nil
	}
	recent, prior := 0.0, 0.0
	for j := i - 6; j <= i; j++ {
		recent += values[j]
	}
	for j := i - 13; j <= i-6-1; j++ {
		prior += values[j]
	}
	recent /= 7
	prior /= 7

	var g float64
	if prior == 0 {
		g = 0
	} else {
		g = recent/prior - 1
	}
	return &g
}

// breakoutPercentile ranks ma7 within the composite values of the trailing
// window (up to breakoutWindowDays), nil when the window holds fewer than 7
// observations or ma7 is undefined.
func breakoutPercentile(dates []time.Time, values []float64, i int, ma7 *float64) *float64 {
	if ma7 == nil {
		return nil
	}
	cutoff := dates[i].AddDate(0, 0, -breakoutWindowDays)
	count, rank := 0, 0
	for j := 0; j <= i; j++ {
		if dates[j].Before(cutoff) {
			continue
		}
		count++
		if values[j] <= *ma7 {
			rank++
		}
	}
	if count < 7 {
		return nil
	}
	p := float64(rank) / float64(count) * 100
	return &p
}

// signalLight assigns the traffic light for one row. Undefined growth leaves
// the light unset.
func signalLight(row models.CompositeDaily, cfg config.SignalConfig) *models.SignalLight {
	if row.WoWGrowth == nil {
		return nil
	}
	light := models.LightYellow
	switch {
	case *row.WoWGrowth > cfg.WoWGrowthThreshold &&
		row.Acceleration != nil && *row.Acceleration &&
		row.BreakoutPercentile != nil && *row.BreakoutPercentile >= cfg.BreakoutPercentile:
		light = models.LightGreen
	case row.MA7 != nil && row.MA28 != nil && *row.MA7 < *row.MA28 && *row.WoWGrowth < 0:
		light = models.LightRed
	}
	return &light
}
