package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/indicator"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

// availabilityFactor discounts sources that are structurally harder to keep
// fresh (scraping targets, quota-bound APIs).
var availabilityFactor = map[string]float64{
	"high":   1.0,
	"medium": 0.8,
	"low":    0.5,
}

// totalIndicators is the size of the indicator set.
const totalIndicators = 13

// maxMissingListed caps the missing_sources / missing_indicators lists stored
// on the confidence row.
const maxMissingListed = 3

// Service computes per-IP confidence and the health rollups behind the admin
// surface.
type Service struct {
	store     *persistence.Store
	cfg       config.ConfidenceConfig
	staleness config.StalenessConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewService wires the confidence and health-report service.
func NewService(store *persistence.Store, cfg config.ConfidenceConfig, staleness config.StalenessConfig, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		cfg:       cfg,
		staleness: staleness,
		log:       log.With().Str("component", "confidence").Logger(),
		now:       time.Now,
	}
}

// Recompute derives the confidence row for one IP from scratch and upserts
// it: indicator and source coverage build the base, key-source and
// key-indicator penalties shave it multiplicatively, and the availability mix
// of the registry discounts the whole thing.
func (s *Service) Recompute(ctx context.Context, ipID uuid.UUID) (*models.IPConfidence, error) {
	registry, err := s.store.Health.ListRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source registry: %w", err)
	}
	healthRows, err := s.store.Health.ListSourceHealthByIP(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source health: %w", err)
	}
	healthBySource := make(map[string]models.IPSourceHealth, len(healthRows))
	for _, h := range healthRows {
		healthBySource[h.SourceKey] = h
	}

	inputs, err := s.store.Scores.ListManualInputs(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list manual inputs: %w", err)
	}
	stored := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		stored[in.IndicatorKey] = true
	}

	hasTrends, err := s.store.Trends.HasComposites(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to check composites: %w", err)
	}
	events, err := s.store.Events.ListByIP(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	timingActive := len(events) > 0 || stored[indicator.TimingOverrideKey]

	activeIndicators := 0
	for key := range stored {
		if key != indicator.TimingOverrideKey {
			activeIndicators++
		}
	}
	if hasTrends {
		activeIndicators += 2 // search_momentum + cross_alias_consistency
	}
	if timingActive {
		activeIndicators++
	}
	if activeIndicators > totalIndicators {
		activeIndicators = totalIndicators
	}

	var missingIndicators []string
	for _, key := range indicator.KeyIndicators {
		live := (key == "search_momentum" && hasTrends) || (key == "timing_window" && timingActive)
		if !stored[key] && !live {
			missingIndicators = append(missingIndicators, key)
		}
	}

	activeSources := 0
	for _, h := range healthRows {
		if h.Status == models.SourceOK {
			activeSources++
		}
	}
	attempted := len(healthRows)
	expected := len(registry)

	var missingSources []string
	for _, reg := range registry {
		h, seen := healthBySource[reg.SourceKey]
		if !seen || h.Status == models.SourceDown {
			missingSources = append(missingSources, reg.SourceKey)
		}
	}

	indicatorCoverage := float64(activeIndicators) / totalIndicators
	sourceCoverage := 0.0
	if attempted > 0 && expected > 0 {
		sourceCoverage = (float64(activeSources) / float64(attempted)) * (float64(attempted) / float64(expected))
	}
	base := 100 * (s.cfg.IndicatorWeight*indicatorCoverage + s.cfg.SourceWeight*sourceCoverage)

	// Never-attempted sources hurt coverage but draw no penalty.
	penalty := 0.0
	for _, reg := range registry {
		if !reg.IsKeySource {
			continue
		}
		h, seen := healthBySource[reg.SourceKey]
		if !seen {
			continue
		}
		switch h.Status {
		case models.SourceDown:
			penalty += s.cfg.KeySourceDownPenalty
		case models.SourceWarn:
			penalty += s.cfg.KeySourceWarnPenalty
		}
	}
	penalty += math.Min(s.cfg.KeyIndicatorPenaltyCap,
		float64(len(missingIndicators))*s.cfg.KeyIndicatorMissPenalty)

	riskAdj := 1.0
	if weightSum := registryWeight(registry); weightSum > 0 {
		factorSum := 0.0
		for _, reg := range registry {
			factor, ok := availabilityFactor[reg.AvailabilityLevel]
			if !ok {
				factor = 0.8
			}
			factorSum += reg.PriorityWeight * factor
		}
		riskAdj = factorSum / weightSum
	}

	score := base * riskAdj * (1 - math.Min(0.8, penalty/100))
	scoreInt := int(math.Round(math.Max(0, math.Min(100, score))))

	now := s.now().UTC()
	row := &models.IPConfidence{
		IPID:              ipID,
		ConfidenceScore:   scoreInt,
		ConfidenceBand:    models.BandFor(scoreInt),
		ActiveIndicators:  activeIndicators,
		TotalIndicators:   totalIndicators,
		ActiveSources:     activeSources,
		ExpectedSources:   expected,
		MissingSources:    capList(missingSources),
		MissingIndicators: capList(missingIndicators),
		LastCalculatedAt:  &now,
	}
	if err := s.store.Health.UpsertConfidence(ctx, row); err != nil {
		return nil, fmt.Errorf("failed to upsert confidence: %w", err)
	}

	s.log.Debug().Str("ip_id", ipID.String()).Int("score", scoreInt).
		Str("band", string(row.ConfidenceBand)).Float64("penalty", penalty).
		Msg("confidence recomputed")
	return row, nil
}

// Get returns the stored confidence row, computing a fresh one when the IP
// has never been scored.
func (s *Service) Get(ctx context.Context, ipID uuid.UUID) (*models.IPConfidence, error) {
	row, err := s.store.Health.GetConfidence(ctx, ipID)
	if err == nil {
		return row, nil
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return s.Recompute(ctx, ipID)
	}
	return nil, fmt.Errorf("failed to load confidence: %w", err)
}

// Score satisfies the BD scorer's confidence contract.
func (s *Service) Score(ctx context.Context, ipID uuid.UUID) (int, error) {
	row, err := s.Get(ctx, ipID)
	if err != nil {
		return 0, err
	}
	return row.ConfidenceScore, nil
}

func registryWeight(registry []models.SourceRegistry) float64 {
	sum := 0.0
	for _, reg := range registry {
		sum += reg.PriorityWeight
	}
	return sum
}

func capList(list []string) []string {
	if list == nil {
		return []string{}
	}
	if len(list) > maxMissingListed {
		return list[:maxMissingListed]
	}
	return list
}
