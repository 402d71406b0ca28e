package bd

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/indicator"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

// IndicatorSource computes the indicator set for one IP.
type IndicatorSource interface {
	Compute(ctx context.Context, ipID uuid.UUID, geo, timeframe string) ([]indicator.Indicator, error)
}

// ConfidenceSource returns the 0-100 data confidence for one IP.
type ConfidenceSource interface {
	Score(ctx context.Context, ipID uuid.UUID) (int, error)
}

// RankedIP is one row of the BD ranking.
type RankedIP struct {
	IPID     uuid.UUID `json:"ip_id"`
	Name     string    `json:"name"`
	Score    float64   `json:"bd_score"`
	Decision Decision  `json:"bd_decision"`
}

// Service scores IPs and caches results onto the pipeline row.
type Service struct {
	store      *persistence.Store
	indicators IndicatorSource
	confidence ConfidenceSource
	cfg        config.BDConfig
	log        zerolog.Logger
}

// NewService wires the BD scorer.
func NewService(store *persistence.Store, indicators IndicatorSource, confidence ConfidenceSource, cfg config.BDConfig, log zerolog.Logger) *Service {
	return &Service{
		store:      store,
		indicators: indicators,
		confidence: confidence,
		cfg:        cfg,
		log:        log.With().Str("component", "bd").Logger(),
	}
}

// ScoreIP computes and caches the BD score for one IP. The pipeline stage is
// never touched by scoring.
func (s *Service) ScoreIP(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (*Score, error) {
	inds, err := s.indicators.Compute(ctx, ipID, geo, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to compute indicators: %w", err)
	}
	conf, err := s.confidence.Score(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute confidence: %w", err)
	}

	result := Compute(inds, conf, s.cfg)
	if err := s.store.Scores.UpsertScore(ctx, ipID, result.Score, string(result.Decision)); err != nil {
		return nil, fmt.Errorf("failed to cache bd score: %w", err)
	}
	s.log.Debug().Str("ip_id", ipID.String()).Float64("score", result.Score).
		Str("decision", string(result.Decision)).Msg("bd score computed")
	return &result, nil
}

// Ranking scores every tracked IP and returns them sorted by score
// descending.
func (s *Service) Ranking(ctx context.Context, geo, timeframe string) ([]RankedIP, error) {
	ips, err := s.store.IPs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ips: %w", err)
	}

	ranked := make([]RankedIP, 0, len(ips))
	for _, ip := range ips {
		result, err := s.ScoreIP(ctx, ip.ID, geo, timeframe)
		if err != nil {
			s.log.Warn().Err(err).Str("ip_id", ip.ID.String()).Msg("skipping ip in ranking")
			continue
		}
		ranked = append(ranked, RankedIP{
			IPID:     ip.ID,
			Name:     ip.Name,
			Score:    result.Score,
			Decision: result.Decision,
		})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}
