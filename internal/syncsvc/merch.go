package syncsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/metrics"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

const (
	// merchSourceKey covers both e-commerce platforms in health tracking.
	merchSourceKey = "shopee"

	// maxMerchQueries bounds queries per platform per IP.
	maxMerchQueries = 3
)

// MerchAPI is one e-commerce platform's product-count surface. A platform
// that blocks the query returns an error; the syncer treats that as a missed
// reading, not a fatal failure.
type MerchAPI interface {
	Platform() string
	ProductCount(ctx context.Context, query string) (int, error)
}

// PlatformCount is the best reading obtained for one platform.
type PlatformCount struct {
	Platform string `json:"platform"`
	Count    *int   `json:"count,omitempty"`
	Query    string `json:"query,omitempty"`
}

// MerchResult summarises one merch sync pass.
type MerchResult struct {
	IPID      uuid.UUID       `json:"ip_id"`
	IPName    string          `json:"ip_name"`
	Platforms []PlatformCount `json:"platforms"`
	Errors    []string        `json:"errors"`
}

// MerchSyncer estimates supply saturation by counting listed products per
// platform, querying Chinese aliases first since the target platforms index
// Chinese titles.
type MerchSyncer struct {
	store      *persistence.Store
	platforms  []MerchAPI
	health     HealthRecorder
	confidence ConfidenceRecomputer
	log        zerolog.Logger
	now        func() time.Time
}

// NewMerchSyncer wires the merch syncer.
func NewMerchSyncer(store *persistence.Store, platforms []MerchAPI, health HealthRecorder, confidence ConfidenceRecomputer, log zerolog.Logger) *MerchSyncer {
	return &MerchSyncer{
		store:      store,
		platforms:  platforms,
		health:     health,
		confidence: confidence,
		log:        log.With().Str("component", "merch_sync").Logger(),
		now:        time.Now,
	}
}

// SyncIP queries every platform with up to maxMerchQueries alias terms and
// keeps the highest count per platform, the best alias being the one the
// platform indexes most completely.
func (s *MerchSyncer) SyncIP(ctx context.Context, ipID uuid.UUID) (*MerchResult, error) {
	started := s.now().UTC()

	ip, err := s.store.IPs.Get(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ip: %w", err)
	}
	aliases, err := s.store.IPs.ListEnabledAliases(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}

	result := &MerchResult{IPID: ipID, IPName: ip.Name, Errors: []string{}}

	terms := SearchTerms(ip.Name, aliases, "zh", "en", "jp")
	if len(terms) > maxMerchQueries {
		terms = terms[:maxMerchQueries]
	}

	succeeded := 0
	for _, platform := range s.platforms {
		best := s.bestCount(ctx, platform, terms)
		result.Platforms = append(result.Platforms, best)
		if best.Count == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: all queries failed", platform.Platform()))
			continue
		}
		succeeded++
		if err := s.upsertCount(ctx, ipID, best); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	s.finishRun(ctx, ipID, started, result, succeeded)
	return result, nil
}

// SyncAll syncs every IP sequentially.
func (s *MerchSyncer) SyncAll(ctx context.Context) ([]MerchResult, error) {
	ips, err := s.store.IPs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ips: %w", err)
	}
	results := make([]MerchResult, 0, len(ips))
	for _, ip := range ips {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		r, err := s.SyncIP(ctx, ip.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("ip_id", ip.ID.String()).Msg("merch sync failed for ip")
			continue
		}
		results = append(results, *r)
	}
	return results, nil
}

func (s *MerchSyncer) bestCount(ctx context.Context, platform MerchAPI, terms []string) PlatformCount {
	best := PlatformCount{Platform: platform.Platform()}
	for _, term := range terms {
		count, err := platform.ProductCount(ctx, term)
		if err != nil {
			s.log.Debug().Err(err).Str("platform", platform.Platform()).Str("term", term).
				Msg("merch query failed")
			continue
		}
		if best.Count == nil || count > *best.Count {
			c := count
			best.Count = &c
			best.Query = term
		}
	}
	return best
}

func (s *MerchSyncer) upsertCount(ctx context.Context, ipID uuid.UUID, best PlatformCount) error {
	row := &models.MerchCount{
		IPID:         ipID,
		Platform:     best.Platform,
		QueryTerm:    best.Query,
		ProductCount: *best.Count,
		RecordedAt:   s.now().UTC(),
	}
	if err := s.store.Scores.UpsertMerchCount(ctx, row); err != nil {
		return fmt.Errorf("failed to upsert merch count: %w", err)
	}
	return nil
}

func (s *MerchSyncer) finishRun(ctx context.Context, ipID uuid.UUID, started time.Time, result *MerchResult, succeeded int) {
	success := succeeded > 0
	var attemptErr error
	if !success && len(result.Errors) > 0 {
		attemptErr = fmt.Errorf("%s", result.Errors[0])
	}
	if err := s.health.RecordAttempt(ctx, ipID, merchSourceKey, success, succeeded, attemptErr); err != nil {
		s.log.Error().Err(err).Msg("failed to record merch health")
	}

	finished := s.now().UTC()
	status := "ok"
	if !success {
		status = "down"
	}
	run := &models.SourceRun{
		SourceKey:      merchSourceKey,
		StartedAt:      started,
		FinishedAt:     &finished,
		Status:         status,
		ItemsProcessed: len(s.platforms),
		ItemsSucceeded: succeeded,
		ItemsFailed:    len(s.platforms) - succeeded,
	}
	duration := int(finished.Sub(started).Milliseconds())
	run.DurationMS = &duration
	if len(result.Errors) > 0 {
		sample := result.Errors[0]
		run.ErrorSample = &sample
	}
	if err := s.store.Health.InsertSourceRun(ctx, run); err != nil {
		s.log.Error().Err(err).Msg("failed to log source run")
	}
	metrics.SyncRun(merchSourceKey, status)

	if _, err := s.confidence.Recompute(ctx, ipID); err != nil {
		s.log.Warn().Err(err).Str("ip_id", ipID.String()).Msg("failed to recompute confidence")
	}
}
