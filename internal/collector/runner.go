package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

// RunStatus is the outcome of a per-IP collection pass.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "success-partial"
	RunFail    RunStatus = "fail"
)

// RunResult summarises one collection pass.
type RunResult struct {
	Status         RunStatus `json:"status"`
	AliasesTotal   int       `json:"aliases_total"`
	AliasesFetched int       `json:"aliases_fetched"`
	SamplesWritten int       `json:"samples_written"`
}

// Aggregator recomputes the composite series after samples change.
type Aggregator interface {
	Recompute(ctx context.Context, ipID uuid.UUID, geo, timeframe string) error
}

// HealthRecorder tracks per-(ip, source) collection outcomes.
type HealthRecorder interface {
	RecordAttempt(ctx context.Context, ipID uuid.UUID, sourceKey string, success bool, updatedItems int, attemptErr error) error
}

// Runner orchestrates a full collection pass for one IP: fetch every enabled
// alias, persist samples and run logs, then re-aggregate.
type Runner struct {
	store      *persistence.Store
	source     Collector
	aggregator Aggregator
	health     HealthRecorder
	log        zerolog.Logger
}

// NewRunner wires the collection orchestrator.
func NewRunner(store *persistence.Store, source Collector, aggregator Aggregator, health HealthRecorder, log zerolog.Logger) *Runner {
	return &Runner{
		store:      store,
		source:     source,
		aggregator: aggregator,
		health:     health,
		log:        log.With().Str("component", "collector_runner").Logger(),
	}
}

// Run collects every enabled alias of the IP for one (geo, timeframe).
// Aliases are fetched sequentially so the per-source pacing gate is the only
// thing deciding request spacing. Aggregation runs after the pass regardless
// of partial failures.
func (r *Runner) Run(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (*RunResult, error) {
	aliases, err := r.store.IPs.ListEnabledAliases(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load aliases: %w", err)
	}
	if len(aliases) == 0 {
		return nil, fmt.Errorf("ip %s has no enabled aliases", ipID)
	}

	result := &RunResult{AliasesTotal: len(aliases)}
	for _, alias := range aliases {
		written, err := r.collectAlias(ctx, ipID, alias, geo, timeframe)
		if err != nil {
			r.log.Warn().Err(err).Str("alias", alias.Alias).
				Str("ip_id", ipID.String()).Msg("alias collection failed")
			continue
		}
		result.AliasesFetched++
		result.SamplesWritten += written
	}

	switch {
	case result.AliasesFetched == result.AliasesTotal:
		result.Status = RunSuccess
	case result.AliasesFetched > 0:
		result.Status = RunPartial
	default:
		result.Status = RunFail
	}

	if r.health != nil {
		var lastErr error
		if result.Status == RunFail {
			lastErr = fmt.Errorf("all %d aliases failed", result.AliasesTotal)
		}
		success := result.AliasesFetched > 0
		if err := r.health.RecordAttempt(ctx, ipID, r.source.Key(), success, result.SamplesWritten, lastErr); err != nil {
			r.log.Error().Err(err).Msg("failed to record source health")
		}
	}

	if err := r.aggregator.Recompute(ctx, ipID, geo, timeframe); err != nil {
		return result, fmt.Errorf("failed to aggregate after collection: %w", err)
	}

	r.log.Info().Str("ip_id", ipID.String()).Str("geo", geo).Str("timeframe", timeframe).
		Str("status", string(result.Status)).Int("samples", result.SamplesWritten).
		Msg("collection pass finished")
	return result, nil
}

// collectAlias fetches one alias and persists its samples atomically with the
// run-log row for the attempt. Failed attempts log a row too.
func (r *Runner) collectAlias(ctx context.Context, ipID uuid.UUID, alias models.Alias, geo, timeframe string) (int, error) {
	started := time.Now().UTC()
	res, fetchErr := r.source.Fetch(ctx, FetchRequest{
		Keyword:   alias.Alias,
		Geo:       geo,
		Timeframe: timeframe,
	})
	finished := time.Now().UTC()
	durationMS := int(finished.Sub(started).Milliseconds())

	runLog := &models.RunLog{
		Source:     r.source.Key(),
		IPID:       ipID,
		Geo:        geo,
		Timeframe:  timeframe,
		StartedAt:  started,
		FinishedAt: &finished,
		DurationMS: &durationMS,
	}

	if fetchErr != nil {
		kind := string(Classify(fetchErr))
		msg := fetchErr.Error()
		runLog.Status = "fail"
		runLog.ErrorCode = &kind
		runLog.Message = &msg
		runLog.HTTPCode = HTTPCode(fetchErr)
		if logErr := r.store.Trends.InsertRunLog(ctx, runLog); logErr != nil {
			r.log.Error().Err(logErr).Msg("failed to record run log")
		}
		return 0, fetchErr
	}

	runLog.Status = "success"
	if res.HTTPCode != 0 {
		runLog.HTTPCode = &res.HTTPCode
	}

	samples := make([]models.Sample, 0, len(res.Points))
	for _, pt := range res.Points {
		samples = append(samples, models.Sample{
			IPID:      ipID,
			AliasID:   alias.ID,
			Geo:       geo,
			Timeframe: timeframe,
			Date:      pt.Date,
			Value:     pt.Value,
			Source:    r.source.Key(),
			FetchedAt: finished,
		})
	}
	if err := r.store.Trends.UpsertSamples(ctx, samples, runLog); err != nil {
		return 0, fmt.Errorf("failed to persist samples: %w", err)
	}
	return len(samples), nil
}
