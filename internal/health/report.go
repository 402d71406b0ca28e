package health

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/brewsignal/brewsignal/internal/models"
)

// reportWindowDays is the lookback for the per-IP collector report.
const reportWindowDays = 14

// CollectorReport summarises recent collector behaviour for one
// (ip, geo, timeframe).
type CollectorReport struct {
	IPID           uuid.UUID      `json:"ip_id"`
	Geo            string         `json:"geo"`
	Timeframe      string         `json:"timeframe"`
	Source         string         `json:"source"`
	LastSuccessAt  *time.Time     `json:"last_success_time,omitempty"`
	LastRunStatus  *string        `json:"last_run_status,omitempty"`
	SuccessRate14d *float64       `json:"success_rate_14d,omitempty"`
	TotalRuns14d   int            `json:"total_runs_14d"`
	ErrorBreakdown map[string]int `json:"error_breakdown"`
	AnomalyFlags   []string       `json:"anomaly_flags"`
}

// SourceSummary is one row of the admin source-health rollup.
type SourceSummary struct {
	SourceKey         string              `json:"source_key"`
	Status            models.SourceStatus `json:"status"`
	AvailabilityLevel string              `json:"availability_level"`
	RiskType          string              `json:"risk_type"`
	IsKeySource       bool                `json:"is_key_source"`
	LastSuccessAt     *time.Time          `json:"last_success_at,omitempty"`
	SuccessRate24h    *float64            `json:"success_rate_24h,omitempty"`
	SuccessRate7d     *float64            `json:"success_rate_7d,omitempty"`
	Coverage          int                 `json:"coverage"`
	TotalIPs          int                 `json:"total_ips"`
	LastError         *string             `json:"last_error,omitempty"`
}

// MatrixCell is one (ip, source) cell of the coverage matrix. An IP with no
// health row for a source reads as down.
type MatrixCell struct {
	SourceKey      string              `json:"source_key"`
	Status         models.SourceStatus `json:"status"`
	LastSuccessAt  *time.Time          `json:"last_success_at,omitempty"`
	StalenessHours *int                `json:"staleness_hours,omitempty"`
	LastError      *string             `json:"last_error,omitempty"`
}

// MatrixRow is one IP row of the coverage matrix.
type MatrixRow struct {
	IPID    uuid.UUID    `json:"ip_id"`
	IPName  string       `json:"ip_name"`
	Sources []MatrixCell `json:"sources"`
}

// Report builds the 14-day collector report for one scope: run counts,
// success rate, error breakdown, and data anomaly flags.
func (s *Service) Report(ctx context.Context, ipID uuid.UUID, geo, timeframe, sourceKey string) (*CollectorReport, error) {
	since := s.now().UTC().AddDate(0, 0, -reportWindowDays)
	runs, err := s.store.Trends.ListRunLogs(ctx, ipID, geo, timeframe, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}

	report := &CollectorReport{
		IPID:           ipID,
		Geo:            geo,
		Timeframe:      timeframe,
		Source:         sourceKey,
		TotalRuns14d:   len(runs),
		ErrorBreakdown: map[string]int{},
		AnomalyFlags:   []string{},
	}

	successes := 0
	for i, r := range runs {
		if i == 0 {
			status := r.Status
			report.LastRunStatus = &status
		}
		if r.Status == "success" {
			successes++
			if report.LastSuccessAt == nil {
				t := r.StartedAt
				if r.FinishedAt != nil {
					t = *r.FinishedAt
				}
				report.LastSuccessAt = &t
			}
		} else if r.ErrorCode != nil {
			report.ErrorBreakdown[*r.ErrorCode]++
		}
	}
	if len(runs) > 0 {
		rate := math.Round(float64(successes)/float64(len(runs))*1000) / 10
		report.SuccessRate14d = &rate
	}

	recent, err := s.store.Trends.RecentComposites(ctx, ipID, geo, timeframe, reportWindowDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent composites: %w", err)
	}
	if len(recent) > 0 {
		allZero := true
		for _, row := range recent {
			if row.CompositeValue != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			report.AnomalyFlags = append(report.AnomalyFlags, "all_zeros")
		}
	}
	if len(runs) > 0 && len(recent) == 0 {
		report.AnomalyFlags = append(report.AnomalyFlags, "missing_points")
	}
	return report, nil
}

// SourceSummaries builds the admin rollup: one row per registered source with
// fleet-wide freshness, success rates, and coverage.
func (s *Service) SourceSummaries(ctx context.Context) ([]SourceSummary, error) {
	registry, err := s.store.Health.ListRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source registry: %w", err)
	}
	ips, err := s.store.IPs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ips: %w", err)
	}

	now := s.now().UTC()
	out := make([]SourceSummary, 0, len(registry))
	for _, reg := range registry {
		lastSuccess, err := s.store.Health.MaxLastSuccess(ctx, reg.SourceKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load last success for %s: %w", reg.SourceKey, err)
		}
		coverage, err := s.store.Health.CountOKForSource(ctx, reg.SourceKey)
		if err != nil {
			return nil, fmt.Errorf("failed to count coverage for %s: %w", reg.SourceKey, err)
		}
		lastError, err := s.store.Health.LastErrorSample(ctx, reg.SourceKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load last error for %s: %w", reg.SourceKey, err)
		}
		rate24h, err := s.successRate(ctx, reg.SourceKey, now.Add(-24*time.Hour))
		if err != nil {
			return nil, err
		}
		rate7d, err := s.successRate(ctx, reg.SourceKey, now.AddDate(0, 0, -7))
		if err != nil {
			return nil, err
		}

		out = append(out, SourceSummary{
			SourceKey:         reg.SourceKey,
			Status:            StatusFor(lastSuccess, now, s.staleness.For(reg.SourceKey)),
			AvailabilityLevel: reg.AvailabilityLevel,
			RiskType:          reg.RiskType,
			IsKeySource:       reg.IsKeySource,
			LastSuccessAt:     lastSuccess,
			SuccessRate24h:    rate24h,
			SuccessRate7d:     rate7d,
			Coverage:          coverage,
			TotalIPs:          len(ips),
			LastError:         lastError,
		})
	}
	return out, nil
}

func (s *Service) successRate(ctx context.Context, sourceKey string, since time.Time) (*float64, error) {
	runs, err := s.store.Health.ListSourceRunsSince(ctx, sourceKey, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list source runs for %s: %w", sourceKey, err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	ok := 0
	for _, r := range runs {
		if r.Status == "ok" {
			ok++
		}
	}
	rate := float64(ok) / float64(len(runs))
	return &rate, nil
}

// CoverageMatrix builds the IP × source status grid. With onlyIssues set,
// rows where every source is ok are dropped.
func (s *Service) CoverageMatrix(ctx context.Context, limit int, onlyIssues bool) ([]MatrixRow, error) {
	registry, err := s.store.Health.ListRegistry(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list source registry: %w", err)
	}
	ips, err := s.store.IPs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ips: %w", err)
	}
	if limit > 0 && len(ips) > limit {
		ips = ips[:limit]
	}

	rows := make([]MatrixRow, 0, len(ips))
	for _, ip := range ips {
		healthRows, err := s.store.Health.ListSourceHealthByIP(ctx, ip.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list source health: %w", err)
		}
		bySource := make(map[string]models.IPSourceHealth, len(healthRows))
		for _, h := range healthRows {
			bySource[h.SourceKey] = h
		}

		cells := make([]MatrixCell, 0, len(registry))
		hasIssue := false
		for _, reg := range registry {
			cell := MatrixCell{SourceKey: reg.SourceKey, Status: models.SourceDown}
			if h, ok := bySource[reg.SourceKey]; ok {
				cell.Status = h.Status
				cell.LastSuccessAt = h.LastSuccessAt
				cell.StalenessHours = h.StalenessHours
				cell.LastError = h.LastError
			}
			if cell.Status != models.SourceOK {
				hasIssue = true
			}
			cells = append(cells, cell)
		}
		if onlyIssues && !hasIssue {
			continue
		}
		rows = append(rows, MatrixRow{IPID: ip.ID, IPName: ip.Name, Sources: cells})
	}
	return rows, nil
}

// RecentRuns lists the latest source runs, optionally filtered to one source.
func (s *Service) RecentRuns(ctx context.Context, sourceKey string, limit int) ([]models.SourceRun, error) {
	runs, err := s.store.Health.ListSourceRuns(ctx, sourceKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list source runs: %w", err)
	}
	return runs, nil
}
