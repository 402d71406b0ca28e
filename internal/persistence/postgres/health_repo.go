package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

type healthRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewHealthRepo creates the PostgreSQL source-health repository.
func NewHealthRepo(db *sqlx.DB, timeout time.Duration) persistence.HealthRepo {
	return &healthRepo{db: db, timeout: timeout}
}

func (r *healthRepo) ListRegistry(ctx context.Context) ([]models.SourceRegistry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []models.SourceRegistry
	err := r.db.SelectContext(ctx, &rows,
		`SELECT source_key, availability_level, risk_type, is_key_source, priority_weight, notes
		 FROM source_registry ORDER BY priority_weight DESC, source_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list source registry: %w", err)
	}
	return rows, nil
}

func (r *healthRepo) SeedRegistry(ctx context.Context, rows []models.SourceRegistry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO source_registry
			     (source_key, availability_level, risk_type, is_key_source, priority_weight, notes)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (source_key) DO NOTHING`,
			row.SourceKey, row.AvailabilityLevel, row.RiskType, row.IsKeySource,
			row.PriorityWeight, row.Notes)
		if err != nil {
			return fmt.Errorf("failed to seed source %s: %w", row.SourceKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registry seed: %w", err)
	}
	return nil
}

func (r *healthRepo) InsertSourceRun(ctx context.Context, run *models.SourceRun) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO source_run
		     (id, source_key, started_at, finished_at, status, duration_ms,
		      items_processed, items_succeeded, items_failed, error_sample)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.SourceKey, run.StartedAt, run.FinishedAt, run.Status, run.DurationMS,
		run.ItemsProcessed, run.ItemsSucceeded, run.ItemsFailed, run.ErrorSample)
	if err != nil {
		return fmt.Errorf("failed to insert source run: %w", err)
	}
	return nil
}

func (r *healthRepo) ListSourceRuns(ctx context.Context, sourceKey string, limit int) ([]models.SourceRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var runs []models.SourceRun
	err := r.db.SelectContext(ctx, &runs,
		`SELECT id, source_key, started_at, finished_at, status, duration_ms,
		        items_processed, items_succeeded, items_failed, error_sample
		 FROM source_run WHERE ($1 = '' OR source_key = $1)
		 ORDER BY started_at DESC LIMIT $2`,
		sourceKey, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list source runs: %w", err)
	}
	return runs, nil
}

func (r *healthRepo) ListSourceRunsSince(ctx context.Context, sourceKey string, since time.Time) ([]models.SourceRun, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var runs []models.SourceRun
	err := r.db.SelectContext(ctx, &runs,
		`SELECT id, source_key, started_at, finished_at, status, duration_ms,
		        items_processed, items_succeeded, items_failed, error_sample
		 FROM source_run WHERE source_key = $1 AND started_at >= $2
		 ORDER BY started_at DESC`,
		sourceKey, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list source runs: %w", err)
	}
	return runs, nil
}

func (r *healthRepo) LastErrorSample(ctx context.Context, sourceKey string) (*string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var sample sql.NullString
	err := r.db.GetContext(ctx, &sample,
		`SELECT error_sample FROM source_run
		 WHERE source_key = $1 AND error_sample IS NOT NULL
		 ORDER BY started_at DESC LIMIT 1`,
		sourceKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last error sample: %w", err)
	}
	if !sample.Valid {
		return nil, nil
	}
	return &sample.String, nil
}

func (r *healthRepo) UpsertSourceHealth(ctx context.Context, row *models.IPSourceHealth, success bool) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	var query string
	if success {
		query = `
		INSERT INTO ip_source_health
		    (id, ip_id, source_key, last_success_at, last_attempt_at, status,
		     staleness_hours, last_error, updated_items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT uq_ip_source_health
		DO UPDATE SET last_success_at = EXCLUDED.last_success_at,
		              last_attempt_at = EXCLUDED.last_attempt_at,
		              status          = EXCLUDED.status,
		              staleness_hours = EXCLUDED.staleness_hours,
		              last_error      = NULL,
		              updated_items   = EXCLUDED.updated_items`
	} else {
		// Failures never advance last_success_at.
		query = `
		INSERT INTO ip_source_health
		    (id, ip_id, source_key, last_success_at, last_attempt_at, status,
		     staleness_hours, last_error, updated_items)
		VALUES ($1, $2, $3, NULL, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT uq_ip_source_health
		DO UPDATE SET last_attempt_at = EXCLUDED.last_attempt_at,
		              status          = EXCLUDED.status,
		              staleness_hours = EXCLUDED.staleness_hours,
		              last_error      = EXCLUDED.last_error`
	}
	_, err := r.db.ExecContext(ctx, query,
		row.ID, row.IPID, row.SourceKey, row.LastSuccessAt, row.LastAttemptAt,
		row.Status, row.StalenessHours, row.LastError, row.UpdatedItems)
	if err != nil {
		return fmt.Errorf("failed to upsert source health: %w", err)
	}
	return nil
}

func (r *healthRepo) ListSourceHealthByIP(ctx context.Context, ipID uuid.UUID) ([]models.IPSourceHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []models.IPSourceHealth
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, ip_id, source_key, last_success_at, last_attempt_at, status,
		        staleness_hours, last_error, updated_items
		 FROM ip_source_health WHERE ip_id = $1 ORDER BY source_key`, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source health: %w", err)
	}
	return rows, nil
}

func (r *healthRepo) CountOKForSource(ctx context.Context, sourceKey string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM ip_source_health WHERE source_key = $1 AND status = 'ok'`,
		sourceKey)
	if err != nil {
		return 0, fmt.Errorf("failed to count healthy rows: %w", err)
	}
	return count, nil
}

func (r *healthRepo) MaxLastSuccess(ctx context.Context, sourceKey string) (*time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ts sql.NullTime
	err := r.db.GetContext(ctx, &ts,
		`SELECT MAX(last_success_at) FROM ip_source_health WHERE source_key = $1`,
		sourceKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query last success: %w", err)
	}
	if !ts.Valid {
		return nil, nil
	}
	return &ts.Time, nil
}

func (r *healthRepo) UpsertConfidence(ctx context.Context, row *models.IPConfidence) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	missingSources, err := json.Marshal(orEmpty(row.MissingSources))
	if err != nil {
		return fmt.Errorf("failed to encode missing sources: %w", err)
	}
	missingIndicators, err := json.Marshal(orEmpty(row.MissingIndicators))
	if err != nil {
		return fmt.Errorf("failed to encode missing indicators: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO ip_confidence
		     (ip_id, confidence_score, confidence_band, active_indicators,
		      total_indicators, active_sources, expected_sources,
		      missing_sources_json, missing_indicators_json, last_calculated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (ip_id)
		 DO UPDATE SET confidence_score        = EXCLUDED.confidence_score,
		               confidence_band         = EXCLUDED.confidence_band,
		               active_indicators       = EXCLUDED.active_indicators,
		               total_indicators        = EXCLUDED.total_indicators,
		               active_sources          = EXCLUDED.active_sources,
		               expected_sources        = EXCLUDED.expected_sources,
		               missing_sources_json    = EXCLUDED.missing_sources_json,
		               missing_indicators_json = EXCLUDED.missing_indicators_json,
		               last_calculated_at      = EXCLUDED.last_calculated_at`,
		row.IPID, row.ConfidenceScore, row.ConfidenceBand, row.ActiveIndicators,
		row.TotalIndicators, row.ActiveSources, row.ExpectedSources,
		string(missingSources), string(missingIndicators), row.LastCalculatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert confidence: %w", err)
	}
	return nil
}

func (r *healthRepo) GetConfidence(ctx context.Context, ipID uuid.UUID) (*models.IPConfidence, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var raw struct {
		models.IPConfidence
		MissingSourcesJSON    sql.NullString `db:"missing_sources_json"`
		MissingIndicatorsJSON sql.NullString `db:"missing_indicators_json"`
	}
	err := r.db.GetContext(ctx, &raw,
		`SELECT ip_id, confidence_score, confidence_band, active_indicators,
		        total_indicators, active_sources, expected_sources,
		        missing_sources_json, missing_indicators_json, last_calculated_at
		 FROM ip_confidence WHERE ip_id = $1`, ipID)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query confidence: %w", err)
	}

	row := raw.IPConfidence
	if raw.MissingSourcesJSON.Valid {
		if err := json.Unmarshal([]byte(raw.MissingSourcesJSON.String), &row.MissingSources); err != nil {
			return nil, fmt.Errorf("failed to decode missing sources: %w", err)
		}
	}
	if raw.MissingIndicatorsJSON.Valid {
		if err := json.Unmarshal([]byte(raw.MissingIndicatorsJSON.String), &row.MissingIndicators); err != nil {
			return nil, fmt.Errorf("failed to decode missing indicators: %w", err)
		}
	}
	return &row, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
