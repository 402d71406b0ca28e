package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

type trendRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewTrendRepo creates the PostgreSQL trend repository.
func NewTrendRepo(db *sqlx.DB, timeout time.Duration) persistence.TrendRepo {
	return &trendRepo{db: db, timeout: timeout}
}

const upsertSampleSQL = `
	INSERT INTO trend_sample (id, ip_id, alias_id, geo, timeframe, date, value, source, fetched_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT ON CONSTRAINT uq_trend_sample
	DO UPDATE SET value = EXCLUDED.value, fetched_at = EXCLUDED.fetched_at`

const insertRunLogSQL = `
	INSERT INTO collector_run_log
	    (id, source, ip_id, geo, timeframe, started_at, finished_at, status,
	     http_code, error_code, message, duration_ms)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

func (r *trendRepo) UpsertSamples(ctx context.Context, samples []models.Sample, runLog *models.RunLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range samples {
		s := &samples[i]
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.FetchedAt.IsZero() {
			s.FetchedAt = time.Now().UTC()
		}
		_, err = tx.ExecContext(ctx, upsertSampleSQL,
			s.ID, s.IPID, s.AliasID, s.Geo, s.Timeframe, s.Date, s.Value, s.Source, s.FetchedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert sample for %s: %w", s.Date.Format("2006-01-02"), err)
		}
	}

	if runLog != nil {
		if runLog.ID == uuid.Nil {
			runLog.ID = uuid.New()
		}
		_, err = tx.ExecContext(ctx, insertRunLogSQL,
			runLog.ID, runLog.Source, runLog.IPID, runLog.Geo, runLog.Timeframe,
			runLog.StartedAt, runLog.FinishedAt, runLog.Status,
			runLog.HTTPCode, runLog.ErrorCode, runLog.Message, runLog.DurationMS)
		if err != nil {
			return fmt.Errorf("failed to insert run log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sample batch: %w", err)
	}
	return nil
}

func (r *trendRepo) InsertRunLog(ctx context.Context, runLog *models.RunLog) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if runLog.ID == uuid.Nil {
		runLog.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, insertRunLogSQL,
		runLog.ID, runLog.Source, runLog.IPID, runLog.Geo, runLog.Timeframe,
		runLog.StartedAt, runLog.FinishedAt, runLog.Status,
		runLog.HTTPCode, runLog.ErrorCode, runLog.Message, runLog.DurationMS)
	if err != nil {
		return fmt.Errorf("failed to insert run log: %w", err)
	}
	return nil
}

func (r *trendRepo) ListRunLogs(ctx context.Context, ipID uuid.UUID, geo, timeframe string, since time.Time) ([]models.RunLog, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var logs []models.RunLog
	err := r.db.SelectContext(ctx, &logs,
		`SELECT id, source, ip_id, geo, timeframe, started_at, finished_at, status,
		        http_code, error_code, message, duration_ms
		 FROM collector_run_log
		 WHERE ip_id = $1 AND geo = $2 AND timeframe = $3 AND started_at >= $4
		 ORDER BY started_at DESC`,
		ipID, geo, timeframe, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	return logs, nil
}

func (r *trendRepo) ListSamples(ctx context.Context, ipID uuid.UUID, geo, timeframe string, aliasIDs []uuid.UUID) ([]models.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT id, ip_id, alias_id, geo, timeframe, date, value, source, fetched_at
	          FROM trend_sample
	          WHERE ip_id = ? AND geo = ? AND timeframe = ?`
	args := []interface{}{ipID, geo, timeframe}
	if len(aliasIDs) > 0 {
		var err error
		query, args, err = sqlx.In(query+` AND alias_id IN (?)`, ipID, geo, timeframe, aliasIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to expand alias filter: %w", err)
		}
	}
	query = r.db.Rebind(query + ` ORDER BY date`)

	var samples []models.Sample
	if err := r.db.SelectContext(ctx, &samples, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	return samples, nil
}

func (r *trendRepo) ListSamplesWithAlias(ctx context.Context, ipID uuid.UUID, geo, timeframe string) ([]persistence.SampleWithAlias, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var samples []persistence.SampleWithAlias
	err := r.db.SelectContext(ctx, &samples,
		`SELECT s.id, s.ip_id, s.alias_id, s.geo, s.timeframe, s.date, s.value,
		        s.source, s.fetched_at, a.alias AS alias_text
		 FROM trend_sample s
		 JOIN ip_alias a ON a.id = s.alias_id
		 WHERE s.ip_id = $1 AND s.geo = $2 AND s.timeframe = $3
		 ORDER BY s.date, a.alias`,
		ipID, geo, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples with alias: %w", err)
	}
	return samples, nil
}

func (r *trendRepo) ListAliasSamplesSince(ctx context.Context, ipID, aliasID uuid.UUID, geo, timeframe string, since time.Time) ([]models.Sample, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var samples []models.Sample
	err := r.db.SelectContext(ctx, &samples,
		`SELECT id, ip_id, alias_id, geo, timeframe, date, value, source, fetched_at
		 FROM trend_sample
		 WHERE ip_id = $1 AND alias_id = $2 AND geo = $3 AND timeframe = $4 AND date >= $5
		 ORDER BY date`,
		ipID, aliasID, geo, timeframe, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list alias samples: %w", err)
	}
	return samples, nil
}

func (r *trendRepo) UpsertComposites(ctx context.Context, rows []models.CompositeDaily) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range rows {
		row := &rows[i]
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO composite_daily
			     (id, ip_id, geo, timeframe, date, composite_value, ma7, ma28,
			      wow_growth, acceleration, breakout_percentile, signal_light)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT ON CONSTRAINT uq_composite_daily
			 DO UPDATE SET composite_value = EXCLUDED.composite_value,
			               ma7 = EXCLUDED.ma7,
			               ma28 = EXCLUDED.ma28,
			               wow_growth = EXCLUDED.wow_growth,
			               acceleration = EXCLUDED.acceleration,
			               breakout_percentile = EXCLUDED.breakout_percentile,
			               signal_light = EXCLUDED.signal_light`,
			row.ID, row.IPID, row.Geo, row.Timeframe, row.Date, row.CompositeValue,
			row.MA7, row.MA28, row.WoWGrowth, row.Acceleration, row.BreakoutPercentile, row.SignalLight)
		if err != nil {
			return fmt.Errorf("failed to upsert composite for %s: %w", row.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit composite batch: %w", err)
	}
	return nil
}

func (r *trendRepo) DeleteComposites(ctx context.Context, ipID uuid.UUID, geo, timeframe string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM composite_daily WHERE ip_id = $1 AND geo = $2 AND timeframe = $3`,
		ipID, geo, timeframe)
	if err != nil {
		return fmt.Errorf("failed to delete composites: %w", err)
	}
	return nil
}

const compositeColumns = `id, ip_id, geo, timeframe, date, composite_value, ma7, ma28,
	        wow_growth, acceleration, breakout_percentile, signal_light`

func (r *trendRepo) CompositeSeries(ctx context.Context, ipID uuid.UUID, geo, timeframe string) ([]models.CompositeDaily, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []models.CompositeDaily
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+compositeColumns+`
		 FROM composite_daily
		 WHERE ip_id = $1 AND geo = $2 AND timeframe = $3
		 ORDER BY date`,
		ipID, geo, timeframe)
	if err != nil {
		return nil, fmt.Errorf("failed to query composite series: %w", err)
	}
	return rows, nil
}

func (r *trendRepo) LatestComposite(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (*models.CompositeDaily, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row models.CompositeDaily
	err := r.db.GetContext(ctx, &row,
		`SELECT `+compositeColumns+`
		 FROM composite_daily
		 WHERE ip_id = $1 AND geo = $2 AND timeframe = $3
		 ORDER BY date DESC LIMIT 1`,
		ipID, geo, timeframe)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest composite: %w", err)
	}
	return &row, nil
}

func (r *trendRepo) LatestCompositeAnyScope(ctx context.Context, ipID uuid.UUID) (*models.CompositeDaily, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row models.CompositeDaily
	err := r.db.GetContext(ctx, &row,
		`SELECT `+compositeColumns+`
		 FROM composite_daily
		 WHERE ip_id = $1
		 ORDER BY date DESC LIMIT 1`,
		ipID)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest composite: %w", err)
	}
	return &row, nil
}

func (r *trendRepo) RecentComposites(ctx context.Context, ipID uuid.UUID, geo, timeframe string, limit int) ([]models.CompositeDaily, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []models.CompositeDaily
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+compositeColumns+`
		 FROM composite_daily
		 WHERE ip_id = $1 AND geo = $2 AND timeframe = $3
		 ORDER BY date DESC LIMIT $4`,
		ipID, geo, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent composites: %w", err)
	}
	// Oldest first for window math.
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (r *trendRepo) HasComposites(ctx context.Context, ipID uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM composite_daily WHERE ip_id = $1)`, ipID)
	if err != nil {
		return false, fmt.Errorf("failed to check composites: %w", err)
	}
	return exists, nil
}
