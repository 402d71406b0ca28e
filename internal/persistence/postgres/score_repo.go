package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

type scoreRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewScoreRepo creates the PostgreSQL scoring repository.
func NewScoreRepo(db *sqlx.DB, timeout time.Duration) persistence.ScoreRepo {
	return &scoreRepo{db: db, timeout: timeout}
}

func (r *scoreRepo) UpsertManualInput(ctx context.Context, ipID uuid.UUID, indicatorKey string, value float64) (*models.ManualInput, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row models.ManualInput
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO opportunity_input (id, ip_id, indicator_key, value, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT ON CONSTRAINT uq_opportunity_input
		 DO UPDATE SET value = EXCLUDED.value, updated_at = now()
		 RETURNING id, ip_id, indicator_key, value, updated_at`,
		uuid.New(), ipID, indicatorKey, value).StructScan(&row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert manual input: %w", err)
	}
	return &row, nil
}

func (r *scoreRepo) ListManualInputs(ctx context.Context, ipID uuid.UUID) ([]models.ManualInput, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var rows []models.ManualInput
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, ip_id, indicator_key, value, updated_at
		 FROM opportunity_input WHERE ip_id = $1 ORDER BY indicator_key`, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list manual inputs: %w", err)
	}
	return rows, nil
}

const pipelineColumns = `id, ip_id, stage, target_launch_date, bd_start_date,
	        license_start_date, license_end_date, mg_amount_usd, notes,
	        bd_score, bd_decision, updated_at`

func (r *scoreRepo) GetPipeline(ctx context.Context, ipID uuid.UUID) (*models.IPPipeline, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row models.IPPipeline
	err := r.db.GetContext(ctx, &row,
		`SELECT `+pipelineColumns+` FROM ip_pipeline WHERE ip_id = $1`, ipID)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline: %w", err)
	}
	return &row, nil
}

func (r *scoreRepo) CreatePipeline(ctx context.Context, row *models.IPPipeline) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Stage == "" {
		row.Stage = models.StageCandidate
	}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO ip_pipeline
		     (id, ip_id, stage, target_launch_date, bd_start_date,
		      license_start_date, license_end_date, mg_amount_usd, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING updated_at`,
		row.ID, row.IPID, row.Stage, row.TargetLaunchDate, row.BDStartDate,
		row.LicenseStartDate, row.LicenseEndDate, row.MGAmountUSD, row.Notes).
		Scan(&row.UpdatedAt)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return persistence.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	return nil
}

func (r *scoreRepo) UpdatePipeline(ctx context.Context, ipID uuid.UUID, upd persistence.PipelineUpdate) (*models.IPPipeline, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row models.IPPipeline
	err := r.db.QueryRowxContext(ctx,
		`UPDATE ip_pipeline SET
		   stage              = COALESCE($2, stage),
		   target_launch_date = COALESCE($3, target_launch_date),
		   bd_start_date      = COALESCE($4, bd_start_date),
		   license_start_date = COALESCE($5, license_start_date),
		   license_end_date   = COALESCE($6, license_end_date),
		   mg_amount_usd      = COALESCE($7, mg_amount_usd),
		   notes              = COALESCE($8, notes),
		   updated_at         = now()
		 WHERE ip_id = $1
		 RETURNING `+pipelineColumns,
		ipID, upd.Stage, upd.TargetLaunchDate, upd.BDStartDate,
		upd.LicenseStartDate, upd.LicenseEndDate, upd.MGAmountUSD, upd.Notes).
		StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update pipeline: %w", err)
	}
	return &row, nil
}

func (r *scoreRepo) UpsertScore(ctx context.Context, ipID uuid.UUID, bdScore float64, bdDecision string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ip_pipeline (id, ip_id, stage, bd_score, bd_decision)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (ip_id)
		 DO UPDATE SET bd_score = EXCLUDED.bd_score,
		               bd_decision = EXCLUDED.bd_decision,
		               updated_at = now()`,
		uuid.New(), ipID, models.StageCandidate, bdScore, bdDecision)
	if err != nil {
		return fmt.Errorf("failed to cache bd score: %w", err)
	}
	return nil
}

func (r *scoreRepo) UpsertVideoMetric(ctx context.Context, row *models.VideoMetric) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO video_metric
		     (id, ip_id, video_id, title, channel_title, published_at,
		      view_count, like_count, comment_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT ON CONSTRAINT uq_video_metric
		 DO UPDATE SET title         = EXCLUDED.title,
		               channel_title = EXCLUDED.channel_title,
		               published_at  = EXCLUDED.published_at,
		               view_count    = EXCLUDED.view_count,
		               like_count    = EXCLUDED.like_count,
		               comment_count = EXCLUDED.comment_count,
		               recorded_at   = EXCLUDED.recorded_at`,
		row.ID, row.IPID, row.VideoID, row.Title, row.ChannelTitle, row.PublishedAt,
		row.ViewCount, row.LikeCount, row.CommentCount, row.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert video metric: %w", err)
	}
	return nil
}

func (r *scoreRepo) UpsertMerchCount(ctx context.Context, row *models.MerchCount) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.RecordedAt.IsZero() {
		row.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO merch_product_count (id, ip_id, platform, query_term, product_count, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT ON CONSTRAINT uq_merch_product_count
		 DO UPDATE SET query_term    = EXCLUDED.query_term,
		               product_count = EXCLUDED.product_count,
		               recorded_at   = EXCLUDED.recorded_at`,
		row.ID, row.IPID, row.Platform, row.QueryTerm, row.ProductCount, row.RecordedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert merch count: %w", err)
	}
	return nil
}

func (r *scoreRepo) TotalMerchCount(ctx context.Context, ipID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var total int
	err := r.db.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(product_count), 0) FROM merch_product_count WHERE ip_id = $1`,
		ipID)
	if err != nil {
		return 0, fmt.Errorf("failed to total merch counts: %w", err)
	}
	return total, nil
}
