package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestIPRepoGetNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIPRepo(db, 5*time.Second)

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, name, catalog_id, created_at FROM ip`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "catalog_id", "created_at"}))

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIPRepoDeleteNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewIPRepo(db, 5*time.Second)

	id := uuid.New()
	mock.ExpectExec(`DELETE FROM ip WHERE`).
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), id)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrendRepoUpsertSamplesAtomicWithRunLog(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrendRepo(db, 5*time.Second)

	ipID, aliasID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	samples := []models.Sample{
		{IPID: ipID, AliasID: aliasID, Geo: "TW", Timeframe: "7d",
			Date: now.Truncate(24 * time.Hour), Value: 42, Source: "google_trends"},
	}
	status := "success"
	runLog := &models.RunLog{
		Source: "google_trends", IPID: ipID, Geo: "TW", Timeframe: "7d",
		StartedAt: now, Status: status,
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trend_sample`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO collector_run_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.UpsertSamples(context.Background(), samples, runLog)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrendRepoUpsertSamplesRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTrendRepo(db, 5*time.Second)

	samples := []models.Sample{
		{IPID: uuid.New(), AliasID: uuid.New(), Geo: "TW", Timeframe: "7d",
			Date: time.Now(), Value: 10, Source: "google_trends"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO trend_sample`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.UpsertSamples(context.Background(), samples, nil)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScoreRepoCreatePipelineConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScoreRepo(db, 5*time.Second)

	mock.ExpectQuery(`INSERT INTO ip_pipeline`).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreatePipeline(context.Background(), &models.IPPipeline{IPID: uuid.New()})
	assert.ErrorIs(t, err, persistence.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthRepoUpsertFailureKeepsLastSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHealthRepo(db, 5*time.Second)

	row := &models.IPSourceHealth{
		IPID:      uuid.New(),
		SourceKey: "google_trends",
		Status:    models.SourceDown,
	}

	// Failure path must not touch last_success_at in the update set.
	mock.ExpectExec(regexp.QuoteMeta("DO UPDATE SET last_attempt_at")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertSourceHealth(context.Background(), row, false)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthRepoGetConfidenceDecodesMissingLists(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewHealthRepo(db, 5*time.Second)

	ipID := uuid.New()
	rows := sqlmock.NewRows([]string{
		"ip_id", "confidence_score", "confidence_band", "active_indicators",
		"total_indicators", "active_sources", "expected_sources",
		"missing_sources_json", "missing_indicators_json", "last_calculated_at",
	}).AddRow(ipID, 72, "medium", 9, 13, 4, 6,
		`["shopee","amazon_jp"]`, `["timing_window"]`, time.Now())

	mock.ExpectQuery(`SELECT ip_id, confidence_score`).
		WithArgs(ipID).
		WillReturnRows(rows)

	got, err := repo.GetConfidence(context.Background(), ipID)
	require.NoError(t, err)
	assert.Equal(t, 72, got.ConfidenceScore)
	assert.Equal(t, models.BandMedium, got.ConfidenceBand)
	assert.Equal(t, []string{"shopee", "amazon_jp"}, got.MissingSources)
	assert.Equal(t, []string{"timing_window"}, got.MissingIndicators)
	assert.NoError(t, mock.ExpectationsWereMet())
}
