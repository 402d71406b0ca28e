package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

var now = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func hoursAgo(h int) *time.Time {
	t := now.Add(-time.Duration(h) * time.Hour)
	return &t
}

func TestStatusForBuckets(t *testing.T) {
	th := config.StalenessThreshold{FreshHours: 24, WarnHours: 72}

	assert.Equal(t, models.SourceDown, StatusFor(nil, now, th))
	assert.Equal(t, models.SourceOK, StatusFor(hoursAgo(10), now, th))
	assert.Equal(t, models.SourceOK, StatusFor(hoursAgo(24), now, th))
	assert.Equal(t, models.SourceWarn, StatusFor(hoursAgo(48), now, th))
	assert.Equal(t, models.SourceDown, StatusFor(hoursAgo(100), now, th))
}

func TestStalenessHours(t *testing.T) {
	assert.Nil(t, StalenessHours(nil, now))
	h := StalenessHours(hoursAgo(30), now)
	require.NotNil(t, h)
	assert.Equal(t, 30, *h)
}

type fakeHealthRepo struct {
	persistence.HealthRepo
	registry   []models.SourceRegistry
	healthRows []models.IPSourceHealth
	confidence *models.IPConfidence

	upsertedHealth     *models.IPSourceHealth
	upsertedSuccess    bool
	upsertedConfidence *models.IPConfidence
}

func (f *fakeHealthRepo) ListRegistry(_ context.Context) ([]models.SourceRegistry, error) {
	return f.registry, nil
}

func (f *fakeHealthRepo) ListSourceHealthByIP(_ context.Context, _ uuid.UUID) ([]models.IPSourceHealth, error) {
	return f.healthRows, nil
}

func (f *fakeHealthRepo) UpsertSourceHealth(_ context.Context, row *models.IPSourceHealth, success bool) error {
	f.upsertedHealth = row
	f.upsertedSuccess = success
	return nil
}

func (f *fakeHealthRepo) UpsertConfidence(_ context.Context, row *models.IPConfidence) error {
	f.upsertedConfidence = row
	return nil
}

func (f *fakeHealthRepo) GetConfidence(_ context.Context, _ uuid.UUID) (*models.IPConfidence, error) {
	if f.confidence == nil {
		return nil, persistence.ErrNotFound
	}
	return f.confidence, nil
}

type fakeTrendRepo struct {
	persistence.TrendRepo
	hasComposites bool
	runLogs       []models.RunLog
	recent        []models.CompositeDaily
}

func (f *fakeTrendRepo) HasComposites(_ context.Context, _ uuid.UUID) (bool, error) {
	return f.hasComposites, nil
}

func (f *fakeTrendRepo) ListRunLogs(_ context.Context, _ uuid.UUID, _, _ string, _ time.Time) ([]models.RunLog, error) {
	return f.runLogs, nil
}

func (f *fakeTrendRepo) RecentComposites(_ context.Context, _ uuid.UUID, _, _ string, _ int) ([]models.CompositeDaily, error) {
	return f.recent, nil
}

type fakeEventRepo struct {
	persistence.EventRepo
	events []models.Event
}

func (f *fakeEventRepo) ListByIP(_ context.Context, _ uuid.UUID) ([]models.Event, error) {
	return f.events, nil
}

type fakeScoreRepo struct {
	persistence.ScoreRepo
	inputs []models.ManualInput
}

func (f *fakeScoreRepo) ListManualInputs(_ context.Context, _ uuid.UUID) ([]models.ManualInput, error) {
	return f.inputs, nil
}

type fakeIPRepo struct {
	persistence.IPRepo
	ips []models.IP
}

func (f *fakeIPRepo) List(_ context.Context) ([]models.IP, error) {
	return f.ips, nil
}

func newStore(h *fakeHealthRepo, tr *fakeTrendRepo, ev *fakeEventRepo, sc *fakeScoreRepo, ip *fakeIPRepo) *persistence.Store {
	if tr == nil {
		tr = &fakeTrendRepo{}
	}
	if ev == nil {
		ev = &fakeEventRepo{}
	}
	if sc == nil {
		sc = &fakeScoreRepo{}
	}
	if ip == nil {
		ip = &fakeIPRepo{}
	}
	return &persistence.Store{IPs: ip, Trends: tr, Events: ev, Health: h, Scores: sc}
}

func testService(store *persistence.Store) *Service {
	cfg := config.Default()
	s := NewService(store, cfg.Confidence, cfg.Staleness, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func testRecorder(store *persistence.Store) *Recorder {
	r := NewRecorder(store, config.Default().Staleness, zerolog.Nop())
	r.now = func() time.Time { return now }
	return r
}

func TestRecordAttemptSuccess(t *testing.T) {
	h := &fakeHealthRepo{}
	rec := testRecorder(newStore(h, nil, nil, nil, nil))

	err := rec.RecordAttempt(context.Background(), uuid.New(), "google_trends", true, 42, nil)
	require.NoError(t, err)
	require.NotNil(t, h.upsertedHealth)

	assert.True(t, h.upsertedSuccess)
	assert.Equal(t, models.SourceOK, h.upsertedHealth.Status)
	require.NotNil(t, h.upsertedHealth.LastSuccessAt)
	assert.Equal(t, now, *h.upsertedHealth.LastSuccessAt)
	assert.Equal(t, 0, *h.upsertedHealth.StalenessHours)
	assert.Equal(t, 42, *h.upsertedHealth.UpdatedItems)
	assert.Nil(t, h.upsertedHealth.LastError)
}

func TestRecordAttemptFailureKeepsLastSuccess(t *testing.T) {
	ipID := uuid.New()
	h := &fakeHealthRepo{healthRows: []models.IPSourceHealth{
		{IPID: ipID, SourceKey: "google_trends", LastSuccessAt: hoursAgo(48)},
	}}
	rec := testRecorder(newStore(h, nil, nil, nil, nil))

	err := rec.RecordAttempt(context.Background(), ipID, "google_trends", false, 0, errors.New("fetch blew up"))
	require.NoError(t, err)
	require.NotNil(t, h.upsertedHealth)

	assert.False(t, h.upsertedSuccess)
	// 48h against the 24/72 google_trends thresholds is warn, not down.
	assert.Equal(t, models.SourceWarn, h.upsertedHealth.Status)
	assert.Equal(t, *hoursAgo(48), *h.upsertedHealth.LastSuccessAt)
	assert.Equal(t, 48, *h.upsertedHealth.StalenessHours)
	require.NotNil(t, h.upsertedHealth.LastError)
	assert.Equal(t, "fetch blew up", *h.upsertedHealth.LastError)
}

func keySource(key, level string, weight float64) models.SourceRegistry {
	return models.SourceRegistry{SourceKey: key, AvailabilityLevel: level, IsKeySource: true, PriorityWeight: weight}
}

func plainSource(key, level string, weight float64) models.SourceRegistry {
	return models.SourceRegistry{SourceKey: key, AvailabilityLevel: level, PriorityWeight: weight}
}

func TestRecomputeMixedCoverage(t *testing.T) {
	ipID := uuid.New()
	h := &fakeHealthRepo{
		registry: []models.SourceRegistry{
			keySource("google_trends", "high", 1.0),
			keySource("youtube", "high", 0.9),
			plainSource("shopee", "medium", 0.7),
		},
		healthRows: []models.IPSourceHealth{
			{IPID: ipID, SourceKey: "google_trends", Status: models.SourceOK},
			{IPID: ipID, SourceKey: "youtube", Status: models.SourceWarn},
		},
	}
	store := newStore(h,
		&fakeTrendRepo{hasComposites: true},
		nil,
		&fakeScoreRepo{inputs: []models.ManualInput{{IPID: ipID, IndicatorKey: "video_momentum", Value: 0.7}}},
		nil)

	row, err := testService(store).Recompute(context.Background(), ipID)
	require.NoError(t, err)

	// 1 manual + 2 trend-backed live indicators; timing has no evidence.
	assert.Equal(t, 3, row.ActiveIndicators)
	assert.Equal(t, 1, row.ActiveSources)
	assert.Equal(t, 3, row.ExpectedSources)
	assert.Equal(t, []string{"shopee"}, row.MissingSources)
	assert.Equal(t, []string{"timing_window"}, row.MissingIndicators)

	// base 27.18, risk adj 0.946, warn key source 5 + missing key 10 = 15.
	assert.Equal(t, 22, row.ConfidenceScore)
	assert.Equal(t, models.BandInsufficient, row.ConfidenceBand)
	require.NotNil(t, h.upsertedConfidence)
}

func TestRecomputeKeyIndicatorPenaltyCapped(t *testing.T) {
	ipID := uuid.New()
	h := &fakeHealthRepo{
		registry: []models.SourceRegistry{plainSource("google_trends", "high", 1.0)},
		healthRows: []models.IPSourceHealth{
			{IPID: ipID, SourceKey: "google_trends", Status: models.SourceOK},
		},
	}
	row, err := testService(newStore(h, nil, nil, nil, nil)).Recompute(context.Background(), ipID)
	require.NoError(t, err)

	// All three key indicators missing: 3 * 10 capped at 30, applied
	// multiplicatively to base 40.
	require.Len(t, row.MissingIndicators, 3)
	assert.Equal(t, 28, row.ConfidenceScore)
}

func TestRecomputePenaltyReductionFloor(t *testing.T) {
	ipID := uuid.New()
	registry := make([]models.SourceRegistry, 0, 6)
	rows := make([]models.IPSourceHealth, 0, 6)
	for _, key := range []string{"a", "b", "c", "d", "e", "f"} {
		registry = append(registry, keySource(key, "high", 1.0))
		rows = append(rows, models.IPSourceHealth{IPID: ipID, SourceKey: key, Status: models.SourceDown})
	}
	h := &fakeHealthRepo{registry: registry, healthRows: rows}
	inputs := []models.ManualInput{}
	for _, key := range []string{"social_buzz", "ecommerce_density", "fnb_collab_saturation", "merch_pressure", "adult_fit"} {
		inputs = append(inputs, models.ManualInput{IPID: ipID, IndicatorKey: key, Value: 0.5})
	}
	store := newStore(h, nil, nil, &fakeScoreRepo{inputs: inputs}, nil)

	row, err := testService(store).Recompute(context.Background(), ipID)
	require.NoError(t, err)

	// Penalty 90 (down keys) + 30 (missing keys) exceeds 80, so the
	// multiplicative reduction floors at 0.2 of base 23.08.
	assert.Equal(t, 5, row.ConfidenceScore)
}

func TestRecomputeNeverAttemptedNotPenalised(t *testing.T) {
	ipID := uuid.New()
	attempted := &fakeHealthRepo{
		registry: []models.SourceRegistry{keySource("google_trends", "high", 1.0), keySource("youtube", "high", 1.0)},
		healthRows: []models.IPSourceHealth{
			{IPID: ipID, SourceKey: "google_trends", Status: models.SourceOK},
			{IPID: ipID, SourceKey: "youtube", Status: models.SourceDown},
		},
	}
	never := &fakeHealthRepo{
		registry: attempted.registry,
		healthRows: []models.IPSourceHealth{
			{IPID: ipID, SourceKey: "google_trends", Status: models.SourceOK},
		},
	}

	withDown, err := testService(newStore(attempted, nil, nil, nil, nil)).Recompute(context.Background(), ipID)
	require.NoError(t, err)
	withNever, err := testService(newStore(never, nil, nil, nil, nil)).Recompute(context.Background(), ipID)
	require.NoError(t, err)

	// Same coverage either way, but only the attempted-and-down key source
	// draws the 15-point penalty.
	assert.Greater(t, withNever.ConfidenceScore, withDown.ConfidenceScore)
}

func TestMonotoneCoverage(t *testing.T) {
	ipID := uuid.New()
	registry := []models.SourceRegistry{
		plainSource("a", "high", 1.0), plainSource("b", "high", 1.0), plainSource("c", "high", 1.0),
	}
	one := &fakeHealthRepo{registry: registry, healthRows: []models.IPSourceHealth{
		{IPID: ipID, SourceKey: "a", Status: models.SourceOK},
	}}
	two := &fakeHealthRepo{registry: registry, healthRows: []models.IPSourceHealth{
		{IPID: ipID, SourceKey: "a", Status: models.SourceOK},
		{IPID: ipID, SourceKey: "b", Status: models.SourceOK},
	}}

	before, err := testService(newStore(one, nil, nil, nil, nil)).Recompute(context.Background(), ipID)
	require.NoError(t, err)
	after, err := testService(newStore(two, nil, nil, nil, nil)).Recompute(context.Background(), ipID)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, after.ConfidenceScore, before.ConfidenceScore)
}

func TestGetComputesWhenMissing(t *testing.T) {
	h := &fakeHealthRepo{}
	svc := testService(newStore(h, nil, nil, nil, nil))

	row, err := svc.Get(context.Background(), uuid.New())
	require.NoError(t, err)
	require.NotNil(t, h.upsertedConfidence, "missing row triggers a fresh compute")
	assert.Equal(t, row.ConfidenceScore, h.upsertedConfidence.ConfidenceScore)
}

func TestGetReturnsStoredRow(t *testing.T) {
	stored := &models.IPConfidence{ConfidenceScore: 61, ConfidenceBand: models.BandMedium}
	h := &fakeHealthRepo{confidence: stored}
	svc := testService(newStore(h, nil, nil, nil, nil))

	score, err := svc.Score(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 61, score)
	assert.Nil(t, h.upsertedConfidence)
}

func strp(s string) *string { return &s }

func TestReportAggregatesRuns(t *testing.T) {
	ipID := uuid.New()
	runs := []models.RunLog{
		{Status: "fail", StartedAt: now.Add(-1 * time.Hour), ErrorCode: strp("network")},
		{Status: "success", StartedAt: now.Add(-2 * time.Hour)},
		{Status: "fail", StartedAt: now.Add(-3 * time.Hour), ErrorCode: strp("network")},
		{Status: "fail", StartedAt: now.Add(-4 * time.Hour), ErrorCode: strp("rate_limit")},
		{Status: "success", StartedAt: now.Add(-5 * time.Hour)},
	}
	v := 12.0
	tr := &fakeTrendRepo{runLogs: runs, recent: []models.CompositeDaily{{CompositeValue: v}}}
	svc := testService(newStore(&fakeHealthRepo{}, tr, nil, nil, nil))

	report, err := svc.Report(context.Background(), ipID, "TW", "12m", "google_trends")
	require.NoError(t, err)

	assert.Equal(t, 5, report.TotalRuns14d)
	require.NotNil(t, report.SuccessRate14d)
	assert.InDelta(t, 40.0, *report.SuccessRate14d, 1e-9)
	assert.Equal(t, "fail", *report.LastRunStatus)
	assert.Equal(t, now.Add(-2*time.Hour), *report.LastSuccessAt)
	assert.Equal(t, map[string]int{"network": 2, "rate_limit": 1}, report.ErrorBreakdown)
	assert.Empty(t, report.AnomalyFlags)
}

func TestReportAnomalyFlags(t *testing.T) {
	tr := &fakeTrendRepo{
		runLogs: []models.RunLog{{Status: "success", StartedAt: now.Add(-time.Hour)}},
		recent: []models.CompositeDaily{
			{CompositeValue: 0}, {CompositeValue: 0}, {CompositeValue: 0},
		},
	}
	svc := testService(newStore(&fakeHealthRepo{}, tr, nil, nil, nil))
	report, err := svc.Report(context.Background(), uuid.New(), "TW", "12m", "google_trends")
	require.NoError(t, err)
	assert.Equal(t, []string{"all_zeros"}, report.AnomalyFlags)

	empty := &fakeTrendRepo{runLogs: tr.runLogs}
	svc = testService(newStore(&fakeHealthRepo{}, empty, nil, nil, nil))
	report, err = svc.Report(context.Background(), uuid.New(), "TW", "12m", "google_trends")
	require.NoError(t, err)
	assert.Equal(t, []string{"missing_points"}, report.AnomalyFlags)
}

func TestCoverageMatrixMarksMissingSourcesDown(t *testing.T) {
	ipID := uuid.New()
	h := &fakeHealthRepo{
		registry: []models.SourceRegistry{plainSource("google_trends", "high", 1.0), plainSource("youtube", "high", 0.9)},
		healthRows: []models.IPSourceHealth{
			{IPID: ipID, SourceKey: "google_trends", Status: models.SourceOK, StalenessHours: intp(2)},
		},
	}
	ips := &fakeIPRepo{ips: []models.IP{{ID: ipID, Name: "Chiikawa"}}}
	svc := testService(newStore(h, nil, nil, nil, ips))

	rows, err := svc.CoverageMatrix(context.Background(), 50, false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0].Sources, 2)
	assert.Equal(t, models.SourceOK, rows[0].Sources[0].Status)
	assert.Equal(t, models.SourceDown, rows[0].Sources[1].Status)
}

func TestCoverageMatrixOnlyIssuesFilter(t *testing.T) {
	ipID := uuid.New()
	h := &fakeHealthRepo{
		registry: []models.SourceRegistry{plainSource("google_trends", "high", 1.0)},
		healthRows: []models.IPSourceHealth{
			{IPID: ipID, SourceKey: "google_trends", Status: models.SourceOK},
		},
	}
	ips := &fakeIPRepo{ips: []models.IP{{ID: ipID, Name: "Chiikawa"}}}
	svc := testService(newStore(h, nil, nil, nil, ips))

	rows, err := svc.CoverageMatrix(context.Background(), 50, true)
	require.NoError(t, err)
	assert.Empty(t, rows, "fully healthy IPs are dropped with only_issues")
}

func intp(i int) *int { return &i }
