package launch

import (
	"context"
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

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestOpsRiskSigmoid(t *testing.T) {
	assert.InDelta(t, 50.0, opsRisk(15), 1e-9)
	assert.InDelta(t, 95.26, opsRisk(5), 0.01)
	assert.InDelta(t, 4.74, opsRisk(25), 0.01)
}

func TestSaturationCurve(t *testing.T) {
	assert.Equal(t, 0.0, saturationFrom(0))
	assert.Equal(t, 0.0, saturationFrom(-5))
	assert.InDelta(t, 63.21, saturationFrom(800), 0.01)
	assert.Equal(t, 95.0, saturationFrom(100000), "caps at 95")
}

func TestEventBoostGaussian(t *testing.T) {
	event := models.Event{EventDate: day(2026, 12, 1)}
	peak := day(2026, 12, 1).AddDate(0, 0, -28)

	assert.InDelta(t, 100.0, eventBoost(peak, []models.Event{event}, 4, 3), 1e-9)
	threeOff := peak.AddDate(0, 0, 21)
	assert.InDelta(t, 60.65, eventBoost(threeOff, []models.Event{event}, 4, 3), 0.01)
	assert.Equal(t, 0.0, eventBoost(peak, nil, 4, 3))
}

func TestEventBoostTakesStrongestEvent(t *testing.T) {
	week := day(2026, 11, 3)
	far := models.Event{EventDate: day(2027, 3, 1)}
	near := models.Event{EventDate: week.AddDate(0, 0, 28)}
	boost := eventBoost(week, []models.Event{far, near}, 4, 3)
	assert.InDelta(t, 100.0, boost, 1e-9)
}

func TestDemandExtrapolationClamps(t *testing.T) {
	assert.Equal(t, 100.0, demandAt(90, 5, 10))
	assert.Equal(t, 0.0, demandAt(10, -5, 10))
	assert.InDelta(t, 60.0, demandAt(50, 2, 5), 1e-9)
}

func TestMondayAlignment(t *testing.T) {
	tue := day(2026, 8, 25)
	assert.Equal(t, day(2026, 8, 24), mondayOf(tue))
	mon := day(2026, 8, 24)
	assert.Equal(t, mon, mondayOf(mon))
	sun := day(2026, 8, 30)
	assert.Equal(t, day(2026, 8, 24), mondayOf(sun))
}

func TestMilestonesCountBackFromLaunch(t *testing.T) {
	cfg := config.Default().Launch
	launch := day(2027, 1, 4)
	ms := milestones(launch, cfg)

	require.Len(t, ms, 5)
	assert.Equal(t, "Launch", ms[0].Label)
	assert.Equal(t, launch, ms[0].TargetDate)
	assert.Equal(t, "Production Start", ms[1].Label)
	assert.Equal(t, launch.AddDate(0, 0, -56), ms[1].TargetDate)
	assert.Equal(t, "Design Start", ms[4].Label)
	assert.Equal(t, 14, ms[4].WeeksBeforeLaunch)
}

func TestExplanationsInsufficientData(t *testing.T) {
	out := explanations(nil, nil, nil, 0, nil)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "Insufficient data")
}

func TestExplanationsLowConfidenceCaveat(t *testing.T) {
	week := day(2026, 11, 2)
	grid := []WeekScore{{WeekStart: week, LaunchValue: 40, DemandScore: 70, OperationalRisk: 30}}
	conf := 35
	out := explanations(grid, &week, nil, 10, &conf)

	require.Len(t, out, 4)
	assert.Contains(t, out[0], "demand peak")
	assert.Contains(t, out[1], "Low market saturation")
	assert.Contains(t, out[2], "Comfortable operational buffer")
	assert.Contains(t, out[3], "Low data confidence (35%)")
}

type fakeIPRepo struct {
	persistence.IPRepo
	ip *models.IP
}

func (f *fakeIPRepo) Get(_ context.Context, _ uuid.UUID) (*models.IP, error) {
	if f.ip == nil {
		return nil, persistence.ErrNotFound
	}
	return f.ip, nil
}

type fakeTrendRepo struct {
	persistence.TrendRepo
	recent []models.CompositeDaily
}

func (f *fakeTrendRepo) RecentComposites(_ context.Context, _ uuid.UUID, _, _ string, _ int) ([]models.CompositeDaily, error) {
	return f.recent, nil
}

type fakeEventRepo struct {
	persistence.EventRepo
	events []models.Event
}

func (f *fakeEventRepo) ListWindow(_ context.Context, _ uuid.UUID, from, to time.Time) ([]models.Event, error) {
	var out []models.Event
	for _, ev := range f.events {
		if !ev.EventDate.Before(from) && !ev.EventDate.After(to) {
			out = append(out, ev)
		}
	}
	return out, nil
}

type fakeHealthRepo struct {
	persistence.HealthRepo
	confidence *models.IPConfidence
}

func (f *fakeHealthRepo) GetConfidence(_ context.Context, _ uuid.UUID) (*models.IPConfidence, error) {
	if f.confidence == nil {
		return nil, persistence.ErrNotFound
	}
	return f.confidence, nil
}

type fakeScoreRepo struct {
	persistence.ScoreRepo
	pipeline *models.IPPipeline
	merch    int
}

func (f *fakeScoreRepo) GetPipeline(_ context.Context, _ uuid.UUID) (*models.IPPipeline, error) {
	if f.pipeline == nil {
		return nil, persistence.ErrNotFound
	}
	return f.pipeline, nil
}

func (f *fakeScoreRepo) TotalMerchCount(_ context.Context, _ uuid.UUID) (int, error) {
	return f.merch, nil
}

func testEngine(store *persistence.Store, now time.Time) *Engine {
	e := NewEngine(store, config.Default().Launch, zerolog.Nop())
	e.now = func() time.Time { return now }
	return e
}

func risingComposites(ipID uuid.UUID, end time.Time) []models.CompositeDaily {
	rows := make([]models.CompositeDaily, 0, 60)
	for i := 0; i < 60; i++ {
		d := end.AddDate(0, 0, i-59)
		ma := 40.0 + float64(i)*0.25
		rows = append(rows, models.CompositeDaily{
			IPID: ipID, Geo: "TW", Timeframe: "12m", Date: d,
			CompositeValue: ma, MA28: &ma,
		})
	}
	return rows
}

func TestPlanFallbackWindow(t *testing.T) {
	ipID := uuid.New()
	now := day(2026, 8, 25)
	store := &persistence.Store{
		IPs:    &fakeIPRepo{ip: &models.IP{ID: ipID, Name: "Chiikawa"}},
		Trends: &fakeTrendRepo{recent: risingComposites(ipID, now.AddDate(0, 0, -1))},
		Events: &fakeEventRepo{},
		Health: &fakeHealthRepo{},
		Scores: &fakeScoreRepo{merch: 120},
	}

	plan, err := testEngine(store, now).Plan(context.Background(), ipID, "TW", "12m")
	require.NoError(t, err)

	assert.Equal(t, "Chiikawa", plan.IPName)
	assert.Equal(t, now.AddDate(0, 0, 84), plan.LicenseStartDate)
	assert.Equal(t, now.AddDate(0, 0, 180), plan.LicenseEndDate)
	require.NotEmpty(t, plan.Grid)

	for i, w := range plan.Grid {
		assert.Equal(t, time.Monday, w.WeekStart.Weekday())
		if i > 0 {
			assert.Equal(t, plan.Grid[i-1].WeekStart.AddDate(0, 0, 7), w.WeekStart)
		}
	}
	require.NotNil(t, plan.RecommendedWeek)
	for _, w := range plan.Grid {
		assert.LessOrEqual(t, w.LaunchValue, bestValue(plan))
	}
	assert.Len(t, plan.BackupWeeks, 2)
	assert.Len(t, plan.Milestones, 5)
	require.NotEmpty(t, plan.Explanations)
	assert.LessOrEqual(t, len(plan.Explanations), 4)
}

func bestValue(plan *Plan) float64 {
	for _, w := range plan.Grid {
		if w.WeekStart.Equal(*plan.RecommendedWeek) {
			return w.LaunchValue
		}
	}
	return -1
}

func TestPlanUsesLicenseWindow(t *testing.T) {
	ipID := uuid.New()
	now := day(2026, 8, 25)
	start, end := day(2026, 11, 2), day(2027, 1, 31)
	store := &persistence.Store{
		IPs:    &fakeIPRepo{},
		Trends: &fakeTrendRepo{},
		Events: &fakeEventRepo{},
		Health: &fakeHealthRepo{},
		Scores: &fakeScoreRepo{pipeline: &models.IPPipeline{
			IPID: ipID, LicenseStartDate: &start, LicenseEndDate: &end,
		}},
	}

	plan, err := testEngine(store, now).Plan(context.Background(), ipID, "TW", "12m")
	require.NoError(t, err)

	assert.Equal(t, start, plan.LicenseStartDate)
	assert.Equal(t, end, plan.LicenseEndDate)
	assert.Equal(t, "Unknown", plan.IPName)
	require.NotEmpty(t, plan.Grid)
	assert.False(t, plan.Grid[len(plan.Grid)-1].WeekStart.After(end))
}

func TestPlanPastLicenseStartMovesForward(t *testing.T) {
	ipID := uuid.New()
	now := day(2026, 8, 25)
	start, end := day(2026, 5, 1), day(2026, 12, 31)
	store := &persistence.Store{
		IPs:    &fakeIPRepo{},
		Trends: &fakeTrendRepo{},
		Events: &fakeEventRepo{},
		Health: &fakeHealthRepo{},
		Scores: &fakeScoreRepo{pipeline: &models.IPPipeline{
			IPID: ipID, LicenseStartDate: &start, LicenseEndDate: &end,
		}},
	}

	plan, err := testEngine(store, now).Plan(context.Background(), ipID, "TW", "12m")
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 28), plan.LicenseStartDate)
}

func TestPlanRecommendationTracksEvent(t *testing.T) {
	ipID := uuid.New()
	now := day(2026, 8, 25)
	eventDate := now.AddDate(0, 0, 7*20)
	store := &persistence.Store{
		IPs:    &fakeIPRepo{},
		Trends: &fakeTrendRepo{},
		Events: &fakeEventRepo{events: []models.Event{
			{IPID: ipID, Title: "Season 2 Premiere", EventDate: eventDate, EventType: models.EventAnimeAir},
		}},
		Health: &fakeHealthRepo{},
		Scores: &fakeScoreRepo{},
	}

	plan, err := testEngine(store, now).Plan(context.Background(), ipID, "TW", "12m")
	require.NoError(t, err)
	require.NotNil(t, plan.RecommendedWeek)

	// Peak hype sits four weeks before the premiere; the recommendation
	// should land within a week or two of it.
	peak := eventDate.AddDate(0, 0, -28)
	gap := plan.RecommendedWeek.Sub(peak).Hours() / 24
	assert.LessOrEqual(t, gap, 14.0)
	assert.GreaterOrEqual(t, gap, -14.0)
	assert.Contains(t, plan.Explanations[0], "Season 2 Premiere")
}
