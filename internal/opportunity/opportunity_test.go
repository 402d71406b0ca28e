package opportunity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/indicator"
)

func defaultCfg() config.OpportunityConfig {
	return config.Default().Opportunity
}

func neutralIndicators() []indicator.Indicator {
	return indicator.ComputeAll(indicator.Inputs{
		LeadWeeks: 12,
		Now:       time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	})
}

func withManual(inputs map[string]float64) []indicator.Indicator {
	return indicator.ComputeAll(indicator.Inputs{
		Manual:    inputs,
		LeadWeeks: 12,
		Now:       time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
	})
}

func TestComputeNeutralBaseline(t *testing.T) {
	s := Compute(neutralIndicators(), defaultCfg())

	// All dimensions neutral: base 32.5, timing mult 1.0, risk mult
	// 1/1.175, scaled by 1.35.
	assert.InDelta(t, 32.5, s.Base, 1e-9)
	assert.InDelta(t, 1.0, s.TimingMult, 1e-4)
	assert.InDelta(t, 1/1.175, s.RiskMult, 1e-4)
	assert.InDelta(t, 37.3, s.Score, 0.1)
	assert.Equal(t, "red", s.Light)
	assert.Equal(t, 50.0, s.DimensionScores["demand"])
}

func TestComputeHighDemandRaisesScore(t *testing.T) {
	base := Compute(neutralIndicators(), defaultCfg())
	high := Compute(withManual(map[string]float64{
		"social_buzz":    0.95,
		"video_momentum": 0.95,
	}), defaultCfg())

	assert.Greater(t, high.Score, base.Score)
	assert.Greater(t, high.DimensionScores["demand"], 50.0)
}

func TestComputeSupplyPressureLowersScore(t *testing.T) {
	base := Compute(neutralIndicators(), defaultCfg())
	risky := Compute(withManual(map[string]float64{
		"ecommerce_density":     0.95,
		"fnb_collab_saturation": 0.95,
		"merch_pressure":        0.95,
	}), defaultCfg())

	assert.Less(t, risky.Score, base.Score)
	assert.Less(t, risky.RiskMult, base.RiskMult)
}

func TestComputeTimingAccelerates(t *testing.T) {
	slow := Compute(withManual(map[string]float64{indicator.TimingOverrideKey: 0.1}), defaultCfg())
	fast := Compute(withManual(map[string]float64{indicator.TimingOverrideKey: 0.9}), defaultCfg())

	assert.InDelta(t, 0.84, slow.TimingMult, 1e-4)
	assert.InDelta(t, 1.16, fast.TimingMult, 1e-4)
	assert.Greater(t, fast.Score, slow.Score)
}

func TestComputeLightThresholds(t *testing.T) {
	strong := Compute(withManual(map[string]float64{
		"social_buzz":               1.0,
		"video_momentum":            1.0,
		"cross_platform_presence":   1.0,
		"adult_fit":                 1.0,
		"giftability":               1.0,
		"brand_aesthetic":           1.0,
		"ecommerce_density":         0.0,
		"fnb_collab_saturation":     0.0,
		"merch_pressure":            0.0,
		"rightsholder_intensity":    0.0,
		indicator.TimingOverrideKey: 0.9,
	}), defaultCfg())
	assert.Equal(t, "green", strong.Light)
	assert.GreaterOrEqual(t, strong.Score, 70.0)
}

func TestExplanationsShape(t *testing.T) {
	s := Compute(withManual(map[string]float64{
		"social_buzz":               0.9,
		"merch_pressure":            0.9,
		indicator.TimingOverrideKey: 0.8,
	}), defaultCfg())

	require.Len(t, s.Explanations, 3)
	assert.Contains(t, s.Explanations[0], "Strong demand")
	assert.Contains(t, s.Explanations[1], "Risk")
	assert.Contains(t, s.Explanations[2], "Timing is favorable")
}

func TestCoverageReflectsLiveShare(t *testing.T) {
	s := Compute(neutralIndicators(), defaultCfg())
	assert.Equal(t, 0.0, s.Coverage)
}
