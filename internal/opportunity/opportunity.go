// Package opportunity fuses the indicator set into a single 0-100 score with
// a traffic light, per-dimension breakdown, and three explanation strings.
package opportunity

import (
	"fmt"
	"math"
	"sort"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/indicator"
)

// Score is the result of one opportunity computation.
type Score struct {
	Score           float64            `json:"score"`
	Light           string             `json:"light"`
	Base            float64            `json:"base"`
	TimingMult      float64            `json:"timing_mult"`
	RiskMult        float64            `json:"risk_mult"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	Coverage        float64            `json:"coverage"`
	Explanations    []string           `json:"explanations"`
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func dimensionMean(indicators []indicator.Indicator, dim indicator.Dimension) float64 {
	sum, n := 0.0, 0
	for _, ind := range indicators {
		if ind.Dimension == dim {
			sum += ind.Score
			n++
		}
	}
	if n == 0 {
		return 50
	}
	return sum / float64(n)
}

func keyScore(indicators []indicator.Indicator, key string) float64 {
	if ind := indicator.Find(indicators, key); ind != nil {
		return ind.Score
	}
	return 50
}

// Compute scores the indicator set: positive dimensions build the base,
// timing multiplies it up, supply and rightsholder pressure dampen it.
func Compute(indicators []indicator.Indicator, cfg config.OpportunityConfig) Score {
	demand := dimensionMean(indicators, indicator.DimDemand)
	diffusion := dimensionMean(indicators, indicator.DimDiffusion)
	fit := dimensionMean(indicators, indicator.DimFit)
	supply := dimensionMean(indicators, indicator.DimSupply)
	rightsholder := keyScore(indicators, "rightsholder_intensity")
	timing := keyScore(indicators, "timing_window")

	base := cfg.WeightDemand*demand + cfg.WeightDiffusion*diffusion + cfg.WeightFit*fit
	timingMult := cfg.TimingLow + cfg.TimingHigh*(timing/100)
	riskMult := 1 / (1 + cfg.RiskWeightSupply*(supply/100) + cfg.RiskWeightGatekeeper*(rightsholder/100))
	score := clamp(0, 100, base*timingMult*riskMult*cfg.ScalingFactor)

	light := "red"
	switch {
	case score >= 70:
		light = "green"
	case score >= 40:
		light = "yellow"
	}

	dims := map[string]float64{
		"demand":     round(demand, 1),
		"diffusion":  round(diffusion, 1),
		"fit":        round(fit, 1),
		"supply":     round(supply, 1),
		"gatekeeper": round(rightsholder, 1),
		"timing":     round(timing, 1),
	}

	return Score{
		Score:           round(score, 1),
		Light:           light,
		Base:            round(base, 2),
		TimingMult:      round(timingMult, 4),
		RiskMult:        round(riskMult, 4),
		DimensionScores: dims,
		Coverage:        indicator.Coverage(indicators),
		Explanations:    explanations(indicators, dims, cfg),
	}
}

type dimDelta struct {
	dim   string
	delta float64
	score float64
}

// explanations emits up to three strings: the dominant positive driver, the
// dominant risk, and a timing recommendation.
func explanations(indicators []indicator.Indicator, dims map[string]float64, cfg config.OpportunityConfig) []string {
	weightMap := map[string]float64{
		"demand":     cfg.WeightDemand,
		"diffusion":  cfg.WeightDiffusion,
		"fit":        cfg.WeightFit,
		"supply":     cfg.RiskWeightSupply,
		"gatekeeper": cfg.RiskWeightGatekeeper,
	}

	var deltas []dimDelta
	for dim, score := range dims {
		if dim == "timing" {
			continue
		}
		weight, ok := weightMap[dim]
		if !ok {
			weight = 0.1
		}
		deltas = append(deltas, dimDelta{dim: dim, delta: weight * (score - 50), score: score})
	}
	sort.Slice(deltas, func(i, j int) bool {
		if math.Abs(deltas[i].delta) != math.Abs(deltas[j].delta) {
			return math.Abs(deltas[i].delta) > math.Abs(deltas[j].delta)
		}
		return deltas[i].dim < deltas[j].dim
	})

	var out []string

	for _, d := range deltas {
		if d.delta <= 0 {
			continue
		}
		label := topIndicatorLabel(indicators, d.dim, true)
		out = append(out, fmt.Sprintf("Strong %s: %s at %.0f", d.dim, label, d.score))
		break
	}

	emitted := false
	for _, d := range deltas {
		if d.delta >= 0 {
			continue
		}
		label := topIndicatorLabel(indicators, d.dim, false)
		out = append(out, fmt.Sprintf("Risk: %s at %.0f", label, d.score))
		emitted = true
		break
	}
	if !emitted {
		for _, d := range deltas {
			if (d.dim == "supply" || d.dim == "gatekeeper") && d.score > 50 {
				out = append(out, fmt.Sprintf("Risk: %s pressure at %.0f", d.dim, d.score))
				break
			}
		}
	}

	timing := dims["timing"]
	switch {
	case timing >= 70:
		out = append(out, "Timing is favorable, consider starting BD now")
	case timing >= 40:
		out = append(out, "Timing is neutral, monitor for momentum shift")
	default:
		out = append(out, "Timing is unfavorable, wait for better signals")
	}

	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// topIndicatorLabel picks the strongest (or weakest) indicator label inside a
// dimension for explanation text.
func topIndicatorLabel(indicators []indicator.Indicator, dim string, best bool) string {
	var chosen *indicator.Indicator
	for i := range indicators {
		ind := &indicators[i]
		if string(ind.Dimension) != dim {
			continue
		}
		if chosen == nil ||
			(best && ind.Score > chosen.Score) ||
			(!best && ind.Score < chosen.Score) {
			chosen = ind
		}
	}
	if chosen == nil {
		return dim
	}
	return chosen.Label
}
