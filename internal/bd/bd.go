// Package bd decides whether an IP deserves business-development effort: a
// hard brand-fit gate, four weighted components discounted by data
// confidence, and a START / MONITOR / REJECT decision.
package bd

import (
	"fmt"
	"math"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/indicator"
)

// Decision is the BD allocation outcome.
type Decision string

const (
	DecisionStart   Decision = "START"
	DecisionMonitor Decision = "MONITOR"
	DecisionReject  Decision = "REJECT"
)

// Score is the full BD scoring breakdown for one IP.
type Score struct {
	Score            float64  `json:"bd_score"`
	Decision         Decision `json:"bd_decision"`
	FitGateScore     float64  `json:"fit_gate_score"`
	FitGatePassed    bool     `json:"fit_gate_passed"`
	TimingUrgency    float64  `json:"timing_urgency"`
	DemandTrajectory float64  `json:"demand_trajectory"`
	MarketGap        float64  `json:"market_gap"`
	Feasibility      float64  `json:"feasibility"`
	ConfidenceMult   float64  `json:"confidence_multiplier"`
	Explanations     []string `json:"explanations"`
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func score(indicators []indicator.Indicator, key string) float64 {
	if ind := indicator.Find(indicators, key); ind != nil {
		return ind.Score
	}
	return 50
}

func dimMean(indicators []indicator.Indicator, dim indicator.Dimension) float64 {
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

// Compute scores the indicator set. confidenceScore is the IP's 0-100 data
// confidence; it multiplies the raw score down but never flips the fit gate.
func Compute(indicators []indicator.Indicator, confidenceScore int, cfg config.BDConfig) Score {
	adultFit := score(indicators, "adult_fit")
	giftability := score(indicators, "giftability")
	brandAesthetic := score(indicators, "brand_aesthetic")
	fitGate := math.Min(adultFit, math.Min(giftability, brandAesthetic))
	gatePassed := fitGate >= cfg.FitGateThreshold

	timing := score(indicators, "timing_window")
	rightsholder := score(indicators, "rightsholder_intensity")
	timingUrgency := clamp(0, 100, timing*(1+cfg.GatekeeperUrgency*rightsholder/100))

	accelBonus := 0.0
	if mom := indicator.Find(indicators, "search_momentum"); mom != nil && mom.Raw != nil {
		if accel, ok := mom.Raw["acceleration"].(*bool); ok && accel != nil && *accel {
			accelBonus = 10
		}
	}
	demandTrajectory := clamp(0, 100, dimMean(indicators, indicator.DimDemand)+accelBonus)

	marketGap := 100 - dimMean(indicators, indicator.DimSupply)
	feasibility := clamp(0, 100, 0.5*dimMean(indicators, indicator.DimDiffusion)+0.5*(100-rightsholder))

	raw := cfg.WeightTiming*timingUrgency +
		cfg.WeightDemand*demandTrajectory +
		cfg.WeightMarketGap*marketGap +
		cfg.WeightFeasibility*feasibility

	confMult := float64(confidenceScore) / 100
	final := clamp(0, 100, raw*confMult)

	decision := DecisionReject
	switch {
	case !gatePassed:
		decision = DecisionReject
	case final >= cfg.StartThreshold:
		decision = DecisionStart
	case final >= cfg.MonitorThreshold:
		decision = DecisionMonitor
	}

	s := Score{
		Score:            round1(final),
		Decision:         decision,
		FitGateScore:     round1(fitGate),
		FitGatePassed:    gatePassed,
		TimingUrgency:    round1(timingUrgency),
		DemandTrajectory: round1(demandTrajectory),
		MarketGap:        round1(marketGap),
		Feasibility:      round1(feasibility),
		ConfidenceMult:   confMult,
	}
	s.Explanations = explanations(s)
	return s
}

// explanations emits three strings: the decision driver, the demand/market
// signal, and a confidence or feasibility note.
func explanations(s Score) []string {
	var out []string

	switch {
	case !s.FitGatePassed:
		out = append(out, fmt.Sprintf("Fit gate failed (%.0f): IP does not meet minimum brand fit criteria", s.FitGateScore))
	case s.TimingUrgency >= 70:
		out = append(out, fmt.Sprintf("High timing urgency (%.0f): start BD now or risk missing the launch window", s.TimingUrgency))
	case s.TimingUrgency >= 50:
		out = append(out, fmt.Sprintf("Moderate timing urgency (%.0f): window is approaching, monitor closely", s.TimingUrgency))
	default:
		out = append(out, fmt.Sprintf("Low timing urgency (%.0f): no immediate pressure to start BD", s.TimingUrgency))
	}

	switch {
	case s.DemandTrajectory >= 65 && s.MarketGap >= 60:
		out = append(out, fmt.Sprintf("Strong demand trajectory (%.0f) with open market gap (%.0f)", s.DemandTrajectory, s.MarketGap))
	case s.DemandTrajectory >= 50:
		out = append(out, fmt.Sprintf("Moderate demand (%.0f), market gap at %.0f", s.DemandTrajectory, s.MarketGap))
	default:
		out = append(out, fmt.Sprintf("Weak demand trajectory (%.0f), market gap at %.0f", s.DemandTrajectory, s.MarketGap))
	}

	switch {
	case s.ConfidenceMult < 0.5:
		out = append(out, fmt.Sprintf("Low data confidence (%.0f%%): score significantly discounted", s.ConfidenceMult*100))
	case s.Feasibility < 40:
		out = append(out, fmt.Sprintf("Feasibility concern (%.0f): difficult rightsholder or limited platform presence", s.Feasibility))
	default:
		out = append(out, fmt.Sprintf("Feasibility OK (%.0f), confidence %.0f%%", s.Feasibility, s.ConfidenceMult*100))
	}

	return out
}
