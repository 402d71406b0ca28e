// Package indicator computes the fixed set of 13 scored indicators that feed
// the opportunity, BD, and confidence layers. Three are LIVE (derived from
// collected data), the rest are MANUAL inputs with a neutral default.
package indicator

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/brewsignal/brewsignal/internal/models"
)

// Status is the provenance of an indicator value.
type Status string

const (
	StatusLive    Status = "LIVE"
	StatusManual  Status = "MANUAL"
	StatusMissing Status = "MISSING"
)

// Dimension groups indicators for the opportunity scorer.
type Dimension string

const (
	DimDemand     Dimension = "demand"
	DimDiffusion  Dimension = "diffusion"
	DimFit        Dimension = "fit"
	DimSupply     Dimension = "supply"
	DimGatekeeper Dimension = "gatekeeper"
)

// TimingOverrideKey is the manual-input key that overrides timing_window.
const TimingOverrideKey = "timing_window_override"

// KeyIndicators are the indicators whose absence draws a confidence penalty.
var KeyIndicators = []string{"search_momentum", "video_momentum", "timing_window"}

// Indicator is one scored component.
type Indicator struct {
	Key       string                 `json:"key"`
	Label     string                 `json:"label"`
	Dimension Dimension              `json:"dimension"`
	Status    Status                 `json:"status"`
	Score     float64                `json:"score_0_100"`
	Raw       map[string]interface{} `json:"raw,omitempty"`
	Debug     []string               `json:"debug,omitempty"`
}

// Def describes one indicator slot.
type Def struct {
	Key       string
	Label     string
	Dimension Dimension
	Live      bool
}

// Defs lists all 13 indicators in presentation order.
var Defs = []Def{
	{"search_momentum", "Search Momentum", DimDemand, true},
	{"social_buzz", "Social Buzz", DimDemand, false},
	{"video_momentum", "Video Momentum", DimDemand, false},
	{"cross_alias_consistency", "Cross-alias Consistency", DimDiffusion, true},
	{"cross_platform_presence", "Cross-platform Presence", DimDiffusion, false},
	{"ecommerce_density", "E-commerce Density", DimSupply, false},
	{"fnb_collab_saturation", "F&B Collab Saturation", DimSupply, false},
	{"merch_pressure", "Merch Pressure", DimSupply, false},
	{"rightsholder_intensity", "Rightsholder Intensity", DimGatekeeper, false},
	{"timing_window", "Timing Window", DimGatekeeper, true},
	{"adult_fit", "Adult Fit", DimFit, false},
	{"giftability", "Giftability", DimFit, false},
	{"brand_aesthetic", "Brand Aesthetic", DimFit, false},
}

// ValidInputKey reports whether key is accepted as a manual input.
func ValidInputKey(key string) bool {
	if key == TimingOverrideKey {
		return true
	}
	for _, d := range Defs {
		if !d.Live && d.Key == key {
			return true
		}
	}
	return false
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SearchMomentum scores demand momentum off the latest composite row. It
// starts neutral and shifts with growth, acceleration, and breakout rank.
func SearchMomentum(latest *models.CompositeDaily) Indicator {
	ind := Indicator{
		Key: "search_momentum", Label: "Search Momentum", Dimension: DimDemand,
	}
	if latest == nil || latest.WoWGrowth == nil {
		ind.Status = StatusMissing
		ind.Score = 50
		ind.Debug = []string{"No daily trend data"}
		return ind
	}

	score := 50.0
	score += clamp(-20, 20, *latest.WoWGrowth*50)
	if latest.Acceleration != nil && *latest.Acceleration {
		score += 15
	}
	if latest.BreakoutPercentile != nil {
		score += clamp(-15, 15, (*latest.BreakoutPercentile-50)*0.3)
	}

	ind.Status = StatusLive
	ind.Score = round1(clamp(0, 100, score))
	ind.Raw = map[string]interface{}{
		"wow_growth":          *latest.WoWGrowth,
		"acceleration":        latest.Acceleration,
		"breakout_percentile": latest.BreakoutPercentile,
	}
	ind.Debug = []string{fmt.Sprintf("WoW=%.4f", *latest.WoWGrowth)}
	return ind
}

// AliasSeries is the recent sample window of one enabled alias.
type AliasSeries struct {
	Alias   string
	Samples []models.Sample
}

// CrossAliasConsistency measures how many alias series are rising in the last
// week versus the week before. Aliases with thin or near-zero data are
// ignored; if none qualify the indicator is missing.
func CrossAliasConsistency(series []AliasSeries, now time.Time) Indicator {
	ind := Indicator{
		Key: "cross_alias_consistency", Label: "Cross-alias Consistency",
		Dimension: DimDiffusion,
	}
	if len(series) == 0 {
		ind.Status = StatusMissing
		ind.Score = 50
		ind.Debug = []string{"No enabled aliases"}
		return ind
	}

	midpoint := now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -7)
	rising, qualified := 0, 0
	for _, s := range series {
		if len(s.Samples) < 10 {
			continue
		}
		var priorSum, recentSum, totalSum float64
		var priorN, recentN int
		for _, p := range s.Samples {
			totalSum += float64(p.Value)
			if p.Date.Before(midpoint) {
				priorSum += float64(p.Value)
				priorN++
			} else {
				recentSum += float64(p.Value)
				recentN++
			}
		}
		if priorN == 0 || recentN == 0 {
			continue
		}
		if totalSum/float64(len(s.Samples)) < 5 {
			continue
		}
		qualified++
		if recentSum/float64(recentN) > priorSum/float64(priorN) {
			rising++
		}
	}

	if qualified == 0 {
		ind.Status = StatusMissing
		ind.Score = 50
		ind.Debug = []string{"No alias data qualifies (min 10 points, avg >= 5)"}
		return ind
	}

	ind.Status = StatusLive
	ind.Score = round1(float64(rising) / float64(qualified) * 100)
	ind.Raw = map[string]interface{}{"rising": rising, "total": qualified}
	ind.Debug = []string{fmt.Sprintf("%d/%d aliases rising in last 14d", rising, qualified)}
	return ind
}

// TimingWindow scores launch timing. Priority: manual override, then the
// event calendar, then the trend signal light, else missing.
func TimingWindow(events []models.Event, latest *models.CompositeDaily, override *float64, leadWeeks int, now time.Time) Indicator {
	ind := Indicator{
		Key: "timing_window", Label: "Timing Window", Dimension: DimGatekeeper,
	}

	if override != nil && *override != 0.5 {
		ind.Status = StatusManual
		ind.Score = round1(clamp(0, 100, *override*100))
		ind.Debug = []string{fmt.Sprintf("Manual override: %v", *override)}
		return ind
	}

	today := now.UTC().Truncate(24 * time.Hour)
	if len(events) > 0 {
		sorted := make([]models.Event, len(events))
		copy(sorted, events)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].EventDate.Before(sorted[j].EventDate)
		})

		var upcoming *models.Event
		var recentPast *models.Event
		for i := range sorted {
			e := &sorted[i]
			if !e.EventDate.Before(today) {
				if upcoming == nil {
					upcoming = e
				}
			} else if today.Sub(e.EventDate) <= 28*24*time.Hour {
				recentPast = e // sorted ascending, last hit is the latest
			}
		}

		if upcoming != nil {
			weeks := upcoming.EventDate.Sub(today).Hours() / 24 / 7
			center := float64(leadWeeks - 1)
			var score float64
			switch {
			case weeks >= 8 && weeks <= 14:
				score = 95 - math.Abs(weeks-center)/3*15
			case weeks > 14 && weeks <= 20:
				score = 75 - (weeks-14)*2.5
			case weeks > 20:
				score = math.Max(40, 60-(weeks-20))
			case weeks >= 4:
				score = 50 + (weeks-4)*5
			default:
				score = 25 + weeks*6
			}
			ind.Status = StatusLive
			ind.Score = round1(clamp(0, 100, score))
			ind.Raw = map[string]interface{}{
				"event":       upcoming.Title,
				"event_date":  upcoming.EventDate.Format("2006-01-02"),
				"weeks_until": round1(weeks),
			}
			ind.Debug = []string{fmt.Sprintf("Next event: %s in %.1fw", upcoming.Title, weeks)}
			return ind
		}

		if recentPast != nil {
			daysAgo := int(today.Sub(recentPast.EventDate).Hours() / 24)
			ind.Status = StatusLive
			ind.Score = round1(clamp(0, 100, math.Max(20, 60-float64(daysAgo)*1.5)))
			ind.Raw = map[string]interface{}{
				"event": recentPast.Title, "days_ago": daysAgo,
			}
			ind.Debug = []string{fmt.Sprintf("Recent event: %s was %dd ago", recentPast.Title, daysAgo)}
			return ind
		}
	}

	if latest != nil && latest.SignalLight != nil {
		lightMap := map[models.SignalLight]float64{
			models.LightGreen:  75,
			models.LightYellow: 50,
			models.LightRed:    25,
		}
		ind.Status = StatusLive
		ind.Score = lightMap[*latest.SignalLight]
		ind.Raw = map[string]interface{}{"fallback": "trend", "signal_light": *latest.SignalLight}
		ind.Debug = []string{fmt.Sprintf("No events, trend signal_light=%s", *latest.SignalLight)}
		return ind
	}

	ind.Status = StatusMissing
	ind.Score = 50
	ind.Debug = []string{"No events and no trend data"}
	return ind
}

// Manual scores one user-supplied indicator, neutral when absent.
func Manual(def Def, inputs map[string]float64) Indicator {
	ind := Indicator{Key: def.Key, Label: def.Label, Dimension: def.Dimension}
	if v, ok := inputs[def.Key]; ok {
		ind.Status = StatusManual
		ind.Score = round1(clamp(0, 100, v*100))
		ind.Debug = []string{fmt.Sprintf("User input: %v", v)}
		return ind
	}
	ind.Status = StatusMissing
	ind.Score = 50
	ind.Debug = []string{"Default neutral (no user input)"}
	return ind
}

// Inputs is everything needed to compute the full indicator set.
type Inputs struct {
	Latest      *models.CompositeDaily
	AliasSeries []AliasSeries
	Events      []models.Event
	Manual      map[string]float64
	LeadWeeks   int
	Now         time.Time
}

// ComputeAll evaluates all 13 indicators in presentation order.
func ComputeAll(in Inputs) []Indicator {
	indicators := make([]Indicator, 0, len(Defs))
	for _, def := range Defs {
		switch def.Key {
		case "search_momentum":
			indicators = append(indicators, SearchMomentum(in.Latest))
		case "cross_alias_consistency":
			indicators = append(indicators, CrossAliasConsistency(in.AliasSeries, in.Now))
		case "timing_window":
			var override *float64
			if v, ok := in.Manual[TimingOverrideKey]; ok {
				override = &v
			}
			indicators = append(indicators, TimingWindow(in.Events, in.Latest, override, in.LeadWeeks, in.Now))
		default:
			indicators = append(indicators, Manual(def, in.Manual))
		}
	}
	return indicators
}

// Find returns the indicator with the given key, or nil.
func Find(indicators []Indicator, key string) *Indicator {
	for i := range indicators {
		if indicators[i].Key == key {
			return &indicators[i]
		}
	}
	return nil
}

// MissingKeys returns the key indicators currently in MISSING state.
func MissingKeys(indicators []Indicator) []string {
	var missing []string
	for _, key := range KeyIndicators {
		ind := Find(indicators, key)
		if ind == nil || ind.Status == StatusMissing {
			missing = append(missing, key)
		}
	}
	return missing
}

// Coverage is the LIVE share of the indicator set.
func Coverage(indicators []Indicator) float64 {
	if len(indicators) == 0 {
		return 0
	}
	live := 0
	for _, ind := range indicators {
		if ind.Status == StatusLive {
			live++
		}
	}
	return math.Round(float64(live)/float64(len(indicators))*100) / 100
}

// ActiveCount counts indicators that are not MISSING.
func ActiveCount(indicators []Indicator) int {
	n := 0
	for _, ind := range indicators {
		if ind.Status != StatusMissing {
			n++
		}
	}
	return n
}
