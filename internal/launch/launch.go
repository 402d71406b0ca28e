// Package launch recommends a launch week inside the licence window by
// scoring a weekly grid on projected demand, event proximity, market
// saturation, and operational runway.
package launch

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/models"
)

// eventMarginWeeks extends the event query window on both sides so hype
// building toward an event just outside the licence window still counts.
const eventMarginWeeks = 8

// WeekScore is one row of the weekly launch grid.
type WeekScore struct {
	WeekStart       time.Time `json:"week_start"`
	LaunchValue     float64   `json:"launch_value"`
	DemandScore     float64   `json:"demand_score"`
	EventBoost      float64   `json:"event_boost"`
	SaturationScore float64   `json:"saturation_score"`
	OperationalRisk float64   `json:"operational_risk"`
}

// Milestone is an operational checkpoint counted back from the launch week.
type Milestone struct {
	Label             string    `json:"label"`
	TargetDate        time.Time `json:"target_date"`
	WeeksBeforeLaunch int       `json:"weeks_before_launch"`
}

// Plan is the full launch-timing recommendation for one IP.
type Plan struct {
	IPID             uuid.UUID            `json:"ip_id"`
	IPName           string               `json:"ip_name"`
	Geo              string               `json:"geo"`
	Timeframe        string               `json:"timeframe"`
	LicenseStartDate time.Time            `json:"license_start_date"`
	LicenseEndDate   time.Time            `json:"license_end_date"`
	RecommendedWeek  *time.Time           `json:"recommended_week,omitempty"`
	BackupWeeks      []time.Time          `json:"backup_weeks"`
	Grid             []WeekScore          `json:"grid"`
	Milestones       []Milestone          `json:"milestones"`
	EventsInWindow   []models.Event       `json:"events_in_window"`
	Saturation       float64              `json:"saturation"`
	Confidence       *models.IPConfidence `json:"confidence,omitempty"`
	Explanations     []string             `json:"explanations"`
}

func clamp(lo, hi, v float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func weeksBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / (24 * 7)
}

// mondayOf returns the Monday of the week containing d.
func mondayOf(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// demandAt extrapolates the ma28 trend linearly from today.
func demandAt(baseDemand, slopePerWeek, weeksFromNow float64) float64 {
	return clamp(0, 100, baseDemand+slopePerWeek*weeksFromNow)
}

// eventBoost peaks peakWeeks before each event and decays as a gaussian with
// the given sigma; the strongest event wins.
func eventBoost(weekStart time.Time, events []models.Event, peakWeeks int, sigmaWeeks float64) float64 {
	best := 0.0
	for _, ev := range events {
		peak := ev.EventDate.AddDate(0, 0, -7*peakWeeks)
		dist := weeksBetween(peak, weekStart)
		boost := 100 * math.Exp(-(dist*dist)/(2*sigmaWeeks*sigmaWeeks))
		best = math.Max(best, boost)
	}
	return clamp(0, 100, best)
}

// saturationFrom maps the total merch product count onto [0,95]. 800 products
// is roughly the 63-point knee.
func saturationFrom(totalMerch int) float64 {
	if totalMerch <= 0 {
		return 0
	}
	return clamp(0, 95, 100*(1-math.Exp(-float64(totalMerch)/800)))
}

// opsRisk falls as the buffer between today and the launch week grows: under
// 10 weeks the sigmoid sits near 95, by 30 weeks it is near 5.
func opsRisk(weeksBuffer float64) float64 {
	return clamp(0, 100, 100/(1+math.Exp(0.3*(weeksBuffer-15))))
}

// buildGrid scores every Monday-aligned week in [windowStart, windowEnd].
func buildGrid(today, windowStart, windowEnd time.Time, baseDemand, slopePerWeek float64,
	events []models.Event, saturation float64, cfg config.LaunchConfig) []WeekScore {

	var grid []WeekScore
	for week := mondayOf(windowStart); !week.After(windowEnd); week = week.AddDate(0, 0, 7) {
		weeksFromNow := weeksBetween(today, week)
		demand := demandAt(baseDemand, slopePerWeek, weeksFromNow)
		boost := eventBoost(week, events, cfg.EventPeakWeeks, cfg.EventSigmaWeeks)
		risk := opsRisk(weeksFromNow)

		value := cfg.WeightDemand*demand +
			cfg.WeightEvent*boost -
			cfg.WeightSaturation*saturation -
			cfg.WeightOpsRisk*risk

		grid = append(grid, WeekScore{
			WeekStart:       week,
			LaunchValue:     round2(value),
			DemandScore:     round2(demand),
			EventBoost:      round2(boost),
			SaturationScore: round2(saturation),
			OperationalRisk: round2(risk),
		})
	}
	return grid
}

// recommend picks the best week and up to two backups by launch value.
func recommend(grid []WeekScore) (*time.Time, []time.Time) {
	if len(grid) == 0 {
		return nil, nil
	}
	ranked := make([]WeekScore, len(grid))
	copy(ranked, grid)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].LaunchValue > ranked[j].LaunchValue })

	best := ranked[0].WeekStart
	backups := make([]time.Time, 0, 2)
	for _, w := range ranked[1:] {
		if len(backups) == 2 {
			break
		}
		backups = append(backups, w.WeekStart)
	}
	return &best, backups
}

// milestones counts the operational checkpoints back from the launch week.
func milestones(launchDate time.Time, cfg config.LaunchConfig) []Milestone {
	steps := []struct {
		label string
		weeks int
	}{
		{"Launch", 0},
		{"Production Start", cfg.LeadProduction},
		{"Sample Review", cfg.LeadSampleReview},
		{"Artwork Submission", cfg.LeadArtwork},
		{"Design Start", cfg.LeadDesignStart},
	}
	out := make([]Milestone, 0, len(steps))
	for _, s := range steps {
		out = append(out, Milestone{
			Label:             s.label,
			TargetDate:        launchDate.AddDate(0, 0, -7*s.weeks),
			WeeksBeforeLaunch: s.weeks,
		})
	}
	return out
}

// explanations emits up to four strings: why this week, the saturation
// picture, the operational runway, and a confidence caveat when warranted.
func explanations(grid []WeekScore, recommended *time.Time, events []models.Event,
	saturation float64, confidenceScore *int) []string {

	if len(grid) == 0 || recommended == nil {
		return []string{"Insufficient data to generate a launch plan"}
	}
	var rec *WeekScore
	for i := range grid {
		if grid[i].WeekStart.Equal(*recommended) {
			rec = &grid[i]
			break
		}
	}
	if rec == nil {
		return []string{"Could not find scores for recommended week"}
	}

	var out []string
	switch {
	case rec.EventBoost > 30:
		var names []string
		for _, ev := range events {
			if math.Abs(ev.EventDate.Sub(*recommended).Hours()/24) < 56 {
				names = append(names, ev.Title)
			}
			if len(names) == 2 {
				break
			}
		}
		label := "upcoming event"
		if len(names) > 0 {
			label = strings.Join(names, ", ")
		}
		out = append(out, fmt.Sprintf("Recommended week aligns with %s (event boost %.0f/100)", label, rec.EventBoost))
	case rec.DemandScore > 60:
		out = append(out, fmt.Sprintf("Recommended week captures projected demand peak (%.0f/100)", rec.DemandScore))
	default:
		out = append(out, fmt.Sprintf("Recommended week balances demand (%.0f) vs. risk (%.0f)", rec.DemandScore, rec.OperationalRisk))
	}

	switch {
	case saturation > 50:
		out = append(out, fmt.Sprintf("High market saturation (%.0f/100): consider differentiating launch positioning", saturation))
	case saturation > 20:
		out = append(out, fmt.Sprintf("Moderate market saturation (%.0f/100): reasonable competitive landscape", saturation))
	default:
		out = append(out, fmt.Sprintf("Low market saturation (%.0f/100): open market opportunity", saturation))
	}

	if rec.OperationalRisk > 50 {
		out = append(out, fmt.Sprintf("Tight operational timeline (risk %.0f/100): start production planning immediately", rec.OperationalRisk))
	} else {
		out = append(out, fmt.Sprintf("Comfortable operational buffer (risk %.0f/100)", rec.OperationalRisk))
	}

	if confidenceScore != nil && *confidenceScore < 50 {
		out = append(out, fmt.Sprintf("Low data confidence (%d%%): timing recommendation has wide uncertainty", *confidenceScore))
	}

	if len(out) > 4 {
		out = out[:4]
	}
	return out
}
