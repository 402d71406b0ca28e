package trend

import (
	"fmt"
	"math"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/models"
)

// spikeMinRows is the minimum series length before spike detection engages.
const spikeMinRows = 30

// Alert flags a notable condition on the latest composite row.
type Alert struct {
	Type    string `json:"type"` // breakout | peak_turn | spike
	Message string `json:"message"`
}

// DetectAlerts inspects the date-sorted composite series and reports the
// conditions present on its latest row.
func DetectAlerts(rows []models.CompositeDaily, cfg config.SignalConfig) []Alert {
	if len(rows) == 0 {
		return nil
	}
	latest := rows[len(rows)-1]
	var alerts []Alert

	if latest.BreakoutPercentile != nil && *latest.BreakoutPercentile >= cfg.BreakoutPercentile {
		alerts = append(alerts, Alert{
			Type: "breakout",
			Message: fmt.Sprintf("7-day average at the %.0fth percentile of the trailing window",
				*latest.BreakoutPercentile),
		})
	}

	if len(rows) >= 2 {
		prev := rows[len(rows)-2]
		if prev.MA7 != nil && prev.MA28 != nil && latest.MA7 != nil && latest.MA28 != nil &&
			*prev.MA7 >= *prev.MA28 && *latest.MA7 < *latest.MA28 {
			alerts = append(alerts, Alert{
				Type:    "peak_turn",
				Message: "7-day average crossed below the 28-day average",
			})
		}
	}

	if len(rows) >= spikeMinRows {
		mean, sd := meanStddev(rows)
		if sd > 0 && latest.CompositeValue > mean+2*sd {
			alerts = append(alerts, Alert{
				Type: "spike",
				Message: fmt.Sprintf("composite %.1f exceeds mean %.1f by more than two standard deviations",
					latest.CompositeValue, mean),
			})
		}
	}
	return alerts
}

func meanStddev(rows []models.CompositeDaily) (float64, float64) {
	n := float64(len(rows))
	sum := 0.0
	for _, r := range rows {
		sum += r.CompositeValue
	}
	mean := sum / n

	variance := 0.0
	for _, r := range rows {
		d := r.CompositeValue - mean
		variance += d * d
	}
	return mean, math.Sqrt(variance / n)
}
