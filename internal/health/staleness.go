// Package health tracks per-(ip, source) collection freshness and derives
// the per-IP confidence score that discounts every downstream decision.
package health

import (
	"time"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/models"
)

// StalenessHours returns the whole hours since the last success, or nil when
// the source has never succeeded.
func StalenessHours(lastSuccess *time.Time, now time.Time) *int {
	if lastSuccess == nil {
		return nil
	}
	h := int(now.Sub(*lastSuccess).Hours())
	if h < 0 {
		h = 0
	}
	return &h
}

// StatusFor buckets a source by the age of its last success: ok within
// fresh_hours, warn within warn_hours, down beyond that or never succeeded.
func StatusFor(lastSuccess *time.Time, now time.Time, th config.StalenessThreshold) models.SourceStatus {
	if lastSuccess == nil {
		return models.SourceDown
	}
	age := now.Sub(*lastSuccess).Hours()
	switch {
	case age <= float64(th.FreshHours):
		return models.SourceOK
	case age <= float64(th.WarnHours):
		return models.SourceWarn
	default:
		return models.SourceDown
	}
}
