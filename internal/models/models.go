// Package models defines the persisted entities of the Brew Signal backend:
// tracked IPs, their search aliases, raw trend samples, derived daily
// composites, event calendar entries, and the source-health / confidence /
// BD-pipeline rows built on top of them.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SignalLight is the momentum traffic-light state of a composite series.
type SignalLight string

const (
	LightGreen  SignalLight = "green"
	LightYellow SignalLight = "yellow"
	LightRed    SignalLight = "red"
)

// PipelineStage is the BD stage of an IP.
type PipelineStage string

const (
	StageCandidate   PipelineStage = "candidate"
	StageNegotiating PipelineStage = "negotiating"
	StageSecured     PipelineStage = "secured"
	StageLaunched    PipelineStage = "launched"
	StageArchived    PipelineStage = "archived"
)

// ValidStage reports whether s is a known pipeline stage.
func ValidStage(s PipelineStage) bool {
	switch s {
	case StageCandidate, StageNegotiating, StageSecured, StageLaunched, StageArchived:
		return true
	}
	return false
}

// SourceStatus is the freshness bucket of a (ip, source) pair.
type SourceStatus string

const (
	SourceOK   SourceStatus = "ok"
	SourceWarn SourceStatus = "warn"
	SourceDown SourceStatus = "down"
)

// ConfidenceBand buckets a 0-100 confidence score.
type ConfidenceBand string

const (
	BandHigh         ConfidenceBand = "high"
	BandMedium       ConfidenceBand = "medium"
	BandLow          ConfidenceBand = "low"
	BandInsufficient ConfidenceBand = "insufficient"
)

// BandFor maps a confidence score to its band.
func BandFor(score int) ConfidenceBand {
	switch {
	case score >= 80:
		return BandHigh
	case score >= 60:
		return BandMedium
	case score >= 40:
		return BandLow
	default:
		return BandInsufficient
	}
}

// EventType classifies calendar events attached to an IP.
type EventType string

const (
	EventAnimeAir    EventType = "anime_air"
	EventMovie       EventType = "movie_release"
	EventGameRelease EventType = "game_release"
	EventAnniversary EventType = "anniversary"
	EventOther       EventType = "other"
)

// IP is a tracked intellectual property.
type IP struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CatalogID *int      `db:"catalog_id" json:"catalog_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Aliases []Alias `db:"-" json:"aliases,omitempty"`
}

// Alias is one searchable surface form of an IP in a given locale.
type Alias struct {
	ID             uuid.UUID `db:"id" json:"id"`
	IPID           uuid.UUID `db:"ip_id" json:"ip_id"`
	Alias          string    `db:"alias" json:"alias"`
	Locale         string    `db:"locale" json:"locale"`
	Weight         float64   `db:"weight" json:"weight"`
	OriginalWeight *float64  `db:"original_weight" json:"original_weight,omitempty"`
	Enabled        bool      `db:"enabled" json:"enabled"`
}

// Sample is a single raw (ip, alias, geo, timeframe, date) measurement in
// [0,100]. Unique on that five-tuple; value and fetched_at are the only
// overwritable fields.
type Sample struct {
	ID        uuid.UUID `db:"id" json:"id"`
	IPID      uuid.UUID `db:"ip_id" json:"ip_id"`
	AliasID   uuid.UUID `db:"alias_id" json:"alias_id"`
	Geo       string    `db:"geo" json:"geo"`
	Timeframe string    `db:"timeframe" json:"timeframe"`
	Date      time.Time `db:"date" json:"date"`
	Value     int       `db:"value" json:"value"`
	Source    string    `db:"source" json:"source"`
	FetchedAt time.Time `db:"fetched_at" json:"fetched_at"`
}

// CompositeDaily is the derived daily composite row for one
// (ip, geo, timeframe, date). Moving averages and growth stats are nil when
// their trailing windows are too short.
type CompositeDaily struct {
	ID                 uuid.UUID    `db:"id" json:"-"`
	IPID               uuid.UUID    `db:"ip_id" json:"ip_id"`
	Geo                string       `db:"geo" json:"geo"`
	Timeframe          string       `db:"timeframe" json:"timeframe"`
	Date               time.Time    `db:"date" json:"date"`
	CompositeValue     float64      `db:"composite_value" json:"composite_value"`
	MA7                *float64     `db:"ma7" json:"ma7"`
	MA28               *float64     `db:"ma28" json:"ma28"`
	WoWGrowth          *float64     `db:"wow_growth" json:"wow_growth"`
	Acceleration       *bool        `db:"acceleration" json:"acceleration"`
	BreakoutPercentile *float64     `db:"breakout_percentile" json:"breakout_percentile"`
	SignalLight        *SignalLight `db:"signal_light" json:"signal_light"`
}

// Event is a dated external milestone attached to an IP.
type Event struct {
	ID        uuid.UUID `db:"id" json:"id"`
	IPID      uuid.UUID `db:"ip_id" json:"ip_id"`
	EventType EventType `db:"event_type" json:"event_type"`
	Title     string    `db:"title" json:"title"`
	EventDate time.Time `db:"event_date" json:"event_date"`
	Source    *string   `db:"source" json:"source,omitempty"`
	SourceURL *string   `db:"source_url" json:"source_url,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SourceRegistry is a static row describing one external data source.
type SourceRegistry struct {
	SourceKey         string  `db:"source_key" json:"source_key"`
	AvailabilityLevel string  `db:"availability_level" json:"availability_level"` // high|medium|low
	RiskType          string  `db:"risk_type" json:"risk_type"`
	IsKeySource       bool    `db:"is_key_source" json:"is_key_source"`
	PriorityWeight    float64 `db:"priority_weight" json:"priority_weight"`
	Notes             *string `db:"notes" json:"notes,omitempty"`
}

// SourceRun is one end-to-end collection attempt against a source.
type SourceRun struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	SourceKey      string     `db:"source_key" json:"source_key"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	FinishedAt     *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Status         string     `db:"status" json:"status"` // ok|warn|down
	DurationMS     *int       `db:"duration_ms" json:"duration_ms,omitempty"`
	ItemsProcessed int        `db:"items_processed" json:"items_processed"`
	ItemsSucceeded int        `db:"items_succeeded" json:"items_succeeded"`
	ItemsFailed    int        `db:"items_failed" json:"items_failed"`
	ErrorSample    *string    `db:"error_sample" json:"error_sample,omitempty"`
}

// IPSourceHealth tracks per-(ip, source) collection freshness. Unique on
// (ip_id, source_key); status derives from last_success_at and the source's
// freshness thresholds.
type IPSourceHealth struct {
	ID             uuid.UUID    `db:"id" json:"id"`
	IPID           uuid.UUID    `db:"ip_id" json:"ip_id"`
	SourceKey      string       `db:"source_key" json:"source_key"`
	LastSuccessAt  *time.Time   `db:"last_success_at" json:"last_success_at,omitempty"`
	LastAttemptAt  *time.Time   `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
	Status         SourceStatus `db:"status" json:"status"`
	StalenessHours *int         `db:"staleness_hours" json:"staleness_hours,omitempty"`
	LastError      *string      `db:"last_error" json:"last_error,omitempty"`
	UpdatedItems   *int         `db:"updated_items" json:"updated_items,omitempty"`
}

// IPConfidence summarises evidence coverage for one IP.
type IPConfidence struct {
	IPID              uuid.UUID      `db:"ip_id" json:"ip_id"`
	ConfidenceScore   int            `db:"confidence_score" json:"confidence_score"`
	ConfidenceBand    ConfidenceBand `db:"confidence_band" json:"confidence_band"`
	ActiveIndicators  int            `db:"active_indicators" json:"active_indicators"`
	TotalIndicators   int            `db:"total_indicators" json:"total_indicators"`
	ActiveSources     int            `db:"active_sources" json:"active_sources"`
	ExpectedSources   int            `db:"expected_sources" json:"expected_sources"`
	MissingSources    []string       `db:"-" json:"missing_sources"`
	MissingIndicators []string       `db:"-" json:"missing_indicators"`
	LastCalculatedAt  *time.Time     `db:"last_calculated_at" json:"last_calculated_at,omitempty"`
}

// ManualInput is a human-supplied indicator value in [0,1], unique on
// (ip_id, indicator_key).
type ManualInput struct {
	ID           uuid.UUID `db:"id" json:"-"`
	IPID         uuid.UUID `db:"ip_id" json:"ip_id"`
	IndicatorKey string    `db:"indicator_key" json:"indicator_key"`
	Value        float64   `db:"value" json:"value"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// IPPipeline is the BD-stage state of an IP, one row per IP. bd_score and
// bd_decision are caches written by the scorer; the stage is operator-owned.
type IPPipeline struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	IPID             uuid.UUID     `db:"ip_id" json:"ip_id"`
	Stage            PipelineStage `db:"stage" json:"stage"`
	TargetLaunchDate *time.Time    `db:"target_launch_date" json:"target_launch_date,omitempty"`
	BDStartDate      *time.Time    `db:"bd_start_date" json:"bd_start_date,omitempty"`
	LicenseStartDate *time.Time    `db:"license_start_date" json:"license_start_date,omitempty"`
	LicenseEndDate   *time.Time    `db:"license_end_date" json:"license_end_date,omitempty"`
	MGAmountUSD      *int          `db:"mg_amount_usd" json:"mg_amount_usd,omitempty"`
	Notes            *string       `db:"notes" json:"notes,omitempty"`
	BDScore          *float64      `db:"bd_score" json:"bd_score,omitempty"`
	BDDecision       *string       `db:"bd_decision" json:"bd_decision,omitempty"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// VideoMetric is a per-(ip, video) statistics snapshot from the video source.
type VideoMetric struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	IPID         uuid.UUID  `db:"ip_id" json:"ip_id"`
	VideoID      string     `db:"video_id" json:"video_id"`
	Title        string     `db:"title" json:"title"`
	ChannelTitle *string    `db:"channel_title" json:"channel_title,omitempty"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
	ViewCount    int        `db:"view_count" json:"view_count"`
	LikeCount    int        `db:"like_count" json:"like_count"`
	CommentCount int        `db:"comment_count" json:"comment_count"`
	RecordedAt   time.Time  `db:"recorded_at" json:"recorded_at"`
}

// MerchCount is the latest product-count reading for one (ip, platform).
type MerchCount struct {
	ID           uuid.UUID `db:"id" json:"id"`
	IPID         uuid.UUID `db:"ip_id" json:"ip_id"`
	Platform     string    `db:"platform" json:"platform"`
	QueryTerm    string    `db:"query_term" json:"query_term"`
	ProductCount int       `db:"product_count" json:"product_count"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// RunLog is one collector attempt for a single alias of an IP.
type RunLog struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Source     string     `db:"source" json:"source"`
	IPID       uuid.UUID  `db:"ip_id" json:"ip_id"`
	Geo        string     `db:"geo" json:"geo"`
	Timeframe  string     `db:"timeframe" json:"timeframe"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	Status     string     `db:"status" json:"status"` // success|fail
	HTTPCode   *int       `db:"http_code" json:"http_code,omitempty"`
	ErrorCode  *string    `db:"error_code" json:"error_code,omitempty"`
	Message    *string    `db:"message" json:"message,omitempty"`
	DurationMS *int       `db:"duration_ms" json:"duration_ms,omitempty"`
}
