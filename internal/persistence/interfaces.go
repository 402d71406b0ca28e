// Package persistence defines the repository contracts for the Brew Signal
// store. All upserts follow on-conflict-update semantics scoped to the unique
// key documented on each model; uniqueness violations never surface to
// callers on those paths.
package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brewsignal/brewsignal/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a create collides with an existing row on a
// path that does not absorb conflicts (e.g. pipeline create).
var ErrConflict = errors.New("already exists")

// AliasUpdate carries optional field updates for an alias.
type AliasUpdate struct {
	Alias   *string
	Locale  *string
	Weight  *float64
	Enabled *bool
}

// PipelineUpdate carries optional field updates for a pipeline row. Stage
// changes are operator actions; bd_score/bd_decision are written only via
// UpsertScore.
type PipelineUpdate struct {
	Stage            *models.PipelineStage
	TargetLaunchDate *time.Time
	BDStartDate      *time.Time
	LicenseStartDate *time.Time
	LicenseEndDate   *time.Time
	MGAmountUSD      *int
	Notes            *string
}

// SampleWithAlias pairs a raw sample with its alias text for by-alias views.
type SampleWithAlias struct {
	models.Sample
	AliasText string `db:"alias_text"`
}

// IPRepo manages IPs and their aliases. Deleting an IP cascades to every
// owned row.
type IPRepo interface {
	Create(ctx context.Context, ip *models.IP, aliases []models.Alias) error
	Get(ctx context.Context, id uuid.UUID) (*models.IP, error)
	List(ctx context.Context) ([]models.IP, error)
	UpdateName(ctx context.Context, id uuid.UUID, name string) error
	SetCatalogID(ctx context.Context, id uuid.UUID, catalogID int) error
	Delete(ctx context.Context, id uuid.UUID) error

	AddAlias(ctx context.Context, alias *models.Alias) error
	GetAlias(ctx context.Context, aliasID uuid.UUID) (*models.Alias, error)
	UpdateAlias(ctx context.Context, aliasID uuid.UUID, upd AliasUpdate) (*models.Alias, error)
	DeleteAlias(ctx context.Context, aliasID uuid.UUID) error
	ResetAliasWeight(ctx context.Context, aliasID uuid.UUID) (*models.Alias, error)
	ListEnabledAliases(ctx context.Context, ipID uuid.UUID) ([]models.Alias, error)
}

// TrendRepo manages raw samples, derived daily composites, and per-alias
// collector run logs.
type TrendRepo interface {
	// UpsertSamples writes samples on the (ip, alias, geo, timeframe, date)
	// key, overwriting only value and fetched_at, atomically with the run
	// log row for the same alias attempt.
	UpsertSamples(ctx context.Context, samples []models.Sample, runLog *models.RunLog) error
	InsertRunLog(ctx context.Context, runLog *models.RunLog) error
	ListRunLogs(ctx context.Context, ipID uuid.UUID, geo, timeframe string, since time.Time) ([]models.RunLog, error)

	ListSamples(ctx context.Context, ipID uuid.UUID, geo, timeframe string, aliasIDs []uuid.UUID) ([]models.Sample, error)
	ListSamplesWithAlias(ctx context.Context, ipID uuid.UUID, geo, timeframe string) ([]SampleWithAlias, error)
	ListAliasSamplesSince(ctx context.Context, ipID, aliasID uuid.UUID, geo, timeframe string, since time.Time) ([]models.Sample, error)

	UpsertComposites(ctx context.Context, rows []models.CompositeDaily) error
	DeleteComposites(ctx context.Context, ipID uuid.UUID, geo, timeframe string) error
	CompositeSeries(ctx context.Context, ipID uuid.UUID, geo, timeframe string) ([]models.CompositeDaily, error)
	LatestComposite(ctx context.Context, ipID uuid.UUID, geo, timeframe string) (*models.CompositeDaily, error)
	LatestCompositeAnyScope(ctx context.Context, ipID uuid.UUID) (*models.CompositeDaily, error)
	RecentComposites(ctx context.Context, ipID uuid.UUID, geo, timeframe string, limit int) ([]models.CompositeDaily, error)
	HasComposites(ctx context.Context, ipID uuid.UUID) (bool, error)
}

// EventRepo manages the event calendar of an IP.
type EventRepo interface {
	Insert(ctx context.Context, event *models.Event) error
	Exists(ctx context.Context, ipID uuid.UUID, title string, eventDate time.Time, source string) (bool, error)
	ListByIP(ctx context.Context, ipID uuid.UUID) ([]models.Event, error)
	ListWindow(ctx context.Context, ipID uuid.UUID, from, to time.Time) ([]models.Event, error)
}

// HealthRepo manages the source registry, source runs, per-(ip, source)
// health rows, and per-IP confidence rows.
type HealthRepo interface {
	ListRegistry(ctx context.Context) ([]models.SourceRegistry, error)
	SeedRegistry(ctx context.Context, rows []models.SourceRegistry) error

	InsertSourceRun(ctx context.Context, run *models.SourceRun) error
	// ListSourceRuns with an empty sourceKey spans all sources.
	ListSourceRuns(ctx context.Context, sourceKey string, limit int) ([]models.SourceRun, error)
	ListSourceRunsSince(ctx context.Context, sourceKey string, since time.Time) ([]models.SourceRun, error)
	LastErrorSample(ctx context.Context, sourceKey string) (*string, error)

	// UpsertSourceHealth writes on the (ip, source) key. last_success_at is
	// only advanced when the row records a success.
	UpsertSourceHealth(ctx context.Context, row *models.IPSourceHealth, success bool) error
	ListSourceHealthByIP(ctx context.Context, ipID uuid.UUID) ([]models.IPSourceHealth, error)
	CountOKForSource(ctx context.Context, sourceKey string) (int, error)
	MaxLastSuccess(ctx context.Context, sourceKey string) (*time.Time, error)

	UpsertConfidence(ctx context.Context, row *models.IPConfidence) error
	GetConfidence(ctx context.Context, ipID uuid.UUID) (*models.IPConfidence, error)
}

// ScoreRepo manages manual indicator inputs, the BD pipeline row, video
// metrics, and merch product counts.
type ScoreRepo interface {
	UpsertManualInput(ctx context.Context, ipID uuid.UUID, indicatorKey string, value float64) (*models.ManualInput, error)
	ListManualInputs(ctx context.Context, ipID uuid.UUID) ([]models.ManualInput, error)

	GetPipeline(ctx context.Context, ipID uuid.UUID) (*models.IPPipeline, error)
	CreatePipeline(ctx context.Context, row *models.IPPipeline) error
	UpdatePipeline(ctx context.Context, ipID uuid.UUID, upd PipelineUpdate) (*models.IPPipeline, error)
	// UpsertScore caches bd_score/bd_decision without touching the stage.
	UpsertScore(ctx context.Context, ipID uuid.UUID, bdScore float64, bdDecision string) error

	UpsertVideoMetric(ctx context.Context, row *models.VideoMetric) error
	UpsertMerchCount(ctx context.Context, row *models.MerchCount) error
	TotalMerchCount(ctx context.Context, ipID uuid.UUID) (int, error)
}

// Store bundles the repositories behind a single dependency.
type Store struct {
	IPs    IPRepo
	Trends TrendRepo
	Events EventRepo
	Health HealthRepo
	Scores ScoreRepo
}
