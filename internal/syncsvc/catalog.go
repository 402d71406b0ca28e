package syncsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/metrics"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

const (
	catalogSourceKey = "wiki_mal"

	// maxSearchTerms bounds catalogue search attempts per IP.
	maxSearchTerms = 5
	// maxCatalogFetches caps the relation walk to stay inside the upstream
	// rate budget.
	maxCatalogFetches = 15
	// maxSequelDepth bounds how far a sequel chain is followed.
	maxSequelDepth = 2
)

// relevantRelations are the relation kinds worth walking for events.
var relevantRelations = map[string]bool{
	"Sequel":              true,
	"Prequel":             true,
	"Side Story":          true,
	"Alternative Version": true,
	"Summary":             true,
	"Other":               true,
	"Spin-off":            true,
}

// AnimeEntry is one catalogue record.
type AnimeEntry struct {
	ID        int
	Titles    []string
	Title     string
	Type      string // tv|movie|ova|ona|special|...
	Status    string // e.g. "Currently Airing", "Finished Airing"
	AiredFrom *time.Time
	URL       string
}

// RelationGroup is one related-works edge set of a catalogue entry.
type RelationGroup struct {
	Kind     string
	AnimeIDs []int
}

// CatalogAPI is the external anime-catalogue surface.
type CatalogAPI interface {
	SearchAnime(ctx context.Context, query string, limit int) ([]AnimeEntry, error)
	GetAnime(ctx context.Context, id int) (*AnimeEntry, error)
	GetRelations(ctx context.Context, id int) ([]RelationGroup, error)
}

// HealthRecorder mirrors the collector runner's health contract.
type HealthRecorder interface {
	RecordAttempt(ctx context.Context, ipID uuid.UUID, sourceKey string, success bool, updatedItems int, attemptErr error) error
}

// ConfidenceRecomputer refreshes the per-IP confidence row after a sync.
type ConfidenceRecomputer interface {
	Recompute(ctx context.Context, ipID uuid.UUID) (*models.IPConfidence, error)
}

// CatalogResult summarises one catalogue sync pass.
type CatalogResult struct {
	IPID          uuid.UUID `json:"ip_id"`
	IPName        string    `json:"ip_name"`
	CatalogID     *int      `json:"catalog_id,omitempty"`
	Matched       bool      `json:"matched"`
	EventsAdded   int       `json:"events_added"`
	EventsSkipped int       `json:"events_skipped"`
	Errors        []string  `json:"errors"`
}

// CatalogSyncer resolves IPs against the external catalogue and harvests
// upcoming events from their relation graphs.
type CatalogSyncer struct {
	store      *persistence.Store
	api        CatalogAPI
	health     HealthRecorder
	confidence ConfidenceRecomputer
	log        zerolog.Logger
	now        func() time.Time
}

// NewCatalogSyncer wires the catalogue syncer.
func NewCatalogSyncer(store *persistence.Store, api CatalogAPI, health HealthRecorder, confidence ConfidenceRecomputer, log zerolog.Logger) *CatalogSyncer {
	return &CatalogSyncer{
		store:      store,
		api:        api,
		health:     health,
		confidence: confidence,
		log:        log.With().Str("component", "catalog_sync").Logger(),
		now:        time.Now,
	}
}

// SyncIP syncs one IP: resolve the catalogue id, walk relations, extract and
// dedup events, then refresh health, the run log, and confidence. The run row
// is written on every exit path past IP load.
func (s *CatalogSyncer) SyncIP(ctx context.Context, ipID uuid.UUID) (*CatalogResult, error) {
	started := s.now().UTC()

	ip, err := s.store.IPs.Get(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ip: %w", err)
	}

	result := &CatalogResult{IPID: ipID, IPName: ip.Name, Errors: []string{}}

	catalogID, matchErr := s.resolveCatalogID(ctx, ip)
	if matchErr != nil {
		result.Errors = append(result.Errors, matchErr.Error())
	}
	if catalogID != 0 {
		id := catalogID
		result.CatalogID = &id
		result.Matched = true
	}

	var entries []AnimeEntry
	if result.Matched {
		walker := &relationWalker{api: s.api, errors: &result.Errors}
		entries = walker.collect(ctx, catalogID)
	}

	for _, entry := range entries {
		added, skipped, err := s.upsertEvent(ctx, ipID, entry)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.EventsAdded += added
		result.EventsSkipped += skipped
	}

	s.finishRun(ctx, ipID, started, result, len(entries))
	return result, nil
}

// SyncAll syncs every IP sequentially to stay inside the catalogue's rate
// budget.
func (s *CatalogSyncer) SyncAll(ctx context.Context) ([]CatalogResult, error) {
	ips, err := s.store.IPs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ips: %w", err)
	}
	results := make([]CatalogResult, 0, len(ips))
	for _, ip := range ips {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		r, err := s.SyncIP(ctx, ip.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("ip_id", ip.ID.String()).Msg("catalog sync failed for ip")
			continue
		}
		results = append(results, *r)
	}
	return results, nil
}

// resolveCatalogID returns the stored catalogue id or searches for one by the
// IP's surface forms. A fresh match is written back to the IP row.
func (s *CatalogSyncer) resolveCatalogID(ctx context.Context, ip *models.IP) (int, error) {
	if ip.CatalogID != nil {
		return *ip.CatalogID, nil
	}

	aliases, err := s.store.IPs.ListEnabledAliases(ctx, ip.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to list aliases: %w", err)
	}

	terms := SearchTerms(ip.Name, aliases, "en", "jp")
	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}

	for _, term := range terms {
		candidates, err := s.api.SearchAnime(ctx, term, 5)
		if err != nil {
			s.log.Warn().Err(err).Str("term", term).Msg("catalog search failed")
			continue
		}
		for _, c := range candidates {
			if MatchesAnyTitle(term, c.Titles) {
				if err := s.store.IPs.SetCatalogID(ctx, ip.ID, c.ID); err != nil {
					return 0, fmt.Errorf("failed to store catalog id: %w", err)
				}
				s.log.Info().Str("ip", ip.Name).Str("term", term).Int("catalog_id", c.ID).
					Str("title", c.Title).Msg("catalog entry matched")
				return c.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("no catalogue match for %q, searched %v; add romaji or Japanese aliases", ip.Name, terms)
}

// upsertEvent turns one catalogue entry into an event row. Finished works and
// unmapped types yield nothing.
func (s *CatalogSyncer) upsertEvent(ctx context.Context, ipID uuid.UUID, entry AnimeEntry) (added, skipped int, err error) {
	eventType, ok := mapEventType(entry.Type, entry.Status)
	if !ok || entry.AiredFrom == nil {
		return 0, 0, nil
	}

	title := entry.Title
	if title == "" {
		title = "Unknown"
	}

	exists, err := s.store.Events.Exists(ctx, ipID, title, *entry.AiredFrom, catalogSourceKey)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to check event: %w", err)
	}
	if exists {
		return 0, 1, nil
	}

	src := catalogSourceKey
	url := entry.URL
	event := &models.Event{
		IPID:      ipID,
		EventType: eventType,
		Title:     title,
		EventDate: *entry.AiredFrom,
		Source:    &src,
	}
	if url != "" {
		event.SourceURL = &url
	}
	if err := s.store.Events.Insert(ctx, event); err != nil {
		return 0, 0, fmt.Errorf("failed to insert event: %w", err)
	}
	return 1, 0, nil
}

func (s *CatalogSyncer) finishRun(ctx context.Context, ipID uuid.UUID, started time.Time, result *CatalogResult, processed int) {
	var attemptErr error
	if !result.Matched && len(result.Errors) > 0 {
		attemptErr = fmt.Errorf("%s", result.Errors[0])
	}
	if err := s.health.RecordAttempt(ctx, ipID, catalogSourceKey, result.Matched, result.EventsAdded, attemptErr); err != nil {
		s.log.Error().Err(err).Msg("failed to record catalog health")
	}

	finished := s.now().UTC()
	status := "ok"
	if !result.Matched {
		status = "warn"
	}
	run := &models.SourceRun{
		SourceKey:      catalogSourceKey,
		StartedAt:      started,
		FinishedAt:     &finished,
		Status:         status,
		ItemsProcessed: processed,
		ItemsSucceeded: result.EventsAdded,
		ItemsFailed:    len(result.Errors),
	}
	duration := int(finished.Sub(started).Milliseconds())
	run.DurationMS = &duration
	if len(result.Errors) > 0 {
		sample := result.Errors[0]
		run.ErrorSample = &sample
	}
	if err := s.store.Health.InsertSourceRun(ctx, run); err != nil {
		s.log.Error().Err(err).Msg("failed to log source run")
	}
	metrics.SyncRun(catalogSourceKey, status)

	if _, err := s.confidence.Recompute(ctx, ipID); err != nil {
		s.log.Warn().Err(err).Str("ip_id", ipID.String()).Msg("failed to recompute confidence")
	}
}

// mapEventType maps a catalogue (type, status) pair onto an event type.
// Finished works carry no future value and are dropped.
func mapEventType(entryType, status string) (models.EventType, bool) {
	if entryType == "" || status == "" || status == "Finished Airing" {
		return "", false
	}
	switch entryType {
	case "movie", "Movie":
		return models.EventMovie, true
	case "tv", "TV", "ova", "OVA", "special", "Special", "ona", "ONA":
		return models.EventAnimeAir, true
	}
	return "", false
}

// relationWalker follows the relation graph breadth-limited: sequel chains go
// deep, everything else stays flat, and the total fetch count is capped.
type relationWalker struct {
	api    CatalogAPI
	seen   map[int]bool
	errors *[]string
	out    []AnimeEntry
}

func (w *relationWalker) collect(ctx context.Context, rootID int) []AnimeEntry {
	w.seen = make(map[int]bool)
	w.visit(ctx, rootID, 0)
	return w.out
}

func (w *relationWalker) visit(ctx context.Context, id, depth int) {
	if w.seen[id] || depth > maxSequelDepth {
		return
	}
	w.seen[id] = true

	entry, err := w.api.GetAnime(ctx, id)
	if err != nil || entry == nil {
		*w.errors = append(*w.errors, fmt.Sprintf("failed to fetch catalogue entry %d", id))
		return
	}
	w.out = append(w.out, *entry)

	relations, err := w.api.GetRelations(ctx, id)
	if err != nil {
		*w.errors = append(*w.errors, fmt.Sprintf("failed to fetch relations for %d", id))
		return
	}
	for _, group := range relations {
		if !relevantRelations[group.Kind] {
			continue
		}
		for _, next := range group.AnimeIDs {
			if w.seen[next] {
				continue
			}
			if len(w.seen) >= maxCatalogFetches {
				return
			}
			nextDepth := maxSequelDepth
			if group.Kind == "Sequel" {
				nextDepth = depth + 1
			}
			w.visit(ctx, next, nextDepth)
		}
	}
}
