package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/metrics"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

const (
	videoSourceKey = "youtube"

	// maxVideoQueries bounds search calls per IP; each costs two orders of
	// magnitude more quota than a stats call.
	maxVideoQueries = 3
)

// ErrNoAPIKey is returned when the video sync runs without credentials.
var ErrNoAPIKey = errors.New("video api key not configured")

// Video is one fetched video with its engagement counters.
type Video struct {
	ID           string
	Title        string
	ChannelTitle string
	PublishedAt  time.Time
	ViewCount    int
	LikeCount    int
	CommentCount int
}

// VideoAPI is the external video-statistics surface.
type VideoAPI interface {
	SearchVideoIDs(ctx context.Context, query string, maxResults int, publishedAfter time.Time) ([]string, error)
	VideoStats(ctx context.Context, ids []string) ([]Video, error)
}

// VideoResult summarises one video sync pass.
type VideoResult struct {
	IPID        uuid.UUID `json:"ip_id"`
	IPName      string    `json:"ip_name"`
	VideosAdded int       `json:"videos_added"`
	Errors      []string  `json:"errors"`
}

// VideoSyncer records engagement metrics for videos that verifiably mention
// the IP.
type VideoSyncer struct {
	store      *persistence.Store
	api        VideoAPI
	health     HealthRecorder
	confidence ConfidenceRecomputer
	cfg        config.CollectorConfig
	log        zerolog.Logger
	now        func() time.Time
}

// NewVideoSyncer wires the video syncer.
func NewVideoSyncer(store *persistence.Store, api VideoAPI, health HealthRecorder, confidence ConfidenceRecomputer, cfg config.CollectorConfig, log zerolog.Logger) *VideoSyncer {
	return &VideoSyncer{
		store:      store,
		api:        api,
		health:     health,
		confidence: confidence,
		cfg:        cfg,
		log:        log.With().Str("component", "video_sync").Logger(),
		now:        time.Now,
	}
}

// SyncIP searches recent videos by the IP's aliases, keeps those whose titles
// mention an alias, and upserts one metric row per (ip, video).
func (s *VideoSyncer) SyncIP(ctx context.Context, ipID uuid.UUID) (*VideoResult, error) {
	if s.cfg.VideoAPIKey == "" {
		return nil, ErrNoAPIKey
	}
	started := s.now().UTC()

	ip, err := s.store.IPs.Get(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ip: %w", err)
	}
	aliases, err := s.store.IPs.ListEnabledAliases(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}

	result := &VideoResult{IPID: ipID, IPName: ip.Name, Errors: []string{}}

	surfaces := make([]string, 0, len(aliases)+1)
	surfaces = append(surfaces, ip.Name)
	for _, a := range aliases {
		surfaces = append(surfaces, a.Alias)
	}

	terms := SearchTerms(ip.Name, aliases, "en", "jp")
	if len(terms) > maxVideoQueries {
		terms = terms[:maxVideoQueries]
	}
	publishedAfter := started.AddDate(0, 0, -s.cfg.VideoRecencyDays)

	seen := map[string]bool{}
	var ids []string
	for _, term := range terms {
		found, err := s.api.SearchVideoIDs(ctx, term, s.cfg.VideoMaxResults, publishedAfter)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("search %q: %v", term, err))
			continue
		}
		for _, id := range found {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	if len(ids) == 0 {
		result.Errors = append(result.Errors, fmt.Sprintf("no videos found for %q (searched %v)", ip.Name, terms))
	} else {
		videos, err := s.api.VideoStats(ctx, ids)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("video stats: %v", err))
		}
		for _, v := range videos {
			if !ContainsAlias(surfaces, v.Title) {
				continue
			}
			if err := s.upsertMetric(ctx, ipID, v); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.VideosAdded++
		}
	}

	s.finishRun(ctx, ipID, started, result, len(ids))
	return result, nil
}

// SyncAll syncs every IP sequentially.
func (s *VideoSyncer) SyncAll(ctx context.Context) ([]VideoResult, error) {
	ips, err := s.store.IPs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list ips: %w", err)
	}
	results := make([]VideoResult, 0, len(ips))
	for _, ip := range ips {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		r, err := s.SyncIP(ctx, ip.ID)
		if err != nil {
			s.log.Warn().Err(err).Str("ip_id", ip.ID.String()).Msg("video sync failed for ip")
			continue
		}
		results = append(results, *r)
	}
	return results, nil
}

func (s *VideoSyncer) upsertMetric(ctx context.Context, ipID uuid.UUID, v Video) error {
	now := s.now().UTC()
	channel := v.ChannelTitle
	published := v.PublishedAt
	row := &models.VideoMetric{
		IPID:         ipID,
		VideoID:      v.ID,
		Title:        v.Title,
		ChannelTitle: &channel,
		PublishedAt:  &published,
		ViewCount:    v.ViewCount,
		LikeCount:    v.LikeCount,
		CommentCount: v.CommentCount,
		RecordedAt:   now,
	}
	if err := s.store.Scores.UpsertVideoMetric(ctx, row); err != nil {
		return fmt.Errorf("failed to upsert video metric: %w", err)
	}
	return nil
}

func (s *VideoSyncer) finishRun(ctx context.Context, ipID uuid.UUID, started time.Time, result *VideoResult, discovered int) {
	success := result.VideosAdded > 0
	var attemptErr error
	if !success && len(result.Errors) > 0 {
		attemptErr = fmt.Errorf("%s", result.Errors[0])
	}
	if err := s.health.RecordAttempt(ctx, ipID, videoSourceKey, success, result.VideosAdded, attemptErr); err != nil {
		s.log.Error().Err(err).Msg("failed to record video health")
	}

	finished := s.now().UTC()
	status := "ok"
	if !success {
		status = "warn"
	}
	run := &models.SourceRun{
		SourceKey:      videoSourceKey,
		StartedAt:      started,
		FinishedAt:     &finished,
		Status:         status,
		ItemsProcessed: discovered,
		ItemsSucceeded: result.VideosAdded,
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
	metrics.SyncRun(videoSourceKey, status)

	if _, err := s.confidence.Recompute(ctx, ipID); err != nil {
		s.log.Warn().Err(err).Str("ip_id", ipID.String()).Msg("failed to recompute confidence")
	}
}
