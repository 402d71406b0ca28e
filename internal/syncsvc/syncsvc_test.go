package syncsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

func TestTitleMatchRejectsShortOverlap(t *testing.T) {
	// 芙莉蓮 shares only the single character 蓮 with the Love Live title;
	// that must not count as a match.
	assert.False(t, TitleMatch("芙莉蓮", "Love Live! Hasunosora Jogakuin School Idol Club 蓮ノ空女学院スクールアイドルクラブ"))
	assert.False(t, TitleMatch("蓮", "蓮華"))
}

func TestTitleMatchBidirectional(t *testing.T) {
	assert.True(t, TitleMatch("chiikawa", "Chiikawa Season 2"))
	assert.True(t, TitleMatch("葬送のフリーレン 第2期", "葬送のフリーレン"))
	assert.True(t, TitleMatch("ちいかわ", "アニメ「ちいかわ」公式"))
	assert.False(t, TitleMatch("", "anything"))
	assert.False(t, TitleMatch("chiikawa", ""))
}

func TestContainsAliasOneDirectional(t *testing.T) {
	aliases := []string{"Chiikawa", "ちいかわ", "吉"}
	assert.True(t, ContainsAlias(aliases, "CHIIKAWA plush unboxing"))
	assert.True(t, ContainsAlias(aliases, "【ちいかわ】アニメまとめ"))
	// Single-rune alias never matches.
	assert.False(t, ContainsAlias(aliases, "吉伊卡哇 周邊開箱"))
	assert.False(t, ContainsAlias(aliases, "unrelated video"))
}

func TestSearchTermsTieredByLocale(t *testing.T) {
	aliases := []models.Alias{
		{Alias: "吉伊卡哇", Locale: "zh"},
		{Alias: "Chiikawa", Locale: "en"},
		{Alias: "ちいかわ", Locale: "jp"},
		{Alias: "Chiikawa", Locale: "en-US"},
	}
	terms := SearchTerms("Chiikawa Official", aliases, "zh", "en", "jp")
	assert.Equal(t, []string{"吉伊卡哇", "Chiikawa", "ちいかわ", "Chiikawa Official"}, terms)
}

type fakeIPRepo struct {
	persistence.IPRepo
	ip        *models.IP
	aliases   []models.Alias
	catalogID *int
}

func (f *fakeIPRepo) Get(_ context.Context, _ uuid.UUID) (*models.IP, error) {
	if f.ip == nil {
		return nil, persistence.ErrNotFound
	}
	return f.ip, nil
}

func (f *fakeIPRepo) ListEnabledAliases(_ context.Context, _ uuid.UUID) ([]models.Alias, error) {
	return f.aliases, nil
}

func (f *fakeIPRepo) SetCatalogID(_ context.Context, _ uuid.UUID, catalogID int) error {
	f.catalogID = &catalogID
	return nil
}

type fakeEventRepo struct {
	persistence.EventRepo
	existing map[string]bool
	inserted []models.Event
}

func (f *fakeEventRepo) Exists(_ context.Context, _ uuid.UUID, title string, _ time.Time, _ string) (bool, error) {
	return f.existing[title], nil
}

func (f *fakeEventRepo) Insert(_ context.Context, event *models.Event) error {
	f.inserted = append(f.inserted, *event)
	return nil
}

type fakeHealthRepo struct {
	persistence.HealthRepo
	runs []models.SourceRun
}

func (f *fakeHealthRepo) InsertSourceRun(_ context.Context, run *models.SourceRun) error {
	f.runs = append(f.runs, *run)
	return nil
}

type fakeScoreRepo struct {
	persistence.ScoreRepo
	videos []models.VideoMetric
	merch  []models.MerchCount
}

func (f *fakeScoreRepo) UpsertVideoMetric(_ context.Context, row *models.VideoMetric) error {
	f.videos = append(f.videos, *row)
	return nil
}

func (f *fakeScoreRepo) UpsertMerchCount(_ context.Context, row *models.MerchCount) error {
	f.merch = append(f.merch, *row)
	return nil
}

type recorderSpy struct {
	sourceKey string
	success   bool
	items     int
	err       error
	calls     int
}

func (r *recorderSpy) RecordAttempt(_ context.Context, _ uuid.UUID, sourceKey string, success bool, updatedItems int, attemptErr error) error {
	r.sourceKey = sourceKey
	r.success = success
	r.items = updatedItems
	r.err = attemptErr
	r.calls++
	return nil
}

type confidenceSpy struct{ calls int }

func (c *confidenceSpy) Recompute(_ context.Context, _ uuid.UUID) (*models.IPConfidence, error) {
	c.calls++
	return &models.IPConfidence{}, nil
}

type fakeCatalog struct {
	search    map[string][]AnimeEntry
	entries   map[int]AnimeEntry
	relations map[int][]RelationGroup
	fetches   int
}

func (f *fakeCatalog) SearchAnime(_ context.Context, query string, _ int) ([]AnimeEntry, error) {
	return f.search[query], nil
}

func (f *fakeCatalog) GetAnime(_ context.Context, id int) (*AnimeEntry, error) {
	f.fetches++
	e, ok := f.entries[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &e, nil
}

func (f *fakeCatalog) GetRelations(_ context.Context, id int) ([]RelationGroup, error) {
	return f.relations[id], nil
}

func datep(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func airing(id int, title, entryType string, aired *time.Time) AnimeEntry {
	return AnimeEntry{
		ID: id, Title: title, Titles: []string{title},
		Type: entryType, Status: "Currently Airing", AiredFrom: aired,
	}
}

func newCatalogSyncer(store *persistence.Store, api CatalogAPI, rec *recorderSpy, conf *confidenceSpy) *CatalogSyncer {
	return NewCatalogSyncer(store, api, rec, conf, zerolog.Nop())
}

func catalogStore(ips *fakeIPRepo, events *fakeEventRepo, healthRepo *fakeHealthRepo) *persistence.Store {
	if events == nil {
		events = &fakeEventRepo{}
	}
	if healthRepo == nil {
		healthRepo = &fakeHealthRepo{}
	}
	return &persistence.Store{IPs: ips, Events: events, Health: healthRepo, Scores: &fakeScoreRepo{}}
}

func TestCatalogSyncMatchesAndStoresID(t *testing.T) {
	ipID := uuid.New()
	ips := &fakeIPRepo{
		ip:      &models.IP{ID: ipID, Name: "Chiikawa"},
		aliases: []models.Alias{{Alias: "ちいかわ", Locale: "jp"}},
	}
	candidate := airing(100, "Chiikawa", "tv", datep(2026, 10, 5))
	candidate.Titles = append(candidate.Titles, "ちいかわ")
	api := &fakeCatalog{
		search:  map[string][]AnimeEntry{"ちいかわ": {candidate}},
		entries: map[int]AnimeEntry{100: candidate},
	}
	events := &fakeEventRepo{}
	rec, conf := &recorderSpy{}, &confidenceSpy{}

	result, err := newCatalogSyncer(catalogStore(ips, events, nil), api, rec, conf).SyncIP(context.Background(), ipID)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	require.NotNil(t, ips.catalogID)
	assert.Equal(t, 100, *ips.catalogID)
	require.Len(t, events.inserted, 1)
	assert.Equal(t, models.EventAnimeAir, events.inserted[0].EventType)
	assert.True(t, rec.success)
	assert.Equal(t, "wiki_mal", rec.sourceKey)
	assert.Equal(t, 1, conf.calls)
}

func TestCatalogSyncNoMatchRecordsWarn(t *testing.T) {
	ipID := uuid.New()
	ips := &fakeIPRepo{ip: &models.IP{ID: ipID, Name: "芙莉蓮"}}
	api := &fakeCatalog{
		search: map[string][]AnimeEntry{
			"芙莉蓮": {{ID: 7, Title: "Love Live! 蓮ノ空", Titles: []string{"Love Live! 蓮ノ空女学院スクールアイドルクラブ"}}},
		},
	}
	healthRepo := &fakeHealthRepo{}
	rec, conf := &recorderSpy{}, &confidenceSpy{}

	result, err := newCatalogSyncer(catalogStore(ips, nil, healthRepo), api, rec, conf).SyncIP(context.Background(), ipID)
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Nil(t, ips.catalogID)
	assert.NotEmpty(t, result.Errors)
	assert.False(t, rec.success)
	require.NotNil(t, rec.err)
	require.Len(t, healthRepo.runs, 1)
	assert.Equal(t, "warn", healthRepo.runs[0].Status)
	assert.Equal(t, 1, conf.calls)
}

func TestCatalogSyncSkipsFinishedAndDuplicates(t *testing.T) {
	ipID := uuid.New()
	stored := 100
	ips := &fakeIPRepo{ip: &models.IP{ID: ipID, Name: "Chiikawa", CatalogID: &stored}}

	finished := airing(100, "Chiikawa", "tv", datep(2022, 4, 1))
	finished.Status = "Finished Airing"
	api := &fakeCatalog{
		entries: map[int]AnimeEntry{
			100: finished,
			101: airing(101, "Chiikawa Movie", "movie", datep(2027, 1, 15)),
			102: airing(102, "Chiikawa Special", "special", datep(2026, 12, 1)),
		},
		relations: map[int][]RelationGroup{
			100: {{Kind: "Sequel", AnimeIDs: []int{101}}, {Kind: "Other", AnimeIDs: []int{102}}},
		},
	}
	events := &fakeEventRepo{existing: map[string]bool{"Chiikawa Special": true}}
	rec, conf := &recorderSpy{}, &confidenceSpy{}

	result, err := newCatalogSyncer(catalogStore(ips, events, nil), api, rec, conf).SyncIP(context.Background(), ipID)
	require.NoError(t, err)

	// Finished root yields nothing, the movie is added, the special dedups.
	assert.Equal(t, 1, result.EventsAdded)
	assert.Equal(t, 1, result.EventsSkipped)
	require.Len(t, events.inserted, 1)
	assert.Equal(t, models.EventMovie, events.inserted[0].EventType)
	assert.Equal(t, "Chiikawa Movie", events.inserted[0].Title)
}

func TestCatalogSyncSequelDepthCapped(t *testing.T) {
	ipID := uuid.New()
	stored := 1
	ips := &fakeIPRepo{ip: &models.IP{ID: ipID, Name: "Chiikawa", CatalogID: &stored}}

	// Sequel chain 1 → 2 → 3 → 4: depth cap 2 stops the walk at 3.
	api := &fakeCatalog{
		entries: map[int]AnimeEntry{
			1: airing(1, "S1", "tv", datep(2026, 10, 1)),
			2: airing(2, "S2", "tv", datep(2027, 4, 1)),
			3: airing(3, "S3", "tv", datep(2027, 10, 1)),
			4: airing(4, "S4", "tv", datep(2028, 4, 1)),
		},
		relations: map[int][]RelationGroup{
			1: {{Kind: "Sequel", AnimeIDs: []int{2}}},
			2: {{Kind: "Sequel", AnimeIDs: []int{3}}},
			3: {{Kind: "Sequel", AnimeIDs: []int{4}}},
		},
	}
	events := &fakeEventRepo{}
	result, err := newCatalogSyncer(catalogStore(ips, events, nil), api, &recorderSpy{}, &confidenceSpy{}).SyncIP(context.Background(), ipID)
	require.NoError(t, err)

	assert.Equal(t, 3, api.fetches)
	assert.Equal(t, 3, result.EventsAdded)
}

func TestCatalogSyncFlatRelationsNotWalked(t *testing.T) {
	ipID := uuid.New()
	stored := 1
	ips := &fakeIPRepo{ip: &models.IP{ID: ipID, Name: "Chiikawa", CatalogID: &stored}}

	// A spin-off's own relations are not followed: non-sequel edges enter at
	// terminal depth.
	api := &fakeCatalog{
		entries: map[int]AnimeEntry{
			1: airing(1, "Main", "tv", datep(2026, 10, 1)),
			2: airing(2, "Spin-off", "tv", datep(2027, 4, 1)),
			3: airing(3, "Spin-off Sequel", "tv", datep(2027, 10, 1)),
		},
		relations: map[int][]RelationGroup{
			1: {{Kind: "Spin-off", AnimeIDs: []int{2}}},
			2: {{Kind: "Sequel", AnimeIDs: []int{3}}},
		},
	}
	_, err := newCatalogSyncer(catalogStore(ips, &fakeEventRepo{}, nil), api, &recorderSpy{}, &confidenceSpy{}).SyncIP(context.Background(), ipID)
	require.NoError(t, err)
	assert.Equal(t, 2, api.fetches, "spin-off sequel sits past the depth cap")
}

type fakeVideoAPI struct {
	ids    map[string][]string
	videos []Video
	err    error
}

func (f *fakeVideoAPI) SearchVideoIDs(_ context.Context, query string, _ int, _ time.Time) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ids[query], nil
}

func (f *fakeVideoAPI) VideoStats(_ context.Context, _ []string) ([]Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.videos, nil
}

func videoSyncer(store *persistence.Store, api VideoAPI, rec *recorderSpy, conf *confidenceSpy, key string) *VideoSyncer {
	cfg := config.Default().Collector
	cfg.VideoAPIKey = key
	return NewVideoSyncer(store, api, rec, conf, cfg, zerolog.Nop())
}

func TestVideoSyncRequiresAPIKey(t *testing.T) {
	s := videoSyncer(catalogStore(&fakeIPRepo{}, nil, nil), &fakeVideoAPI{}, &recorderSpy{}, &confidenceSpy{}, "")
	_, err := s.SyncIP(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestVideoSyncFiltersUnrelatedTitles(t *testing.T) {
	ipID := uuid.New()
	ips := &fakeIPRepo{
		ip:      &models.IP{ID: ipID, Name: "Chiikawa"},
		aliases: []models.Alias{{Alias: "ちいかわ", Locale: "jp"}},
	}
	scores := &fakeScoreRepo{}
	store := &persistence.Store{IPs: ips, Events: &fakeEventRepo{}, Health: &fakeHealthRepo{}, Scores: scores}
	api := &fakeVideoAPI{
		ids: map[string][]string{"ちいかわ": {"v1", "v2"}},
		videos: []Video{
			{ID: "v1", Title: "ちいかわ 最新話", PublishedAt: time.Now(), ViewCount: 1000},
			{ID: "v2", Title: "completely unrelated", ViewCount: 99},
		},
	}
	rec, conf := &recorderSpy{}, &confidenceSpy{}

	result, err := videoSyncer(store, api, rec, conf, "key").SyncIP(context.Background(), ipID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.VideosAdded)
	require.Len(t, scores.videos, 1)
	assert.Equal(t, "v1", scores.videos[0].VideoID)
	assert.True(t, rec.success)
	assert.Equal(t, "youtube", rec.sourceKey)
	assert.Equal(t, 1, conf.calls)
}

func TestVideoSyncNoResultsRecordsWarn(t *testing.T) {
	ipID := uuid.New()
	ips := &fakeIPRepo{ip: &models.IP{ID: ipID, Name: "Chiikawa"}}
	healthRepo := &fakeHealthRepo{}
	store := &persistence.Store{IPs: ips, Events: &fakeEventRepo{}, Health: healthRepo, Scores: &fakeScoreRepo{}}
	rec := &recorderSpy{}

	result, err := videoSyncer(store, &fakeVideoAPI{}, rec, &confidenceSpy{}, "key").SyncIP(context.Background(), ipID)
	require.NoError(t, err)

	assert.Zero(t, result.VideosAdded)
	assert.NotEmpty(t, result.Errors)
	assert.False(t, rec.success)
	require.Len(t, healthRepo.runs, 1)
	assert.Equal(t, "warn", healthRepo.runs[0].Status)
}

type fakeMerchAPI struct {
	platform string
	counts   map[string]int
	fail     bool
}

func (f *fakeMerchAPI) Platform() string { return f.platform }

func (f *fakeMerchAPI) ProductCount(_ context.Context, query string) (int, error) {
	if f.fail {
		return 0, errors.New("blocked")
	}
	count, ok := f.counts[query]
	if !ok {
		return 0, errors.New("no result")
	}
	return count, nil
}

func TestMerchSyncKeepsBestCountPerPlatform(t *testing.T) {
	ipID := uuid.New()
	ips := &fakeIPRepo{
		ip: &models.IP{ID: ipID, Name: "Chiikawa"},
		aliases: []models.Alias{
			{Alias: "吉伊卡哇", Locale: "zh"},
			{Alias: "ちいかわ", Locale: "jp"},
		},
	}
	scores := &fakeScoreRepo{}
	healthRepo := &fakeHealthRepo{}
	store := &persistence.Store{IPs: ips, Events: &fakeEventRepo{}, Health: healthRepo, Scores: scores}

	shopee := &fakeMerchAPI{platform: "shopee", counts: map[string]int{"吉伊卡哇": 850, "Chiikawa": 1200}}
	ruten := &fakeMerchAPI{platform: "ruten", fail: true}
	rec, conf := &recorderSpy{}, &confidenceSpy{}

	syncer := NewMerchSyncer(store, []MerchAPI{shopee, ruten}, rec, conf, zerolog.Nop())
	result, err := syncer.SyncIP(context.Background(), ipID)
	require.NoError(t, err)

	require.Len(t, scores.merch, 1)
	assert.Equal(t, "shopee", scores.merch[0].Platform)
	assert.Equal(t, 1200, scores.merch[0].ProductCount)
	assert.Equal(t, "Chiikawa", scores.merch[0].QueryTerm)

	// One platform succeeded: health ok, errors mention the blocked one.
	assert.True(t, rec.success)
	assert.Equal(t, "shopee", rec.sourceKey)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "ruten")
	require.Len(t, healthRepo.runs, 1)
	assert.Equal(t, "ok", healthRepo.runs[0].Status)
	assert.Equal(t, 1, conf.calls)
}

func TestMerchSyncAllPlatformsBlockedRecordsDown(t *testing.T) {
	ipID := uuid.New()
	ips := &fakeIPRepo{ip: &models.IP{ID: ipID, Name: "Chiikawa"}}
	healthRepo := &fakeHealthRepo{}
	store := &persistence.Store{IPs: ips, Events: &fakeEventRepo{}, Health: healthRepo, Scores: &fakeScoreRepo{}}

	syncer := NewMerchSyncer(store,
		[]MerchAPI{&fakeMerchAPI{platform: "shopee", fail: true}, &fakeMerchAPI{platform: "ruten", fail: true}},
		&recorderSpy{}, &confidenceSpy{}, zerolog.Nop())
	result, err := syncer.SyncIP(context.Background(), ipID)
	require.NoError(t, err)

	assert.Len(t, result.Errors, 2)
	require.Len(t, healthRepo.runs, 1)
	assert.Equal(t, "down", healthRepo.runs[0].Status)
	assert.Equal(t, 2, healthRepo.runs[0].ItemsFailed)
}
