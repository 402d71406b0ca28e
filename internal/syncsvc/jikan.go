package syncsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brewsignal/brewsignal/internal/net/ratelimit"
)

// jikanBaseURL is the public Jikan v4 endpoint. No authentication; the
// documented budget is 3 req/s, paced here to 1 req/s.
const jikanBaseURL = "https://api.jikan.moe/v4"

const jikanInterval = time.Second

// JikanClient implements CatalogAPI against the Jikan (MyAnimeList) API.
type JikanClient struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewJikanClient creates the catalogue client. An empty baseURL selects the
// public endpoint.
func NewJikanClient(baseURL string, timeout time.Duration) *JikanClient {
	if baseURL == "" {
		baseURL = jikanBaseURL
	}
	return &JikanClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewLimiter(jikanInterval),
	}
}

type jikanAnime struct {
	MalID  int    `json:"mal_id"`
	Title  string `json:"title"`
	TitleE string `json:"title_english"`
	TitleJ string `json:"title_japanese"`
	Titles []struct {
		Title string `json:"title"`
	} `json:"titles"`
	Type   string `json:"type"`
	Status string `json:"status"`
	URL    string `json:"url"`
	Aired  struct {
		From string `json:"from"`
	} `json:"aired"`
}

func (a jikanAnime) toEntry() AnimeEntry {
	entry := AnimeEntry{
		ID:     a.MalID,
		Title:  a.Title,
		Type:   a.Type,
		Status: a.Status,
		URL:    a.URL,
	}
	for _, t := range []string{a.Title, a.TitleE, a.TitleJ} {
		if t != "" {
			entry.Titles = append(entry.Titles, t)
		}
	}
	for _, t := range a.Titles {
		if t.Title != "" {
			entry.Titles = append(entry.Titles, t.Title)
		}
	}
	if a.Aired.From != "" {
		if from, err := time.Parse(time.RFC3339, a.Aired.From); err == nil {
			d := from.UTC().Truncate(24 * time.Hour)
			entry.AiredFrom = &d
		}
	}
	return entry
}

// SearchAnime searches the catalogue by free-text query.
func (c *JikanClient) SearchAnime(ctx context.Context, query string, limit int) ([]AnimeEntry, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))

	var body struct {
		Data []jikanAnime `json:"data"`
	}
	if err := c.get(ctx, "/anime?"+q.Encode(), &body); err != nil {
		return nil, err
	}
	entries := make([]AnimeEntry, 0, len(body.Data))
	for _, a := range body.Data {
		entries = append(entries, a.toEntry())
	}
	return entries, nil
}

// GetAnime fetches full details for one entry.
func (c *JikanClient) GetAnime(ctx context.Context, id int) (*AnimeEntry, error) {
	var body struct {
		Data jikanAnime `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/anime/%d", id), &body); err != nil {
		return nil, err
	}
	entry := body.Data.toEntry()
	return &entry, nil
}

// GetRelations fetches the related-works graph for one entry. Only anime
// edges are kept.
func (c *JikanClient) GetRelations(ctx context.Context, id int) ([]RelationGroup, error) {
	var body struct {
		Data []struct {
			Relation string `json:"relation"`
			Entry    []struct {
				MalID int    `json:"mal_id"`
				Type  string `json:"type"`
			} `json:"entry"`
		} `json:"data"`
	}
	if err := c.get(ctx, fmt.Sprintf("/anime/%d/relations", id), &body); err != nil {
		return nil, err
	}

	groups := make([]RelationGroup, 0, len(body.Data))
	for _, g := range body.Data {
		group := RelationGroup{Kind: g.Relation}
		for _, e := range g.Entry {
			if e.Type == "anime" {
				group.AnimeIDs = append(group.AnimeIDs, e.MalID)
			}
		}
		groups = append(groups, group)
	}
	return groups, nil
}

func (c *JikanClient) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalogue request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalogue returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode catalogue response: %w", err)
	}
	return nil
}
