package syncsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brewsignal/brewsignal/internal/net/budget"
	"github.com/brewsignal/brewsignal/internal/net/ratelimit"
)

const youtubeBaseURL = "https://www.googleapis.com/youtube/v3"

const youtubeInterval = time.Second

// statsBatchSize is the videos.list id cap per call.
const statsBatchSize = 50

// YouTube Data API unit costs: search.list charges 100 units, videos.list 1.
const (
	searchQuotaCost = 100
	listQuotaCost   = 1
)

// YouTubeClient implements VideoAPI against the YouTube Data API v3.
type YouTubeClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *ratelimit.Limiter
	quota   *budget.Tracker
}

// NewYouTubeClient creates the video client. An empty baseURL selects the
// public endpoint; dailyQuota <= 0 disables quota metering. The API resets
// quotas at midnight Pacific, tracked here as 08:00 UTC.
func NewYouTubeClient(baseURL, apiKey string, dailyQuota int64, timeout time.Duration) *YouTubeClient {
	if baseURL == "" {
		baseURL = youtubeBaseURL
	}
	return &YouTubeClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewLimiter(youtubeInterval),
		quota:   budget.NewTracker("youtube", dailyQuota, 8),
	}
}

// SearchVideoIDs returns video ids matching the query, newest window first.
func (c *YouTubeClient) SearchVideoIDs(ctx context.Context, query string, maxResults int, publishedAfter time.Time) ([]string, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("q", query)
	q.Set("type", "video")
	q.Set("order", "relevance")
	q.Set("maxResults", strconv.Itoa(maxResults))
	q.Set("publishedAfter", publishedAfter.UTC().Format(time.RFC3339))

	var body struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
		} `json:"items"`
	}
	if err := c.get(ctx, "/search", searchQuotaCost, q, &body); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(body.Items))
	for _, item := range body.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	return ids, nil
}

type youtubeVideo struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		ChannelTitle string `json:"channelTitle"`
		PublishedAt  string `json:"publishedAt"`
	} `json:"snippet"`
	Statistics struct {
		ViewCount    string `json:"viewCount"`
		LikeCount    string `json:"likeCount"`
		CommentCount string `json:"commentCount"`
	} `json:"statistics"`
}

// VideoStats fetches engagement counters for the given ids in batches.
func (c *YouTubeClient) VideoStats(ctx context.Context, ids []string) ([]Video, error) {
	var out []Video
	for start := 0; start < len(ids); start += statsBatchSize {
		end := start + statsBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := c.statsBatch(ctx, ids[start:end])
		if err != nil {
			return out, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *YouTubeClient) statsBatch(ctx context.Context, ids []string) ([]Video, error) {
	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("id", strings.Join(ids, ","))

	var body struct {
		Items []youtubeVideo `json:"items"`
	}
	if err := c.get(ctx, "/videos", listQuotaCost, q, &body); err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(body.Items))
	for _, item := range body.Items {
		v := Video{
			ID:           item.ID,
			Title:        item.Snippet.Title,
			ChannelTitle: item.Snippet.ChannelTitle,
			ViewCount:    atoiOrZero(item.Statistics.ViewCount),
			LikeCount:    atoiOrZero(item.Statistics.LikeCount),
			CommentCount: atoiOrZero(item.Statistics.CommentCount),
		}
		if published, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			v.PublishedAt = published
		}
		videos = append(videos, v)
	}
	return videos, nil
}

func (c *YouTubeClient) get(ctx context.Context, path string, cost int64, q url.Values, out any) error {
	if err := c.quota.Spend(cost); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("video api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("video api forbidden, likely quota exhausted")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("video api returned %d for %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode video api response: %w", err)
	}
	return nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
