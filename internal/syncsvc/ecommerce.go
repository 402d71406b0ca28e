package syncsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/brewsignal/brewsignal/internal/net/ratelimit"
)

// ecommerceInterval is deliberately slow; both platforms run anti-bot
// filtering and aggressive pacing gets the address blocked.
const ecommerceInterval = 3 * time.Second

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ShopeeClient counts product listings on Shopee TW.
type ShopeeClient struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewShopeeClient creates the Shopee counter. An empty baseURL selects the
// public endpoint.
func NewShopeeClient(baseURL string, timeout time.Duration) *ShopeeClient {
	if baseURL == "" {
		baseURL = "https://shopee.tw"
	}
	return &ShopeeClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewLimiter(ecommerceInterval),
	}
}

// Platform returns the platform tag stored on merch rows.
func (c *ShopeeClient) Platform() string { return "shopee" }

// ProductCount returns the total listing count for a keyword.
func (c *ShopeeClient) ProductCount(ctx context.Context, query string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("keyword", query)
	q.Set("limit", "1")
	q.Set("page_type", "search")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v4/search/search_items?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en;q=0.8")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("shopee request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("shopee returned %d", resp.StatusCode)
	}

	var body struct {
		TotalCount *int `json:"total_count"`
		Items      []struct {
			ItemID int64 `json:"itemid"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode shopee response: %w", err)
	}
	if body.TotalCount != nil {
		return *body.TotalCount, nil
	}
	return len(body.Items), nil
}

// RutenClient counts product listings on Ruten.
type RutenClient struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Limiter
}

// NewRutenClient creates the Ruten counter. An empty baseURL selects the
// public endpoint.
func NewRutenClient(baseURL string, timeout time.Duration) *RutenClient {
	if baseURL == "" {
		baseURL = "https://rtapi.ruten.com.tw"
	}
	return &RutenClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewLimiter(ecommerceInterval),
	}
}

// Platform returns the platform tag stored on merch rows.
func (c *RutenClient) Platform() string { return "ruten" }

// ProductCount returns the total listing count for a keyword.
func (c *RutenClient) ProductCount(ctx context.Context, query string) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("type", "direct")
	q.Set("offset", "1")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/search/v3/index.php/core/prod?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ruten request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ruten returned %d", resp.StatusCode)
	}

	var body struct {
		TotalRows int `json:"TotalRows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode ruten response: %w", err)
	}
	return body.TotalRows, nil
}
