package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// TrendsCollector pulls daily search-interest values from the trends proxy.
// Values are normalised to [0,100] upstream; out-of-range readings are
// clamped on ingest.
type TrendsCollector struct {
	baseURL string
	client  *http.Client
}

// NewTrendsCollector creates the search-trends collector against baseURL.
func NewTrendsCollector(baseURL string, timeout time.Duration) *TrendsCollector {
	return &TrendsCollector{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Key returns the registry source key.
func (c *TrendsCollector) Key() string { return "google_trends" }

type trendsResponse struct {
	Timeline []struct {
		Date  string `json:"date"`
		Value int    `json:"value"`
	} `json:"timeline"`
}

// Fetch retrieves the interest timeline for one keyword.
func (c *TrendsCollector) Fetch(ctx context.Context, req FetchRequest) (*FetchResult, error) {
	q := url.Values{}
	q.Set("keyword", req.Keyword)
	q.Set("geo", req.Geo)
	q.Set("timeframe", req.Timeframe)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/interest?"+q.Encode(), nil)
	if err != nil {
		return nil, NewFetchError(KindUnknown, 0, fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if kind, ok := classifyStatus(resp.StatusCode); ok {
		return nil, NewFetchError(kind, resp.StatusCode,
			fmt.Errorf("trends proxy returned %d", resp.StatusCode))
	}

	var body trendsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, NewFetchError(KindUnknown, resp.StatusCode,
			fmt.Errorf("failed to decode trends response: %w", err))
	}

	points := make([]Point, 0, len(body.Timeline))
	for _, entry := range body.Timeline {
		date, err := time.Parse("2006-01-02", entry.Date)
		if err != nil {
			continue
		}
		points = append(points, Point{Date: date, Value: clampValue(entry.Value)})
	}
	return &FetchResult{Points: points, HTTPCode: resp.StatusCode}, nil
}

func clampValue(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// classifyStatus maps an HTTP status to an error kind; ok is false for
// successes.
func classifyStatus(code int) (ErrorKind, bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth, true
	case code == http.StatusTooManyRequests:
		return KindRateLimit, true
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout, true
	case code >= 500:
		return KindNetwork, true
	default:
		return KindUnknown, true
	}
}

// classifyTransport maps a transport error to a fetch error.
func classifyTransport(err error) *FetchError {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewFetchError(KindTimeout, 0, err)
	}
	return NewFetchError(KindNetwork, 0, err)
}
