// Package credits fetches the external reputation feed and joins it
// onto reconciled pods by pubkey. The feed is strictly advisory: a
// fetch failure or an absent key yields zero credits for the cycle.
package credits

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// feedResponse is the reputation feed's wire shape.
type feedResponse struct {
	PodsCredits []feedEntry `json:"pods_credits"`
	Status      string      `json:"status"`
}

type feedEntry struct {
	PodID   string `json:"pod_id"`
	Credits int64  `json:"credits"`
}

// Client fetches pod reputation credits.
type Client struct {
	url     string       // url is the feed endpoint; empty disables the enricher
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a credits client. An empty URL disables fetching:
// Fetch then returns an empty mapping and no error.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url:     url,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch returns the per-pubkey credits mapping from the feed.
func (c *Client) Fetch(ctx context.Context) (map[string]int64, error) {
	if c.url == "" {
		return map[string]int64{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request:\n%w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s:\n%w", c.url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("credits feed: status %d", resp.StatusCode)
	}

	var decoded feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode credits feed:\n%w", err)
	}

	credits := make(map[string]int64, len(decoded.PodsCredits))
	for _, e := range decoded.PodsCredits {
		credits[e.PodID] = e.Credits
	}

	return credits, nil
}
