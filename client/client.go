// Package client is a small HTTP client for the crawler API, used by
// dashboards and integration tests.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"PodAtlas/internal/history"
	"PodAtlas/internal/snapshot"
)

// Client connects to a crawler instance via HTTP.
type Client struct {
	addr string // addr is the HTTP address (e.g. "127.0.0.1:8080")
}

// New creates a client for the given crawler address.
func New(addr string) *Client {
	return &Client{addr: addr}
}

// Telemetry fetches the latest network snapshot.
func (c *Client) Telemetry() (*snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	if err := httpGet("http://"+c.addr+"/api/telemetry", &snap); err != nil {
		return nil, fmt.Errorf("get telemetry:\n%w", err)
	}

	return &snap, nil
}

// Trend fetches the trailing history series. A limit of 0 or less
// requests the full stored window.
func (c *Client) Trend(limit int) (history.TrendSeries, error) {
	url := "http://" + c.addr + "/api/history/trend"
	if limit > 0 {
		url += "?limit=" + strconv.Itoa(limit)
	}

	var series history.TrendSeries
	if err := httpGet(url, &series); err != nil {
		return history.TrendSeries{}, fmt.Errorf("get trend:\n%w", err)
	}

	return series, nil
}

// Health checks that the crawler is up.
func (c *Client) Health() error {
	var status struct {
		Status string `json:"status"`
	}

	if err := httpGet("http://"+c.addr+"/health", &status); err != nil {
		return fmt.Errorf("health check:\n%w", err)
	}

	if status.Status != "ok" {
		return fmt.Errorf("unexpected health status: %q", status.Status)
	}

	return nil
}

// httpGet performs a GET request and decodes the JSON response.
func httpGet(url string, result any) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}
