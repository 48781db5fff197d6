package gossip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// rpcMethod is the gossip RPC method that returns pods with stats.
	rpcMethod = "get-pods-with-stats"

	// maxResponseSize bounds how much of a seed response is read.
	maxResponseSize = 8 << 20 // 8 MB
)

// Client issues single bounded-timeout gossip RPC calls to seed endpoints.
type Client struct {
	port    string        // port is the seed RPC port
	path    string        // path is the seed RPC endpoint path
	timeout time.Duration // timeout bounds each call
	http    *http.Client  // http is the underlying transport
}

// NewClient creates a gossip RPC client. Each call is bounded by timeout.
func NewClient(port, path string, timeout time.Duration) *Client {
	return &Client{
		port:    port,
		path:    path,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch calls one seed and returns its raw pod list with the measured
// round-trip latency. A timeout, transport error or malformed payload
// yields an error; the caller decides how to tolerate it.
func (c *Client) Fetch(ctx context.Context, seed string) (*SeedReport, error) {
	url := fmt.Sprintf("http://%s%s", c.hostPort(seed), c.path)

	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: rpcMethod, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("marshal request:\n%w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request:\n%w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s:\n%w", url, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	latency := float64(time.Since(start)) / float64(time.Millisecond)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seed %s: status %d", seed, resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode seed %s response:\n%w", seed, err)
	}

	return &SeedReport{
		Seed:      seed,
		Pods:      decoded.Result.Pods,
		LatencyMs: latency,
	}, nil
}

// hostPort appends the configured RPC port unless the seed address
// already carries one.
func (c *Client) hostPort(seed string) string {
	if strings.Contains(seed, ":") {
		return seed
	}

	return seed + ":" + c.port
}
