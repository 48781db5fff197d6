package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PodAtlas/internal/credits"
	"PodAtlas/internal/gossip"
	"PodAtlas/internal/history"
	"PodAtlas/internal/score"
	"PodAtlas/internal/snapshot"
)

// startSeed runs a gossip RPC endpoint serving the given pods with an
// optional artificial delay.
func startSeed(t *testing.T, pods []map[string]any, delay time.Duration) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			time.Sleep(delay)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result":  map[string]any{"pods": pods},
		})
	}))

	t.Cleanup(server.Close)

	return server
}

// seedAddr strips the scheme so the address can be used as a seed.
func seedAddr(server *httptest.Server) string {
	return strings.TrimPrefix(server.URL, "http://")
}

// startCreditsFeed serves a fixed credits feed.
func startCreditsFeed(t *testing.T, entries []map[string]any) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"pods_credits": entries,
			"status":       "ok",
		})
	}))

	t.Cleanup(server.Close)

	return server
}

func newFanout(seeds ...string) *gossip.Fanout {
	client := gossip.NewClient("6000", "/rpc", 2*time.Second)
	return gossip.NewFanout(client, seeds)
}

var testPods = []map[string]any{
	{
		"pubkey":            "alpha-pubkey",
		"address":           "10.0.0.1",
		"version":           "0.8.1",
		"uptime":            3600,
		"storage_committed": 100 << 20,
		"storage_used":      50 << 20,
		"paging_hit_rate":   0.9,
	},
	{
		"pubkey":            "beta-pubkey",
		"address":           "10.0.0.2",
		"version":           "0.7.0",
		"uptime":            1800,
		"storage_committed": 50 << 20,
		"storage_used":      10 << 20,
		"paging_hit_rate":   0.5,
	},
}

func TestCyclePublishesSnapshot(t *testing.T) {
	seed := startSeed(t, testPods, 0)
	feed := startCreditsFeed(t, []map[string]any{
		{"pod_id": "alpha-pubkey", "credits": 420},
	})

	c := New(Options{
		Fanout:  newFanout(seedAddr(seed)),
		Credits: credits.NewClient(feed.URL, time.Second),
		Params:  score.DefaultParams(),
	})

	if c.Current() != nil {
		t.Fatal("snapshot served before first cycle")
	}

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	snap := c.Current()
	if snap == nil {
		t.Fatal("no snapshot after successful cycle")
	}

	if snap.Stats.TotalPods != 2 {
		t.Fatalf("got %d pods, want 2", snap.Stats.TotalPods)
	}

	byPubkey := make(map[string]snapshot.Pod)
	for _, p := range snap.Pods {
		byPubkey[p.Pubkey] = p
	}

	if byPubkey["alpha-pubkey"].Credits != 420 {
		t.Errorf("credits not joined: %+v", byPubkey["alpha-pubkey"])
	}
	if byPubkey["beta-pubkey"].Credits != 0 {
		t.Errorf("absent feed key must read zero: %+v", byPubkey["beta-pubkey"])
	}

	if byPubkey["alpha-pubkey"].HealthScore <= byPubkey["beta-pubkey"].HealthScore {
		t.Errorf("scoring order wrong: alpha=%d beta=%d",
			byPubkey["alpha-pubkey"].HealthScore, byPubkey["beta-pubkey"].HealthScore)
	}
}

func TestTotalSeedFailureRetainsSnapshot(t *testing.T) {
	seed := startSeed(t, testPods, 0)

	c := New(Options{
		Fanout:  newFanout(seedAddr(seed)),
		Credits: credits.NewClient("", time.Second),
	})

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	previous := c.Current()
	if previous == nil {
		t.Fatal("no snapshot after first cycle")
	}

	seed.Close()

	err := c.RunCycle(context.Background())
	if err != gossip.ErrAllSeedsFailed {
		t.Fatalf("got %v, want ErrAllSeedsFailed", err)
	}

	if c.Current() != previous {
		t.Error("failed cycle replaced the served snapshot")
	}
}

// countingObserver records how many snapshots were published.
type countingObserver struct {
	n atomic.Int32
}

func (o *countingObserver) Observe(*snapshot.Snapshot) {
	o.n.Add(1)
}

func TestOverlappingTriggersCoalesce(t *testing.T) {
	seed := startSeed(t, testPods, 300*time.Millisecond)

	obs := &countingObserver{}

	c := New(Options{
		Fanout:    newFanout(seedAddr(seed)),
		Credits:   credits.NewClient("", time.Second),
		Observers: []Observer{obs},
	})

	done := make(chan error, 1)
	go func() { done <- c.RunCycle(context.Background()) }()

	// The second trigger arrives mid-cycle and must coalesce
	time.Sleep(50 * time.Millisecond)

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("coalesced trigger returned error: %v", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}

	if got := obs.n.Load(); got != 1 {
		t.Errorf("got %d published snapshots, want 1", got)
	}
}

func TestCreditsFailureTolerated(t *testing.T) {
	seed := startSeed(t, testPods, 0)

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(feed.Close)

	c := New(Options{
		Fanout:  newFanout(seedAddr(seed)),
		Credits: credits.NewClient(feed.URL, time.Second),
	})

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed despite advisory feed: %v", err)
	}

	for _, p := range c.Current().Pods {
		if p.Credits != 0 {
			t.Errorf("pod %s has credits %d after feed failure", p.Pubkey, p.Credits)
		}
	}
}

func TestCyclePersistsTrendEntry(t *testing.T) {
	seed := startSeed(t, testPods, 0)

	dir, err := os.MkdirTemp("", "crawler-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	backend, err := history.NewFileBackend(filepath.Join(dir, "history.json"))
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}

	store, err := history.NewStore(backend, history.Options{})
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	c := New(Options{
		Fanout:  newFanout(seedAddr(seed)),
		Credits: credits.NewClient("", time.Second),
		History: store,
	})

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	series := c.Trend(0)
	if len(series.Timestamps) != 1 {
		t.Fatalf("got %d persisted entries, want 1", len(series.Timestamps))
	}
	if series.PodCounts[0] != 2 {
		t.Errorf("persisted pod count %d, want 2", series.PodCounts[0])
	}
}

func TestTrendWithoutHistoryStore(t *testing.T) {
	c := New(Options{Credits: credits.NewClient("", time.Second)})

	series := c.Trend(10)
	if len(series.Timestamps) != 0 {
		t.Errorf("got %d entries without a store", len(series.Timestamps))
	}
}
