package gossip

import (
	"context"
	"errors"
	"sync"
	"time"

	"PodAtlas/internal/logger"
)

// ErrAllSeedsFailed is returned when no seed produced a usable report.
// The cycle must abort and the previously served snapshot stays current.
var ErrAllSeedsFailed = errors.New("all seeds failed")

// Fanout polls every configured seed concurrently and collects the
// successful reports. Individual seed failures are tolerated.
type Fanout struct {
	client *Client  // client issues the per-seed RPC calls
	seeds  []string // seeds are the configured seed addresses
}

// NewFanout creates a fan-out over the given seeds.
func NewFanout(client *Client, seeds []string) *Fanout {
	return &Fanout{client: client, seeds: seeds}
}

// Collect issues one RPC per seed concurrently, waits for all calls to
// settle, and returns the successful reports. Each goroutine writes only
// into its own result slot. Returns ErrAllSeedsFailed if every seed
// failed or timed out.
func (f *Fanout) Collect(ctx context.Context) ([]SeedReport, error) {
	start := time.Now()

	slots := make([]*SeedReport, len(f.seeds))

	var wg sync.WaitGroup

	for i, seed := range f.seeds {
		wg.Add(1)

		go func(idx int, addr string) {
			defer wg.Done()

			report, err := f.client.Fetch(ctx, addr)
			if err != nil {
				// Unreachable seeds are expected in a gossip network
				logger.Debug("seed unavailable", "seed", addr, "error", err)
				return
			}

			slots[idx] = report
		}(i, seed)
	}

	wg.Wait()

	var reports []SeedReport
	for _, r := range slots {
		if r != nil {
			reports = append(reports, *r)
		}
	}

	if len(reports) == 0 {
		return nil, ErrAllSeedsFailed
	}

	if len(reports) < len(f.seeds) {
		logger.Warn("partial seed failure",
			"reachable", len(reports),
			"configured", len(f.seeds),
		)
	}

	logger.Debug("fan-out complete", "seeds", len(reports), logger.Timed(start))

	return reports, nil
}
