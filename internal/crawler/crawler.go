// Package crawler drives the crawl, reconcile, score and persist
// pipeline. At most one cycle is in flight at a time; overlapping
// triggers are coalesced. The served snapshot is an immutable
// reference swapped atomically once per successful cycle.
package crawler

import (
	"context"
	"sync/atomic"
	"time"

	"PodAtlas/internal/credits"
	"PodAtlas/internal/geo"
	"PodAtlas/internal/gossip"
	"PodAtlas/internal/history"
	"PodAtlas/internal/logger"
	"PodAtlas/internal/reconcile"
	"PodAtlas/internal/score"
	"PodAtlas/internal/snapshot"
)

// Observer is notified after each successful cycle publishes a new
// snapshot.
type Observer interface {
	Observe(snap *snapshot.Snapshot)
}

// Options wire the crawler's collaborators. History, Archive, Geo and
// Observers are optional.
type Options struct {
	Fanout    *gossip.Fanout   // Fanout polls the seeds
	Credits   *credits.Client  // Credits fetches the reputation feed
	Params    score.Params     // Params configure the health scorer
	History   *history.Store   // History persists the trend series
	Archive   *history.Archive // Archive retains full snapshots
	Geo       *geo.Resolver    // Geo annotates snapshots with regions
	Observers []Observer       // Observers run after each publish
}

// Crawler runs crawl cycles and serves the latest snapshot.
type Crawler struct {
	fanout    *gossip.Fanout
	credits   *credits.Client
	params    score.Params
	history   *history.Store
	archive   *history.Archive
	geo       *geo.Resolver
	observers []Observer

	current  atomic.Pointer[snapshot.Snapshot] // current is the served snapshot
	inFlight atomic.Bool                       // inFlight guards against overlapping cycles
}

// New creates a crawler. No cycle runs until Run or RunCycle is called.
func New(opts Options) *Crawler {
	return &Crawler{
		fanout:    opts.Fanout,
		credits:   opts.Credits,
		params:    opts.Params,
		history:   opts.History,
		archive:   opts.Archive,
		geo:       opts.Geo,
		observers: opts.Observers,
	}
}

// Current returns the last fully assembled snapshot, or nil before the
// first successful cycle. The snapshot is immutable; callers never
// need a lock.
func (c *Crawler) Current() *snapshot.Snapshot {
	return c.current.Load()
}

// Trend returns the trailing persisted series, or an empty series when
// no history store is configured.
func (c *Crawler) Trend(limit int) history.TrendSeries {
	if c.history == nil {
		return history.TrendSeries{}
	}

	return c.history.Series(limit)
}

// Run triggers a cycle immediately and then on every interval tick
// until the context is cancelled.
func (c *Crawler) Run(ctx context.Context, interval time.Duration) {
	c.runCycleLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCycleLogged(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// runCycleLogged runs one cycle, reporting total failures to the
// operational log only; the previous snapshot stays served.
func (c *Crawler) runCycleLogged(ctx context.Context) {
	if err := c.RunCycle(ctx); err != nil {
		logger.Error("crawl cycle failed", "error", err)
	}
}

// RunCycle executes one full pipeline pass. If a cycle is already in
// flight the trigger is coalesced and RunCycle returns nil without
// doing work. Returns gossip.ErrAllSeedsFailed when no seed was
// reachable; the previously served snapshot is retained unchanged.
func (c *Crawler) RunCycle(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		logger.Debug("crawl trigger coalesced, cycle already in flight")
		return nil
	}
	defer c.inFlight.Store(false)

	start := time.Now()

	// The reputation feed is fetched in parallel with the seed fan-out
	// to bound total cycle latency.
	creditsCh := make(chan map[string]int64, 1)
	go func() {
		m, err := c.credits.Fetch(ctx)
		if err != nil {
			// Non-fatal: every pod reads zero credits this cycle
			logger.Warn("credits fetch failed", "error", err)
			m = map[string]int64{}
		}

		creditsCh <- m
	}()

	reports, err := c.fanout.Collect(ctx)
	if err != nil {
		<-creditsCh
		return err
	}

	records := reconcile.Merge(reports)
	podCredits := <-creditsCh

	snap := snapshot.Assemble(time.Now(), records, podCredits, c.params)

	if c.geo != nil {
		c.geo.Annotate(snap)
	}

	c.current.Store(snap)

	for _, obs := range c.observers {
		obs.Observe(snap)
	}

	c.persist(snap)

	logger.Info("crawl cycle complete",
		"seeds", len(reports),
		"pods", snap.Stats.TotalPods,
		logger.Timed(start),
	)

	return nil
}

// persist offers the snapshot to the history store and, when the trend
// entry was accepted, to the snapshot archive. Persistence failures
// are durability warnings, never surfaced to snapshot consumers.
func (c *Crawler) persist(snap *snapshot.Snapshot) {
	if c.history == nil {
		return
	}

	persisted, err := c.history.ConsiderAppend(snap)
	if err != nil || !persisted {
		return
	}

	if c.archive == nil {
		return
	}

	if err := c.archive.Put(snap); err != nil {
		logger.Warn("snapshot archive write failed", "error", err)
	}
}
