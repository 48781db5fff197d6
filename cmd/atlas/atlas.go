package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"PodAtlas/internal/api"
	"PodAtlas/internal/crawler"
	"PodAtlas/internal/credits"
	"PodAtlas/internal/geo"
	"PodAtlas/internal/gossip"
	"PodAtlas/internal/history"
	"PodAtlas/internal/logger"
	"PodAtlas/internal/score"
	"PodAtlas/internal/storage"
	"PodAtlas/internal/watch"
)

// App is a running crawler instance.
type App struct {
	cfg     *Config
	db      *storage.Store // db is nil with the file backend
	history *history.Store
	archive *history.Archive
	geo     *geo.Resolver
	crawler *crawler.Crawler
	api     *api.Server

	cancel context.CancelFunc
}

// NewApp creates and wires a crawler from the configuration.
func NewApp(cfg *Config) (*App, error) {
	a := &App{cfg: cfg}

	if err := a.initHistory(); err != nil {
		return nil, err
	}

	if err := a.initGeo(); err != nil {
		a.Close()
		return nil, err
	}

	a.initCrawler()

	return a, nil
}

// initHistory opens the configured persistence backend.
func (a *App) initHistory() error {
	if err := os.MkdirAll(a.cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	var backend history.Backend

	switch a.cfg.Backend {
	case "pebble":
		db, err := storage.Open(filepath.Join(a.cfg.DataDir, "db"))
		if err != nil {
			return fmt.Errorf("open pebble store:\n%w", err)
		}

		a.db = db
		a.archive = history.NewArchive(db, a.cfg.ArchiveCap)
		backend = history.NewKVBackend(db)

	default:
		fileBackend, err := history.NewFileBackend(filepath.Join(a.cfg.DataDir, "network_history.json"))
		if err != nil {
			return fmt.Errorf("open history file:\n%w", err)
		}

		backend = fileBackend
	}

	store, err := history.NewStore(backend, history.Options{
		MinInterval: a.cfg.PersistInterval,
		MaxEntries:  a.cfg.HistoryCap,
	})
	if err != nil {
		return fmt.Errorf("init history:\n%w", err)
	}

	a.history = store

	return nil
}

// initGeo opens the optional MMDB resolver.
func (a *App) initGeo() error {
	resolver, err := geo.Open(a.cfg.GeoDBPath)
	if err != nil {
		return fmt.Errorf("init geoip:\n%w", err)
	}

	a.geo = resolver

	return nil
}

// initCrawler wires the pipeline.
func (a *App) initCrawler() {
	client := gossip.NewClient(a.cfg.RPCPort, a.cfg.RPCPath, a.cfg.SeedTimeout)

	params := score.DefaultParams()
	if len(a.cfg.Markers) > 0 {
		params.Markers = a.cfg.Markers
	}
	if a.cfg.TargetBytes > 0 {
		params.TargetBytes = a.cfg.TargetBytes
	}

	var observers []crawler.Observer
	if len(a.cfg.Watchlist) > 0 && a.cfg.WebhookURL != "" {
		notifier := watch.NewWebhookNotifier(a.cfg.WebhookURL, 10*time.Second)
		observers = append(observers, watch.NewEngine(a.cfg.Watchlist, notifier, watch.Options{}))
	}

	a.crawler = crawler.New(crawler.Options{
		Fanout:    gossip.NewFanout(client, a.cfg.Seeds),
		Credits:   credits.NewClient(a.cfg.CreditsURL, a.cfg.SeedTimeout),
		Params:    params,
		History:   a.history,
		Archive:   a.archive,
		Geo:       a.geo,
		Observers: observers,
	})
}

// Run starts the crawl loop and the HTTP API, then blocks until a
// shutdown signal arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	go a.crawler.Run(ctx, a.cfg.CrawlInterval)

	a.api = api.New(a.cfg.HTTPAddress, a.crawler, a.crawler)
	if err := a.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	return a.waitForShutdown()
}

// waitForShutdown blocks until SIGINT or SIGTERM is received.
func (a *App) waitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())

	return a.Close()
}

// Close releases all resources in reverse start order.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}

	if a.api != nil {
		a.api.Stop()
	}

	if a.geo != nil {
		a.geo.Close()
	}

	if a.history != nil {
		a.history.Close()
	}

	// The store is shared by the KV backend and the archive, so it is
	// closed here rather than by either of them.
	if a.db != nil {
		a.db.Close()
	}

	return nil
}
