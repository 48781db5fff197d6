package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultSeeds are the public seed addresses published in the network
// documentation.
var defaultSeeds = []string{
	"173.212.203.145", "173.212.220.65", "161.97.97.41",
	"192.190.136.36", "192.190.136.37", "192.190.136.38",
	"192.190.136.28", "192.190.136.29", "207.244.255.1",
}

// Config holds the crawler configuration.
type Config struct {
	// DataDir is the directory for persistent storage.
	DataDir string `yaml:"data_dir"`

	// HTTPAddress is the HTTP API listen address.
	HTTPAddress string `yaml:"http_address"`

	// Seeds are the seed addresses polled each cycle.
	Seeds []string `yaml:"seeds"`

	// RPCPort is the seed RPC port appended to bare seed addresses.
	RPCPort string `yaml:"rpc_port"`

	// RPCPath is the seed RPC endpoint path.
	RPCPath string `yaml:"rpc_path"`

	// SeedTimeout bounds each per-seed RPC call.
	SeedTimeout time.Duration `yaml:"seed_timeout"`

	// CrawlInterval is the time between automatic crawl cycles.
	CrawlInterval time.Duration `yaml:"crawl_interval"`

	// PersistInterval is the minimum time between persisted history entries.
	PersistInterval time.Duration `yaml:"persist_interval"`

	// HistoryCap bounds the persisted history length.
	HistoryCap int `yaml:"history_cap"`

	// Backend selects the history persistence backend: file or pebble.
	Backend string `yaml:"backend"`

	// ArchiveCap bounds the snapshot archive; pebble backend only.
	ArchiveCap int `yaml:"archive_cap"`

	// CreditsURL is the reputation feed endpoint; empty disables it.
	CreditsURL string `yaml:"credits_url"`

	// GeoDBPath points at a local MMDB database; empty disables geo.
	GeoDBPath string `yaml:"geoip_db"`

	// Markers are the version substrings counted as compliant.
	Markers []string `yaml:"version_markers"`

	// TargetBytes is the committed-storage target for full score credit.
	TargetBytes uint64 `yaml:"storage_target_bytes"`

	// Watchlist are pod pubkeys monitored by the alert engine.
	Watchlist []string `yaml:"watchlist"`

	// WebhookURL receives watchlist alerts; empty disables alerting.
	WebhookURL string `yaml:"webhook_url"`

	// LogLevel is the minimum log level: debug, info, warn or error.
	LogLevel string `yaml:"log_level"`
}

// parseFlags parses command-line flags, applying an optional YAML
// config file underneath them. A flag set explicitly on the command
// line always wins over the file.
func parseFlags() (*Config, error) {
	cfg := &Config{}

	var (
		configPath string
		seeds      string
		markers    string
		watchlist  string
	)

	flag.StringVar(&configPath, "config", "", "YAML config file path")
	flag.StringVar(&cfg.DataDir, "data", "./data", "Data directory path")
	flag.StringVar(&cfg.HTTPAddress, "http", ":8080", "HTTP API address")
	flag.StringVar(&seeds, "seeds", "", "Comma-separated seed addresses")
	flag.StringVar(&cfg.RPCPort, "rpc-port", "6000", "Seed RPC port")
	flag.StringVar(&cfg.RPCPath, "rpc-path", "/rpc", "Seed RPC endpoint path")
	flag.DurationVar(&cfg.SeedTimeout, "seed-timeout", 2500*time.Millisecond, "Per-seed RPC timeout")
	flag.DurationVar(&cfg.CrawlInterval, "interval", 5*time.Minute, "Crawl cycle interval")
	flag.DurationVar(&cfg.PersistInterval, "persist-interval", 5*time.Minute, "Minimum time between history entries")
	flag.IntVar(&cfg.HistoryCap, "history-cap", 1000, "Maximum persisted history entries")
	flag.StringVar(&cfg.Backend, "backend", "file", "History backend: file or pebble")
	flag.IntVar(&cfg.ArchiveCap, "archive-cap", 100, "Maximum archived snapshots (pebble backend)")
	flag.StringVar(&cfg.CreditsURL, "credits-url", "", "Reputation credits feed URL")
	flag.StringVar(&cfg.GeoDBPath, "geoip-db", "", "MMDB database path for geo annotation")
	flag.StringVar(&markers, "markers", "", "Comma-separated compliant version markers")
	flag.Uint64Var(&cfg.TargetBytes, "storage-target", 100<<20, "Committed-storage target in bytes")
	flag.StringVar(&watchlist, "watch", "", "Comma-separated pod pubkeys to monitor")
	flag.StringVar(&cfg.WebhookURL, "webhook", "", "Alert webhook URL")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Minimum log level")
	flag.Parse()

	cfg.Seeds = splitList(seeds)
	cfg.Markers = splitList(markers)
	cfg.Watchlist = splitList(watchlist)

	if configPath != "" {
		if err := applyConfigFile(cfg, configPath); err != nil {
			return nil, err
		}
	}

	if len(cfg.Seeds) == 0 {
		cfg.Seeds = defaultSeeds
	}

	if cfg.Backend != "file" && cfg.Backend != "pebble" {
		return nil, fmt.Errorf("unknown backend %q (want file or pebble)", cfg.Backend)
	}

	return cfg, nil
}

// applyConfigFile fills in cfg fields from a YAML file without
// overriding flags that were passed explicitly.
func applyConfigFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file:\n%w", err)
	}

	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return fmt.Errorf("parse config file %s:\n%w", path, err)
	}

	explicit := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	if !explicit["data"] && fromFile.DataDir != "" {
		cfg.DataDir = fromFile.DataDir
	}
	if !explicit["http"] && fromFile.HTTPAddress != "" {
		cfg.HTTPAddress = fromFile.HTTPAddress
	}
	if !explicit["seeds"] && len(fromFile.Seeds) > 0 {
		cfg.Seeds = fromFile.Seeds
	}
	if !explicit["rpc-port"] && fromFile.RPCPort != "" {
		cfg.RPCPort = fromFile.RPCPort
	}
	if !explicit["rpc-path"] && fromFile.RPCPath != "" {
		cfg.RPCPath = fromFile.RPCPath
	}
	if !explicit["seed-timeout"] && fromFile.SeedTimeout > 0 {
		cfg.SeedTimeout = fromFile.SeedTimeout
	}
	if !explicit["interval"] && fromFile.CrawlInterval > 0 {
		cfg.CrawlInterval = fromFile.CrawlInterval
	}
	if !explicit["persist-interval"] && fromFile.PersistInterval > 0 {
		cfg.PersistInterval = fromFile.PersistInterval
	}
	if !explicit["history-cap"] && fromFile.HistoryCap > 0 {
		cfg.HistoryCap = fromFile.HistoryCap
	}
	if !explicit["backend"] && fromFile.Backend != "" {
		cfg.Backend = fromFile.Backend
	}
	if !explicit["archive-cap"] && fromFile.ArchiveCap > 0 {
		cfg.ArchiveCap = fromFile.ArchiveCap
	}
	if !explicit["credits-url"] && fromFile.CreditsURL != "" {
		cfg.CreditsURL = fromFile.CreditsURL
	}
	if !explicit["geoip-db"] && fromFile.GeoDBPath != "" {
		cfg.GeoDBPath = fromFile.GeoDBPath
	}
	if !explicit["markers"] && len(fromFile.Markers) > 0 {
		cfg.Markers = fromFile.Markers
	}
	if !explicit["storage-target"] && fromFile.TargetBytes > 0 {
		cfg.TargetBytes = fromFile.TargetBytes
	}
	if !explicit["watch"] && len(fromFile.Watchlist) > 0 {
		cfg.Watchlist = fromFile.Watchlist
	}
	if !explicit["webhook"] && fromFile.WebhookURL != "" {
		cfg.WebhookURL = fromFile.WebhookURL
	}
	if !explicit["log-level"] && fromFile.LogLevel != "" {
		cfg.LogLevel = fromFile.LogLevel
	}

	return nil
}

// splitList parses a comma-separated flag value.
func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}
