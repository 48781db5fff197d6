// Package history owns the persisted network trend: a bounded,
// rate-limited, append-only sequence of compact per-snapshot entries.
// It is the exclusive writer of the durable sequence.
package history

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"PodAtlas/internal/logger"
	"PodAtlas/internal/snapshot"
)

const (
	// DefaultMinInterval is the minimum time between persisted entries.
	DefaultMinInterval = 5 * time.Minute

	// DefaultMaxEntries caps the stored sequence length.
	DefaultMaxEntries = 1000
)

// ErrPersistInFlight is returned when a candidate arrives while a
// previous write has not settled yet.
var ErrPersistInFlight = errors.New("history write in flight")

// Entry is one compact, append-only history record. The schema is flat
// and versionless: fields absent on read default to their zero values.
type Entry struct {
	Timestamp           float64 `json:"timestamp"` // Timestamp is unix seconds
	TotalPods           int     `json:"total_pods"`
	AvgHealth           float64 `json:"avg_health"`
	AvgPagingEfficiency float64 `json:"avg_paging_efficiency"`
}

// TrendSeries is the trailing history as parallel arrays, the shape
// chart consumers want.
type TrendSeries struct {
	Timestamps       []float64 `json:"timestamps"`
	PodCounts        []int     `json:"pod_counts"`
	Health           []float64 `json:"health"`
	PagingEfficiency []float64 `json:"paging_efficiency"`
}

// Backend is one persistence target for the history sequence. Save
// replaces the durable sequence atomically: after a crash, readers see
// either the previous complete sequence or the new one, never a
// partial write. The backend is chosen once at startup.
type Backend interface {
	Load() ([]Entry, error)
	Save(entries []Entry) error
	Close() error
}

// Options tune the store.
type Options struct {
	MinInterval time.Duration // MinInterval between persisted entries; 0 means default
	MaxEntries  int           // MaxEntries caps the sequence; 0 means default
}

// Store decides whether a snapshot qualifies for persistence, appends
// accepted entries durably and serves the trailing series. It moves
// between two states: idle and persisting.
type Store struct {
	backend     Backend
	minInterval time.Duration
	maxEntries  int

	mu         sync.Mutex
	entries    []Entry
	persisting bool // persisting is true while a backend write is in flight
}

// NewStore opens the store over the given backend, loading any
// previously persisted sequence so the rate limit survives restarts.
func NewStore(backend Backend, opts Options) (*Store, error) {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}

	entries, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("load history:\n%w", err)
	}

	if len(entries) > opts.MaxEntries {
		entries = entries[len(entries)-opts.MaxEntries:]
	}

	return &Store{
		backend:     backend,
		minInterval: opts.MinInterval,
		maxEntries:  opts.MaxEntries,
		entries:     entries,
	}, nil
}

// ConsiderAppend persists a compact entry for the snapshot unless the
// minimum interval since the last persisted entry has not elapsed.
// Returns true when the entry was persisted. Rate-limited drops are
// not errors: the snapshot stays served live either way.
func (s *Store) ConsiderAppend(snap *snapshot.Snapshot) (bool, error) {
	entry := Entry{
		Timestamp:           float64(snap.Timestamp.UnixNano()) / float64(time.Second),
		TotalPods:           snap.Stats.TotalPods,
		AvgHealth:           snap.Stats.AvgHealth,
		AvgPagingEfficiency: snap.Stats.AvgPagingEfficiency,
	}

	s.mu.Lock()

	if s.persisting {
		s.mu.Unlock()
		return false, ErrPersistInFlight
	}

	if last, ok := s.last(); ok {
		elapsed := time.Duration((entry.Timestamp - last.Timestamp) * float64(time.Second))
		if elapsed < s.minInterval {
			s.mu.Unlock()
			return false, nil
		}
	}

	next := append(append([]Entry{}, s.entries...), entry)

	// FIFO eviction past the cap
	if len(next) > s.maxEntries {
		next = next[len(next)-s.maxEntries:]
	}

	s.persisting = true
	s.mu.Unlock()

	err := s.backend.Save(next)

	s.mu.Lock()
	s.persisting = false

	if err != nil {
		// The candidate entry is dropped for this cycle; the durable
		// sequence and the live snapshot are unaffected.
		s.mu.Unlock()
		logger.Warn("history write failed, entry dropped", "error", err)
		return false, fmt.Errorf("persist history:\n%w", err)
	}

	s.entries = next
	s.mu.Unlock()

	return true, nil
}

// Entries returns up to limit trailing entries, oldest first. A limit
// of 0 or less returns everything.
func (s *Store) Entries(limit int) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	out := make([]Entry, len(entries))
	copy(out, entries)

	return out
}

// Series returns the trailing history as parallel arrays.
func (s *Store) Series(limit int) TrendSeries {
	entries := s.Entries(limit)

	series := TrendSeries{
		Timestamps:       make([]float64, 0, len(entries)),
		PodCounts:        make([]int, 0, len(entries)),
		Health:           make([]float64, 0, len(entries)),
		PagingEfficiency: make([]float64, 0, len(entries)),
	}

	for _, e := range entries {
		series.Timestamps = append(series.Timestamps, e.Timestamp)
		series.PodCounts = append(series.PodCounts, e.TotalPods)
		series.Health = append(series.Health, e.AvgHealth)
		series.PagingEfficiency = append(series.PagingEfficiency, e.AvgPagingEfficiency)
	}

	return series
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// last returns the most recent entry. Callers must hold mu.
func (s *Store) last() (Entry, bool) {
	if len(s.entries) == 0 {
		return Entry{}, false
	}

	return s.entries[len(s.entries)-1], true
}
