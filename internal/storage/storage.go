// Package storage is a thin key-value layer over Pebble used by the
// durable history backend and the snapshot archive. Writes are
// buffered (NoSync) and a background goroutine syncs the WAL
// periodically.
package storage

import (
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

const (
	// syncInterval is the interval between WAL syncs.
	syncInterval = 250 * time.Millisecond
)

// Op is one mutation in an atomic batch: a set when Value is non-nil,
// a delete otherwise.
type Op struct {
	Key    []byte // Key is the key to mutate
	Value  []byte // Value is the value to set; nil means delete
	Delete bool   // Delete marks an explicit delete
}

// Store is a Pebble-backed key-value store.
type Store struct {
	db       *pebble.DB    // db is the underlying Pebble database
	stopSync chan struct{} // stopSync signals the sync goroutine to stop
	wg       sync.WaitGroup
}

// Open opens (or creates) a store at the given path and starts the
// periodic WAL sync goroutine.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:        pebble.NewCache(8 << 20), // 8 MB; history workloads are tiny
		MemTableSize: 4 << 20,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:       db,
		stopSync: make(chan struct{}),
	}

	s.startSyncLoop()

	return s, nil
}

// Get retrieves the value for the given key. Returns nil if the key
// does not exist.
func (s *Store) Get(key []byte) ([]byte, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	// Copy the value since it's invalid after closer.Close()
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Set stores a key-value pair. The write is buffered and synced by the
// background goroutine.
func (s *Store) Set(key, value []byte) error {
	return s.db.Set(key, value, pebble.NoSync)
}

// Delete removes a key from the store.
func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, pebble.NoSync)
}

// ApplyBatch applies all ops atomically: either every mutation lands
// or none does. The batch is committed with a durable sync so callers
// can rely on it for crash safety.
func (s *Store) ApplyBatch(ops []Op) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, op := range ops {
		if op.Delete {
			if err := batch.Delete(op.Key, nil); err != nil {
				return err
			}
			continue
		}

		if err := batch.Set(op.Key, op.Value, nil); err != nil {
			return err
		}
	}

	return batch.Commit(pebble.Sync)
}

// IteratePrefix calls fn for each key-value pair with the given prefix,
// in lexicographic key order.
func (s *Store) IteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}

		if err := fn(key, value); err != nil {
			return err
		}
	}

	return iter.Error()
}

// CountPrefix returns the number of keys with the given prefix.
func (s *Store) CountPrefix(prefix []byte) (int, error) {
	n := 0
	err := s.IteratePrefix(prefix, func(_, _ []byte) error {
		n++
		return nil
	})

	return n, err
}

// Close stops the sync goroutine, syncs outstanding writes and closes
// the database.
func (s *Store) Close() error {
	close(s.stopSync)
	s.wg.Wait()

	if err := s.sync(); err != nil {
		s.db.Close()
		return err
	}

	return s.db.Close()
}

// startSyncLoop starts the periodic WAL sync goroutine.
func (s *Store) startSyncLoop() {
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = s.sync()
			case <-s.stopSync:
				return
			}
		}
	}()
}

// sync forces a WAL sync to disk.
func (s *Store) sync() error {
	return s.db.LogData(nil, pebble.Sync)
}

// prefixUpperBound returns the smallest key greater than every key with
// the given prefix.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}

	return nil // Prefix is all 0xff; no upper bound
}
