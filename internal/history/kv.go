package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"PodAtlas/internal/storage"
)

// prefixEntry is the keyspace for history entries in the KV backend.
// Keys are the prefix plus a big-endian nanosecond timestamp, so
// lexicographic iteration is chronological.
var prefixEntry = []byte("h:")

// KVBackend persists the history sequence in the Pebble store, one
// entry per key. Save replaces the stored sequence in a single atomic
// batch.
type KVBackend struct {
	db *storage.Store
}

// NewKVBackend creates a KV backend over an open store.
func NewKVBackend(db *storage.Store) *KVBackend {
	return &KVBackend{db: db}
}

// Load reads the persisted sequence in chronological order.
func (b *KVBackend) Load() ([]Entry, error) {
	var entries []Entry

	err := b.db.IteratePrefix(prefixEntry, func(_, value []byte) error {
		var e Entry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("parse history entry:\n%w", err)
		}

		entries = append(entries, e)

		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// Save replaces the stored sequence: existing entry keys are deleted
// and the new sequence written in one atomic, synced batch.
func (b *KVBackend) Save(entries []Entry) error {
	var ops []storage.Op

	err := b.db.IteratePrefix(prefixEntry, func(key, _ []byte) error {
		k := make([]byte, len(key))
		copy(k, key)
		ops = append(ops, storage.Op{Key: k, Delete: true})

		return nil
	})
	if err != nil {
		return fmt.Errorf("scan history keys:\n%w", err)
	}

	for _, e := range entries {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode history entry:\n%w", err)
		}

		ops = append(ops, storage.Op{Key: entryKey(e.Timestamp), Value: value})
	}

	return b.db.ApplyBatch(ops)
}

// Close is a no-op; the underlying store is owned by the caller, which
// may share it with the snapshot archive.
func (b *KVBackend) Close() error {
	return nil
}

// entryKey builds the ordered key for an entry timestamp.
func entryKey(unixSeconds float64) []byte {
	key := make([]byte, len(prefixEntry)+8)
	copy(key, prefixEntry)
	binary.BigEndian.PutUint64(key[len(prefixEntry):], uint64(unixSeconds*float64(time.Second)))

	return key
}
