package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"PodAtlas/internal/snapshot"
	"PodAtlas/internal/storage"
)

const (
	// archiveVersion is the current archive record format version.
	archiveVersion = 1

	// archiveHeaderSize is version byte plus blake3 checksum.
	archiveHeaderSize = 1 + 32
)

// prefixArchive is the keyspace for archived full snapshots.
var prefixArchive = []byte("s:")

// Archive retains full snapshots, zstd-compressed and checksummed, in
// the Pebble store alongside the compact trend entries. It is bounded:
// storing past the cap evicts the oldest snapshot.
//
// Record layout: 1 version byte, 32-byte blake3 checksum of the raw
// JSON payload, zstd-compressed payload.
type Archive struct {
	db  *storage.Store
	max int // max archived snapshots kept
}

// NewArchive creates an archive over an open store keeping at most max
// snapshots.
func NewArchive(db *storage.Store, max int) *Archive {
	if max <= 0 {
		max = DefaultMaxEntries
	}

	return &Archive{db: db, max: max}
}

// Put archives one snapshot, evicting the oldest when over the cap.
// The write and the eviction land in one atomic batch.
func (a *Archive) Put(snap *snapshot.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot:\n%w", err)
	}

	compressed, err := compress(payload)
	if err != nil {
		return fmt.Errorf("compress snapshot:\n%w", err)
	}

	checksum := blake3.Sum256(payload)

	record := make([]byte, 0, archiveHeaderSize+len(compressed))
	record = append(record, archiveVersion)
	record = append(record, checksum[:]...)
	record = append(record, compressed...)

	ops := []storage.Op{{Key: archiveKey(snap.Timestamp.UnixNano()), Value: record}}

	// Evict oldest past the cap
	count, err := a.db.CountPrefix(prefixArchive)
	if err != nil {
		return fmt.Errorf("count archive:\n%w", err)
	}

	if evict := count + 1 - a.max; evict > 0 {
		keys, err := a.oldestKeys(evict)
		if err != nil {
			return fmt.Errorf("scan archive:\n%w", err)
		}

		for _, k := range keys {
			ops = append(ops, storage.Op{Key: k, Delete: true})
		}
	}

	return a.db.ApplyBatch(ops)
}

// oldestKeys returns up to n archive keys in chronological order.
func (a *Archive) oldestKeys(n int) ([][]byte, error) {
	var keys [][]byte

	err := a.db.IteratePrefix(prefixArchive, func(key, _ []byte) error {
		if len(keys) < n {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return keys, nil
}

// Get loads and verifies one archived snapshot by its capture instant
// (unix nanoseconds). Returns nil when absent.
func (a *Archive) Get(unixNano int64) (*snapshot.Snapshot, error) {
	record, err := a.db.Get(archiveKey(unixNano))
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	if len(record) < archiveHeaderSize {
		return nil, fmt.Errorf("archive record truncated: %d bytes", len(record))
	}

	if record[0] != archiveVersion {
		return nil, fmt.Errorf("unsupported archive version %d", record[0])
	}

	payload, err := decompress(record[archiveHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot:\n%w", err)
	}

	checksum := blake3.Sum256(payload)
	if string(checksum[:]) != string(record[1:archiveHeaderSize]) {
		return nil, fmt.Errorf("archive checksum mismatch")
	}

	var snap snapshot.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot:\n%w", err)
	}

	return &snap, nil
}

// Timestamps lists archived capture instants in chronological order.
func (a *Archive) Timestamps() ([]int64, error) {
	var out []int64

	err := a.db.IteratePrefix(prefixArchive, func(key, _ []byte) error {
		if len(key) == len(prefixArchive)+8 {
			out = append(out, int64(binary.BigEndian.Uint64(key[len(prefixArchive):])))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// compress compresses archive payloads with zstd.
func compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// decompress reverses compress.
func decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}

// archiveKey builds the ordered key for a capture instant.
func archiveKey(unixNano int64) []byte {
	key := make([]byte, len(prefixArchive)+8)
	copy(key, prefixArchive)
	binary.BigEndian.PutUint64(key[len(prefixArchive):], uint64(unixNano))

	return key
}
