package storage

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// newTestStore creates a temporary store for testing.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dir, err := os.MkdirTemp("", "storage-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	s, err := Open(filepath.Join(dir, "db"))
	if err != nil {
		os.RemoveAll(dir)
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
		os.RemoveAll(dir)
	})

	return s
}

func TestSetAndGet(t *testing.T) {
	s := newTestStore(t)

	key := []byte("h:0001")
	value := []byte(`{"avg_health":84}`)

	if err := s.Set(key, value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, value) {
		t.Errorf("Get returned %q, want %q", got, value)
	}
}

func TestGetNonExistent(t *testing.T) {
	s := newTestStore(t)

	got, err := s.Get([]byte("missing"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if got != nil {
		t.Errorf("Get returned %q, want nil", got)
	}
}

func TestApplyBatchMixedOps(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set([]byte("h:old"), []byte("evicted")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	ops := []Op{
		{Key: []byte("h:old"), Delete: true},
		{Key: []byte("h:new-1"), Value: []byte("one")},
		{Key: []byte("h:new-2"), Value: []byte("two")},
	}

	if err := s.ApplyBatch(ops); err != nil {
		t.Fatalf("ApplyBatch failed: %v", err)
	}

	if got, _ := s.Get([]byte("h:old")); got != nil {
		t.Errorf("deleted key still present: %q", got)
	}

	if got, _ := s.Get([]byte("h:new-2")); !bytes.Equal(got, []byte("two")) {
		t.Errorf("Get(h:new-2) = %q, want two", got)
	}
}

func TestIteratePrefixOrderAndIsolation(t *testing.T) {
	s := newTestStore(t)

	for i := 3; i >= 1; i-- {
		key := fmt.Sprintf("h:%04d", i)
		if err := s.Set([]byte(key), []byte{byte(i)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	// Keys outside the prefix must not be visited
	if err := s.Set([]byte("s:0001"), []byte("archive")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	var keys []string
	err := s.IteratePrefix([]byte("h:"), func(key, _ []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("IteratePrefix failed: %v", err)
	}

	want := []string{"h:0001", "h:0002", "h:0003"}
	if len(keys) != len(want) {
		t.Fatalf("visited %v, want %v", keys, want)
	}

	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestCountPrefix(t *testing.T) {
	s := newTestStore(t)

	for i := 1; i <= 5; i++ {
		key := fmt.Sprintf("h:%04d", i)
		if err := s.Set([]byte(key), []byte("x")); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	n, err := s.CountPrefix([]byte("h:"))
	if err != nil {
		t.Fatalf("CountPrefix failed: %v", err)
	}
	if n != 5 {
		t.Errorf("count = %d, want 5", n)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir, err := os.MkdirTemp("", "storage-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if err := s.Set([]byte("persist"), []byte("yes")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get([]byte("persist"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if !bytes.Equal(got, []byte("yes")) {
		t.Errorf("Get after reopen = %q, want yes", got)
	}
}
