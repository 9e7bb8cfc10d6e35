package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"ipward/internal/decision"
)

func runBackendContract(t *testing.T, b Backend) {
	t.Helper()
	key := Key{IP: "203.0.113.5", Kind: decision.KindBan, Origin: decision.OriginLAPI}

	seen, err := b.Seen(context.Background(), key)
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Fatal("expected unrecorded key to report unseen")
	}

	if err := b.Record(context.Background(), key, time.Time{}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	seen, err = b.Seen(context.Background(), key)
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if !seen {
		t.Fatal("expected recorded key to report seen")
	}

	if err := b.Forget(context.Background(), key); err != nil {
		t.Fatalf("Forget() error = %v", err)
	}
	seen, err = b.Seen(context.Background(), key)
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Fatal("expected forgotten key to report unseen")
	}
}

func TestMemoryBackend_Contract(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()
	runBackendContract(t, b)
}

func TestMemoryBackend_ExpiredEntryReportsUnseen(t *testing.T) {
	b := NewMemoryBackend()
	defer b.Close()
	key := Key{IP: "198.51.100.9", Kind: decision.KindBan, Origin: decision.OriginSIEM}

	if err := b.Record(context.Background(), key, time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	seen, err := b.Seen(context.Background(), key)
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Error("expected expired entry to report unseen")
	}
}

func TestSQLiteBackend_Contract(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	b, err := NewSQLiteBackend(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteBackend() error = %v", err)
	}
	defer b.Close()
	runBackendContract(t, b)
}

func TestSQLiteBackend_RejectsEmptyPath(t *testing.T) {
	if _, err := NewSQLiteBackend(""); err == nil {
		t.Fatal("expected error for empty db path")
	}
}

func TestNullBackend_NeverRecords(t *testing.T) {
	var b NullBackend
	key := Key{IP: "203.0.113.5", Kind: decision.KindBan, Origin: decision.OriginLAPI}

	if err := b.Record(context.Background(), key, time.Time{}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	seen, err := b.Seen(context.Background(), key)
	if err != nil {
		t.Fatalf("Seen() error = %v", err)
	}
	if seen {
		t.Error("NullBackend must never report a hit")
	}
}
