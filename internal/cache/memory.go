package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend is the in-process known-decision cache backend: fast, and
// lost on restart. That loss is harmless — the cache is strictly an
// optimization, never a source of truth (SPEC_FULL.md §15.1).
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[Key]time.Time
}

// NewMemoryBackend constructs an empty in-memory cache.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[Key]time.Time)}
}

func (m *MemoryBackend) Seen(ctx context.Context, key Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	expiresAt, ok := m.entries[key]
	if !ok {
		return false, nil
	}
	if !expiresAt.IsZero() && time.Now().After(expiresAt) {
		return false, nil
	}
	return true, nil
}

func (m *MemoryBackend) Record(ctx context.Context, key Key, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = expiresAt
	return nil
}

func (m *MemoryBackend) Forget(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// Prune deletes every entry whose expiry has passed and reports how many
// were removed, for the periodic cache scheduler.
func (m *MemoryBackend) Prune(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	n := 0
	for key, expiresAt := range m.entries {
		if !expiresAt.IsZero() && now.After(expiresAt) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

// Size returns the current number of stored entries, primarily for tests.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
