// Package cache implements the optional known-decision cache (SPEC_FULL.md
// §15.1): a record of (ip, kind, origin) tuples already pushed to the
// cluster sink, consulted only during a startup replay to skip redundant
// cluster adds for decisions already known to be in effect.
package cache

import (
	"context"
	"time"

	"ipward/internal/decision"
)

// Key identifies one known-decision record.
type Key struct {
	IP     string
	Kind   decision.Kind
	Origin decision.Origin
}

// Backend is the storage contract a known-decision cache implements. Both
// backends are safe for concurrent use.
type Backend interface {
	// Seen reports whether key was recorded and not yet expired.
	Seen(ctx context.Context, key Key) (bool, error)

	// Record marks key as pushed, with an optional expiry. A zero
	// expiresAt means the record never expires on its own (the reconciler
	// still supersedes it on an explicit unban).
	Record(ctx context.Context, key Key, expiresAt time.Time) error

	// Forget removes key, used when a decision is reversed (e.g. a
	// "deleted" LAPI entry or a SIEM allow action).
	Forget(ctx context.Context, key Key) error

	// Close releases any resources the backend holds.
	Close() error
}

// NullBackend is a Backend that never records anything, matching the
// documented default: with the cache disabled, every replayed decision is
// re-sent and coalesced by the sinks' own idempotency handling.
type NullBackend struct{}

func (NullBackend) Seen(ctx context.Context, key Key) (bool, error)        { return false, nil }
func (NullBackend) Record(ctx context.Context, key Key, _ time.Time) error { return nil }
func (NullBackend) Forget(ctx context.Context, key Key) error              { return nil }
func (NullBackend) Close() error                                          { return nil }
