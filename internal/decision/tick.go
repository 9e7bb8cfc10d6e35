package decision

import "time"

// AdapterError records that a source adapter failed during a tick. Its
// presence short-circuits that adapter for the tick but never the tick
// itself (spec §3, §7).
type AdapterError struct {
	Component string
	Err       error
}

// SyncTick is the transient per-iteration state produced by one reconciler
// loop pass. It is created at the start of each iteration, consumed by the
// sinks, and discarded — it is never persisted (spec §3).
type SyncTick struct {
	StartedAt  time.Time
	FinishedAt time.Time

	// ToBan and ToUnban are deduplicated, whitelist-filtered IPs destined
	// for the sinks. Order within each slice is preserve-as-produced; the
	// reconciler does not sort them (spec §4.6 tie-breaking note).
	ToBan   []string
	ToUnban []string

	AdapterErrors []AdapterError

	// clusterSkip marks IPs that a known-decision cache hit already
	// cleared for the cluster plane on a startup replay (SPEC_FULL.md
	// §15.1). They still appear in ToBan for the local plane's idempotent
	// add.
	clusterSkip map[string]struct{}
}

// NewSyncTick starts a new tick at the given time.
func NewSyncTick(startedAt time.Time) *SyncTick {
	return &SyncTick{StartedAt: startedAt}
}

// AddBan appends ip to ToBan if it is not already present.
func (t *SyncTick) AddBan(ip string) {
	if !contains(t.ToBan, ip) {
		t.ToBan = append(t.ToBan, ip)
	}
}

// AddUnban appends ip to ToUnban if it is not already present.
func (t *SyncTick) AddUnban(ip string) {
	if !contains(t.ToUnban, ip) {
		t.ToUnban = append(t.ToUnban, ip)
	}
}

// RecordError appends an adapter error for this tick.
func (t *SyncTick) RecordError(component string, err error) {
	t.AdapterErrors = append(t.AdapterErrors, AdapterError{Component: component, Err: err})
}

// Duration returns the tick's wall-clock duration. Finish must have been
// called first; otherwise it returns the elapsed time since StartedAt.
func (t *SyncTick) Duration() time.Duration {
	if t.FinishedAt.IsZero() {
		return time.Since(t.StartedAt)
	}
	return t.FinishedAt.Sub(t.StartedAt)
}

// Finish marks the tick complete at the given time.
func (t *SyncTick) Finish(finishedAt time.Time) {
	t.FinishedAt = finishedAt
}

// SkipCluster marks ip so ClusterBans excludes it.
func (t *SyncTick) SkipCluster(ip string) {
	if t.clusterSkip == nil {
		t.clusterSkip = make(map[string]struct{})
	}
	t.clusterSkip[ip] = struct{}{}
}

// ClusterBans returns ToBan minus any IPs marked via SkipCluster.
func (t *SyncTick) ClusterBans() []string {
	if len(t.clusterSkip) == 0 {
		return t.ToBan
	}
	out := make([]string, 0, len(t.ToBan))
	for _, ip := range t.ToBan {
		if _, skip := t.clusterSkip[ip]; !skip {
			out = append(out, ip)
		}
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
