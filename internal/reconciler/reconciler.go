// Package reconciler drives the single cooperative tick loop that
// reconciles LAPI and SIEM source state onto the cluster and local
// enforcement sinks.
package reconciler

import (
	"context"
	"sync"
	"time"

	"ipward/internal/cache"
	"ipward/internal/decision"
	"ipward/internal/telemetry/logging"
	"ipward/internal/telemetry/metrics"
)

// quantum is the wall-clock granularity at which the loop checks whether a
// sync interval has elapsed.
const quantum = 1 * time.Second

// Config controls the reconciler's behavior. LAPI and SIEM are each
// optional; with both nil a tick polls no source. Cluster and Local sinks
// are each independently optional.
type Config struct {
	SyncInterval time.Duration
	ClusterSet   string

	LAPI    LAPISource
	SIEM    SIEMSource
	Cluster ClusterSink
	Local   LocalSink

	Whitelist *decision.Whitelist
	Recorder  *metrics.Recorder
	Logger    *logging.Logger

	// Cache is the optional known-decision cache (SPEC_FULL.md §15.1). A
	// nil Cache or cache.NullBackend both disable the optimization; every
	// replayed decision is re-sent and coalesced by the sinks.
	Cache cache.Backend
}

// Reconciler owns the tick loop's lifecycle. Its only mutable fields that
// cross goroutine boundaries are running, lastSync and cfg.Whitelist
// (replaced by SetWhitelist), guarded by mu; everything else is set once
// at construction and never mutated concurrently (spec §5).
type Reconciler struct {
	cfg Config

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	lastSync time.Time

	// startupReplayDone is touched only from the reconciler's own
	// goroutine inside runTick, never concurrently (spec §5).
	startupReplayDone bool
}

// New constructs a Reconciler. It does not start the loop.
func New(cfg Config) *Reconciler {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 30 * time.Second
	}
	if cfg.ClusterSet == "" {
		cfg.ClusterSet = "ipward_banned"
	}
	return &Reconciler{cfg: cfg}
}

// TestConnections performs the startup connectivity check: the cluster
// sink must answer its probe successfully or this returns an error; LAPI
// heartbeat and SIEM authenticate are best-effort and only logged on
// failure.
func (r *Reconciler) TestConnections(ctx context.Context) error {
	if r.cfg.Cluster != nil {
		if err := r.cfg.Cluster.TestConnection(ctx); err != nil {
			return err
		}
	}
	if r.cfg.LAPI != nil {
		r.cfg.LAPI.Heartbeat(ctx)
	}
	if r.cfg.SIEM != nil {
		if err := r.cfg.SIEM.Authenticate(ctx); err != nil {
			r.logger().Warn("siem authenticate failed at startup", "error", err)
		}
	}
	return nil
}

// Run blocks, driving the loop until ctx is cancelled or Stop is called.
// It observes the 1-second quantum described in spec §4.6/§5.
func (r *Reconciler) Run(ctx context.Context) {
	r.mu.Lock()
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	defer close(r.doneCh)

	ticker := time.NewTicker(quantum)
	defer ticker.Stop()

	lastSync := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case now := <-ticker.C:
			if !r.isRunning() {
				return
			}
			if lastSync.IsZero() || now.Sub(lastSync) >= r.cfg.SyncInterval {
				r.runTick(ctx, now)
				lastSync = now
			}
		}
	}
}

// Stop requests the loop exit at its next quantum. It does not block.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false
	close(r.stopCh)
}

func (r *Reconciler) isRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// SetWhitelist swaps in a freshly recomputed whitelist snapshot. It is
// called from the whitelist poller and file watcher goroutines on their
// own schedules; the swap is guarded by mu and is not synchronized with
// ticks, so a tick in progress can see the new snapshot from its next
// whitelist check onward.
func (r *Reconciler) SetWhitelist(wl *decision.Whitelist) {
	r.mu.Lock()
	r.cfg.Whitelist = wl
	r.mu.Unlock()
}

// LastSync returns the timestamp at which the most recent tick finished,
// the zero Time if no tick has completed yet. Safe for concurrent use by
// the healthz handler.
func (r *Reconciler) LastSync() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSync
}

func (r *Reconciler) setLastSync(t time.Time) {
	r.mu.Lock()
	r.lastSync = t
	r.mu.Unlock()
}

func (r *Reconciler) logger() *logging.Logger {
	if r.cfg.Logger != nil {
		return r.cfg.Logger
	}
	l, _ := logging.New(logging.Config{})
	return l
}
