package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"ipward/internal/cache"
	"ipward/internal/decision"
	"ipward/internal/sources/lapi"
	"ipward/internal/sources/siem"
	"ipward/internal/telemetry/metrics"
)

type fakeLAPI struct {
	decisions    lapi.Decisions
	err          error
	heartbeats   int
	getCallCount int
}

func (f *fakeLAPI) GetDecisions(ctx context.Context, startup bool) (lapi.Decisions, error) {
	f.getCallCount++
	if f.err != nil {
		return lapi.Decisions{}, f.err
	}
	return f.decisions, nil
}

func (f *fakeLAPI) Heartbeat(ctx context.Context) { f.heartbeats++ }

type fakeSIEM struct {
	alerts []siem.Alert
	err    error
	authOK bool
}

func (f *fakeSIEM) Authenticate(ctx context.Context) error {
	if !f.authOK {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeSIEM) GetAlerts(ctx context.Context, since *time.Time, limit int) ([]siem.Alert, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.alerts, nil
}

type fakeCluster struct {
	mu         sync.Mutex
	probeErr   error
	bulkErr    error
	bulkFailed int
	bulkCalls  int
	lastAdds   []string
	lastRemove []string
}

func (f *fakeCluster) TestConnection(ctx context.Context) error { return f.probeErr }

func (f *fakeCluster) BulkUpdate(ctx context.Context, name string, adds, removes []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bulkCalls++
	f.lastAdds = adds
	f.lastRemove = removes
	return f.bulkFailed, f.bulkErr
}

type fakeLocal struct {
	mu      sync.Mutex
	added   []string
	removed []string
	members []string
	addErr  map[string]error
}

func (f *fakeLocal) Add(ctx context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.addErr[ip]; ok {
		return err
	}
	f.added = append(f.added, ip)
	return nil
}

func (f *fakeLocal) Remove(ctx context.Context, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, ip)
	return nil
}

func (f *fakeLocal) List(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.members, nil
}

func TestReconciler_Tick_LAPIBanAndUnban(t *testing.T) {
	fl := &fakeLAPI{decisions: lapi.Decisions{
		New:     []decision.Decision{{IP: "203.0.113.5", Kind: decision.KindBan, Origin: decision.OriginLAPI}},
		Deleted: []decision.Decision{{IP: "198.51.100.9", Kind: decision.KindBan, Origin: decision.OriginLAPI}},
	}}
	cluster := &fakeCluster{}
	local := &fakeLocal{addErr: map[string]error{}}
	r := New(Config{
		LAPI: fl, Cluster: cluster, Local: local,
		Whitelist: decision.NewWhitelist(nil),
		Recorder:  metrics.NewRecorder(metrics.Config{Namespace: "test_tick"}, nil),
	})

	r.runTick(context.Background(), time.Now())

	if cluster.bulkCalls != 1 {
		t.Fatalf("expected exactly one bulk_update call, got %d", cluster.bulkCalls)
	}
	if len(cluster.lastAdds) != 1 || cluster.lastAdds[0] != "203.0.113.5" {
		t.Errorf("unexpected adds: %v", cluster.lastAdds)
	}
	if len(cluster.lastRemove) != 1 || cluster.lastRemove[0] != "198.51.100.9" {
		t.Errorf("unexpected removes: %v", cluster.lastRemove)
	}
	if len(local.added) != 1 || len(local.removed) != 1 {
		t.Errorf("expected local add+remove, got added=%v removed=%v", local.added, local.removed)
	}
}

func TestReconciler_Tick_WhitelistBlocksBothPlanes(t *testing.T) {
	fl := &fakeLAPI{decisions: lapi.Decisions{
		New: []decision.Decision{{IP: "203.0.113.5", Kind: decision.KindBan, Origin: decision.OriginLAPI}},
	}}
	cluster := &fakeCluster{}
	local := &fakeLocal{}
	r := New(Config{
		LAPI: fl, Cluster: cluster, Local: local,
		Whitelist: decision.NewWhitelist([]string{"203.0.113.5"}),
	})

	r.runTick(context.Background(), time.Now())

	if cluster.bulkCalls != 0 {
		t.Errorf("whitelisted IP must never reach the cluster sink, bulk_update called %d times", cluster.bulkCalls)
	}
	if len(local.added) != 0 {
		t.Errorf("whitelisted IP must never reach the local sink, got added=%v", local.added)
	}
}

func TestReconciler_Tick_SimulatedDecisionDropped(t *testing.T) {
	fl := &fakeLAPI{decisions: lapi.Decisions{
		New: []decision.Decision{{IP: "203.0.113.5", Kind: decision.KindBan, Origin: decision.OriginLAPI, Simulated: true}},
	}}
	cluster := &fakeCluster{}
	r := New(Config{LAPI: fl, Cluster: cluster, Whitelist: decision.NewWhitelist(nil)})

	r.runTick(context.Background(), time.Now())

	if cluster.bulkCalls != 0 {
		t.Errorf("simulated decision must never reach a sink, bulk_update called %d times", cluster.bulkCalls)
	}
}

func TestReconciler_Tick_LAPIFailureDoesNotAbortSIEM(t *testing.T) {
	fl := &fakeLAPI{err: context.DeadlineExceeded}
	fs := &fakeSIEM{alerts: []siem.Alert{{SourceIP: "203.0.113.5", Level: 20, Scenario: "brute-force"}}}
	cluster := &fakeCluster{}
	r := New(Config{
		LAPI: fl, SIEM: fs, Cluster: cluster,
		Whitelist: decision.NewWhitelist(nil),
	})

	r.runTick(context.Background(), time.Now())

	if cluster.bulkCalls != 1 {
		t.Fatalf("siem-driven ban should still reach the cluster sink despite lapi failure, got %d calls", cluster.bulkCalls)
	}
	if len(cluster.lastAdds) != 1 || cluster.lastAdds[0] != "203.0.113.5" {
		t.Errorf("unexpected adds: %v", cluster.lastAdds)
	}
}

func TestReconciler_Tick_SIEMMonitorNeverReachesSinks(t *testing.T) {
	fs := &fakeSIEM{alerts: []siem.Alert{{SourceIP: "203.0.113.5", Level: 3, Scenario: "info"}}}
	cluster := &fakeCluster{}
	local := &fakeLocal{}
	r := New(Config{SIEM: fs, Cluster: cluster, Local: local, Whitelist: decision.NewWhitelist(nil)})

	r.runTick(context.Background(), time.Now())

	if cluster.bulkCalls != 0 {
		t.Errorf("monitor-only alert must never trigger bulk_update, got %d calls", cluster.bulkCalls)
	}
	if len(local.added) != 0 {
		t.Errorf("monitor-only alert must never reach the local sink, got added=%v", local.added)
	}
}

func TestReconciler_Tick_NoWorkSkipsBulkUpdate(t *testing.T) {
	fl := &fakeLAPI{}
	cluster := &fakeCluster{}
	r := New(Config{LAPI: fl, Cluster: cluster, Whitelist: decision.NewWhitelist(nil)})

	r.runTick(context.Background(), time.Now())

	if cluster.bulkCalls != 0 {
		t.Errorf("empty to_ban/to_unban must not call bulk_update, got %d calls", cluster.bulkCalls)
	}
}

func TestReconciler_Tick_ClusterApiErrorIncrementsErrorMetric(t *testing.T) {
	fl := &fakeLAPI{decisions: lapi.Decisions{
		New: []decision.Decision{{IP: "198.51.100.9", Kind: decision.KindBan, Origin: decision.OriginLAPI}},
	}}
	// bulkFailed simulates the cluster POST returning 500 for the one IP in
	// this tick; bulkErr stays nil since a plain ApiError (unlike AuthFailed)
	// never bubbles up as a tick-level adapter error.
	cluster := &fakeCluster{bulkFailed: 1}
	local := &fakeLocal{}
	rec := metrics.NewRecorder(metrics.Config{Namespace: "test_cluster_apierror"}, nil)
	r := New(Config{
		LAPI: fl, Cluster: cluster, Local: local,
		Whitelist: decision.NewWhitelist(nil),
		Recorder:  rec,
	})

	r.runTick(context.Background(), time.Now())

	if got := rec.ErrorsTotal(metrics.ComponentCluster); got != 1 {
		t.Errorf("errors_total{cluster} = %v, want 1", got)
	}
	if len(local.added) != 1 {
		t.Errorf("local sink must still receive the add despite the cluster failure, got added=%v", local.added)
	}
}

func TestReconciler_Tick_RefreshesCurrentlyBannedGauge(t *testing.T) {
	local := &fakeLocal{members: []string{"203.0.113.5", "198.51.100.9"}}
	rec := metrics.NewRecorder(metrics.Config{Namespace: "test_gauge"}, nil)
	r := New(Config{Local: local, Recorder: rec, Whitelist: decision.NewWhitelist(nil)})

	r.runTick(context.Background(), time.Now())
	// No panic and no error is the primary assertion; the gauge value
	// itself is exercised indirectly through metrics' own tests.
}

func TestReconciler_StartStop(t *testing.T) {
	r := New(Config{SyncInterval: 50 * time.Millisecond, Whitelist: decision.NewWhitelist(nil)})

	done := make(chan struct{})
	go func() {
		r.Run(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	r.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after Stop()")
	}
}

func TestReconciler_TestConnections_ClusterFailureIsFatal(t *testing.T) {
	cluster := &fakeCluster{probeErr: context.DeadlineExceeded}
	r := New(Config{Cluster: cluster, Whitelist: decision.NewWhitelist(nil)})

	if err := r.TestConnections(context.Background()); err == nil {
		t.Fatal("expected cluster probe failure to be fatal")
	}
}

func TestReconciler_Tick_StartupReplayUsesCache(t *testing.T) {
	fl := &fakeLAPI{decisions: lapi.Decisions{
		New: []decision.Decision{{IP: "203.0.113.5", Kind: decision.KindBan, Origin: decision.OriginLAPI}},
	}}
	cluster := &fakeCluster{}
	local := &fakeLocal{}
	mem := cache.NewMemoryBackend()
	defer mem.Close()
	_ = mem.Record(context.Background(), cache.Key{IP: "203.0.113.5", Kind: decision.KindBan, Origin: decision.OriginLAPI}, time.Time{})

	r := New(Config{LAPI: fl, Cluster: cluster, Local: local, Whitelist: decision.NewWhitelist(nil), Cache: mem})
	r.runTick(context.Background(), time.Now())

	if cluster.bulkCalls != 0 {
		t.Errorf("a cache hit on the startup replay must skip the cluster call, got %d calls with adds=%v", cluster.bulkCalls, cluster.lastAdds)
	}
	if len(local.added) != 1 {
		t.Errorf("a cache hit must still add locally, got added=%v", local.added)
	}
	if fl.getCallCount != 1 {
		t.Fatalf("expected exactly one GetDecisions call, got %d", fl.getCallCount)
	}
}

func TestReconciler_Tick_SecondTickIsNotAStartupReplay(t *testing.T) {
	fl := &fakeLAPI{decisions: lapi.Decisions{
		New: []decision.Decision{{IP: "203.0.113.5", Kind: decision.KindBan, Origin: decision.OriginLAPI}},
	}}
	cluster := &fakeCluster{}
	mem := cache.NewMemoryBackend()
	defer mem.Close()

	r := New(Config{LAPI: fl, Cluster: cluster, Whitelist: decision.NewWhitelist(nil), Cache: mem})
	r.runTick(context.Background(), time.Now())
	if cluster.bulkCalls != 1 {
		t.Fatalf("first tick should reach the cluster sink (no cache hit yet), got %d calls", cluster.bulkCalls)
	}

	cluster.bulkCalls = 0
	r.runTick(context.Background(), time.Now())
	if cluster.bulkCalls != 1 {
		t.Errorf("a non-startup tick must never skip the cluster plane via the cache, got %d calls", cluster.bulkCalls)
	}
}

func TestReconciler_TestConnections_SIEMFailureIsNotFatal(t *testing.T) {
	fs := &fakeSIEM{authOK: false}
	r := New(Config{SIEM: fs, Whitelist: decision.NewWhitelist(nil)})

	if err := r.TestConnections(context.Background()); err != nil {
		t.Fatalf("siem auth failure at startup must only warn, got error: %v", err)
	}
}
