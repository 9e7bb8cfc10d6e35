// Package metrics implements the Metrics Recorder (spec §4.1): process-wide
// counters, gauges, and a fixed-bucket sync-duration histogram, plus a
// Prometheus exposition handler.
package metrics

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"net/http"
)

// Component names used as the "component" label on errors_total.
const (
	ComponentLAPI    = "lapi"
	ComponentSIEM    = "siem"
	ComponentCluster = "cluster"
	ComponentLocal   = "local"
)

// Recorder owns every counter and gauge the reconciler updates. Every
// operation is total and infallible (spec §4.1's public contract); the
// recorder never returns an error.
//
// In the v0 design exactly one goroutine (the reconciler loop) calls the
// record/update methods, so the counters themselves need no additional
// locking beyond what the prometheus client already provides internally
// (spec §5 "Shared-resource policy").
type Recorder struct {
	registry *prometheus.Registry

	bansTotal            prometheus.Counter
	unbansTotal          prometheus.Counter
	lapiDecisionsTotal   prometheus.Counter
	siemAlertsTotal      prometheus.Counter
	clusterAPICallsTotal prometheus.Counter
	localOpsTotal        prometheus.Counter
	errorsTotal          *prometheus.CounterVec

	currentlyBanned      prometheus.Gauge
	lastSyncDurationSecs prometheus.Gauge
	lastSyncTimestamp    prometheus.Gauge

	syncDuration prometheus.Histogram

	// tickCount is incremented once per completed tick to drive the
	// "every Nth tick, emit a summary" rule (spec §4.1).
	tickCount uint64

	summaryEvery int
	logger       *slog.Logger
}

// Config controls the recorder's namespace/subsystem and summary cadence.
type Config struct {
	Namespace string
	Subsystem string

	// SummaryEvery is how many ticks elapse between log-line summaries.
	// Default 10, matching spec §4.1.
	SummaryEvery int
}

// NewRecorder creates a Recorder registered against a fresh Prometheus
// registry.
func NewRecorder(cfg Config, logger *slog.Logger) *Recorder {
	if cfg.Namespace == "" {
		cfg.Namespace = "ipward"
	}
	if cfg.SummaryEvery <= 0 {
		cfg.SummaryEvery = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	r := &Recorder{
		registry:     registry,
		summaryEvery: cfg.SummaryEvery,
		logger:       logger,

		bansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "bans_total", Help: "Total number of IPs added to an enforcement plane.",
		}),
		unbansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "unbans_total", Help: "Total number of IPs removed from an enforcement plane.",
		}),
		lapiDecisionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "lapi_decisions_total", Help: "Total number of raw decisions observed from LAPI.",
		}),
		siemAlertsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "siem_alerts_total", Help: "Total number of SIEM actions considered.",
		}),
		clusterAPICallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "cluster_api_calls_total", Help: "Total number of bulk_update calls issued to the cluster sink.",
		}),
		localOpsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "local_ops_total", Help: "Total number of add/remove calls issued to the local sink.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "errors_total", Help: "Total number of errors by component.",
		}, []string{"component"}),

		currentlyBanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "currently_banned", Help: "Current number of IPs in the local sink's set.",
		}),
		lastSyncDurationSecs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "last_sync_duration_seconds", Help: "Duration of the most recently completed tick.",
		}),
		lastSyncTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name: "last_sync_timestamp", Help: "Unix timestamp of the most recently completed tick.",
		}),

		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem,
			Name:    "sync_duration_seconds",
			Help:    "Tick duration distribution.",
			Buckets: []float64{1, 5, 10},
		}),
	}

	registry.MustRegister(
		r.bansTotal, r.unbansTotal, r.lapiDecisionsTotal, r.siemAlertsTotal,
		r.clusterAPICallsTotal, r.localOpsTotal, r.errorsTotal,
		r.currentlyBanned, r.lastSyncDurationSecs, r.lastSyncTimestamp,
		r.syncDuration,
	)

	return r
}

func (r *Recorder) RecordBan()   { r.bansTotal.Inc() }
func (r *Recorder) RecordUnban() { r.unbansTotal.Inc() }

func (r *Recorder) RecordLAPIDecision() { r.lapiDecisionsTotal.Inc() }
func (r *Recorder) RecordSIEMAlert()    { r.siemAlertsTotal.Inc() }
func (r *Recorder) RecordClusterCall()  { r.clusterAPICallsTotal.Inc() }
func (r *Recorder) RecordLocalOp()      { r.localOpsTotal.Inc() }

// RecordError increments errors_total for the given component. component
// must be one of ComponentLAPI, ComponentSIEM, ComponentCluster, ComponentLocal.
func (r *Recorder) RecordError(component string) {
	r.errorsTotal.WithLabelValues(component).Inc()
}

// ErrorsTotal reports the current errors_total value for component. Exported
// for cross-package test assertions (e.g. the reconciler's per-tick error
// accounting) that can't reach the unexported errorsTotal field directly.
func (r *Recorder) ErrorsTotal(component string) float64 {
	return testutil.ToFloat64(r.errorsTotal.WithLabelValues(component))
}

// UpdateCurrentlyBanned sets the currently_banned gauge.
func (r *Recorder) UpdateCurrentlyBanned(n int) {
	r.currentlyBanned.Set(float64(n))
}

// RecordSyncDuration updates last_sync_duration_seconds, last_sync_timestamp,
// and increments exactly one histogram bucket (spec §4.1, §8).
func (r *Recorder) RecordSyncDuration(seconds float64, finishedAt time.Time) {
	r.lastSyncDurationSecs.Set(seconds)
	r.lastSyncTimestamp.Set(float64(finishedAt.Unix()))
	r.syncDuration.Observe(seconds)
}

// Tick must be called exactly once per completed tick. It emits a summary
// line on the ticks where one is due.
func (r *Recorder) Tick() {
	n := atomic.AddUint64(&r.tickCount, 1)
	if int(n)%r.summaryEvery == 0 {
		r.emitSummary()
	}
}

func (r *Recorder) emitSummary() {
	r.logger.Info("reconciler summary",
		"bans_total", readCounter(r.bansTotal),
		"unbans_total", readCounter(r.unbansTotal),
		"lapi_decisions_total", readCounter(r.lapiDecisionsTotal),
		"siem_alerts_total", readCounter(r.siemAlertsTotal),
		"cluster_api_calls_total", readCounter(r.clusterAPICallsTotal),
		"local_ops_total", readCounter(r.localOpsTotal),
	)
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	_ = c.Write(&m)
	return m.GetCounter().GetValue()
}

// Registry exposes the underlying Prometheus registry, e.g. to mount a
// /metrics HTTP handler (SPEC_FULL.md §15.3).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler returns an http.Handler serving the Prometheus exposition text.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}
