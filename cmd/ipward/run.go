package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ipward/internal/cache"
	"ipward/internal/cli"
	"ipward/internal/config"
	"ipward/internal/reconciler"
	"ipward/internal/sinks/clusterset"
	"ipward/internal/sinks/localfilter"
	"ipward/internal/sources/lapi"
	"ipward/internal/sources/siem"
	"ipward/internal/telemetry/health"
	"ipward/internal/telemetry/metrics"
	"ipward/internal/whitelist"
)

const adapterTimeout = 10 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the ipward reconciliation daemon",
	Long: `Start the ipward reconciliation daemon with the configuration loaded
from --config (environment variables of the form IPWARD_<SECTION>_<FIELD>
override file values).

The daemon polls the configured sources on sync.interval, reconciles the
result onto the configured sinks, and serves /metrics and /healthz until
it receives SIGINT or SIGTERM.`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	logger.Info("configuration loaded", "config_file", cfgFile)

	recorder := metrics.NewRecorder(metrics.Config{
		SummaryEvery: cfg.Sync.MetricsSummaryEvery,
	}, logger.Slog())

	ctx := cli.SetupSignalHandler()

	var lapiClient *lapi.Client
	if cfg.LAPI.Enabled {
		lapiCfg := lapi.Config{
			BaseURL:      cfg.LAPI.BaseURL,
			APIKey:       cfg.LAPI.APIKey,
			PollInterval: cfg.LAPI.PollInterval,
			MachineID:    cfg.LAPI.MachineID,
			Timeout:      adapterTimeout,
		}
		if err := lapiCfg.Validate(); err != nil {
			return cli.NewConfigError("lapi", err.Error())
		}
		lapiClient = lapi.NewClient(lapiCfg)
		logger.Info("lapi source enabled", "base_url", cfg.LAPI.BaseURL)
	}

	var siemClient *siem.Client
	if cfg.SIEM.Enabled {
		siemCfg := siem.Config{
			BaseURL:   cfg.SIEM.BaseURL,
			Username:  cfg.SIEM.Username,
			Password:  cfg.SIEM.Password,
			Timeout:   adapterTimeout,
			VerifyTLS: cfg.SIEM.VerifyTLS,
		}
		if err := siemCfg.Validate(); err != nil {
			return cli.NewConfigError("siem", err.Error())
		}
		siemClient = siem.NewClient(siemCfg)
		logger.Info("siem source enabled", "base_url", cfg.SIEM.BaseURL)
	}

	var clusterSink *clusterset.Sink
	if cfg.Cluster.Enabled {
		clusterCfg := clusterset.Config{
			BaseURL:       cfg.Cluster.BaseURL,
			TokenID:       cfg.Cluster.TokenID,
			TokenSecret:   cfg.Cluster.TokenSecret,
			SetName:       cfg.Cluster.SetName,
			SkipTLSVerify: !cfg.Cluster.VerifyTLS,
		}
		httpClient := clusterset.NewHTTPClient(clusterCfg)
		clusterSink = clusterset.New(clusterCfg, httpClient, logger)
		logger.Info("cluster sink enabled", "base_url", cfg.Cluster.BaseURL, "set_name", cfg.Cluster.SetName)
	}

	var localSink *localfilter.Sink
	if cfg.Local.Enabled {
		localCfg := localfilter.Config{
			Family: cfg.Local.Family,
			Table:  cfg.Local.Table,
			Chain:  cfg.Local.Chain,
			Set:    cfg.Local.Set,
			Binary: cfg.Local.NftBinary,
		}
		localSink, err = localfilter.New(ctx, localCfg)
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("initializing local filter sink: %w", err))
		}
		logger.Info("local sink enabled", "table", cfg.Local.Table, "set", cfg.Local.Set)
	}

	cacheBackend, err := newCacheBackend(cfg)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer cacheBackend.Close()

	cacheScheduler := cache.NewScheduler(cacheBackend, logger)
	if err := cacheScheduler.Start(ctx, cfg.Cache.PruneSchedule); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer cacheScheduler.Stop()

	manager, err := newWhitelistManager(cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	if err := manager.Refresh(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("loading whitelist: %w", err))
	}
	logger.Info("whitelist loaded", "entries", manager.Current().Len())

	rec := reconciler.New(reconciler.Config{
		SyncInterval: cfg.Sync.Interval,
		ClusterSet:   cfg.Cluster.SetName,
		LAPI:         lapiSourceOrNil(lapiClient),
		SIEM:         siemSourceOrNil(siemClient),
		Cluster:      clusterSinkOrNil(clusterSink),
		Local:        localSinkOrNil(localSink),
		Whitelist:    manager.Current(),
		Recorder:     recorder,
		Logger:       logger,
		Cache:        cacheBackend,
	})

	if err := rec.TestConnections(ctx); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("startup connectivity check: %w", err))
	}

	checker := newReadinessChecker(clusterSink, siemClient, localSink)

	if cfg.Whitelist.Git.Enabled {
		go manager.RunGitPoller(ctx)
		go func() {
			ticker := time.NewTicker(cfg.Whitelist.Git.PollInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					rec.SetWhitelist(manager.Current())
				}
			}
		}()
	}

	if cfg.Whitelist.File != "" {
		if fw, err := whitelist.NewFileWatcher(cfg.Whitelist.File, logger); err != nil {
			logger.Warn("whitelist file watcher disabled", "path", cfg.Whitelist.File, "error", err)
		} else {
			go fw.Watch(ctx, func(watchCtx context.Context) error {
				if err := manager.Refresh(watchCtx); err != nil {
					return err
				}
				rec.SetWhitelist(manager.Current())
				logger.Info("whitelist file reloaded", "entries", manager.Current().Len())
				return nil
			})
		}
	}

	srv := newMetricsServer(cfg, recorder, rec, checker)
	go func() {
		logger.Info("metrics server listening", "address", cfg.Metrics.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	logger.Info("ipward started")
	rec.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown failed", "error", err)
	}

	logger.Info("ipward stopped")
	return nil
}

func newCacheBackend(cfg *config.Config) (cache.Backend, error) {
	if !cfg.Cache.Enabled {
		return cache.NullBackend{}, nil
	}
	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryBackend(), nil
	case "sqlite", "":
		return cache.NewSQLiteBackend(cfg.Cache.Path)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s", cfg.Cache.Backend)
	}
}

// newReadinessChecker registers a check per enabled adapter so /ready
// reflects which sources and sinks are actually reachable, independent of
// the daemon's last successful sync (see healthzHandler).
func newReadinessChecker(clusterSink *clusterset.Sink, siemClient *siem.Client, localSink *localfilter.Sink) *health.Checker {
	checker := health.New(5 * time.Second)

	if clusterSink != nil {
		checker.Register("cluster", clusterSink.TestConnection)
	}
	if siemClient != nil {
		checker.Register("siem", siemClient.Authenticate)
	}
	if localSink != nil {
		checker.Register("local", func(ctx context.Context) error {
			_, err := localSink.List(ctx)
			return err
		})
	}

	return checker
}

func newMetricsServer(cfg *config.Config, recorder *metrics.Recorder, rec *reconciler.Reconciler, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, recorder.Handler())
	mux.HandleFunc("/healthz", healthzHandler(rec))
	mux.HandleFunc("/ready", checker.ReadinessHandler())

	return &http.Server{
		Addr:    cfg.Metrics.ListenAddress,
		Handler: mux,
	}
}

// healthzHandler reports the daemon's sync freshness (SPEC_FULL.md §15.3).
func healthzHandler(rec *reconciler.Reconciler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lastSync := rec.LastSync()

		status := "ok"
		secondsSince := -1.0
		if lastSync.IsZero() {
			status = "starting"
		} else {
			secondsSince = time.Since(lastSync).Seconds()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Status            string  `json:"status"`
			LastSyncTimestamp int64   `json:"last_sync_timestamp"`
			SecondsSinceSync  float64 `json:"seconds_since_sync"`
		}{
			Status:            status,
			LastSyncTimestamp: lastSync.Unix(),
			SecondsSinceSync:  secondsSince,
		})
	}
}

// The reconciler accepts interfaces, but a disabled adapter's concrete
// pointer is still nil; these helpers keep a nil *lapi.Client (etc.) from
// being stored as a non-nil interface value.

func lapiSourceOrNil(c *lapi.Client) reconciler.LAPISource {
	if c == nil {
		return nil
	}
	return c
}

func siemSourceOrNil(c *siem.Client) reconciler.SIEMSource {
	if c == nil {
		return nil
	}
	return c
}

func clusterSinkOrNil(s *clusterset.Sink) reconciler.ClusterSink {
	if s == nil {
		return nil
	}
	return s
}

func localSinkOrNil(s *localfilter.Sink) reconciler.LocalSink {
	if s == nil {
		return nil
	}
	return s
}
