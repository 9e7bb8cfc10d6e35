package config

import "time"

// Default values for configuration fields absent from the YAML file.
const (
	DefaultSyncInterval            = 30 * time.Second
	DefaultSyncMetricsSummaryEvery = 10

	DefaultLAPIPollInterval      = 30 * time.Second
	DefaultLAPIHeartbeatInterval = 30 * time.Second

	DefaultClusterSetName = "ipward-bans"

	DefaultLocalTable     = "ipward"
	DefaultLocalChain     = "input"
	DefaultLocalSet       = "banned_v4"
	DefaultLocalFamily    = "ip"
	DefaultLocalNftBinary = "nft"

	DefaultWhitelistFile            = "/etc/ipward/whitelist.txt"
	DefaultWhitelistGitAuthType     = "none"
	DefaultWhitelistGitPollInterval = 5 * time.Minute

	DefaultCacheBackend = "sqlite"
	DefaultCachePath    = "/var/lib/ipward/known.db"

	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"

	DefaultLoggingLevel         = "info"
	DefaultLoggingFormat        = "json"
	DefaultLoggingRedactSecrets = true
)

// ApplyDefaults fills in zero-valued fields with the defaults above. It
// never overwrites a value the operator actually set.
func ApplyDefaults(cfg *Config) {
	if cfg.Sync.Interval == 0 {
		cfg.Sync.Interval = DefaultSyncInterval
	}
	if cfg.Sync.MetricsSummaryEvery == 0 {
		cfg.Sync.MetricsSummaryEvery = DefaultSyncMetricsSummaryEvery
	}

	if cfg.LAPI.PollInterval == 0 {
		cfg.LAPI.PollInterval = DefaultLAPIPollInterval
	}
	if cfg.LAPI.HeartbeatInterval == 0 {
		cfg.LAPI.HeartbeatInterval = DefaultLAPIHeartbeatInterval
	}

	if cfg.Cluster.SetName == "" {
		cfg.Cluster.SetName = DefaultClusterSetName
	}

	if cfg.Local.Table == "" {
		cfg.Local.Table = DefaultLocalTable
	}
	if cfg.Local.Chain == "" {
		cfg.Local.Chain = DefaultLocalChain
	}
	if cfg.Local.Set == "" {
		cfg.Local.Set = DefaultLocalSet
	}
	if cfg.Local.Family == "" {
		cfg.Local.Family = DefaultLocalFamily
	}
	if cfg.Local.NftBinary == "" {
		cfg.Local.NftBinary = DefaultLocalNftBinary
	}

	if cfg.Whitelist.File == "" {
		cfg.Whitelist.File = DefaultWhitelistFile
	}
	if cfg.Whitelist.Git.AuthType == "" {
		cfg.Whitelist.Git.AuthType = DefaultWhitelistGitAuthType
	}
	if cfg.Whitelist.Git.PollInterval == 0 {
		cfg.Whitelist.Git.PollInterval = DefaultWhitelistGitPollInterval
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
}
