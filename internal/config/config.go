// Package config loads and validates ipward's YAML configuration file,
// following the teacher's LoadConfig/ApplyDefaults/Validate pipeline.
package config

import "time"

// Config is the root configuration structure for ipward.
type Config struct {
	Sync      SyncConfig      `yaml:"sync"`
	LAPI      LAPIConfig      `yaml:"lapi"`
	SIEM      SIEMConfig      `yaml:"siem"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Local     LocalConfig     `yaml:"local"`
	Whitelist WhitelistConfig `yaml:"whitelist"`
	Cache     CacheConfig     `yaml:"cache"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SyncConfig controls the reconciler's single shared tick cadence.
type SyncConfig struct {
	// Interval is how often the reconciler runs a full poll-and-apply pass.
	// Default: 30s. Must be at least 10s.
	Interval time.Duration `yaml:"interval"`

	// MetricsSummaryEvery logs a tick summary every N ticks at info level
	// (every tick still updates metrics; this only throttles the log line).
	MetricsSummaryEvery int `yaml:"metrics_summary_every"`
}

// LAPIConfig configures the CrowdSec-style decision-stream source.
type LAPIConfig struct {
	Enabled           bool          `yaml:"enabled"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	MachineID         string        `yaml:"machine_id"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// SIEMConfig configures the Wazuh-style alert source.
type SIEMConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	VerifyTLS bool   `yaml:"verify_tls"`
}

// ClusterConfig configures the Proxmox-style cluster firewall sink.
type ClusterConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	TokenID     string `yaml:"token_id"`
	TokenSecret string `yaml:"token_secret"`
	SetName     string `yaml:"set_name"`
	VerifyTLS   bool   `yaml:"verify_tls"`
}

// LocalConfig configures the nftables-based local filter sink.
type LocalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Table     string `yaml:"table"`
	Chain     string `yaml:"chain"`
	Set       string `yaml:"set"`
	Family    string `yaml:"family"`
	NftBinary string `yaml:"nft_binary"`
}

// WhitelistConfig configures the exact-match whitelist's sources.
type WhitelistConfig struct {
	File string             `yaml:"file"`
	Git  WhitelistGitConfig `yaml:"git"`
}

// WhitelistGitConfig configures the optional git-backed whitelist source.
type WhitelistGitConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Repo         string        `yaml:"repo"`
	Path         string        `yaml:"path"`
	Branch       string        `yaml:"branch"`
	AuthType     string        `yaml:"auth_type"`
	Token        string        `yaml:"token"`
	SSHKeyPath   string        `yaml:"ssh_key_path"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CacheConfig configures the optional known-decision cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`

	// PruneSchedule is a standard cron expression controlling how often
	// expired cache entries are swept. Empty disables scheduled pruning
	// (expired entries simply stop counting as "seen").
	PruneSchedule string `yaml:"prune_schedule"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	ListenAddress string `yaml:"listen_address"`
	Path          string `yaml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	RedactSecrets bool   `yaml:"redact_secrets"`
}
