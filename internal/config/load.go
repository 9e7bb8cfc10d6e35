package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

var envInterpolationPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadConfig reads a YAML file, resolves ${VAR} interpolation against the
// process environment, applies defaults, validates the result, and returns
// it. Environment variables are not yet applied as field overrides; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	interpolated := interpolateEnv(raw)

	cfg := Config{Logging: LoggingConfig{RedactSecrets: DefaultLoggingRedactSecrets}}
	if err := yaml.Unmarshal(interpolated, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads the file, applies IPWARD_<SECTION>_<FIELD>
// environment overrides on top, and re-validates.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

func interpolateEnv(raw []byte) []byte {
	return envInterpolationPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envInterpolationPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IPWARD_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = d
		}
	}

	if v := os.Getenv("IPWARD_LAPI_BASE_URL"); v != "" {
		cfg.LAPI.BaseURL = v
	}
	if v := os.Getenv("IPWARD_LAPI_API_KEY"); v != "" {
		cfg.LAPI.APIKey = v
	}
	if v := os.Getenv("IPWARD_LAPI_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LAPI.Enabled = b
		}
	}

	if v := os.Getenv("IPWARD_SIEM_BASE_URL"); v != "" {
		cfg.SIEM.BaseURL = v
	}
	if v := os.Getenv("IPWARD_SIEM_USERNAME"); v != "" {
		cfg.SIEM.Username = v
	}
	if v := os.Getenv("IPWARD_SIEM_PASSWORD"); v != "" {
		cfg.SIEM.Password = v
	}
	if v := os.Getenv("IPWARD_SIEM_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SIEM.Enabled = b
		}
	}

	if v := os.Getenv("IPWARD_CLUSTER_BASE_URL"); v != "" {
		cfg.Cluster.BaseURL = v
	}
	if v := os.Getenv("IPWARD_CLUSTER_TOKEN_ID"); v != "" {
		cfg.Cluster.TokenID = v
	}
	if v := os.Getenv("IPWARD_CLUSTER_TOKEN_SECRET"); v != "" {
		cfg.Cluster.TokenSecret = v
	}
	if v := os.Getenv("IPWARD_CLUSTER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cluster.Enabled = b
		}
	}

	if v := os.Getenv("IPWARD_LOCAL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Local.Enabled = b
		}
	}

	if v := os.Getenv("IPWARD_WHITELIST_FILE"); v != "" {
		cfg.Whitelist.File = v
	}
	if v := os.Getenv("IPWARD_WHITELIST_GIT_TOKEN"); v != "" {
		cfg.Whitelist.Git.Token = v
	}

	if v := os.Getenv("IPWARD_CACHE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.Enabled = b
		}
	}

	if v := os.Getenv("IPWARD_METRICS_LISTEN_ADDRESS"); v != "" {
		cfg.Metrics.ListenAddress = v
	}

	if v := os.Getenv("IPWARD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IPWARD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
