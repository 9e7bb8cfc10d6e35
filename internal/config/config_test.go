package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeTestConfig(t, `
sync:
  interval: 45s

lapi:
  enabled: true
  base_url: "http://127.0.0.1:8080"
  api_key: "test-key"

siem:
  enabled: false

cluster:
  enabled: false

local:
  enabled: true

whitelist:
  file: "/tmp/whitelist.txt"

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Sync.Interval != 45*time.Second {
		t.Errorf("expected sync.interval=45s, got %v", cfg.Sync.Interval)
	}
	if cfg.LAPI.APIKey != "test-key" {
		t.Errorf("expected lapi.api_key=test-key, got %q", cfg.LAPI.APIKey)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
	// Defaults should have filled the untouched local.* fields.
	if cfg.Local.Table != DefaultLocalTable {
		t.Errorf("expected default local.table, got %q", cfg.Local.Table)
	}
}

func TestLoadConfig_EnvInterpolation(t *testing.T) {
	t.Setenv("TEST_LAPI_KEY", "interpolated-secret")
	path := writeTestConfig(t, `
lapi:
  enabled: true
  base_url: "http://127.0.0.1:8080"
  api_key: "${TEST_LAPI_KEY}"

logging:
  level: "info"
  format: "json"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LAPI.APIKey != "interpolated-secret" {
		t.Errorf("expected interpolated api key, got %q", cfg.LAPI.APIKey)
	}
}

func TestLoadConfig_RejectsMissingLAPIKeyWhenEnabled(t *testing.T) {
	path := writeTestConfig(t, `
lapi:
  enabled: true
  base_url: "http://127.0.0.1:8080"

logging:
  level: "info"
  format: "json"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation failure for missing lapi.api_key")
	}
}

func TestLoadConfig_RejectsSyncIntervalBelowFloor(t *testing.T) {
	path := writeTestConfig(t, `
sync:
  interval: 5s

logging:
  level: "info"
  format: "json"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation failure for sync.interval below 10s")
	}
}

func TestLoadConfig_RejectsInvalidNftIdentifier(t *testing.T) {
	path := writeTestConfig(t, `
local:
  enabled: true
  set: "not valid!"

logging:
  level: "info"
  format: "json"
`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation failure for an invalid nft identifier")
	}
}

func TestLoadConfigWithEnvOverrides_OverridesFileValue(t *testing.T) {
	path := writeTestConfig(t, `
lapi:
  enabled: true
  base_url: "http://127.0.0.1:8080"
  api_key: "from-file"

logging:
  level: "info"
  format: "json"
`)

	t.Setenv("IPWARD_LAPI_API_KEY", "from-env")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}
	if cfg.LAPI.APIKey != "from-env" {
		t.Errorf("expected env override to win, got %q", cfg.LAPI.APIKey)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := &Config{
		Sync:    SyncConfig{Interval: 1 * time.Second},
		LAPI:    LAPIConfig{Enabled: true},
		Logging: LoggingConfig{Level: "verbose", Format: "xml"},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(ve.Errors) < 4 {
		t.Errorf("expected at least 4 field errors, got %d: %v", len(ve.Errors), ve.Errors)
	}
}
