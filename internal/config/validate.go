package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in one pass.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

var nftIdentifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Validate checks the whole configuration, collecting every violation
// before returning so an operator sees all problems in one pass.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLAPI(&cfg.LAPI)...)
	errs = append(errs, validateSIEM(&cfg.SIEM)...)
	errs = append(errs, validateCluster(&cfg.Cluster)...)
	errs = append(errs, validateLocal(&cfg.Local)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateSync(cfg *SyncConfig) []FieldError {
	var errs []FieldError
	if cfg.Interval < 10*time.Second {
		errs = append(errs, FieldError{
			Field:   "sync.interval",
			Message: "must be at least 10s",
		})
	}
	return errs
}

func validateLAPI(cfg *LAPIConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return errs
	}
	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{Field: "lapi.base_url", Message: "required when lapi is enabled"})
	}
	if cfg.APIKey == "" {
		errs = append(errs, FieldError{Field: "lapi.api_key", Message: "required when lapi is enabled"})
	}
	return errs
}

func validateSIEM(cfg *SIEMConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return errs
	}
	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{Field: "siem.base_url", Message: "required when siem is enabled"})
	}
	if cfg.Username == "" {
		errs = append(errs, FieldError{Field: "siem.username", Message: "required when siem is enabled"})
	}
	if cfg.Password == "" {
		errs = append(errs, FieldError{Field: "siem.password", Message: "required when siem is enabled"})
	}
	return errs
}

func validateCluster(cfg *ClusterConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return errs
	}
	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{Field: "cluster.base_url", Message: "required when cluster is enabled"})
	}
	if cfg.TokenID == "" || cfg.TokenSecret == "" {
		errs = append(errs, FieldError{Field: "cluster.token_id", Message: "token_id and token_secret are required when cluster is enabled"})
	}
	return errs
}

func validateLocal(cfg *LocalConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return errs
	}
	for field, value := range map[string]string{
		"local.table": cfg.Table,
		"local.chain": cfg.Chain,
		"local.set":   cfg.Set,
	} {
		if value != "" && !nftIdentifierPattern.MatchString(value) {
			errs = append(errs, FieldError{
				Field:   field,
				Message: fmt.Sprintf("%q must match [a-zA-Z0-9_]+", value),
			})
		}
	}
	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return errs
	}
	validBackends := map[string]bool{"sqlite": true, "memory": true}
	if !validBackends[cfg.Backend] {
		errs = append(errs, FieldError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'sqlite' or 'memory'", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.Path == "" {
		errs = append(errs, FieldError{Field: "cache.path", Message: "required when backend is 'sqlite'"})
	}
	return errs
}

func validateLogging(cfg *LoggingConfig) []FieldError {
	var errs []FieldError
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Level] {
		errs = append(errs, FieldError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q: must be debug, info, warn, or error", cfg.Level),
		})
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Format] {
		errs = append(errs, FieldError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q: must be json or text", cfg.Format),
		})
	}
	return errs
}
