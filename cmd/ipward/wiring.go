package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"ipward/internal/config"
	"ipward/internal/telemetry/logging"
	"ipward/internal/whitelist"
	"ipward/internal/whitelist/gitsource"
)

// statusGlyph returns ok/fail markers for CLI output, falling back to
// plain ASCII when stdout isn't an interactive terminal (piped into a
// log file or another command).
func statusGlyph() (ok, fail string) {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return "✓", "✗"
	}
	return "OK", "FAIL"
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Redact: cfg.Logging.RedactSecrets,
	})
}

// newWhitelistManager builds the whitelist manager described in
// SPEC_FULL.md §15.2: a local file source optionally unioned with a
// git-backed source.
func newWhitelistManager(cfg *config.Config, logger *logging.Logger) (*whitelist.Manager, error) {
	var git *gitsource.Source
	if cfg.Whitelist.Git.Enabled {
		g, err := gitsource.New(gitsource.Config{
			Repo:         cfg.Whitelist.Git.Repo,
			Path:         cfg.Whitelist.Git.Path,
			Branch:       cfg.Whitelist.Git.Branch,
			AuthType:     cfg.Whitelist.Git.AuthType,
			Token:        cfg.Whitelist.Git.Token,
			SSHKeyPath:   cfg.Whitelist.Git.SSHKeyPath,
			PollInterval: cfg.Whitelist.Git.PollInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("git whitelist source: %w", err)
		}
		git = g
	}
	return whitelist.NewManager(cfg.Whitelist.File, git, logger), nil
}
