// Package whitelist loads the exact-match IP whitelist from a local file
// and, optionally, unions it with a git-backed source (SPEC_FULL.md §15.2)
// on a configurable interval.
package whitelist

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"ipward/internal/decision"
	"ipward/internal/errs"
	"ipward/internal/telemetry/logging"
	"ipward/internal/whitelist/gitsource"
)

const component = "whitelist"

// LoadFile reads an exact-match whitelist file: one IP per line, blank
// lines and lines starting with '#' ignored.
func LoadFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &errs.SubsystemError{Component: component, Operation: "read whitelist file", Cause: err}
	}
	defer f.Close()

	var entries []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &errs.ParseError{Component: component, Cause: err}
	}
	return entries, nil
}

// Manager owns the file-based and optional git-based whitelist sources and
// produces the unioned *decision.Whitelist snapshot the reconciler
// consults.
type Manager struct {
	filePath string
	git      *gitsource.Source
	logger   *logging.Logger

	mu        sync.RWMutex
	whitelist *decision.Whitelist
}

// NewManager constructs a Manager. git may be nil when no git whitelist
// source is configured.
func NewManager(filePath string, git *gitsource.Source, logger *logging.Logger) *Manager {
	if logger == nil {
		logger, _ = logging.New(logging.Config{})
	}
	return &Manager{filePath: filePath, git: git, logger: logger, whitelist: decision.NewWhitelist(nil)}
}

// Refresh reloads the file source and, if configured, pulls the git
// source, then recomputes the union. It is called once at startup and
// thereafter on the git source's poll interval and on whitelist file
// changes; these calls are not synchronized with reconciler ticks.
func (m *Manager) Refresh(ctx context.Context) error {
	fileEntries, err := LoadFile(m.filePath)
	if err != nil {
		return err
	}

	var gitEntries []string
	if m.git != nil {
		if err := m.git.Refresh(ctx); err != nil {
			m.logger.WarnContext(ctx, "git whitelist refresh failed, keeping previous entries", "error", err)
		}
		gitEntries = m.git.Entries()
	}

	union := make([]string, 0, len(fileEntries)+len(gitEntries))
	union = append(union, fileEntries...)
	union = append(union, gitEntries...)

	m.mu.Lock()
	m.whitelist = decision.NewWhitelist(union)
	m.mu.Unlock()

	return nil
}

// Current returns the whitelist snapshot currently in effect.
func (m *Manager) Current() *decision.Whitelist {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.whitelist
}

// RunGitPoller blocks, calling Refresh on the git source's poll interval,
// until ctx is cancelled. Used only when a git source is configured.
func (m *Manager) RunGitPoller(ctx context.Context) {
	if m.git == nil {
		return
	}
	ticker := time.NewTicker(m.git.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				m.logger.WarnContext(ctx, "whitelist refresh failed", "error", err)
			}
		}
	}
}
