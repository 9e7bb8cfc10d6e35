// Package gitsource implements the optional git-backed whitelist source
// (SPEC_FULL.md §15.2): clone or pull a repository at a configurable
// interval and read a whitelist file from it, unioned with the local file
// source's entries on each poll.
package gitsource

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"ipward/internal/errs"
)

const component = "whitelist_git"

// Config configures the git-backed whitelist source.
type Config struct {
	Repo           string
	Path           string // whitelist file path relative to the repo root
	Branch         string
	AuthType       string // none | token | ssh
	Token          string
	SSHKeyPath     string
	PollInterval   time.Duration
	LocalClonePath string // defaults to a temp directory
}

func (c Config) Validate() error {
	if c.Repo == "" {
		return &errs.ConfigurationError{Component: component, Field: "repo", Message: "must not be empty when git whitelist is enabled"}
	}
	if c.Path == "" {
		return &errs.ConfigurationError{Component: component, Field: "path", Message: "must not be empty"}
	}
	if c.Branch == "" {
		return &errs.ConfigurationError{Component: component, Field: "branch", Message: "must not be empty"}
	}
	return nil
}

// Source owns the cloned repository and the current whitelist entries it
// has read from it. Entries() is safe to call from another goroutine while
// Refresh runs.
type Source struct {
	cfg  Config
	auth AuthProvider

	mu        sync.RWMutex
	repo      *gogit.Repository
	entries   []string
	cloned    bool
	clonePath string
}

// New constructs a Source. It does not clone until the first Refresh.
func New(cfg Config) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	auth, err := NewAuthProvider(cfg.AuthType, cfg.Token, cfg.SSHKeyPath)
	if err != nil {
		return nil, err
	}

	clonePath := cfg.LocalClonePath
	if clonePath == "" {
		clonePath = filepath.Join(os.TempDir(), "ipward-whitelist-git")
	}

	return &Source{cfg: cfg, auth: auth, clonePath: clonePath}, nil
}

// Refresh clones the repository on first call, pulls on subsequent calls,
// and reloads the whitelist file's entries. A failure leaves the
// previously loaded entries in place.
func (s *Source) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cloned {
		if err := s.cloneLocked(ctx); err != nil {
			return err
		}
	} else if err := s.pullLocked(ctx); err != nil {
		return err
	}

	entries, err := s.readEntriesLocked()
	if err != nil {
		return err
	}
	s.entries = entries
	return nil
}

func (s *Source) cloneLocked(ctx context.Context) error {
	authMethod, err := s.auth.GetAuth()
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(filepath.Join(s.clonePath, ".git")); statErr == nil {
		repo, openErr := gogit.PlainOpen(s.clonePath)
		if openErr == nil {
			s.repo = repo
			s.cloned = true
			return nil
		}
	}

	if err := os.MkdirAll(s.clonePath, 0o755); err != nil {
		return &errs.SubsystemError{Component: component, Operation: "mkdir", Cause: err}
	}

	repo, err := gogit.PlainCloneContext(ctx, s.clonePath, false, &gogit.CloneOptions{
		URL:           s.cfg.Repo,
		ReferenceName: plumbing.NewBranchReferenceName(s.cfg.Branch),
		SingleBranch:  true,
		Auth:          authMethod,
	})
	if err != nil {
		return &errs.NetworkError{Component: component, Cause: err}
	}

	s.repo = repo
	s.cloned = true
	return nil
}

func (s *Source) pullLocked(ctx context.Context) error {
	authMethod, err := s.auth.GetAuth()
	if err != nil {
		return err
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return &errs.SubsystemError{Component: component, Operation: "worktree", Cause: err}
	}

	err = worktree.PullContext(ctx, &gogit.PullOptions{RemoteName: "origin", Auth: authMethod})
	if err != nil && err != gogit.NoErrAlreadyUpToDate {
		return &errs.NetworkError{Component: component, Cause: err}
	}
	return nil
}

func (s *Source) readEntriesLocked() ([]string, error) {
	path := filepath.Join(s.clonePath, s.cfg.Path)
	f, err := os.Open(path)
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

// Entries returns a snapshot of the whitelist entries currently loaded
// from git. Empty until the first successful Refresh.
func (s *Source) Entries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.entries))
	copy(out, s.entries)
	return out
}

// PollInterval returns the configured refresh cadence, defaulting to 5
// minutes if unset.
func (s *Source) PollInterval() time.Duration {
	if s.cfg.PollInterval <= 0 {
		return 5 * time.Minute
	}
	return s.cfg.PollInterval
}
