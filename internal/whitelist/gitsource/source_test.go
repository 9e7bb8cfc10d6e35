package gitsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// createTestRepo creates a local git repository with one whitelist file
// committed to the given branch.
func createTestRepo(t *testing.T, dir, branch, whitelistPath, contents string) {
	t.Helper()

	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	full := filepath.Join(dir, whitelistPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
		t.Fatalf("write whitelist file: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := wt.Add(whitelistPath); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wt.Commit("add whitelist", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if branch != "master" {
		if err := wt.Checkout(&gogit.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(branch), Create: true}); err != nil {
			t.Fatalf("checkout branch: %v", err)
		}
	}
}

func TestSource_Refresh_ClonesThenReadsEntries(t *testing.T) {
	sourceDir := t.TempDir()
	createTestRepo(t, sourceDir, "master", "whitelist.txt", "203.0.113.5\n# a comment\n\n198.51.100.9\n")

	s, err := New(Config{
		Repo:           sourceDir,
		Path:           "whitelist.txt",
		Branch:         "master",
		AuthType:       "none",
		LocalClonePath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after filtering comments/blanks, got %v", entries)
	}
	if entries[0] != "203.0.113.5" || entries[1] != "198.51.100.9" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestSource_Refresh_SecondCallPulls(t *testing.T) {
	sourceDir := t.TempDir()
	createTestRepo(t, sourceDir, "master", "whitelist.txt", "203.0.113.5\n")

	s, err := New(Config{
		Repo:           sourceDir,
		Path:           "whitelist.txt",
		Branch:         "master",
		AuthType:       "none",
		LocalClonePath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if len(s.Entries()) != 1 {
		t.Fatalf("expected 1 entry after first refresh, got %v", s.Entries())
	}

	// Append a second entry upstream and commit it.
	full := filepath.Join(sourceDir, "whitelist.txt")
	if err := os.WriteFile(full, []byte("203.0.113.5\n198.51.100.9\n"), 0o644); err != nil {
		t.Fatalf("rewrite whitelist file: %v", err)
	}
	repo, err := gogit.PlainOpen(sourceDir)
	if err != nil {
		t.Fatalf("PlainOpen source: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := wt.Add("whitelist.txt"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := wt.Commit("update whitelist", &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("second Refresh (pull): %v", err)
	}
	if len(s.Entries()) != 2 {
		t.Fatalf("expected 2 entries after pull, got %v", s.Entries())
	}
}

func TestSource_Refresh_FailurePreservesPreviousEntries(t *testing.T) {
	sourceDir := t.TempDir()
	createTestRepo(t, sourceDir, "master", "whitelist.txt", "203.0.113.5\n")

	s, err := New(Config{
		Repo:           sourceDir,
		Path:           "whitelist.txt",
		Branch:         "master",
		AuthType:       "none",
		LocalClonePath: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}

	// Point the source repo at a now-removed path to force a pull failure.
	if err := os.RemoveAll(sourceDir); err != nil {
		t.Fatalf("remove source: %v", err)
	}

	if err := s.Refresh(context.Background()); err == nil {
		t.Fatal("expected Refresh to fail once the remote disappears")
	}

	if entries := s.Entries(); len(entries) != 1 || entries[0] != "203.0.113.5" {
		t.Errorf("expected previous entries preserved on failure, got %v", entries)
	}
}

func TestNewAuthProvider_UnknownTypeErrors(t *testing.T) {
	if _, err := NewAuthProvider("carrier-pigeon", "", ""); err == nil {
		t.Fatal("expected an error for an unrecognized auth type")
	}
}

func TestNewAuthProvider_TokenRequiresNonEmptyToken(t *testing.T) {
	auth, err := NewAuthProvider("token", "", "")
	if err != nil {
		t.Fatalf("NewAuthProvider: %v", err)
	}
	if _, err := auth.GetAuth(); err == nil {
		t.Fatal("expected GetAuth to reject an empty token")
	}
}

func TestNewAuthProvider_SSHRequiresExistingKeyFile(t *testing.T) {
	auth, err := NewAuthProvider("ssh", "", "/nonexistent/id_rsa")
	if err != nil {
		t.Fatalf("NewAuthProvider: %v", err)
	}
	if _, err := auth.GetAuth(); err == nil {
		t.Fatal("expected GetAuth to reject a missing key file")
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing repo", Config{Path: "w.txt", Branch: "main"}, true},
		{"missing path", Config{Repo: "https://example.invalid/r.git", Branch: "main"}, true},
		{"missing branch", Config{Repo: "https://example.invalid/r.git", Path: "w.txt"}, true},
		{"valid", Config{Repo: "https://example.invalid/r.git", Path: "w.txt", Branch: "main"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
