package whitelist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestLoadFile_FiltersCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "whitelist.txt", "203.0.113.5\n# a trusted scanner\n\n198.51.100.9\n  \n")

	entries, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(entries) != 2 || entries[0] != "203.0.113.5" || entries[1] != "198.51.100.9" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestLoadFile_MissingFileReturnsEmpty(t *testing.T) {
	entries, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries, got %v", entries)
	}
}

func TestLoadFile_EmptyPathReturnsEmpty(t *testing.T) {
	entries, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if entries != nil {
		t.Errorf("expected nil entries for empty path, got %v", entries)
	}
}

func TestManager_Refresh_FileOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "whitelist.txt", "203.0.113.5\n")

	m := NewManager(path, nil, nil)
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	wl := m.Current()
	if !wl.Contains("203.0.113.5") {
		t.Error("expected file entry to be present in the unioned whitelist")
	}
	if wl.Contains("198.51.100.9") {
		t.Error("did not expect an unlisted IP to be whitelisted")
	}
}

func TestManager_Current_DefaultsToEmptyBeforeRefresh(t *testing.T) {
	m := NewManager("", nil, nil)
	if m.Current().Len() != 0 {
		t.Error("expected an empty whitelist before the first Refresh")
	}
}
