package decision

import (
	"testing"
	"time"
)

func TestWhitelistContains(t *testing.T) {
	w := NewWhitelist([]string{"203.0.113.5", "198.51.100.9"})

	if !w.Contains("203.0.113.5") {
		t.Error("expected 203.0.113.5 to be whitelisted")
	}
	if w.Contains("203.0.113.6") {
		t.Error("expected 203.0.113.6 to not be whitelisted")
	}
	if w.Contains("203.0.113.5/32") {
		t.Error("whitelist must not perform CIDR containment, only exact match")
	}
}

func TestWhitelistNilSafe(t *testing.T) {
	var w *Whitelist
	if w.Contains("203.0.113.5") {
		t.Error("nil whitelist must never match")
	}
	if w.Len() != 0 {
		t.Error("nil whitelist must report zero length")
	}
}

func TestSyncTickDedup(t *testing.T) {
	tick := NewSyncTick(time.Now())
	tick.AddBan("203.0.113.5")
	tick.AddBan("203.0.113.5")
	tick.AddUnban("198.51.100.9")

	if len(tick.ToBan) != 1 {
		t.Errorf("expected deduplicated ToBan of length 1, got %d", len(tick.ToBan))
	}
	if len(tick.ToUnban) != 1 {
		t.Errorf("expected ToUnban of length 1, got %d", len(tick.ToUnban))
	}
}
