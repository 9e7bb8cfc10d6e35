// Package decision defines the normalized data model shared by every source
// adapter, the reconciler, and both enforcement sinks.
package decision

import "time"

// Kind is the normalized action a Decision carries.
type Kind string

const (
	// KindBan means the IP should be blocked on both enforcement planes.
	KindBan Kind = "ban"
	// KindAllow means the IP should be removed from both enforcement planes.
	KindAllow Kind = "allow"
	// KindMonitor is informational only; it never reaches a sink.
	KindMonitor Kind = "monitor"
)

// Origin identifies which source adapter produced a Decision.
type Origin string

const (
	OriginLAPI Origin = "lapi"
	OriginSIEM Origin = "siem"
)

// Decision is one unit of upstream truth, normalized from either the LAPI
// delta stream or a SIEM alert. See spec §3.
type Decision struct {
	// IP is a textual IPv4 address or IPv4/CIDR literal.
	IP string

	Kind Kind

	Origin Origin

	// Scenario is a free-form reason string (scenario name or rule description).
	Scenario string

	// TTL is optional; zero means "valid until upstream deletes it".
	TTL time.Duration

	// Simulated mirrors LAPI's simulated flag; simulated decisions are
	// filtered before they reach either sink (spec §9, resolved in
	// SPEC_FULL.md §4.6).
	Simulated bool
}

// IsEnforceable reports whether a Decision should ever reach a sink.
// Monitor decisions and simulated decisions are never enforceable.
func (d Decision) IsEnforceable() bool {
	return d.Kind != KindMonitor && !d.Simulated
}
