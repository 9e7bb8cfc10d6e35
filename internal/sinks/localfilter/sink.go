// Package localfilter implements the host-local enforcement sink: an
// nftables named IPv4 set inside a named table, referenced by a drop rule
// in a named chain.
package localfilter

import (
	"context"
	"fmt"

	"ipward/internal/decision"
	"ipward/internal/errs"
)

const component = "local"

// Config names the nftables objects this sink manages.
type Config struct {
	// Family is the nftables address family, e.g. "inet".
	Family string
	Table  string
	Chain  string
	Set    string

	// Binary overrides the nft executable name, primarily for tests.
	Binary string
}

// Sink is the local packet-filter enforcement sink. It is stateless across
// calls — every operation re-probes or re-asserts the subsystem state.
type Sink struct {
	cfg    Config
	runner runner
}

// New constructs a Sink and runs its initialization contract: ensure the
// table, set, and drop rule exist, creating whichever are missing.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	s := &Sink{cfg: cfg, runner: newExecRunner(cfg.Binary)}
	if err := s.ensureInitialized(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureInitialized(ctx context.Context) error {
	if _, _, exit, err := s.runner.run(ctx, "list", "set", s.cfg.Family, s.cfg.Table, s.cfg.Set); err == nil && exit == 0 {
		return nil
	}

	if _, stderr, exit, err := s.runner.run(ctx, "add", "table", s.cfg.Family, s.cfg.Table); err != nil {
		return &errs.SubsystemError{Component: component, Operation: "add table", Cause: err}
	} else if exit != 0 && !idempotencyCoalesced(stderr) {
		return &errs.SubsystemError{Component: component, Operation: "add table", Cause: fmt.Errorf("%s", stderr)}
	}

	setSpec := fmt.Sprintf("%s %s { type ipv4_addr; flags interval; }", s.cfg.Table, s.cfg.Set)
	if _, stderr, exit, err := s.runner.run(ctx, "add", "set", s.cfg.Family, setSpec); err != nil {
		return &errs.SubsystemError{Component: component, Operation: "add set", Cause: err}
	} else if exit != 0 && !idempotencyCoalesced(stderr) {
		return &errs.SubsystemError{Component: component, Operation: "add set", Cause: fmt.Errorf("%s", stderr)}
	}

	ruleSpec := fmt.Sprintf("%s %s ip saddr @%s drop", s.cfg.Table, s.cfg.Chain, s.cfg.Set)
	if _, stderr, exit, err := s.runner.run(ctx, "add", "rule", s.cfg.Family, ruleSpec); err != nil {
		return &errs.SubsystemError{Component: component, Operation: "add rule", Cause: err}
	} else if exit != 0 && !idempotencyCoalesced(stderr) {
		return &errs.SubsystemError{Component: component, Operation: "add rule", Cause: fmt.Errorf("%s", stderr)}
	}

	return nil
}

// Add inserts ip into the set. "Object exists" is coalesced to success.
func (s *Sink) Add(ctx context.Context, ip string) error {
	if !decision.ValidIPv4(ip) {
		return &errs.InvalidInputError{Component: component, Field: "ip", Value: ip, Message: "must be a structurally valid IPv4 address"}
	}

	elemSpec := fmt.Sprintf("%s %s { %s }", s.cfg.Table, s.cfg.Set, ip)
	_, stderr, exit, err := s.runner.run(ctx, "add", "element", s.cfg.Family, elemSpec)
	if err != nil {
		return &errs.SubsystemError{Component: component, Operation: "add element", Cause: err}
	}
	if exit != 0 && !idempotencyCoalesced(stderr) {
		return &errs.SubsystemError{Component: component, Operation: "add element", Cause: fmt.Errorf("%s", stderr)}
	}
	return nil
}

// Remove deletes ip from the set. "No such file or directory" is
// coalesced to success.
func (s *Sink) Remove(ctx context.Context, ip string) error {
	if !decision.ValidIPv4(ip) {
		return &errs.InvalidInputError{Component: component, Field: "ip", Value: ip, Message: "must be a structurally valid IPv4 address"}
	}

	elemSpec := fmt.Sprintf("%s %s { %s }", s.cfg.Table, s.cfg.Set, ip)
	_, stderr, exit, err := s.runner.run(ctx, "delete", "element", s.cfg.Family, elemSpec)
	if err != nil {
		return &errs.SubsystemError{Component: component, Operation: "delete element", Cause: err}
	}
	if exit != 0 && !idempotencyCoalesced(stderr) {
		return &errs.SubsystemError{Component: component, Operation: "delete element", Cause: fmt.Errorf("%s", stderr)}
	}
	return nil
}

// List returns the set's current membership as textual IPs, used to
// populate the currently_banned gauge.
func (s *Sink) List(ctx context.Context) ([]string, error) {
	stdout, stderr, exit, err := s.runner.run(ctx, "list", "set", s.cfg.Family, s.cfg.Table, s.cfg.Set)
	if err != nil {
		return nil, &errs.SubsystemError{Component: component, Operation: "list set", Cause: err}
	}
	if exit != 0 {
		return nil, &errs.SubsystemError{Component: component, Operation: "list set", Cause: fmt.Errorf("%s", stderr)}
	}
	return parseSetMembers(stdout), nil
}

// Flush removes all members of the set.
func (s *Sink) Flush(ctx context.Context) error {
	_, stderr, exit, err := s.runner.run(ctx, "flush", "set", s.cfg.Family, s.cfg.Table, s.cfg.Set)
	if err != nil {
		return &errs.SubsystemError{Component: component, Operation: "flush set", Cause: err}
	}
	if exit != 0 {
		return &errs.SubsystemError{Component: component, Operation: "flush set", Cause: fmt.Errorf("%s", stderr)}
	}
	return nil
}
