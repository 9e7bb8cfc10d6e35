// Package lapi implements the source adapter for a CrowdSec-style Local
// API: delta-stream polling, heartbeat, and decision decoding.
package lapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ipward/internal/decision"
	"ipward/internal/errs"
)

const component = "lapi"

// Config configures the LAPI adapter.
type Config struct {
	// BaseURL is the LAPI root, e.g. "https://crowdsec.internal:8080".
	BaseURL string

	// APIKey is sent as the X-Api-Key header on every request.
	APIKey string

	// PollInterval must be at least 10s (validated by Validate).
	PollInterval time.Duration

	// MachineID is a stable identifier used to authenticate heartbeat. If
	// empty, one is generated once at construction time.
	MachineID string

	// Timeout bounds each individual HTTP call. Defaults to 10s.
	Timeout time.Duration
}

// Validate applies the startup validation rules from the LAPI adapter spec:
// non-empty URL, non-empty API key, poll interval >= 10s.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return &errs.ConfigurationError{Component: component, Field: "base_url", Message: "must not be empty"}
	}
	if c.APIKey == "" {
		return &errs.ConfigurationError{Component: component, Field: "api_key", Message: "must not be empty"}
	}
	if c.PollInterval < 10*time.Second {
		return &errs.ConfigurationError{Component: component, Field: "poll_interval", Message: "must be at least 10s"}
	}
	return nil
}

// rawDecision is the wire shape of one LAPI decision entry.
type rawDecision struct {
	ID        int    `json:"id"`
	Origin    string `json:"origin"`
	Type      string `json:"type"`
	Scope     string `json:"scope"`
	Value     string `json:"value"`
	Duration  string `json:"duration"`
	Scenario  string `json:"scenario"`
	Simulated bool   `json:"simulated"`
}

type streamResponse struct {
	New     []rawDecision `json:"new"`
	Deleted []rawDecision `json:"deleted"`
}

// Decisions is the decoded, normalized result of one get_decisions call.
type Decisions struct {
	New     []decision.Decision
	Deleted []decision.Decision
}

// Client is the LAPI source adapter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	machineID  string
}

// NewClient constructs a Client. cfg must already have passed Validate.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	machineID := cfg.MachineID
	if machineID == "" {
		machineID = uuid.NewString()
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		machineID:  machineID,
	}
}

// MachineID returns the adapter's stable machine identifier.
func (c *Client) MachineID() string { return c.machineID }

// GetDecisions performs one round trip against /v1/decisions/stream. startup
// requests the full current decision corpus rather than a delta.
func (c *Client) GetDecisions(ctx context.Context, startup bool) (Decisions, error) {
	url := c.cfg.BaseURL + "/v1/decisions/stream"
	if startup {
		url += "?startup=true"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Decisions{}, &errs.NetworkError{Component: component, Cause: err}
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Decisions{}, &errs.NetworkError{Component: component, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Decisions{}, &errs.NetworkError{Component: component, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Decisions{}, &errs.AuthFailedError{Component: component, Message: string(body)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Decisions{}, &errs.ApiError{Component: component, StatusCode: resp.StatusCode, Message: string(body)}
	}

	var stream streamResponse
	if err := json.Unmarshal(body, &stream); err != nil {
		return Decisions{}, &errs.ParseError{Component: component, RawResponse: string(body), Cause: err}
	}

	return Decisions{
		New:     decodeDecisions(stream.New),
		Deleted: decodeDecisions(stream.Deleted),
	}, nil
}

// decodeDecisions applies the §4.4 filtering rule: only type=="ban" and
// scope=="Ip" (case-sensitive) survive, and a missing or syntactically
// invalid value drops the entry (spec §3's ip invariant).
func decodeDecisions(raw []rawDecision) []decision.Decision {
	out := make([]decision.Decision, 0, len(raw))
	for _, d := range raw {
		if d.Type != "ban" || d.Scope != "Ip" {
			continue
		}
		if !decision.ValidIPv4OrCIDR(d.Value) {
			continue
		}

		var ttl time.Duration
		if d.Duration != "" {
			if parsed, err := parseLAPIDuration(d.Duration); err == nil {
				ttl = parsed
			}
		}

		out = append(out, decision.Decision{
			IP:        d.Value,
			Kind:      decision.KindBan,
			Origin:    decision.OriginLAPI,
			Scenario:  d.Scenario,
			TTL:       ttl,
			Simulated: d.Simulated,
		})
	}
	return out
}

// Heartbeat issues a best-effort POST to /v1/heartbeat. Failures are never
// propagated to the caller; the reconciler treats this call as fire-and-forget.
func (c *Client) Heartbeat(ctx context.Context) {
	body, err := json.Marshal(map[string]string{"machine_id": c.machineID})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/heartbeat", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("X-Api-Key", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}

// parseLAPIDuration parses CrowdSec's duration strings, which look like
// "4h32m12s" or "-1" (meaning no expiry) using the stdlib duration grammar.
// Anything it can't parse is treated as "no TTL" by the caller.
func parseLAPIDuration(s string) (time.Duration, error) {
	if s == "" || s == "-1" {
		return 0, fmt.Errorf("no ttl")
	}
	return time.ParseDuration(s)
}
