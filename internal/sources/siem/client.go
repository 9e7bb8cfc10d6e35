// Package siem implements the source adapter for a Wazuh-style SIEM:
// bearer-token authentication with proactive refresh, alert polling, and
// severity-to-action mapping.
package siem

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"ipward/internal/decision"
	"ipward/internal/errs"
)

const component = "siem"

// tokenState is the SIEM adapter's authentication state machine (spec §4.5,
// §9 "token-carrying adapter state machine").
type tokenState int

const (
	stateUnauthenticated tokenState = iota
	stateAuthenticating
	stateAuthenticated
)

// refreshWindow is how long before expiry the adapter proactively
// re-authenticates.
const refreshWindow = 300 * time.Second

// assumedTokenLifetime is the SIEM's stated token lifetime, used to seed
// expires_at immediately after authentication.
const assumedTokenLifetime = 3600 * time.Second

// Config configures the SIEM adapter.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration

	// VerifyTLS controls certificate verification against BaseURL.
	// The zero value (false) skips verification, so it must be set to true
	// for certificates to be checked.
	VerifyTLS bool
}

// Validate checks the minimal startup invariants: non-empty URL and
// credentials.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return &errs.ConfigurationError{Component: component, Field: "base_url", Message: "must not be empty"}
	}
	if c.Username == "" || c.Password == "" {
		return &errs.ConfigurationError{Component: component, Field: "credentials", Message: "username and password must not be empty"}
	}
	return nil
}

// Alert is a normalized Wazuh alert carrying only the fields the mapping
// cares about.
type Alert struct {
	SourceIP string
	Level    int
	Scenario string
}

type rawAlert struct {
	Data struct {
		SrcIP *string `json:"srcip"`
	} `json:"data"`
	Rule struct {
		Level       int    `json:"level"`
		Description string `json:"description"`
	} `json:"rule"`
}

type alertsResponse struct {
	Data struct {
		AffectedItems []rawAlert `json:"affected_items"`
	} `json:"data"`
}

type authResponse struct {
	Data struct {
		Token string `json:"token"`
	} `json:"data"`
}

// Client is the SIEM source adapter. Its token state is guarded by mu, so
// the reconciler task and the readiness check may call it concurrently.
type Client struct {
	cfg        Config
	httpClient *http.Client

	mu        sync.Mutex
	state     tokenState
	token     string
	expiresAt time.Time
}

// NewClient constructs a Client. cfg must already have passed Validate.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.VerifyTLS}, //nolint:gosec // operator opt-in for self-signed SIEM endpoints
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout, Transport: transport},
		state:      stateUnauthenticated,
	}
}

// Authenticate performs the basic-auth POST and stores the resulting
// bearer token. It is best-effort when called from Reconciler.TestConnections
// (failures are returned to the caller, who decides whether to warn or
// abort).
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	c.state = stateAuthenticating

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/security/user/authenticate", nil)
	if err != nil {
		return &errs.NetworkError{Component: component, Cause: err}
	}
	req.SetBasicAuth(c.cfg.Username, c.cfg.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errs.NetworkError{Component: component, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &errs.NetworkError{Component: component, Cause: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.state = stateUnauthenticated
		return &errs.AuthFailedError{Component: component, Message: string(body)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.state = stateUnauthenticated
		return &errs.ApiError{Component: component, StatusCode: resp.StatusCode, Message: string(body)}
	}

	var auth authResponse
	if err := json.Unmarshal(body, &auth); err != nil {
		c.state = stateUnauthenticated
		return &errs.ParseError{Component: component, RawResponse: string(body), Cause: err}
	}

	c.token = auth.Data.Token
	c.expiresAt = time.Now().Add(assumedTokenLifetime)
	c.state = stateAuthenticated
	return nil
}

// needsRefreshLocked reports whether the adapter should re-authenticate
// before the next alerts call.
func (c *Client) needsRefreshLocked() bool {
	if c.state != stateAuthenticated {
		return true
	}
	return time.Now().After(c.expiresAt.Add(-refreshWindow)) || time.Now().Equal(c.expiresAt.Add(-refreshWindow))
}

// GetAlerts ensures an authenticated state, then issues a GET against the
// alerts endpoint. A single 401 forces one re-authentication and one retry.
func (c *Client) GetAlerts(ctx context.Context, since *time.Time, limit int) ([]Alert, error) {
	c.mu.Lock()
	if c.needsRefreshLocked() {
		if err := c.authenticateLocked(ctx); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}
	c.mu.Unlock()

	alerts, status, err := c.fetchAlerts(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	if status != http.StatusUnauthorized {
		return alerts, nil
	}

	c.mu.Lock()
	c.state = stateUnauthenticated
	authErr := c.authenticateLocked(ctx)
	c.mu.Unlock()
	if authErr != nil {
		return nil, authErr
	}

	alerts, status, err = c.fetchAlerts(ctx, since, limit)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, &errs.AuthFailedError{Component: component, Message: "re-authentication did not resolve 401"}
	}
	return alerts, nil
}

// fetchAlerts issues the GET and returns the decoded alerts plus the raw
// HTTP status so GetAlerts can implement the retry-once rule without a
// second round of error-type inspection.
func (c *Client) fetchAlerts(ctx context.Context, since *time.Time, limit int) ([]Alert, int, error) {
	query := "pretty=true&limit=" + strconv.Itoa(limit)
	if since != nil {
		query += "&timestamp>=" + since.Format(time.RFC3339)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/alerts?"+query, nil)
	if err != nil {
		return nil, 0, &errs.NetworkError{Component: component, Cause: err}
	}

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &errs.NetworkError{Component: component, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &errs.NetworkError{Component: component, Cause: err}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &errs.ApiError{Component: component, StatusCode: resp.StatusCode, Message: string(body)}
	}

	var parsed alertsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, resp.StatusCode, &errs.ParseError{Component: component, RawResponse: string(body), Cause: err}
	}

	alerts := make([]Alert, 0, len(parsed.Data.AffectedItems))
	for _, raw := range parsed.Data.AffectedItems {
		if raw.Data.SrcIP == nil || !decision.ValidIPv4OrCIDR(*raw.Data.SrcIP) {
			continue
		}
		alerts = append(alerts, Alert{
			SourceIP: *raw.Data.SrcIP,
			Level:    raw.Rule.Level,
			Scenario: raw.Rule.Description,
		})
	}
	return alerts, resp.StatusCode, nil
}

// ToActions projects alerts into decisions using the fixed severity
// mapping from spec §4.5. Alerts whose level falls in 0-5 map to monitor
// (caller logs these but never enforces them); 6-10 maps to allow; 11 and
// above maps to ban. Alerts without a source IP are dropped.
func ToActions(alerts []Alert) []decision.Decision {
	out := make([]decision.Decision, 0, len(alerts))
	for _, a := range alerts {
		if a.SourceIP == "" {
			continue
		}
		out = append(out, decision.Decision{
			IP:       a.SourceIP,
			Kind:     kindForLevel(a.Level),
			Origin:   decision.OriginSIEM,
			Scenario: a.Scenario,
		})
	}
	return out
}

// kindForLevel implements the level->kind table from spec §4.5.
func kindForLevel(level int) decision.Kind {
	switch {
	case level <= 5:
		return decision.KindMonitor
	case level <= 10:
		return decision.KindAllow
	default:
		return decision.KindBan
	}
}
