// Package clusterset implements the cluster-wide enforcement sink: a named
// Proxmox-style firewall IPSet driven through an HTTPS form-encoded
// control plane with API-token authentication.
package clusterset

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ipward/internal/errs"
	"ipward/internal/telemetry/logging"
)

const component = "cluster"

// Config configures access to the cluster firewall control plane.
type Config struct {
	BaseURL        string
	TokenID        string
	TokenSecret    string
	SetName        string
	SkipTLSVerify  bool
	RequestTimeout int // seconds; 0 uses 10 seconds
}

// Entry is one membership entry as returned by get_set.
type Entry struct {
	CIDR    string `json:"cidr"`
	NoMatch bool   `json:"nomatch,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Sink is the cluster IPSet enforcement sink.
type Sink struct {
	cfg        Config
	httpClient *http.Client
	logger     *logging.Logger
}

// New constructs a Sink. Set creation is lazy — it happens on first access
// that finds the set missing, not at construction time.
func New(cfg Config, httpClient *http.Client, logger *logging.Logger) *Sink {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger, _ = logging.New(logging.Config{})
	}
	return &Sink{cfg: cfg, httpClient: httpClient, logger: logger}
}

// NewHTTPClient builds the *http.Client New expects from cfg's TLS and
// timeout settings. Most callers use this rather than constructing their
// own client; tests pass httptest.Server's client directly instead.
func NewHTTPClient(cfg Config) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.SkipTLSVerify}, //nolint:gosec // operator opt-in for self-signed cluster endpoints
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if cfg.RequestTimeout == 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

func (s *Sink) authHeader() string {
	return fmt.Sprintf("PVEAPIToken=%s=%s", s.cfg.TokenID, s.cfg.TokenSecret)
}

func (s *Sink) doRequest(ctx context.Context, method, path string, form url.Values) (*http.Response, []byte, error) {
	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, nil, &errs.NetworkError{Component: component, Cause: err}
	}
	req.Header.Set("Authorization", s.authHeader())
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, &errs.NetworkError{Component: component, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, &errs.NetworkError{Component: component, Cause: err}
	}
	return resp, body, nil
}

// TestConnection probes /version; used by the reconciler's startup
// connectivity check, where failure here is fatal.
func (s *Sink) TestConnection(ctx context.Context) error {
	resp, body, err := s.doRequest(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errs.ApiError{Component: component, StatusCode: resp.StatusCode, Message: string(body)}
	}
	return nil
}

// GetSet returns the named set's current membership, lazily creating the
// set if a read finds it missing.
func (s *Sink) GetSet(ctx context.Context, name string) ([]Entry, error) {
	resp, body, err := s.doRequest(ctx, http.MethodGet, "/cluster/firewall/ipset/"+name, nil)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return decodeEntries(body)
	case http.StatusNotFound:
		if err := s.createSet(ctx, name); err != nil {
			return nil, err
		}
		return nil, nil
	case http.StatusUnauthorized:
		return nil, &errs.AuthFailedError{Component: component, Message: string(body)}
	default:
		return nil, &errs.ApiError{Component: component, StatusCode: resp.StatusCode, Message: string(body)}
	}
}

func (s *Sink) createSet(ctx context.Context, name string) error {
	form := url.Values{}
	form.Set("name", name)
	form.Set("comment", "managed by ipward")

	resp, body, err := s.doRequest(ctx, http.MethodPost, "/cluster/firewall/ipset", form)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if isAlreadyExists(resp.StatusCode, body) {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return &errs.AuthFailedError{Component: component, Message: string(body)}
	}
	return &errs.ApiError{Component: component, StatusCode: resp.StatusCode, Message: string(body)}
}

func isAlreadyExists(status int, body []byte) bool {
	return status == http.StatusUnprocessableEntity || strings.Contains(string(body), "already exists")
}

// Add inserts one entry. HTTP 422 (duplicate) is coalesced to success.
func (s *Sink) Add(ctx context.Context, name, ip, comment string) error {
	form := url.Values{}
	form.Set("cidr", ip)
	if comment != "" {
		form.Set("comment", comment)
	}

	resp, body, err := s.doRequest(ctx, http.MethodPost, "/cluster/firewall/ipset/"+name, form)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &errs.AuthFailedError{Component: component, Message: string(body)}
	default:
		return &errs.ApiError{Component: component, StatusCode: resp.StatusCode, Message: string(body)}
	}
}

// Remove deletes one entry by URL-encoded IP path segment. HTTP 404
// (absent) is coalesced to success.
func (s *Sink) Remove(ctx context.Context, name, ip string) error {
	path := fmt.Sprintf("/cluster/firewall/ipset/%s/%s", name, urlEncodePathSegment(ip))
	resp, body, err := s.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &errs.AuthFailedError{Component: component, Message: string(body)}
	default:
		return &errs.ApiError{Component: component, StatusCode: resp.StatusCode, Message: string(body)}
	}
}

// BulkUpdate applies removes then adds, each wrapped in its own
// try/log-continue so one failing IP never aborts the batch. It returns
// the number of IPs that failed (add or remove, each counted once), since
// spec §4.3 requires per-IP failures to be accounted in metrics, and the
// first AuthFailedError encountered, if any, since that is the one failure
// mode the reconciler must still react to beyond per-IP accounting.
func (s *Sink) BulkUpdate(ctx context.Context, name string, adds, removes []string) (failed int, err error) {
	var authErr error
	removed, added := 0, 0

	for _, ip := range removes {
		if ipErr := s.Remove(ctx, name, ip); ipErr != nil {
			s.logger.Warn("cluster remove failed", "ip", ip, "error", ipErr)
			failed++
			if ae, ok := ipErr.(*errs.AuthFailedError); ok && authErr == nil {
				authErr = ae
			}
			continue
		}
		removed++
	}

	for _, ip := range adds {
		if ipErr := s.Add(ctx, name, ip, ""); ipErr != nil {
			s.logger.Warn("cluster add failed", "ip", ip, "error", ipErr)
			failed++
			if ae, ok := ipErr.(*errs.AuthFailedError); ok && authErr == nil {
				authErr = ae
			}
			continue
		}
		added++
	}

	s.logger.Info("cluster bulk update complete", "added", added, "removed", removed, "failed", failed)
	return failed, authErr
}

func decodeEntries(body []byte) ([]Entry, error) {
	var wrapper struct {
		Data []Entry `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, &errs.ParseError{Component: component, RawResponse: string(body), Cause: err}
	}
	return wrapper.Data, nil
}
