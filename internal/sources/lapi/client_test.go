package lapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ipward/internal/decision"
	"ipward/internal/errs"
)

func testConfig(url string) Config {
	return Config{
		BaseURL:      url,
		APIKey:       "test-key",
		PollInterval: 30 * time.Second,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", testConfig("https://lapi.internal"), false},
		{"empty url", Config{APIKey: "k", PollInterval: 30 * time.Second}, true},
		{"empty key", Config{BaseURL: "https://x", PollInterval: 30 * time.Second}, true},
		{"interval too short", Config{BaseURL: "https://x", APIKey: "k", PollInterval: 5 * time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestClient_GetDecisions_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Api-Key"); got != "test-key" {
			t.Errorf("expected X-Api-Key header, got %q", got)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"new": [{"type":"ban","scope":"Ip","value":"203.0.113.5","scenario":"ssh-bf","duration":"4h0m0s"}],
			"deleted": []
		}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	got, err := client.GetDecisions(context.Background(), false)
	if err != nil {
		t.Fatalf("GetDecisions() error = %v", err)
	}
	if len(got.New) != 1 {
		t.Fatalf("expected 1 new decision, got %d", len(got.New))
	}
	if got.New[0].IP != "203.0.113.5" || got.New[0].Kind != decision.KindBan {
		t.Errorf("unexpected decision: %+v", got.New[0])
	}
}

func TestClient_GetDecisions_FiltersNonBanAndNonIP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"new": [
				{"type":"captcha","scope":"Ip","value":"203.0.113.5"},
				{"type":"ban","scope":"Range","value":"203.0.113.0/24"},
				{"type":"ban","scope":"Ip","value":""},
				{"type":"ban","scope":"Ip","value":"not-an-ip"},
				{"type":"ban","scope":"Ip","value":"198.51.100.9"}
			],
			"deleted": []
		}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	got, err := client.GetDecisions(context.Background(), false)
	if err != nil {
		t.Fatalf("GetDecisions() error = %v", err)
	}
	if len(got.New) != 1 || got.New[0].IP != "198.51.100.9" {
		t.Fatalf("expected only 198.51.100.9 to survive filtering, got %+v", got.New)
	}
}

func TestClient_GetDecisions_AcceptsCIDRValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{
			"new": [{"type":"ban","scope":"Ip","value":"203.0.113.0/24"}],
			"deleted": []
		}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	got, err := client.GetDecisions(context.Background(), false)
	if err != nil {
		t.Fatalf("GetDecisions() error = %v", err)
	}
	if len(got.New) != 1 || got.New[0].IP != "203.0.113.0/24" {
		t.Fatalf("expected the CIDR value to survive decoding, got %+v", got.New)
	}
}

func TestClient_GetDecisions_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.GetDecisions(context.Background(), false)
	if _, ok := err.(*errs.AuthFailedError); !ok {
		t.Fatalf("expected AuthFailedError, got %T: %v", err, err)
	}
}

func TestClient_GetDecisions_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.GetDecisions(context.Background(), false)
	if _, ok := err.(*errs.ParseError); !ok {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
}

func TestClient_GetDecisions_ApiError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	_, err := client.GetDecisions(context.Background(), false)
	if _, ok := err.(*errs.ApiError); !ok {
		t.Fatalf("expected ApiError, got %T: %v", err, err)
	}
}

func TestClient_GetDecisions_StartupFlag(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"new":[],"deleted":[]}`))
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	if _, err := client.GetDecisions(context.Background(), true); err != nil {
		t.Fatalf("GetDecisions() error = %v", err)
	}
	if gotQuery != "startup=true" {
		t.Errorf("expected startup=true query, got %q", gotQuery)
	}
}

func TestClient_MachineID_GeneratedOnce(t *testing.T) {
	client := NewClient(testConfig("https://lapi.internal"))
	first := client.MachineID()
	second := client.MachineID()
	if first == "" {
		t.Fatal("expected non-empty machine id")
	}
	if first != second {
		t.Errorf("machine id changed between calls: %q != %q", first, second)
	}
}

func TestClient_MachineID_FromConfig(t *testing.T) {
	client := NewClient(Config{
		BaseURL:      "https://lapi.internal",
		APIKey:       "k",
		PollInterval: 30 * time.Second,
		MachineID:    "fixed-id",
	})
	if got := client.MachineID(); got != "fixed-id" {
		t.Errorf("MachineID() = %q, want %q", got, "fixed-id")
	}
}

func TestClient_Heartbeat_NeverPanics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL))
	client.Heartbeat(context.Background())
}
