package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testConfig(adminURL string) *Config {
	return &Config{
		AdminURL:       adminURL,
		Tenancy:        TenancySingle,
		AdminAPIKey:    "admin-key",
		RequestTimeout: 2 * time.Second,
	}
}

func TestCreatePresentationRequest(t *testing.T) {
	var gotAPIKey string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != createPresentationRequestPath {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAPIKey = r.Header.Get("x-api-key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}

		writeAgentJSON(t, w, map[string]any{
			"presentation_exchange_id": "pe-123",
			"thread_id":                "th-1",
		})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testConfig(server.URL), &logger)

	resp, err := client.CreatePresentationRequest(context.Background())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if resp.PresentationExchangeID != "pe-123" {
		t.Fatalf("pres exch id = %q", resp.PresentationExchangeID)
	}
	if gotAPIKey != "admin-key" {
		t.Fatalf("x-api-key = %q", gotAPIKey)
	}

	proofReq, ok := gotBody["proof_request"].(map[string]any)
	if !ok {
		t.Fatal("request body missing proof_request")
	}
	if _, ok := proofReq["requested_attributes"].(map[string]any)["req_attr_0"]; !ok {
		t.Fatalf("proof request missing labeled attribute: %v", proofReq)
	}
}

func TestCreatePresentationRequestAgentError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testConfig(server.URL), &logger)

	if _, err := client.CreatePresentationRequest(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx agent response")
	}
}

func TestCreatePresentationRequestMissingExchangeID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeAgentJSON(t, w, map[string]any{"thread_id": "th-1"})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testConfig(server.URL), &logger)

	if _, err := client.CreatePresentationRequest(context.Background()); err == nil {
		t.Fatal("expected error when response lacks presentation_exchange_id")
	}
}

func TestFetchExchangeRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != presentProofRecordsPath+"/pe-123" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		writeAgentJSON(t, w, map[string]any{
			"presentation": map[string]any{
				"requested_proof": map[string]any{
					"revealed_attr_groups": map[string]any{
						"group1": map[string]any{
							"values": map[string]any{
								"age_over_19": map[string]any{"raw": "true"},
							},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testConfig(server.URL), &logger)

	payload, err := client.FetchExchangeRecord(context.Background(), "pe-123")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	flat := FlattenRevealedAttributes(payload)
	if flat["age_over_19"] != "true" {
		t.Fatalf("age_over_19 = %v", flat["age_over_19"])
	}
}

func TestVerifyPresentation(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == presentProofRecordsPath+"/pe-123/verify-presentation" && r.Method == http.MethodPost {
			called = true
		}
		writeAgentJSON(t, w, map[string]any{})
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(testConfig(server.URL), &logger)

	if err := client.VerifyPresentation(context.Background(), "pe-123"); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if !called {
		t.Fatal("verify-presentation endpoint not called")
	}
}

func TestMultiTenantWalletToken(t *testing.T) {
	tokenRequests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/multitenancy/wallet/w-1/token":
			tokenRequests++
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["wallet_key"] != "wallet-key" {
				t.Errorf("bad wallet token request: %v %v", body, err)
			}
			writeAgentJSON(t, w, map[string]any{"token": "wallet-token"})
		case createPresentationRequestPath:
			if got := r.Header.Get("Authorization"); got != "Bearer wallet-token" {
				t.Errorf("Authorization = %q", got)
			}
			writeAgentJSON(t, w, map[string]any{"presentation_exchange_id": "pe-1"})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	logger := zerolog.Nop()
	client := NewClient(&Config{
		AdminURL:       server.URL,
		Tenancy:        TenancyMulti,
		WalletID:       "w-1",
		WalletKey:      "wallet-key",
		RequestTimeout: 2 * time.Second,
	}, &logger)

	for i := 0; i < 2; i++ {
		if _, err := client.CreatePresentationRequest(context.Background()); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
	}

	if tokenRequests != 1 {
		t.Fatalf("wallet token fetched %d times, want 1", tokenRequests)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing admin url")
	}

	cfg = &Config{AdminURL: "http://agent", Tenancy: TenancyMulti}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for multi tenancy without wallet credentials")
	}

	cfg = &Config{AdminURL: "http://agent"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func writeAgentJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}
