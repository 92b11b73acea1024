package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Tenancy selects how the client authenticates against the agent admin API.
type Tenancy string

const (
	// TenancySingle authenticates with a static admin API key.
	TenancySingle Tenancy = "single"
	// TenancyMulti obtains a per-wallet bearer token from the multitenancy API.
	TenancyMulti Tenancy = "multi"
)

// Config holds the connection settings for the credential agent.
type Config struct {
	AdminURL       string        `env:"ACAPY_ADMIN_URL"`
	AgentURL       string        `env:"ACAPY_AGENT_URL"`
	Tenancy        Tenancy       `env:"ACAPY_TENANCY"        envDefault:"single"`
	AdminAPIKey    string        `env:"ACAPY_ADMIN_API_KEY"`
	WalletID       string        `env:"ACAPY_WALLET_ID"`
	WalletKey      string        `env:"ACAPY_WALLET_KEY"`
	RequestTimeout time.Duration `env:"ACAPY_REQUEST_TIMEOUT" envDefault:"10s"`
}

// Validate checks that the settings required by the selected tenancy mode are present.
func (c *Config) Validate() error {
	if c.AdminURL == "" {
		return fmt.Errorf("missing ACAPY_ADMIN_URL environment variable")
	}
	if c.Tenancy == TenancyMulti && (c.WalletID == "" || c.WalletKey == "") {
		return fmt.Errorf("multi-tenant agent requires ACAPY_WALLET_ID and ACAPY_WALLET_KEY")
	}

	return nil
}

// headerProvider yields the auth headers for an admin API call.
type headerProvider interface {
	headers(ctx context.Context, client *http.Client) (map[string]string, error)
}

type singleTenantHeaders struct {
	apiKey string
}

func (h singleTenantHeaders) headers(context.Context, *http.Client) (map[string]string, error) {
	if h.apiKey == "" {
		return map[string]string{}, nil
	}
	return map[string]string{"x-api-key": h.apiKey}, nil
}

// multiTenantHeaders exchanges the wallet key for a bearer token once and
// reuses it for subsequent calls.
type multiTenantHeaders struct {
	adminURL  string
	walletID  string
	walletKey string

	mu    sync.Mutex
	token string
}

func newMultiTenantHeaders(cfg *Config) *multiTenantHeaders {
	return &multiTenantHeaders{
		adminURL:  cfg.AdminURL,
		walletID:  cfg.WalletID,
		walletKey: cfg.WalletKey,
	}
}

func (h *multiTenantHeaders) headers(ctx context.Context, client *http.Client) (map[string]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.token == "" {
		token, err := h.fetchToken(ctx, client)
		if err != nil {
			return nil, err
		}
		h.token = token
	}

	return map[string]string{"Authorization": "Bearer " + h.token}, nil
}

func (h *multiTenantHeaders) fetchToken(ctx context.Context, client *http.Client) (string, error) {
	url := fmt.Sprintf("%s/multitenancy/wallet/%s/token", h.adminURL, h.walletID)
	payload, err := json.Marshal(map[string]string{"wallet_key": h.walletKey})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("wallet token request returned status %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", fmt.Errorf("wallet token response missing token")
	}

	return body.Token, nil
}
