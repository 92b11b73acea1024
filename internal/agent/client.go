// Package agent talks to the external credential verification agent's admin
// API. Proof verification itself is delegated to the agent; this package only
// creates presentation requests and reads back exchange records.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	createPresentationRequestPath = "/present-proof/create-request"
	presentProofRecordsPath       = "/present-proof/records"
)

// Client defines the operations the lifecycle engine needs from the
// credential agent.
type Client interface {
	// CreatePresentationRequest asks the agent for a fresh proof exchange and
	// returns its correlation id plus the exchange descriptor.
	CreatePresentationRequest(ctx context.Context) (*CreatePresentationResponse, error)

	// FetchExchangeRecord retrieves the proof payload (revealed attribute
	// groups) of a completed exchange.
	FetchExchangeRecord(ctx context.Context, presExchID string) (ProofPayload, error)

	// VerifyPresentation asks the agent to verify a received presentation.
	VerifyPresentation(ctx context.Context, presExchID string) error
}

// CreatePresentationResponse is the subset of the agent's create-request
// response the engine cares about.
type CreatePresentationResponse struct {
	PresentationExchangeID string          `json:"presentation_exchange_id"`
	ThreadID               string          `json:"thread_id"`
	PresentationRequest    json.RawMessage `json:"presentation_request"`
}

type exchangeRecord struct {
	Presentation struct {
		RequestedProof struct {
			RevealedAttrGroups ProofPayload `json:"revealed_attr_groups"`
		} `json:"requested_proof"`
	} `json:"presentation"`
}

type acapyClient struct {
	config     *Config
	headers    headerProvider
	httpClient *http.Client
	proofSpec  ProofRequestSpec
	logger     *zerolog.Logger
}

// NewClient creates an agent client against the configured admin API.
func NewClient(cfg *Config, logger *zerolog.Logger) Client {
	var headers headerProvider
	switch cfg.Tenancy {
	case TenancyMulti:
		headers = newMultiTenantHeaders(cfg)
	default:
		headers = singleTenantHeaders{apiKey: cfg.AdminAPIKey}
	}

	return &acapyClient{
		config:     cfg,
		headers:    headers,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		proofSpec:  DefaultAgeProofRequest(),
		logger:     logger,
	}
}

func (c *acapyClient) CreatePresentationRequest(ctx context.Context) (*CreatePresentationResponse, error) {
	payload := map[string]any{
		"proof_request": BuildProofRequest(c.proofSpec, time.Now()),
	}

	body, err := c.do(ctx, http.MethodPost, c.config.AdminURL+createPresentationRequestPath, payload)
	if err != nil {
		return nil, err
	}

	var resp CreatePresentationResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode create-request response: %w", err)
	}
	if resp.PresentationExchangeID == "" {
		return nil, fmt.Errorf("create-request response missing presentation_exchange_id")
	}

	return &resp, nil
}

func (c *acapyClient) FetchExchangeRecord(ctx context.Context, presExchID string) (ProofPayload, error) {
	body, err := c.do(ctx, http.MethodGet, c.config.AdminURL+presentProofRecordsPath+"/"+presExchID, nil)
	if err != nil {
		return nil, err
	}

	var record exchangeRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("decode exchange record: %w", err)
	}

	return record.Presentation.RequestedProof.RevealedAttrGroups, nil
}

func (c *acapyClient) VerifyPresentation(ctx context.Context, presExchID string) error {
	url := c.config.AdminURL + presentProofRecordsPath + "/" + presExchID + "/verify-presentation"
	if _, err := c.do(ctx, http.MethodPost, url, nil); err != nil {
		return err
	}

	return nil
}

func (c *acapyClient) do(ctx context.Context, method, url string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	headers, err := c.headers.headers(ctx, c.httpClient)
	if err != nil {
		return nil, fmt.Errorf("agent credentials: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("agent request failed")
		return nil, fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	return body, nil
}
