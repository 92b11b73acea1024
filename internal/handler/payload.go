package handler

import (
	"bytes"
	"encoding/json"

	"github.com/kestrelid/age-verification-api/internal/agent"
	"github.com/kestrelid/age-verification-api/internal/model"
)

type CreateVerificationRequest struct {
	Metadata         map[string]any `json:"metadata"`
	NotifyEndpoint   string         `json:"notify_endpoint"   validate:"omitempty,url"`
	RetainAttributes bool           `json:"retain_attributes"`
}

type CreateVerificationResponse struct {
	ID           string                  `json:"id"`
	Status       model.AuthSessionStatus `json:"status"`
	ChallengeURL string                  `json:"challenge_url"`
	WSToken      string                  `json:"ws_token"`
}

type VerificationResponse struct {
	ID             string                  `json:"id"`
	Status         model.AuthSessionStatus `json:"status"`
	Metadata       map[string]any          `json:"metadata,omitempty"`
	NotifyEndpoint string                  `json:"notify_endpoint,omitempty"`
}

// ProofWebhookPayload is the agent's proof-event webhook body.
type ProofWebhookPayload struct {
	PresentationExchangeID string             `json:"presentation_exchange_id" validate:"required"`
	State                  string             `json:"state"                    validate:"required"`
	Verified               flexBool           `json:"verified"`
	ProofPayload           agent.ProofPayload `json:"proof_payload"`
}

// flexBool accepts the boolean the agent documents and the quoted "true" /
// "false" strings it actually sends.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*b = s == "true"
		return nil
	}

	var v bool
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*b = flexBool(v)
	return nil
}
