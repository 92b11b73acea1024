// Package notify delivers verification outcome events to interested parties:
// a live websocket connection when one exists, and the creator's callback
// endpoint when one was registered. Delivery is best effort on both channels;
// the poll endpoint is the durable fallback.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelid/age-verification-api/internal/model"
)

// PushTransport is the real-time channel the dispatcher emits status events
// over. Connection bookkeeping belongs to the transport, not the dispatcher.
type PushTransport interface {
	Emit(connID, event string, payload any) error
	ResolveConnection(sessionID string) (string, bool)
}

// Dispatcher delivers one outcome event per terminal transition. The
// lifecycle engine guarantees the at-most-once-per-transition rule; the
// dispatcher only guarantees it never propagates delivery failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, sessionID string, status model.AuthSessionStatus, notifyEndpoint string)
}

type statusEvent struct {
	Status model.AuthSessionStatus `json:"status"`
}

type dispatcher struct {
	push       PushTransport
	httpClient *http.Client
	logger     *zerolog.Logger
}

// dispatcherConfig holds delivery settings for callback notifications.
type dispatcherConfig struct {
	CallbackTimeout time.Duration `env:"NOTIFY_CALLBACK_TIMEOUT" envDefault:"5s"`
}

// NewDispatcher creates a Dispatcher pushing over transport and posting to
// callback endpoints with a bounded timeout.
func NewDispatcher(push PushTransport, logger *zerolog.Logger) Dispatcher {
	cfg, err := env.ParseAs[dispatcherConfig]()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse environment variables")
	}

	return &dispatcher{
		push:       push,
		httpClient: &http.Client{Timeout: cfg.CallbackTimeout},
		logger:     logger,
	}
}

func (d *dispatcher) Dispatch(
	ctx context.Context,
	sessionID string,
	status model.AuthSessionStatus,
	notifyEndpoint string,
) {
	event := statusEvent{Status: status}

	if connID, ok := d.push.ResolveConnection(sessionID); ok {
		if err := d.push.Emit(connID, "status", event); err != nil {
			// Connection gone; the client falls back to polling.
			d.logger.Warn().
				Err(err).
				Str("session_id", sessionID).
				Msg("failed to push status event")
		}
	}

	if notifyEndpoint != "" {
		d.deliverCallback(ctx, sessionID, event, notifyEndpoint)
	}
}

// deliverCallback issues a single POST to the registered endpoint. The
// endpoint format is url#secret; the secret, when present, travels in the
// x-api-key header. No retry, no delivery tracking.
func (d *dispatcher) deliverCallback(
	ctx context.Context,
	sessionID string,
	event statusEvent,
	endpoint string,
) {
	url, secret, _ := strings.Cut(endpoint, "#")

	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to encode callback payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to build callback request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", uuid.NewString())
	if secret != "" {
		req.Header.Set("x-api-key", secret)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("url", url).
			Msg("callback notification failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.Warn().
			Int("status", resp.StatusCode).
			Str("session_id", sessionID).
			Str("url", url).
			Msg("callback notification rejected")
	}
}
