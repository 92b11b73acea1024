package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/kestrelid/age-verification-api/internal/usecase"
)

// VerificationHandler exposes the verification lifecycle over HTTP.
type VerificationHandler struct {
	verificationUsecase usecase.VerificationUsecase
	validate            *validator.Validate
	logger              *zerolog.Logger
}

// NewVerificationHandler creates a new VerificationHandler instance.
func NewVerificationHandler(
	verificationUsecase usecase.VerificationUsecase,
	logger *zerolog.Logger,
) *VerificationHandler {
	return &VerificationHandler{
		verificationUsecase: verificationUsecase,
		validate:            validator.New(validator.WithRequiredStructEnabled()),
		logger:              logger,
	}
}

// RegisterRoutes mounts the verification endpoints on r.
func (h *VerificationHandler) RegisterRoutes(r chi.Router) {
	r.Post("/verifications", h.CreateVerification)
	r.Get("/verifications/{id}", h.GetVerification)
	r.Delete("/verifications/{id}", h.AbortVerification)
	r.Post("/webhooks/topic/{topic}", h.HandleAgentWebhook)
}

func (h *VerificationHandler) CreateVerification(w http.ResponseWriter, r *http.Request) {
	var req CreateVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.verificationUsecase.CreateVerification(r.Context(), usecase.CreateVerificationParams{
		Metadata:         req.Metadata,
		NotifyEndpoint:   req.NotifyEndpoint,
		RetainAttributes: req.RetainAttributes,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create verification")

		if errors.Is(err, usecase.ErrUpstreamUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "credential agent unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, CreateVerificationResponse{
		ID:           result.ID,
		Status:       result.Status,
		ChallengeURL: result.ChallengeURL,
		WSToken:      result.WSToken,
	})
}

func (h *VerificationHandler) GetVerification(w http.ResponseWriter, r *http.Request) {
	view, err := h.verificationUsecase.GetVerification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, usecase.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "verification not found")
			return
		}

		h.logger.Error().Err(err).Msg("failed to read verification")
		writeError(w, http.StatusInternalServerError, "something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, VerificationResponse{
		ID:             view.ID,
		Status:         view.Status,
		Metadata:       view.Metadata,
		NotifyEndpoint: view.NotifyEndpoint,
	})
}

func (h *VerificationHandler) AbortVerification(w http.ResponseWriter, r *http.Request) {
	err := h.verificationUsecase.AbortVerification(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "verification not found")
		case errors.Is(err, usecase.ErrDuplicateEvent):
			writeError(w, http.StatusConflict, "verification already completed")
		default:
			h.logger.Error().Err(err).Msg("failed to abort verification")
			writeError(w, http.StatusInternalServerError, "something went wrong")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleAgentWebhook is called by the credential agent. Replayed events are
// acknowledged without a state change so the agent never retries them.
func (h *VerificationHandler) HandleAgentWebhook(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	if topic != "present_proof" {
		h.logger.Debug().Str("topic", topic).Msg("skipping webhook")
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}

	var payload ProofWebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook body")
		return
	}

	if err := h.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.verificationUsecase.HandleProofEvent(r.Context(), usecase.ProofEvent{
		PresExchID: payload.PresentationExchangeID,
		State:      payload.State,
		Verified:   bool(payload.Verified),
		Payload:    payload.ProofPayload,
	})
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "unknown presentation exchange")
		case errors.Is(err, usecase.ErrDuplicateEvent):
			h.logger.Warn().
				Str("pres_exch_id", payload.PresentationExchangeID).
				Msg("duplicate proof event acknowledged")
			writeJSON(w, http.StatusOK, map[string]any{})
		case errors.Is(err, usecase.ErrConflictingTransition):
			writeError(w, http.StatusServiceUnavailable, "conflicting update, retry")
		default:
			h.logger.Error().Err(err).Msg("failed to handle proof event")
			writeError(w, http.StatusInternalServerError, "something went wrong")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
