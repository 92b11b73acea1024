package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/kestrelid/age-verification-api/internal/agent"
	"github.com/kestrelid/age-verification-api/internal/auth"
	"github.com/kestrelid/age-verification-api/internal/cache"
	"github.com/kestrelid/age-verification-api/internal/config"
	"github.com/kestrelid/age-verification-api/internal/model"
	"github.com/kestrelid/age-verification-api/internal/notify"
	"github.com/kestrelid/age-verification-api/internal/repository"
)

// VerificationUsecase defines the lifecycle operations on age verification sessions.
type VerificationUsecase interface {
	// CreateVerification obtains a proof challenge from the credential agent
	// and persists a new session around it.
	CreateVerification(ctx context.Context, params CreateVerificationParams) (*CreateVerificationResult, error)

	// GetVerification returns the read-only projection of a session, applying
	// the lazy expiry check first.
	GetVerification(ctx context.Context, id string) (*VerificationView, error)

	// AbortVerification cancels a non-terminal session.
	AbortVerification(ctx context.Context, id string) error

	// HandleProofEvent correlates an asynchronous proof event from the agent
	// back to its session and applies the matching status transition.
	HandleProofEvent(ctx context.Context, event ProofEvent) error
}

// CreateVerificationParams defines the parameters for creating a verification session.
type CreateVerificationParams struct {
	Metadata         map[string]any
	NotifyEndpoint   string
	RetainAttributes bool
}

// CreateVerificationResult carries the new session id and the challenge
// artifacts handed to the end user.
type CreateVerificationResult struct {
	ID           string
	Status       model.AuthSessionStatus
	ChallengeURL string
	WSToken      string
}

// VerificationView is the read-only projection returned to callers. It never
// carries the presentation exchange id or the raw proof payload.
type VerificationView struct {
	ID             string
	Status         model.AuthSessionStatus
	Metadata       map[string]any
	NotifyEndpoint string
}

// Proof event states reported by the agent.
const (
	ProofStateReceived = "presentation_received"
	ProofStateVerified = "verified"
)

// ProofEvent is one asynchronous report from the credential agent about a
// proof exchange.
type ProofEvent struct {
	PresExchID string
	State      string
	Verified   bool
	Payload    agent.ProofPayload
}

var (
	ErrSessionNotFound       = errors.New("verification session not found")
	ErrDuplicateEvent        = errors.New("verification session already reached a terminal status")
	ErrUpstreamUnavailable   = errors.New("credential agent unavailable")
	ErrConflictingTransition = errors.New("conflicting concurrent status transition")
)

type verificationUsecase struct {
	sessionRepo repository.AuthSessionRepository
	attrCache   cache.AttributeCache
	agentClient agent.Client
	dispatcher  notify.Dispatcher
	tokenAuth   auth.SessionTokenAuthenticator
	sessionCfg  *config.SessionConfig
	logger      *zerolog.Logger
}

// NewVerificationUsecase creates a new instance of VerificationUsecase.
func NewVerificationUsecase(
	sessionRepo repository.AuthSessionRepository,
	attrCache cache.AttributeCache,
	agentClient agent.Client,
	dispatcher notify.Dispatcher,
	tokenAuth auth.SessionTokenAuthenticator,
	sessionCfg *config.SessionConfig,
	logger *zerolog.Logger,
) VerificationUsecase {
	return &verificationUsecase{
		sessionRepo: sessionRepo,
		attrCache:   attrCache,
		agentClient: agentClient,
		dispatcher:  dispatcher,
		tokenAuth:   tokenAuth,
		sessionCfg:  sessionCfg,
		logger:      logger,
	}
}

func (u *verificationUsecase) CreateVerification(
	ctx context.Context,
	params CreateVerificationParams,
) (*CreateVerificationResult, error) {
	// Challenge first: if the agent is down, no partial session is persisted.
	challenge, err := u.agentClient.CreatePresentationRequest(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstreamUnavailable, err)
	}

	session, err := u.sessionRepo.CreateSession(ctx, &model.AuthSession{
		PresExchID:       challenge.PresentationExchangeID,
		Status:           model.StatusInitiated,
		ExpiresAt:        time.Now().Add(u.sessionCfg.ExpireWindow),
		Metadata:         params.Metadata,
		NotifyEndpoint:   params.NotifyEndpoint,
		RetainAttributes: params.RetainAttributes,
	})
	if err != nil {
		return nil, err
	}

	wsToken, err := u.tokenAuth.GenerateToken(session.ID.Hex(), u.sessionCfg.WSTokenExpiresIn)
	if err != nil {
		return nil, err
	}

	return &CreateVerificationResult{
		ID:           session.ID.Hex(),
		Status:       session.Status,
		ChallengeURL: u.sessionCfg.ControllerURL + "/url/pres-exch/" + challenge.PresentationExchangeID,
		WSToken:      wsToken,
	}, nil
}

func (u *verificationUsecase) GetVerification(ctx context.Context, id string) (*VerificationView, error) {
	session, err := u.sessionRepo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	session, err = u.applyLazyExpiry(ctx, session)
	if err != nil {
		return nil, err
	}

	metadata := session.Metadata
	if session.Status == model.StatusSuccess {
		// The cache may hold attributes that were deliberately never
		// persisted, so it takes precedence over the durable copy.
		if cached, ok := u.attrCache.Get(session.ID.Hex()); ok {
			metadata = cached
		}
	}

	return &VerificationView{
		ID:             session.ID.Hex(),
		Status:         session.Status,
		Metadata:       metadata,
		NotifyEndpoint: session.NotifyEndpoint,
	}, nil
}

// applyLazyExpiry transitions a session past its deadline to expired. The
// expired notification goes out only when this call wins the transition;
// repeated reads of an already expired session stay silent.
func (u *verificationUsecase) applyLazyExpiry(
	ctx context.Context,
	session *model.AuthSession,
) (*model.AuthSession, error) {
	if !session.ExpiredBy(time.Now()) {
		return session, nil
	}

	updated, err := u.sessionRepo.UpdateStatus(
		ctx,
		session.ID.Hex(),
		model.StatusExpired,
		model.StatusInitiated, model.StatusInProgress,
	)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			// Lost the race to an outcome event or a concurrent read; the
			// fresh state is authoritative either way.
			return u.sessionRepo.GetSession(ctx, session.ID.Hex())
		}
		return nil, err
	}

	u.logger.Info().Str("session_id", updated.ID.Hex()).Msg("verification session expired")
	u.dispatcher.Dispatch(ctx, updated.ID.Hex(), model.StatusExpired, updated.NotifyEndpoint)

	return updated, nil
}

func (u *verificationUsecase) AbortVerification(ctx context.Context, id string) error {
	session, err := u.sessionRepo.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrSessionNotFound
		}
		return err
	}

	if session.Status.Terminal() {
		return ErrDuplicateEvent
	}

	updated, err := u.sessionRepo.UpdateStatus(
		ctx,
		session.ID.Hex(),
		model.StatusAborted,
		model.StatusInitiated, model.StatusInProgress,
	)
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return ErrDuplicateEvent
		}
		return err
	}

	u.dispatcher.Dispatch(ctx, updated.ID.Hex(), model.StatusAborted, updated.NotifyEndpoint)

	return nil
}

func (u *verificationUsecase) HandleProofEvent(ctx context.Context, event ProofEvent) error {
	session, err := u.sessionRepo.GetSessionByPresExchID(ctx, event.PresExchID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrSessionNotFound
		}
		return err
	}

	switch event.State {
	case ProofStateReceived:
		err = u.handlePresentationReceived(ctx, session)
	case ProofStateVerified:
		err = u.handleOutcome(ctx, session, event)
	default:
		u.logger.Debug().
			Str("state", event.State).
			Str("session_id", session.ID.Hex()).
			Msg("skipping proof event")
		return nil
	}
	if err != nil {
		return err
	}

	// Refresh the deadline after processing any event so a just-completed
	// session is never misreported as expired by a racing expiry check.
	if err := u.sessionRepo.RefreshExpiry(ctx, session.ID.Hex(), time.Now().Add(u.sessionCfg.ExpireWindow)); err != nil {
		return err
	}

	return nil
}

// handlePresentationReceived is silent bookkeeping: the holder responded but
// the proof is not yet verified. No notification goes out.
func (u *verificationUsecase) handlePresentationReceived(ctx context.Context, session *model.AuthSession) error {
	if session.Status.Terminal() {
		return ErrDuplicateEvent
	}

	if session.Status == model.StatusInitiated {
		_, err := u.sessionRepo.UpdateStatus(
			ctx,
			session.ID.Hex(),
			model.StatusInProgress,
			model.StatusInitiated,
		)
		if err != nil && !errors.Is(err, repository.ErrStatusConflict) {
			return err
		}
	}

	if u.sessionCfg.VerifyOnReceipt {
		if err := u.agentClient.VerifyPresentation(ctx, session.PresExchID); err != nil {
			u.logger.Warn().
				Err(err).
				Str("session_id", session.ID.Hex()).
				Msg("failed to request presentation verification")
		}
	}

	return nil
}

func (u *verificationUsecase) handleOutcome(
	ctx context.Context,
	session *model.AuthSession,
	event ProofEvent,
) error {
	if session.Status.Terminal() {
		return ErrDuplicateEvent
	}

	target := model.StatusFailure
	if event.Verified {
		target = model.StatusSuccess
	}

	updated, err := u.commitOutcome(ctx, session.ID.Hex(), target)
	if err != nil {
		return err
	}

	if target == model.StatusSuccess {
		u.recordRevealedAttributes(ctx, updated, event.Payload)
	}

	u.dispatcher.Dispatch(ctx, updated.ID.Hex(), target, updated.NotifyEndpoint)

	return nil
}

// commitOutcome performs the compare-and-swap to a terminal outcome, retried
// once with fresh state on conflict. Exactly one concurrent caller wins; the
// losers observe ErrDuplicateEvent or ErrConflictingTransition.
func (u *verificationUsecase) commitOutcome(
	ctx context.Context,
	id string,
	target model.AuthSessionStatus,
) (*model.AuthSession, error) {
	for attempt := 0; attempt < 2; attempt++ {
		updated, err := u.sessionRepo.UpdateStatus(
			ctx,
			id,
			target,
			model.StatusInitiated, model.StatusInProgress,
		)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, repository.ErrStatusConflict) {
			return nil, err
		}

		fresh, err := u.sessionRepo.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if fresh.Status.Terminal() {
			return nil, ErrDuplicateEvent
		}
	}

	return nil, ErrConflictingTransition
}

// recordRevealedAttributes merges the flattened proof attributes into the
// session metadata under the reserved key. The merged metadata always lands
// in the ephemeral cache; it reaches durable storage only when the creator
// asked for retention.
func (u *verificationUsecase) recordRevealedAttributes(
	ctx context.Context,
	session *model.AuthSession,
	payload agent.ProofPayload,
) {
	if len(payload) == 0 {
		fetched, err := u.agentClient.FetchExchangeRecord(ctx, session.PresExchID)
		if err != nil {
			u.logger.Error().
				Err(err).
				Str("session_id", session.ID.Hex()).
				Msg("failed to fetch exchange record for revealed attributes")
			return
		}
		payload = fetched
	}

	merged := make(map[string]any, len(session.Metadata)+1)
	for k, v := range session.Metadata {
		merged[k] = v
	}
	merged[model.RevealedAttributesKey] = agent.FlattenRevealedAttributes(payload)

	u.attrCache.Set(session.ID.Hex(), merged)

	if session.RetainAttributes {
		if err := u.sessionRepo.UpdateMetadata(ctx, session.ID.Hex(), merged); err != nil {
			u.logger.Error().
				Err(err).
				Str("session_id", session.ID.Hex()).
				Msg("failed to persist revealed attributes")
		}
	}
}
