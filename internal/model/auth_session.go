package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// AuthSessionStatus represents the lifecycle state of an age verification session.
type AuthSessionStatus string

const (
	StatusInitiated  AuthSessionStatus = "initiated"
	StatusInProgress AuthSessionStatus = "in_progress"
	StatusSuccess    AuthSessionStatus = "success"
	StatusFailure    AuthSessionStatus = "failure"
	StatusExpired    AuthSessionStatus = "expired"
	StatusAborted    AuthSessionStatus = "aborted"
)

// RevealedAttributesKey is the reserved metadata key under which revealed
// proof attributes are merged after a successful verification.
const RevealedAttributesKey = "revealed_attributes"

// Terminal reports whether no further status transition is permitted.
func (s AuthSessionStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusExpired, StatusAborted:
		return true
	}
	return false
}

// CanTransitionTo reports whether the status machine permits a transition
// from s to next. Terminal states permit nothing.
func (s AuthSessionStatus) CanTransitionTo(next AuthSessionStatus) bool {
	if s.Terminal() {
		return false
	}

	switch s {
	case StatusInitiated:
		switch next {
		case StatusInProgress, StatusSuccess, StatusFailure, StatusExpired, StatusAborted:
			return true
		}
	case StatusInProgress:
		switch next {
		case StatusSuccess, StatusFailure, StatusExpired, StatusAborted:
			return true
		}
	}

	return false
}

// AuthSession represents a single age verification session coordinated
// against the external credential agent.
type AuthSession struct {
	ID               bson.ObjectID     `bson:"_id,omitempty"`
	PresExchID       string            `bson:"pres_exch_id"`
	Status           AuthSessionStatus `bson:"status"`
	ExpiresAt        time.Time         `bson:"expires_at"`
	Metadata         map[string]any    `bson:"metadata"`
	NotifyEndpoint   string            `bson:"notify_endpoint"`
	RetainAttributes bool              `bson:"retain_attributes"`
	CreatedAt        time.Time         `bson:"created_at"`
	UpdatedAt        time.Time         `bson:"updated_at"`
}

// ExpiredBy reports whether the session should be lazily transitioned to
// expired as of now: the deadline has elapsed and no outcome was recorded.
func (s *AuthSession) ExpiredBy(now time.Time) bool {
	return !s.Status.Terminal() && now.After(s.ExpiresAt)
}
