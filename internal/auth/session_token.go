package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTokenAuthenticator mints and validates the short-lived tokens that
// bind a websocket connection to one auth session.
type SessionTokenAuthenticator struct {
	audience string
	issuer   string
	secret   string
}

// SessionTokenClaims carry the session id a websocket client may attach to.
type SessionTokenClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// NewSessionTokenAuthenticator creates a new SessionTokenAuthenticator instance.
func NewSessionTokenAuthenticator(audience, issuer, secret string) SessionTokenAuthenticator {
	return SessionTokenAuthenticator{
		audience: audience,
		issuer:   issuer,
		secret:   secret,
	}
}

// GenerateToken mints an attach token for the given session id, valid for expiresIn.
func (a *SessionTokenAuthenticator) GenerateToken(sessionID string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := SessionTokenClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenStr, err := token.SignedString([]byte(a.secret))
	if err != nil {
		return "", err
	}

	return tokenStr, nil
}

// ValidateToken validates an attach token and returns the session id it is bound to.
func (a *SessionTokenAuthenticator) ValidateToken(tokenStr string) (string, error) {
	claims := &SessionTokenClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return []byte(a.secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithAudience(a.audience),
		jwt.WithIssuer(a.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		return "", err
	}

	if !token.Valid || claims.SessionID == "" {
		return "", errors.New("invalid session token")
	}

	return claims.SessionID, nil
}
