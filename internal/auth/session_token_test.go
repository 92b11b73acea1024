package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	a := NewSessionTokenAuthenticator("aud", "iss", "secret")

	token, err := a.GenerateToken("session-1", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	sessionID, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if sessionID != "session-1" {
		t.Fatalf("session id = %q", sessionID)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	a := NewSessionTokenAuthenticator("aud", "iss", "secret")
	b := NewSessionTokenAuthenticator("aud", "iss", "other-secret")

	token, err := a.GenerateToken("session-1", time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := b.ValidateToken(token); err == nil {
		t.Fatal("token accepted with the wrong secret")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	a := NewSessionTokenAuthenticator("aud", "iss", "secret")

	token, err := a.GenerateToken("session-1", -time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	if _, err := a.ValidateToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	a := NewSessionTokenAuthenticator("aud", "iss", "secret")

	if _, err := a.ValidateToken("not-a-token"); err == nil {
		t.Fatal("garbage token accepted")
	}
}
