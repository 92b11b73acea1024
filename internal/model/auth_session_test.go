package model

import (
	"testing"
	"time"
)

func TestTerminalStatuses(t *testing.T) {
	terminal := []AuthSessionStatus{StatusSuccess, StatusFailure, StatusExpired, StatusAborted}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	for _, s := range []AuthSessionStatus{StatusInitiated, StatusInProgress} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		from, to AuthSessionStatus
		want     bool
	}{
		{StatusInitiated, StatusInProgress, true},
		{StatusInitiated, StatusSuccess, true},
		{StatusInitiated, StatusFailure, true},
		{StatusInitiated, StatusExpired, true},
		{StatusInitiated, StatusAborted, true},
		{StatusInProgress, StatusSuccess, true},
		{StatusInProgress, StatusFailure, true},
		{StatusInProgress, StatusExpired, true},
		{StatusInProgress, StatusAborted, true},
		{StatusInProgress, StatusInitiated, false},
		{StatusSuccess, StatusFailure, false},
		{StatusSuccess, StatusExpired, false},
		{StatusFailure, StatusSuccess, false},
		{StatusExpired, StatusSuccess, false},
		{StatusAborted, StatusInProgress, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.want {
			t.Errorf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestExpiredBy(t *testing.T) {
	now := time.Now()

	pending := &AuthSession{Status: StatusInitiated, ExpiresAt: now.Add(-time.Second)}
	if !pending.ExpiredBy(now) {
		t.Fatal("initiated session past deadline should expire")
	}

	inProgress := &AuthSession{Status: StatusInProgress, ExpiresAt: now.Add(-time.Second)}
	if !inProgress.ExpiredBy(now) {
		t.Fatal("in-progress session past deadline should expire")
	}

	fresh := &AuthSession{Status: StatusInitiated, ExpiresAt: now.Add(time.Minute)}
	if fresh.ExpiredBy(now) {
		t.Fatal("session before deadline must not expire")
	}

	done := &AuthSession{Status: StatusSuccess, ExpiresAt: now.Add(-time.Hour)}
	if done.ExpiredBy(now) {
		t.Fatal("terminal outcome must never be overwritten by expiry")
	}
}
