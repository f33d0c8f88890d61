package store

import (
	"testing"
	"time"
)

func TestJWTSessionRoundTrip(t *testing.T) {
	s, err := NewJWTSessionStore("test-secret", "", time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	userID, ok, err := s.GetUserIDByToken(token)
	if err != nil {
		t.Fatalf("resolve token: %v", err)
	}
	if !ok || userID != "user-1" {
		t.Fatalf("unexpected resolve: ok=%v userID=%q", ok, userID)
	}
}

func TestJWTSessionRejectsTamperedToken(t *testing.T) {
	s, err := NewJWTSessionStore("test-secret", "", time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token, err := s.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := s.GetUserIDByToken(token + "x"); ok {
		t.Fatalf("expected tampered token to be rejected")
	}
	other, err := NewJWTSessionStore("other-secret", "", time.Minute)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, ok, _ := other.GetUserIDByToken(token); ok {
		t.Fatalf("expected token signed with different secret to be rejected")
	}
}

func TestJWTSessionRequiresSecret(t *testing.T) {
	if _, err := NewJWTSessionStore("  ", "", time.Minute); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
