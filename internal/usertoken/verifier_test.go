package usertoken

import (
	"net/http/httptest"
	"testing"
	"time"

	"markethub/pkg/store"
)

func TestVerifierAcceptsAuthIssuedToken(t *testing.T) {
	sessions, err := store.NewJWTSessionStore("shared-secret", "", time.Minute)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	verifier, err := NewVerifier(Config{Secret: "shared-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	userID, ok := verifier.UserID(token)
	if !ok || userID != "user-1" {
		t.Fatalf("unexpected verify: ok=%v userID=%q", ok, userID)
	}
}

func TestVerifierRejectsWrongSecret(t *testing.T) {
	sessions, err := store.NewJWTSessionStore("secret-a", "", time.Minute)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	token, err := sessions.NewSession("user-1")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	verifier, err := NewVerifier(Config{Secret: "secret-b"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, ok := verifier.UserID(token); ok {
		t.Fatalf("expected rejection for wrong secret")
	}
}

func TestVerifierFromRequest(t *testing.T) {
	sessions, err := store.NewJWTSessionStore("shared-secret", "", time.Minute)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	token, err := sessions.NewSession("user-2")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	verifier, err := NewVerifier(Config{Secret: "shared-secret"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	r := httptest.NewRequest("GET", "/", nil)
	if _, ok := verifier.FromRequest(r); ok {
		t.Fatalf("expected missing header to fail")
	}
	r.Header.Set("Authorization", "Bearer "+token)
	userID, ok := verifier.FromRequest(r)
	if !ok || userID != "user-2" {
		t.Fatalf("unexpected verify: ok=%v userID=%q", ok, userID)
	}
	r.Header.Set("Authorization", "Basic abc")
	if _, ok := verifier.FromRequest(r); ok {
		t.Fatalf("expected non-bearer scheme to fail")
	}
}
