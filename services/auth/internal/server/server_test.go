package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"markethub/pkg/store"
	"markethub/services/auth/internal/app"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	sessions, err := store.NewJWTSessionStore("test-secret", "", time.Minute)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	appCore, err := app.New(app.Config{
		Store:       store.NewMemoryStore(),
		Sessions:    sessions,
		Activations: store.NewRedisActivationStore(redisSrv.Addr(), ""),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	srv, err := New(Config{App: appCore})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func postJSON(t *testing.T, h http.Handler, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestSignupActivateLoginFlow(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Router()

	w := postJSON(t, h, "/auth/signup", "", map[string]string{
		"email":    "buyer@example.com",
		"password": "long enough",
		"role":     "buyer",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", w.Code, w.Body.String())
	}
	var signup struct {
		ActivationToken string `json:"activationToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &signup); err != nil {
		t.Fatalf("decode signup response: %v", err)
	}

	// Login before activation is refused.
	w = postJSON(t, h, "/auth/login", "", map[string]string{
		"email":    "buyer@example.com",
		"password": "long enough",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("pre-activation login status = %d, want 401", w.Code)
	}

	w = postJSON(t, h, "/auth/activate", "", map[string]string{
		"email": "buyer@example.com",
		"token": signup.ActivationToken,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body = %s", w.Code, w.Body.String())
	}

	w = postJSON(t, h, "/auth/login", "", map[string]string{
		"email":    "buyer@example.com",
		"password": "long enough",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login response: %v", err)
	}

	// Authenticated contact creation with city defaulting.
	w = postJSON(t, h, "/auth/contacts", login.Token, map[string]string{
		"street": "Main st 1",
		"phone":  "+1-555-0100",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add contact status = %d, body = %s", w.Code, w.Body.String())
	}

	r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	r.Header.Set("Authorization", "Bearer "+login.Token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d", rec.Code)
	}
}

func TestDuplicateSignupConflict(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Router()

	body := map[string]string{"email": "a@b.com", "password": "long enough"}
	if w := postJSON(t, h, "/auth/signup", "", body); w.Code != http.StatusCreated {
		t.Fatalf("first signup status = %d", w.Code)
	}
	if w := postJSON(t, h, "/auth/signup", "", body); w.Code != http.StatusConflict {
		t.Fatalf("duplicate signup status = %d, want 409", w.Code)
	}
}

func TestContactsRequireAuth(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Router()

	r := httptest.NewRequest(http.MethodGet, "/auth/contacts", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated contacts status = %d, want 401", w.Code)
	}
}
