package app

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"markethub/pkg/domain"
	"markethub/pkg/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	redisSrv := miniredis.RunT(t)
	sessions, err := store.NewJWTSessionStore("test-secret", "", time.Minute)
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	a, err := New(Config{
		Store:       store.NewMemoryStore(),
		Sessions:    sessions,
		Activations: store.NewRedisActivationStore(redisSrv.Addr(), ""),
		DefaultCity: "Riverside",
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestSignUpActivateLogin(t *testing.T) {
	a := newTestApp(t)

	user, token, err := a.SignUp("Buyer@Example.com", "long enough", "buyer", "", "")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if user.Email != "buyer@example.com" {
		t.Fatalf("expected lowercased email, got %q", user.Email)
	}
	if user.Active {
		t.Fatalf("expected account inactive before activation")
	}
	if token == "" {
		t.Fatalf("expected activation token")
	}

	if _, _, err := a.Login("buyer@example.com", "long enough"); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected inactive login rejection, got: %v", err)
	}

	activated, err := a.Activate("buyer@example.com", token)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !activated.Active {
		t.Fatalf("expected account active after activation")
	}

	loggedIn, session, err := a.Login("buyer@example.com", "long enough")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session == "" || loggedIn.ID != user.ID {
		t.Fatalf("unexpected login result")
	}

	resolved, ok := a.UserFromToken(session)
	if !ok || resolved.ID != user.ID {
		t.Fatalf("expected session token to resolve the user")
	}
}

func TestSignUpValidation(t *testing.T) {
	a := newTestApp(t)

	if _, _, err := a.SignUp("", "long enough", "buyer", "", ""); !errors.Is(err, ErrEmailAndPasswordRequired) {
		t.Fatalf("expected missing email rejection, got: %v", err)
	}
	if _, _, err := a.SignUp("a@b.com", "long enough", "admin", "", ""); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected invalid role rejection, got: %v", err)
	}
	if _, _, err := a.SignUp("a@b.com", "long enough", "shop", "Acme", "manager"); err != nil {
		t.Fatalf("shop signup: %v", err)
	}
	if _, _, err := a.SignUp("a@b.com", "long enough", "buyer", "", ""); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email rejection, got: %v", err)
	}
}

func TestActivateRejectsBadToken(t *testing.T) {
	a := newTestApp(t)
	user, token, err := a.SignUp("a@b.com", "long enough", "buyer", "", "")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, err := a.Activate(user.Email, "bogus"); !errors.Is(err, ErrInvalidActivationToken) {
		t.Fatalf("expected bogus token rejection, got: %v", err)
	}
	// The email must match the account the token was issued for.
	if _, err := a.Activate("other@b.com", token); !errors.Is(err, ErrInvalidActivationToken) {
		t.Fatalf("expected mismatched email rejection, got: %v", err)
	}
	// The mismatch attempt consumed the one-shot token.
	if _, err := a.Activate(user.Email, token); !errors.Is(err, ErrInvalidActivationToken) {
		t.Fatalf("expected consumed token rejection, got: %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	a := newTestApp(t)
	user, token, err := a.SignUp("a@b.com", "long enough", "buyer", "", "")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := a.Activate(user.Email, token); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, _, err := a.Login(user.Email, "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got: %v", err)
	}
	if _, _, err := a.Login("unknown@b.com", "long enough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown email, got: %v", err)
	}
}

func TestAddContactValidation(t *testing.T) {
	a := newTestApp(t)
	user, token, err := a.SignUp("a@b.com", "long enough", "buyer", "", "")
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := a.Activate(user.Email, token); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if _, err := a.AddContact(user, ContactInput{Phone: "+1-555-0100"}); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected missing street rejection, got: %v", err)
	}
	if _, err := a.AddContact(user, ContactInput{Street: "Main st 1"}); !errors.Is(err, domain.ErrConstraintViolation) {
		t.Fatalf("expected missing phone rejection, got: %v", err)
	}

	contact, err := a.AddContact(user, ContactInput{Street: "Main st 1", Phone: "+1-555-0100"})
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}
	if contact.City != "Riverside" {
		t.Fatalf("expected default city, got %q", contact.City)
	}

	contacts, err := a.Contacts(user)
	if err != nil || len(contacts) != 1 {
		t.Fatalf("expected one contact, got %d (%v)", len(contacts), err)
	}

	if err := a.DeleteContact(user, contact.ID); err != nil {
		t.Fatalf("delete contact: %v", err)
	}
	contacts, err = a.Contacts(user)
	if err != nil || len(contacts) != 0 {
		t.Fatalf("expected no contacts after delete, got %d (%v)", len(contacts), err)
	}
}
