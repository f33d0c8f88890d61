package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"markethub/internal/util"
	"markethub/pkg/auth"
	"markethub/pkg/domain"
	"markethub/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	JWTSecret     string
	JWTIssuer     string
	SessionTTL    time.Duration
	ActivationTTL time.Duration
	DefaultCity   string
	Store         store.Store
	Sessions      store.SessionStore
	Activations   store.ActivationStore
}

// App is the core application service wiring together storage and auth logic.
type App struct {
	store         store.Store
	sessions      store.SessionStore
	activations   store.ActivationStore
	activationTTL time.Duration
	defaultCity   string
	validate      *validator.Validate
}

// New constructs the application with database storage, session management,
// and the activation-token store.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.ActivationTTL == 0 {
		cfg.ActivationTTL = 24 * time.Hour
	}
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "Moscow"
	}

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessionStore := cfg.Sessions
	if sessionStore == nil {
		var err error
		sessionStore, err = store.NewJWTSessionStore(cfg.JWTSecret, cfg.JWTIssuer, cfg.SessionTTL)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
	}

	activationStore := cfg.Activations
	if activationStore == nil {
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("redisAddr is required for the activation token store")
		}
		activationStore = store.NewRedisActivationStore(cfg.RedisAddr, cfg.RedisPassword)
	}

	return &App{
		store:         dataStore,
		sessions:      sessionStore,
		activations:   activationStore,
		activationTTL: cfg.ActivationTTL,
		defaultCity:   cfg.DefaultCity,
		validate:      validator.New(),
	}, nil
}

// SignUp registers an inactive account and issues an activation token.
// The token is returned to the caller for delivery; the account cannot
// log in until it is redeemed.
func (a *App) SignUp(email, password, role, company, position string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return domain.User{}, "", ErrEmailAndPasswordRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.User{}, "", err
	}
	userRole, ok := parseRole(role)
	if !ok {
		return domain.User{}, "", ErrInvalidRole
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         userRole,
		Active:       false,
		Company:      strings.TrimSpace(company),
		Position:     strings.TrimSpace(position),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(user); err != nil {
		return domain.User{}, "", err
	}
	token, err := a.activations.NewActivationToken(user.ID, a.activationTTL)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue activation token: %w", err)
	}
	return user, token, nil
}

// Activate redeems an activation token and flips the account active.
// The email must match the account the token was issued for.
func (a *App) Activate(email, token string) (domain.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	userID, ok, err := a.activations.RedeemActivationToken(strings.TrimSpace(token))
	if err != nil {
		return domain.User{}, fmt.Errorf("redeem activation token: %w", err)
	}
	if !ok {
		return domain.User{}, ErrInvalidActivationToken
	}
	user, found, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !found || user.Email != email {
		return domain.User{}, ErrInvalidActivationToken
	}
	if err := a.store.ActivateUser(user.ID); err != nil {
		return domain.User{}, fmt.Errorf("activate user: %w", err)
	}
	user.Active = true
	return user, nil
}

// Login validates credentials and issues a session token.
// Inactive accounts are rejected until activation.
func (a *App) Login(email, password string) (domain.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !user.Active {
		return domain.User{}, "", ErrAccountInactive
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue session token: %w", err)
	}
	return user, token, nil
}

// Logout invalidates a session token.
func (a *App) Logout(token string) error {
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves a user from a session token.
func (a *App) UserFromToken(token string) (domain.User, bool) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return domain.User{}, false
	}
	user, found, err := a.store.GetUserByID(uid)
	if err != nil || !found || !user.Active {
		return domain.User{}, false
	}
	return user, true
}

// ContactInput carries the fields for a new delivery contact. Field limits
// mirror the column widths in storage.
type ContactInput struct {
	City      string `json:"city" validate:"omitempty,max=50"`
	Street    string `json:"street" validate:"required,max=100"`
	House     string `json:"house" validate:"omitempty,max=15"`
	Structure string `json:"structure" validate:"omitempty,max=15"`
	Building  string `json:"building" validate:"omitempty,max=15"`
	Apartment string `json:"apartment" validate:"omitempty,max=15"`
	Phone     string `json:"phone" validate:"required,max=20"`
}

// AddContact stores a delivery contact for the user. City falls back to the
// configured default locality when omitted.
func (a *App) AddContact(user domain.User, in ContactInput) (domain.Contact, error) {
	if err := a.validate.Struct(in); err != nil {
		return domain.Contact{}, fmt.Errorf("%w: %s", domain.ErrConstraintViolation, err)
	}
	city := strings.TrimSpace(in.City)
	if city == "" {
		city = a.defaultCity
	}
	contact := domain.Contact{
		ID:        util.NewID(),
		UserID:    user.ID,
		City:      city,
		Street:    strings.TrimSpace(in.Street),
		House:     strings.TrimSpace(in.House),
		Structure: strings.TrimSpace(in.Structure),
		Building:  strings.TrimSpace(in.Building),
		Apartment: strings.TrimSpace(in.Apartment),
		Phone:     strings.TrimSpace(in.Phone),
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.CreateContact(contact); err != nil {
		return domain.Contact{}, err
	}
	return contact, nil
}

// Contacts lists the user's delivery contacts.
func (a *App) Contacts(user domain.User) ([]domain.Contact, error) {
	return a.store.ListContactsByUser(user.ID)
}

// DeleteContact removes one of the user's contacts.
func (a *App) DeleteContact(user domain.User, contactID string) error {
	return a.store.DeleteContact(contactID, user.ID)
}

func parseRole(role string) (domain.UserRole, bool) {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case string(domain.RoleShop):
		return domain.RoleShop, true
	case string(domain.RoleBuyer), "":
		return domain.RoleBuyer, true
	default:
		return "", false
	}
}
