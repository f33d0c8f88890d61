package app

import "errors"

var (
	ErrEmailAndPasswordRequired = errors.New("email and password are required")
	ErrInvalidRole              = errors.New("role must be shop or buyer")
	ErrInvalidCredentials       = errors.New("invalid email or password")
	ErrAccountInactive          = errors.New("account is not activated")
	ErrInvalidActivationToken   = errors.New("invalid or expired activation token")
)
