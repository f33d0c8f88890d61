package domain

import "errors"

// Failure taxonomy shared by all stores and services. Every error is a local,
// synchronous failure raised before any partial write is committed.
var (
	// ErrConstraintViolation covers uniqueness and required-field breaches.
	ErrConstraintViolation = errors.New("constraint violation")

	// ErrNotFound is returned when a referenced entity is absent.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned for an illegal status edge,
	// including self-loops and checkout preconditions.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrOrderLocked is returned when line items are mutated on an order
	// that has left the basket status.
	ErrOrderLocked = errors.New("order is locked")

	// ErrInsufficientStock is returned when a requested quantity exceeds
	// the listing's available stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
)
