package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")

	// ErrInvalidTicket is returned when a write carries an unknown enum value.
	ErrInvalidTicket = errors.New("persistence: invalid ticket")

	// ErrConstraint matches engine constraint violations.
	ErrConstraint = errors.New("persistence: constraint violation")
)
