package services

import (
	"errors"
)

var (
	// ErrSessionNotFound is returned when no active session matches the
	// given session key.
	ErrSessionNotFound = errors.New("session not found")

	// ErrForbidden is returned when an owner-scoped operation is attempted
	// by a non-matching owner.
	ErrForbidden = errors.New("session does not belong to user")
)
