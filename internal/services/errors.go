package services

import (
	"errors"
	"fmt"

	"chat-realtime/internal/database"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrUnknownRecipient = errors.New("unknown recipient")
	ErrUnknownGroup     = errors.New("unknown group")
	ErrNotAMember       = errors.New("not a member of this group")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrPersistence      = errors.New("storage error")
	ErrInvalidRequest   = errors.New("invalid request")
)

// ErrorCode maps a service error to the code carried by Error events.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrUnknownRecipient):
		return "unknown_recipient"
	case errors.Is(err, ErrUnknownGroup):
		return "unknown_group"
	case errors.Is(err, ErrNotAMember):
		return "not_a_member"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrPersistence):
		return "persistence_error"
	case errors.Is(err, ErrInvalidRequest):
		return "bad_request"
	default:
		return "internal_error"
	}
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrPersistence, op, err)
}

// lookupError converts a repository lookup failure into notFoundErr when the
// row is missing and into a persistence error otherwise.
func lookupError(op string, err, notFoundErr error) error {
	if errors.Is(err, database.ErrNotFound) {
		return notFoundErr
	}
	return persistenceError(op, err)
}
