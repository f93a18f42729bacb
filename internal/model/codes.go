package model

import (
	"errors"
	"fmt"
)

// Machine-readable codes carried in the "code" field of HTTP error bodies.
const (
	CodeValidation      = "validation"
	CodeUnauthenticated = "unauthenticated"
	CodeNotAuthorized   = "not_authorized"
	CodeAlreadyVoted    = "already_voted"
	CodeNotPending      = "not_pending"
	CodeDuplicateID     = "duplicate_id"
	CodeConflict        = "conflict"
	CodeNotFound        = "record_not_found"
	CodeUnavailable     = "unavailable"
	CodeInternal        = "internal"
)

// ErrorCode returns the wire code for err.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrUnauthorized):
		return CodeNotAuthorized
	case errors.Is(err, ErrAlreadyVoted):
		return CodeAlreadyVoted
	case errors.Is(err, ErrNotPending):
		return CodeNotPending
	case errors.Is(err, ErrDuplicateID):
		return CodeDuplicateID
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrRecordNotFound):
		return CodeNotFound
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// ErrorFromCode rebuilds a typed error from a wire code so that errors.Is
// works the same on both sides of the HTTP boundary. field is only used for
// validation errors.
func ErrorFromCode(code, message, field string) error {
	switch code {
	case CodeValidation:
		if field == "" {
			field = "request"
		}
		return &ValidationError{Field: field, Reason: message}
	case CodeUnauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	case CodeNotAuthorized:
		return ErrNotAuthorized
	case CodeAlreadyVoted:
		return ErrAlreadyVoted
	case CodeNotPending:
		return ErrNotPending
	case CodeDuplicateID:
		return ErrDuplicateID
	case CodeConflict:
		return fmt.Errorf("%w: %s", ErrConflict, message)
	case CodeNotFound:
		return ErrRecordNotFound
	default:
		return Unavailable("ledger", errors.New(message))
	}
}
