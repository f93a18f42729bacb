package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger client and the registry
// core matches one of these with errors.Is (ErrRecordNotFound aside):
//
//	ErrValidation   fix the input; the ledger was not contacted
//	ErrUnavailable  the call could not complete; retry the whole operation
//	ErrUnauthorized the actor lacks the capability; do not retry
//	ErrConflict     the caller's view is stale; reconstruct and re-decide
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnavailable  = errors.New("ledger unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
)

var (
	ErrNotAuthorized  = fmt.Errorf("%w: capability does not permit this action", ErrUnauthorized)
	ErrAlreadyVoted   = fmt.Errorf("%w: officer already voted on this record", ErrConflict)
	ErrNotPending     = fmt.Errorf("%w: record is no longer pending", ErrConflict)
	ErrDuplicateID    = fmt.Errorf("%w: record id already exists", ErrConflict)
	ErrRecordNotFound = errors.New("record not found")
)

// ValidationError names the first input field that failed a precondition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Unavailable wraps a transport or storage failure as ErrUnavailable while
// keeping the cause in the chain.
func Unavailable(op string, cause error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, cause)
}
