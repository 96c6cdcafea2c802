package types

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("session not found")
)

// Field-level validation reasons
var (
	ErrTitleRequired  = errors.New("title is required")
	ErrTitleTooShort  = errors.New("title is too short")
	ErrTitleTooLong   = errors.New("title must be at most 200 characters")
	ErrCourseRequired = errors.New("course id is required")
	ErrTimeRequired   = errors.New("start and end time are required")
	ErrEndBeforeStart = errors.New("end time must be after start time")
	ErrInvalidUserID  = errors.New("user ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRole    = errors.New("invalid role: must be 'student', 'instructor' or 'admin'")
)

// ValidationError reports bad input to a create call.
type ValidationError struct {
	Field  string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// NotFoundError reports an unknown session id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ConsistencyWarning is a non-fatal bookkeeping anomaly, such as a leave
// without a matching join. It is logged, never returned.
type ConsistencyWarning struct {
	SessionID string
	UserID    string
	Reason    string
}

func (w ConsistencyWarning) String() string {
	return fmt.Sprintf("session %s user %s: %s", w.SessionID, w.UserID, w.Reason)
}
