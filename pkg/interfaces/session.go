package interfaces

import (
	"context"

	"livesession/pkg/types"
)

// SessionStore is the authoritative collection of live sessions.
// ARCHITECTURAL DISCOVERY: The store performs no role checks and reads no
// clock for eligibility; those rules live in the lifecycle package.
type SessionStore interface {
	// ListSessions returns every session in insertion order. An empty
	// courseID returns all courses.
	ListSessions(ctx context.Context, courseID string) ([]*types.Session, error)

	// ListActiveSessions returns sessions whose active flag is set.
	// FUNCTIONAL DISCOVERY: Polled every 30 seconds by every open view, so it
	// must stay cheap and side-effect free.
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)

	// GetSession returns one session or a *types.NotFoundError.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// CreateSession validates and appends a new, inactive session.
	CreateSession(ctx context.Context, params types.CreateSessionParams) (*types.Session, error)

	// StartSession sets the active flag. Idempotent.
	StartSession(ctx context.Context, sessionID string) error

	// EndSession clears the active flag. Idempotent.
	EndSession(ctx context.Context, sessionID string) error

	// JoinSession increments the participant counter.
	JoinSession(ctx context.Context, sessionID, userID string) error

	// LeaveSession decrements the participant counter, never below zero.
	LeaveSession(ctx context.Context, sessionID, userID string) error
}

// Bookkeeper is the slice of the store a conferencing view writes to.
type Bookkeeper interface {
	JoinSession(ctx context.Context, sessionID, userID string) error
	LeaveSession(ctx context.Context, sessionID, userID string) error
}

// ActiveLister is the slice of the store a polling view reads from.
type ActiveLister interface {
	ListActiveSessions(ctx context.Context) ([]*types.Session, error)
}
