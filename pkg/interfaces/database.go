package interfaces

import (
	"context"
	"time"

	"livesession/pkg/types"
)

// ParticipantRecorder persists join/leave audit history.
// ARCHITECTURAL DISCOVERY: The participant counter is authoritative; the
// recorder is an audit trail and its failures never fail a join or leave.
type ParticipantRecorder interface {
	// RecordJoin stores a new open participant row
	RecordJoin(ctx context.Context, participant *types.SessionParticipant) error

	// RecordLeave closes the newest open row for the user in the session.
	// FUNCTIONAL DISCOVERY: Returns (false, nil) when no open row exists,
	// which is how a leave-without-join shows up in the audit trail.
	RecordLeave(ctx context.Context, sessionID, userID string, leftAt time.Time) (bool, error)

	// SessionParticipants returns the audit rows of a session ordered by join time
	SessionParticipants(ctx context.Context, sessionID string) ([]*types.SessionParticipant, error)

	// HealthCheck verifies database connectivity and basic operations
	HealthCheck(ctx context.Context) error

	// Close closes the database connection and cleans up resources
	Close() error
}
