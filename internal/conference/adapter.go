package conference

import (
	"context"

	"livesession/pkg/types"
)

// Adapter connects a local user to the conference room of a session.
// ARCHITECTURAL DISCOVERY: The primary embed and the local preview fallback
// are interchangeable Adapters; the Controller never knows which one it drives.
type Adapter interface {
	// Name identifies the adapter in logs
	Name() string

	// Connect begins connecting and returns immediately. Completion and
	// failure arrive on the handle's event channel.
	Connect(ctx context.Context, session *types.Session, user types.LocalUser) Handle
}

// Handle is one connection attempt.
type Handle interface {
	// Events is closed after Disconnect
	Events() <-chan Event

	// Toggles are no-ops until the handle is ready
	ToggleAudio()
	ToggleVideo()
	ToggleScreenShare()

	// Disconnect tears the attempt down. Safe to call more than once.
	Disconnect()
}

func displayName(user types.LocalUser) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.ID
}
