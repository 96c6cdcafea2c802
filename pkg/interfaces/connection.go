package interfaces

import "livesession/pkg/types"

// Connection represents a subscribed push-notification client
// ARCHITECTURAL DISCOVERY: Pure abstraction without implementation details
// keeps the hub independent of the WebSocket transport.
type Connection interface {
	// WriteJSON sends a JSON message to the client (thread-safe)
	WriteJSON(v interface{}) error

	// Close closes the connection and cleans up resources
	Close() error

	// GetUserID returns the connected user's ID
	GetUserID() string

	// GetRole returns the user's role
	GetRole() string

	// GetCourseID returns the course filter, empty for all courses
	GetCourseID() string

	// IsAuthenticated returns true once credentials are set
	IsAuthenticated() bool

	// SetCredentials sets user credentials after the upgrade
	SetCredentials(userID, role, courseID string) error
}

// Notifier receives session change events.
// FUNCTIONAL DISCOVERY: Publish must not block the caller; the store calls it
// on every mutation.
type Notifier interface {
	Publish(event types.SessionEvent)
}
