package types

import (
	"time"
)

// Roles recognised by the lifecycle policy
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

// Session event types published after every state-changing store call
const (
	EventSessionCreated = "session.created"
	EventSessionStarted = "session.started"
	EventSessionEnded   = "session.ended"
	EventSessionJoined  = "session.joined"
	EventSessionLeft    = "session.left"
)

// Session represents one scheduled or live video session tied to a course.
// FUNCTIONAL DISCOVERY: Active is an explicit flag flipped only by start/end
// calls; the scheduled window never changes it.
type Session struct {
	ID               string    `json:"id"`
	CourseID         string    `json:"course_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	RoomName         string    `json:"room_name"`
	Active           bool      `json:"active"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Clone returns an independent copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SessionParticipant is one join/leave audit record.
type SessionParticipant struct {
	ID        string     `json:"id" db:"id"`
	SessionID string     `json:"session_id" db:"session_id"`
	UserID    string     `json:"user_id" db:"user_id"`
	JoinedAt  time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt    *time.Time `json:"left_at,omitempty" db:"left_at"`
	Active    bool       `json:"active" db:"active"`
}

// CreateSessionParams carries the caller-supplied fields of a new session.
type CreateSessionParams struct {
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// LocalUser identifies the person opening a session view.
type LocalUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
}

// SessionEvent is published to subscribers whenever a session changes.
type SessionEvent struct {
	Type      string    `json:"type"`
	Session   *Session  `json:"session"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Push message types sent to websocket subscribers
const (
	PushTypeSnapshot = "active_sessions"
	PushTypeEvent    = "session_event"
)

// PushMessage is one frame on the subscriber websocket.
type PushMessage struct {
	Type      string        `json:"type"`
	Event     *SessionEvent `json:"event,omitempty"`
	Sessions  []*Session    `json:"sessions,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
