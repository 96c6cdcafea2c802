// Package lifecycle holds the pure rules that decide which session
// transitions are legal and how a session is labelled for display.
package lifecycle

import (
	"time"

	"livesession/pkg/types"
)

// Status is the display label of a session.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusEnded    Status = "ended"
)

// DerivedStatus labels a session at time now. The explicit active flag wins
// over the clock: a session that was started reads Active even before its
// scheduled start or after its scheduled end.
func DerivedStatus(s *types.Session, now time.Time) Status {
	switch {
	case s.Active:
		return StatusActive
	case now.Before(s.StartTime):
		return StatusUpcoming
	case !now.After(s.EndTime):
		return StatusActive
	default:
		return StatusEnded
	}
}

// ShouldHaveEnded reports a session still flagged active past its scheduled end.
func ShouldHaveEnded(s *types.Session, now time.Time) bool {
	return s.Active && now.After(s.EndTime)
}

// CanJoin gates real join eligibility on the explicit flag only.
func CanJoin(s *types.Session, now time.Time) bool {
	return s.Active
}

// CanStart allows instructors and admins to start an inactive session.
func CanStart(s *types.Session, now time.Time, role string) bool {
	return types.IsPrivileged(role) && !s.Active
}

// CanEnd allows instructors and admins to end an active session.
func CanEnd(s *types.Session, role string) bool {
	return types.IsPrivileged(role) && s.Active
}

// CanCreate allows instructors and admins to schedule sessions.
func CanCreate(role string) bool {
	return types.IsPrivileged(role)
}

// View bundles everything a renderer needs to draw one session card.
type View struct {
	Status          Status `json:"status"`
	ShouldHaveEnded bool   `json:"should_have_ended"`
	CanJoin         bool   `json:"can_join"`
	CanStart        bool   `json:"can_start"`
	CanEnd          bool   `json:"can_end"`
	DurationMinutes int    `json:"duration_minutes"`
}

// Describe evaluates every rule for one caller.
func Describe(s *types.Session, now time.Time, role string) View {
	return View{
		Status:          DerivedStatus(s, now),
		ShouldHaveEnded: ShouldHaveEnded(s, now),
		CanJoin:         CanJoin(s, now),
		CanStart:        CanStart(s, now, role),
		CanEnd:          CanEnd(s, role),
		DurationMinutes: int(s.EndTime.Sub(s.StartTime).Round(time.Minute) / time.Minute),
	}
}
