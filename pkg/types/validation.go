package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultMinTitleLength matches the create form of the web client
	DefaultMinTitleLength = 3
	MaxTitleLength        = 200
	maxRoomSlugLength     = 48
)

// Regex compiled once at package initialization
var (
	userIDRegex  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	nonSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)
)

// Validate checks the parameters of a new session. minTitle below 1 is
// treated as 1 so an empty title is always rejected.
func (p *CreateSessionParams) Validate(minTitle int) error {
	if minTitle < 1 {
		minTitle = 1
	}
	if strings.TrimSpace(p.CourseID) == "" {
		return &ValidationError{Field: "course_id", Reason: ErrCourseRequired}
	}

	title := strings.TrimSpace(p.Title)
	n := utf8.RuneCountInString(title)
	switch {
	case n == 0:
		return &ValidationError{Field: "title", Reason: ErrTitleRequired}
	case n < minTitle:
		return &ValidationError{Field: "title", Reason: ErrTitleTooShort}
	case n > MaxTitleLength:
		return &ValidationError{Field: "title", Reason: ErrTitleTooLong}
	}

	if p.StartTime.IsZero() || p.EndTime.IsZero() {
		return &ValidationError{Field: "start_time", Reason: ErrTimeRequired}
	}
	if !p.EndTime.After(p.StartTime) {
		return &ValidationError{Field: "end_time", Reason: ErrEndBeforeStart}
	}
	return nil
}

// IsValidUserID checks if a user ID meets format requirements
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 50 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// IsValidRole reports whether role is one of the known roles.
func IsValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleInstructor, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsPrivileged reports whether role may schedule, start and end sessions.
func IsPrivileged(role string) bool {
	return role == RoleInstructor || role == RoleAdmin
}

// RoomName derives the external room identifier from a session id and title.
// The result depends only on its inputs.
func RoomName(id, title string) string {
	slug := SanitizeTitle(title)
	if slug == "" {
		return "session-" + id
	}
	return slug + "-" + id
}

// SanitizeTitle lower-cases title and collapses every run of characters
// outside [a-z0-9] into a single hyphen.
func SanitizeTitle(title string) string {
	slug := nonSlugRegex.ReplaceAllString(strings.ToLower(title), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxRoomSlugLength {
		slug = strings.TrimRight(slug[:maxRoomSlugLength], "-")
	}
	return slug
}
