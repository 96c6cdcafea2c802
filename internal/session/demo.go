package session

import (
	"time"

	"livesession/pkg/types"
)

// DemoSessions returns the two development sessions, timed relative to now:
// one upcoming in 30 minutes and one that started 15 minutes ago.
func DemoSessions(now time.Time) []*types.Session {
	return []*types.Session{
		{
			ID:          "1",
			CourseID:    "1",
			Title:       "Advanced Mathematics - Calculus Review",
			Description: "Review session for upcoming calculus exam",
			StartTime:   now.Add(30 * time.Minute),
			EndTime:     now.Add(90 * time.Minute),
			RoomName:    "math-calculus-review-1",
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		{
			ID:               "2",
			CourseID:         "2",
			Title:            "Computer Science - Algorithm Discussion",
			Description:      "Interactive discussion on sorting algorithms",
			StartTime:        now.Add(-15 * time.Minute),
			EndTime:          now.Add(45 * time.Minute),
			Active:           true,
			RoomName:         "cs-algorithms-discussion-2",
			ParticipantCount: 12,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}
}
