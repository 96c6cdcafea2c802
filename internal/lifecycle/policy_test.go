package lifecycle

import (
	"testing"
	"time"

	"livesession/pkg/types"
)

var now = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func session(startOffset, endOffset time.Duration, active bool) *types.Session {
	return &types.Session{
		ID:        "s1",
		StartTime: now.Add(startOffset),
		EndTime:   now.Add(endOffset),
		Active:    active,
	}
}

func TestDerivedStatus(t *testing.T) {
	tests := []struct {
		name string
		s    *types.Session
		want Status
	}{
		{"future inactive", session(time.Hour, 2*time.Hour, false), StatusUpcoming},
		{"future but started", session(time.Hour, 2*time.Hour, true), StatusActive},
		{"inside window inactive", session(-time.Hour, time.Hour, false), StatusActive},
		{"at start boundary", session(0, time.Hour, false), StatusActive},
		{"at end boundary", session(-time.Hour, 0, false), StatusActive},
		{"past inactive", session(-2*time.Hour, -time.Hour, false), StatusEnded},
		{"past but still flagged", session(-2*time.Hour, -time.Hour, true), StatusActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DerivedStatus(tt.s, now); got != tt.want {
				t.Errorf("DerivedStatus = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShouldHaveEnded(t *testing.T) {
	if !ShouldHaveEnded(session(-2*time.Hour, -time.Hour, true), now) {
		t.Error("Flagged session past its end should be labelled should-have-ended")
	}
	if ShouldHaveEnded(session(-2*time.Hour, -time.Hour, false), now) {
		t.Error("Inactive session is simply ended")
	}
	if ShouldHaveEnded(session(-time.Hour, time.Hour, true), now) {
		t.Error("Session inside its window has not overrun")
	}
}

func TestCanJoin_FlagOnly(t *testing.T) {
	if CanJoin(session(-time.Hour, time.Hour, false), now) {
		t.Error("Inside the window but not started must not be joinable")
	}
	if !CanJoin(session(time.Hour, 2*time.Hour, true), now) {
		t.Error("Started session must be joinable before its scheduled start")
	}
}

func TestCanStartAndEnd(t *testing.T) {
	inactive := session(time.Hour, 2*time.Hour, false)
	active := session(time.Hour, 2*time.Hour, true)

	tests := []struct {
		role          string
		startInactive bool
		startActive   bool
		endActive     bool
		endInactive   bool
	}{
		{types.RoleInstructor, true, false, true, false},
		{types.RoleAdmin, true, false, true, false},
		{types.RoleStudent, false, false, false, false},
		{"", false, false, false, false},
	}

	for _, tt := range tests {
		t.Run("role="+tt.role, func(t *testing.T) {
			if got := CanStart(inactive, now, tt.role); got != tt.startInactive {
				t.Errorf("CanStart(inactive) = %v", got)
			}
			if got := CanStart(active, now, tt.role); got != tt.startActive {
				t.Errorf("CanStart(active) = %v", got)
			}
			if got := CanEnd(active, tt.role); got != tt.endActive {
				t.Errorf("CanEnd(active) = %v", got)
			}
			if got := CanEnd(inactive, tt.role); got != tt.endInactive {
				t.Errorf("CanEnd(inactive) = %v", got)
			}
		})
	}
}

func TestCanCreate(t *testing.T) {
	if !CanCreate(types.RoleInstructor) || !CanCreate(types.RoleAdmin) || CanCreate(types.RoleStudent) {
		t.Error("Only instructors and admins may create sessions")
	}
}

func TestDescribe(t *testing.T) {
	v := Describe(session(time.Hour, 2*time.Hour+30*time.Minute, false), now, types.RoleInstructor)
	if v.Status != StatusUpcoming || v.CanJoin || !v.CanStart || v.CanEnd {
		t.Errorf("Unexpected view %+v", v)
	}
	if v.DurationMinutes != 90 {
		t.Errorf("Expected 90 minute duration, got %d", v.DurationMinutes)
	}
}
