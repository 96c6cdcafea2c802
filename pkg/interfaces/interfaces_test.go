package interfaces_test

import (
	"context"
	"testing"
	"time"

	"livesession/pkg/interfaces"
	"livesession/pkg/types"
)

// Mock implementations for testing

type mockConnection struct{}

func (m *mockConnection) WriteJSON(v interface{}) error                      { return nil }
func (m *mockConnection) Close() error                                       { return nil }
func (m *mockConnection) GetUserID() string                                  { return "" }
func (m *mockConnection) GetRole() string                                    { return "" }
func (m *mockConnection) GetCourseID() string                                { return "" }
func (m *mockConnection) IsAuthenticated() bool                              { return false }
func (m *mockConnection) SetCredentials(userID, role, courseID string) error { return nil }

type mockStore struct{}

func (m *mockStore) ListSessions(ctx context.Context, courseID string) ([]*types.Session, error) {
	return nil, nil
}
func (m *mockStore) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	return nil, nil
}
func (m *mockStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	return nil, nil
}
func (m *mockStore) CreateSession(ctx context.Context, params types.CreateSessionParams) (*types.Session, error) {
	return nil, nil
}
func (m *mockStore) StartSession(ctx context.Context, sessionID string) error         { return nil }
func (m *mockStore) EndSession(ctx context.Context, sessionID string) error           { return nil }
func (m *mockStore) JoinSession(ctx context.Context, sessionID, userID string) error  { return nil }
func (m *mockStore) LeaveSession(ctx context.Context, sessionID, userID string) error { return nil }

type mockRecorder struct{}

func (m *mockRecorder) RecordJoin(ctx context.Context, p *types.SessionParticipant) error { return nil }
func (m *mockRecorder) RecordLeave(ctx context.Context, sessionID, userID string, leftAt time.Time) (bool, error) {
	return false, nil
}
func (m *mockRecorder) SessionParticipants(ctx context.Context, sessionID string) ([]*types.SessionParticipant, error) {
	return nil, nil
}
func (m *mockRecorder) HealthCheck(ctx context.Context) error { return nil }
func (m *mockRecorder) Close() error                          { return nil }

type mockNotifier struct{ events []types.SessionEvent }

func (m *mockNotifier) Publish(event types.SessionEvent) { m.events = append(m.events, event) }

func TestInterfaces_ArchitecturalCompliance(t *testing.T) {
	var _ interfaces.Connection = &mockConnection{}
	var _ interfaces.SessionStore = &mockStore{}
	var _ interfaces.ParticipantRecorder = &mockRecorder{}
	var _ interfaces.Notifier = &mockNotifier{}
}

// The narrow interfaces must be satisfied by any full store
func TestInterfaces_StoreSlices(t *testing.T) {
	var store interfaces.SessionStore = &mockStore{}
	var _ interfaces.Bookkeeper = store
	var _ interfaces.ActiveLister = store

	ctx := context.Background()
	if err := interfaces.Bookkeeper(store).JoinSession(ctx, "s", "u"); err != nil {
		t.Errorf("mock join should not fail: %v", err)
	}
	if _, err := interfaces.ActiveLister(store).ListActiveSessions(ctx); err != nil {
		t.Errorf("mock list should not fail: %v", err)
	}
}

func TestNotifier_Contract(t *testing.T) {
	n := &mockNotifier{}
	var notifier interfaces.Notifier = n
	notifier.Publish(types.SessionEvent{Type: types.EventSessionStarted})

	if len(n.events) != 1 || n.events[0].Type != types.EventSessionStarted {
		t.Errorf("Expected one started event, got %+v", n.events)
	}
}
