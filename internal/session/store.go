package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"livesession/internal/logging"
	"livesession/pkg/interfaces"
	"livesession/pkg/types"
)

// Store implements interfaces.SessionStore in memory.
// ARCHITECTURAL DISCOVERY: One mutex guards the ordered slice, the id index
// and the active view together so the three never disagree.
type Store struct {
	mu       sync.RWMutex
	sessions []*types.Session          // insertion order
	byID     map[string]*types.Session // sessionID -> Session
	active   []string                  // sessionIDs in activation order
	warnings int

	recorder interfaces.ParticipantRecorder
	notifier interfaces.Notifier
	now      func() time.Time
	newID    func() string
	minTitle int
	logger   zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid id source.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithRecorder enables the participant audit trail.
func WithRecorder(r interfaces.ParticipantRecorder) Option {
	return func(s *Store) { s.recorder = r }
}

// WithNotifier publishes a SessionEvent after every state change.
func WithNotifier(n interfaces.Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithMinTitleLength overrides the minimum trimmed title length.
func WithMinTitleLength(n int) Option {
	return func(s *Store) { s.minTitle = n }
}

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates an empty session store
func NewStore(opts ...Option) *Store {
	s := &Store{
		byID:     make(map[string]*types.Session),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		minTitle: types.DefaultMinTitleLength,
		logger:   logging.Component("session"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListSessions returns all sessions, optionally restricted to one course
func (s *Store) ListSessions(ctx context.Context, courseID string) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*types.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if courseID != "" && session.CourseID != courseID {
			continue
		}
		sessions = append(sessions, session.Clone())
	}
	return sessions, nil
}

// ListActiveSessions returns all sessions whose active flag is set
func (s *Store) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*types.Session, 0, len(s.active))
	for _, id := range s.active {
		sessions = append(sessions, s.byID[id].Clone())
	}
	return sessions, nil
}

// GetSession retrieves a session by ID
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.byID[sessionID]
	if !exists {
		return nil, &types.NotFoundError{ID: sessionID}
	}
	return session.Clone(), nil
}

// CreateSession validates params and appends a new inactive session
func (s *Store) CreateSession(ctx context.Context, params types.CreateSessionParams) (*types.Session, error) {
	if err := params.Validate(s.minTitle); err != nil {
		return nil, err
	}

	now := s.now()
	id := s.newID()
	session := &types.Session{
		ID:          id,
		CourseID:    params.CourseID,
		Title:       params.Title,
		Description: params.Description,
		StartTime:   params.StartTime,
		EndTime:     params.EndTime,
		RoomName:    types.RoomName(id, params.Title),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.sessions = append(s.sessions, session)
	s.byID[id] = session
	snapshot := session.Clone()
	s.mu.Unlock()

	logging.Audit(ctx, logging.ActionCreateSession, id, "session created")
	s.publish(types.EventSessionCreated, snapshot, "", now)
	return snapshot, nil
}

// StartSession sets the active flag; starting an active session is a no-op
func (s *Store) StartSession(ctx context.Context, sessionID string) error {
	now := s.now()

	s.mu.Lock()
	session, exists := s.byID[sessionID]
	if !exists {
		s.mu.Unlock()
		return &types.NotFoundError{ID: sessionID}
	}
	if session.Active {
		s.mu.Unlock()
		return nil
	}
	session.Active = true
	session.UpdatedAt = now
	s.active = append(s.active, sessionID)
	snapshot := session.Clone()
	s.mu.Unlock()

	logging.Audit(ctx, logging.ActionStartSession, sessionID, "session started")
	s.publish(types.EventSessionStarted, snapshot, "", now)
	return nil
}

// EndSession clears the active flag; ending an inactive session is a no-op
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	now := s.now()

	s.mu.Lock()
	session, exists := s.byID[sessionID]
	if !exists {
		s.mu.Unlock()
		return &types.NotFoundError{ID: sessionID}
	}
	if !session.Active {
		s.mu.Unlock()
		return nil
	}
	session.Active = false
	session.UpdatedAt = now
	s.removeActive(sessionID)
	snapshot := session.Clone()
	s.mu.Unlock()

	logging.Audit(ctx, logging.ActionEndSession, sessionID, "session ended")
	s.publish(types.EventSessionEnded, snapshot, "", now)
	return nil
}

// JoinSession increments the participant counter.
// FUNCTIONAL DISCOVERY: No liveness check here; eligibility is decided by
// lifecycle.CanJoin in the calling layer.
func (s *Store) JoinSession(ctx context.Context, sessionID, userID string) error {
	now := s.now()

	s.mu.Lock()
	session, exists := s.byID[sessionID]
	if !exists {
		s.mu.Unlock()
		return &types.NotFoundError{ID: sessionID}
	}
	session.ParticipantCount++
	snapshot := session.Clone()
	s.mu.Unlock()

	if s.recorder != nil {
		participant := &types.SessionParticipant{
			ID:        s.newID(),
			SessionID: sessionID,
			UserID:    userID,
			JoinedAt:  now,
			Active:    true,
		}
		if err := s.recorder.RecordJoin(ctx, participant); err != nil {
			s.logger.Error().Err(err).
				Str(logging.FieldSessionID, sessionID).
				Str(logging.FieldUserID, userID).
				Msg("failed to record participant join")
		}
	}

	s.publish(types.EventSessionJoined, snapshot, userID, now)
	return nil
}

// LeaveSession decrements the participant counter, clamped at zero
func (s *Store) LeaveSession(ctx context.Context, sessionID, userID string) error {
	now := s.now()

	s.mu.Lock()
	session, exists := s.byID[sessionID]
	if !exists {
		s.mu.Unlock()
		return &types.NotFoundError{ID: sessionID}
	}
	clamped := session.ParticipantCount == 0
	if !clamped {
		session.ParticipantCount--
	}
	snapshot := session.Clone()
	s.mu.Unlock()

	if clamped {
		s.warn(types.ConsistencyWarning{
			SessionID: sessionID,
			UserID:    userID,
			Reason:    "leave with participant count already zero",
		})
	}

	if s.recorder != nil {
		closed, err := s.recorder.RecordLeave(ctx, sessionID, userID, now)
		switch {
		case err != nil:
			s.logger.Error().Err(err).
				Str(logging.FieldSessionID, sessionID).
				Str(logging.FieldUserID, userID).
				Msg("failed to record participant leave")
		case !closed && !clamped:
			s.warn(types.ConsistencyWarning{
				SessionID: sessionID,
				UserID:    userID,
				Reason:    "leave without a recorded join",
			})
		}
	}

	s.publish(types.EventSessionLeft, snapshot, userID, now)
	return nil
}

// Seed inserts prepared sessions as-is, keeping their ids and flags.
// Sessions with an empty or duplicate id are skipped.
func (s *Store) Seed(sessions ...*types.Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, session := range sessions {
		if session == nil || session.ID == "" {
			continue
		}
		if _, exists := s.byID[session.ID]; exists {
			continue
		}
		c := session.Clone()
		if c.RoomName == "" {
			c.RoomName = types.RoomName(c.ID, c.Title)
		}
		if c.ParticipantCount < 0 {
			c.ParticipantCount = 0
		}
		s.sessions = append(s.sessions, c)
		s.byID[c.ID] = c
		if c.Active {
			s.active = append(s.active, c.ID)
		}
		added++
	}
	return added
}

// Stats returns store statistics
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]int{
		"sessions":             len(s.sessions),
		"active_sessions":      len(s.active),
		"consistency_warnings": s.warnings,
	}
}

// removeActive drops id from the active view; caller holds the lock
func (s *Store) removeActive(id string) {
	for i, activeID := range s.active {
		if activeID == id {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

func (s *Store) warn(w types.ConsistencyWarning) {
	s.mu.Lock()
	s.warnings++
	s.mu.Unlock()

	s.logger.Warn().
		Str(logging.FieldSessionID, w.SessionID).
		Str(logging.FieldUserID, w.UserID).
		Msg(w.Reason)
}

func (s *Store) publish(eventType string, session *types.Session, userID string, at time.Time) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(types.SessionEvent{
		Type:      eventType,
		Session:   session,
		UserID:    userID,
		Timestamp: at,
	})
}
