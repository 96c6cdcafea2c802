package websocket

import (
	"sync"

	"github.com/rs/zerolog"

	"livesession/internal/logging"
)

// Registry tracks subscriber connections by user and by course filter
// ARCHITECTURAL DISCOVERY: Pure connection management without business logic
// keeps fan-out in the hub and lookups here.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection            // userID -> Connection
	byCourse    map[string]map[string]*Connection // courseID -> userID -> Connection, "" for all courses
	logger      zerolog.Logger
}

// NewRegistry creates a new connection registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		byCourse:    make(map[string]map[string]*Connection),
		logger:      logging.Component("registry"),
	}
}

// RegisterConnection adds an authenticated connection, replacing any
// previous connection of the same user.
// FUNCTIONAL DISCOVERY: The replaced connection is closed asynchronously so
// registration never waits on a slow socket.
func (r *Registry) RegisterConnection(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if !conn.IsAuthenticated() {
		return ErrConnectionNotAuthenticated
	}

	userID := conn.GetUserID()
	courseID := conn.GetCourseID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.connections[userID]; exists && existing != conn {
		r.removeLocked(existing)
		go func() {
			if err := existing.Close(); err != nil {
				r.logger.Debug().Err(err).Str(logging.FieldUserID, userID).Msg("failed to close replaced connection")
			}
		}()
	}

	r.connections[userID] = conn
	if r.byCourse[courseID] == nil {
		r.byCourse[courseID] = make(map[string]*Connection)
	}
	r.byCourse[courseID][userID] = conn

	return nil
}

// UnregisterConnection removes conn if it is still the user's registered
// connection. Idempotent.
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.GetUserID()]; !exists || registered != conn {
		return
	}
	r.removeLocked(conn)
}

func (r *Registry) removeLocked(conn *Connection) {
	userID := conn.GetUserID()
	courseID := conn.GetCourseID()

	delete(r.connections, userID)
	if subs, exists := r.byCourse[courseID]; exists {
		delete(subs, userID)
		if len(subs) == 0 {
			delete(r.byCourse, courseID)
		}
	}
}

// GetUserConnection returns the current connection for a user
func (r *Registry) GetUserConnection(userID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[userID]
	return conn, exists
}

// SubscribersFor returns connections interested in courseID: those
// filtered to it plus those watching every course.
func (r *Registry) SubscribersFor(courseID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var connections []*Connection
	for _, conn := range r.byCourse[""] {
		connections = append(connections, conn)
	}
	if courseID != "" {
		for _, conn := range r.byCourse[courseID] {
			connections = append(connections, conn)
		}
	}
	return connections
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	courses := len(r.byCourse)
	if _, exists := r.byCourse[""]; exists {
		courses--
	}
	return map[string]int{
		"total_connections": len(r.connections),
		"course_filters":    courses,
	}
}

// CloseAll closes every registered connection; their handlers unregister
// them as the read pumps exit. Returns the number closed.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	connections := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		connections = append(connections, conn)
	}
	r.mu.RUnlock()

	for _, conn := range connections {
		_ = conn.Close()
	}
	return len(connections)
}
