package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"livesession/internal/logging"
	"livesession/internal/poller"
	"livesession/pkg/interfaces"
	"livesession/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Allow all origins; the API has no auth layer either
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Heartbeat timing defaults
const (
	defaultPingInterval = 30 * time.Second
	defaultReadDeadline = 60 * time.Second
)

// Handler upgrades subscriber connections and keeps them fed.
// ARCHITECTURAL DISCOVERY: Each subscriber gets its own poller over the
// active list. Hub events arrive as they happen; the poll is the floor that
// repairs anything a dropped event missed.
type Handler struct {
	registry     *Registry
	source       interfaces.ActiveLister
	pollInterval time.Duration
	pingInterval time.Duration
	readDeadline time.Duration
	logger       zerolog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithHeartbeat overrides the ping interval and the read deadline a pong
// extends. Non-positive values keep the defaults.
func WithHeartbeat(ping, readDeadline time.Duration) HandlerOption {
	return func(h *Handler) {
		if ping > 0 {
			h.pingInterval = ping
		}
		if readDeadline > 0 {
			h.readDeadline = readDeadline
		}
	}
}

// NewHandler creates a new WebSocket handler. A non-positive pollInterval
// uses poller.DefaultInterval.
func NewHandler(registry *Registry, source interfaces.ActiveLister, pollInterval time.Duration, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:     registry,
		source:       &sharedLister{source: source},
		pollInterval: pollInterval,
		pingInterval: defaultPingInterval,
		readDeadline: defaultReadDeadline,
		logger:       logging.Component("websocket"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// sharedLister collapses concurrent polls from many subscribers into one
// store read. Callers share the first caller's context, so a poll may fail
// with that subscriber's cancellation; the next tick repairs it.
type sharedLister struct {
	source interfaces.ActiveLister
	group  singleflight.Group
}

func (s *sharedLister) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	v, err, _ := s.group.Do("active", func() (interface{}, error) {
		return s.source.ListActiveSessions(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*types.Session), nil
}

// ServeHTTP lets the handler be mounted directly on a router
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// HandleWebSocket serves GET /ws?user_id=&role=[&course_id=]
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	role := r.URL.Query().Get("role")
	courseID := r.URL.Query().Get("course_id")

	if userID == "" || role == "" {
		http.Error(w, "Missing required query parameters: user_id, role", http.StatusBadRequest)
		return
	}
	if !types.IsValidUserID(userID) {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}
	if !types.IsValidRole(role) {
		http.Error(w, "Invalid role: must be 'student', 'instructor' or 'admin'", http.StatusBadRequest)
		return
	}
	if courseID != "" && !types.IsValidUserID(courseID) {
		http.Error(w, "Invalid course_id format", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	wsConn := NewConnection(conn)
	if err := wsConn.SetCredentials(userID, role, courseID); err != nil {
		h.logger.Error().Err(err).Msg("failed to set credentials")
		_ = wsConn.Close()
		return
	}

	if err := h.registry.RegisterConnection(wsConn); err != nil {
		h.logger.Error().Err(err).Str(logging.FieldUserID, userID).Msg("failed to register connection")
		_ = wsConn.Close()
		return
	}

	h.logger.Info().
		Str(logging.FieldUserID, userID).
		Str(logging.FieldRole, role).
		Str(logging.FieldCourseID, courseID).
		Msg("subscriber connected")

	go h.handleConnection(wsConn)
}

// snapshotSink writes the active list, filtered to the subscriber's course
func (h *Handler) snapshotSink(conn *Connection) poller.Sink {
	return func(sessions []*types.Session) {
		courseID := conn.GetCourseID()
		filtered := make([]*types.Session, 0, len(sessions))
		for _, s := range sessions {
			if courseID == "" || s.CourseID == courseID {
				filtered = append(filtered, s)
			}
		}

		msg := types.PushMessage{
			Type:      types.PushTypeSnapshot,
			Sessions:  filtered,
			Timestamp: time.Now(),
		}
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug().Err(err).Str(logging.FieldUserID, conn.GetUserID()).Msg("failed to send snapshot")
		}
	}
}

// handleConnection runs the snapshot poller, heartbeat and read pump
func (h *Handler) handleConnection(conn *Connection) {
	p := poller.New(h.source, h.snapshotSink(conn), h.pollInterval)
	p.Start(conn.ctx)

	defer func() {
		p.Stop()
		h.registry.UnregisterConnection(conn)
		_ = conn.Close()
		h.logger.Info().Str(logging.FieldUserID, conn.GetUserID()).Msg("subscriber disconnected")
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.readDeadline)); err != nil {
		h.logger.Warn().Err(err).Msg("failed to set read deadline")
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.readDeadline))
	})

	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	// Subscribers only listen; inbound text frames are ignored
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str(logging.FieldUserID, conn.GetUserID()).Msg("websocket read error")
			}
			return
		}
	}
}
