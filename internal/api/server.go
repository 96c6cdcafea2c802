package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"livesession/internal/lifecycle"
	"livesession/internal/logging"
	"livesession/pkg/interfaces"
	"livesession/pkg/types"
)

// Identity headers stand in for the caller's restored profile
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const (
	healthCheckTimeout = 5 * time.Second
	maxBodyBytes       = 1 << 20
)

var (
	errMissingIdentity = errors.New("X-User-ID and X-User-Role headers are required")
	errInvalidJSON     = errors.New("invalid JSON body")
)

// StatsProvider exposes counters for the health endpoint
type StatsProvider interface {
	GetStats() map[string]int
}

// StatsFunc adapts a plain function to StatsProvider
type StatsFunc func() map[string]int

func (f StatsFunc) GetStats() map[string]int { return f() }

// Deps are the collaborators of the HTTP API. Store is required.
type Deps struct {
	Store      interfaces.SessionStore
	Recorder   interfaces.ParticipantRecorder
	Registry   StatsProvider
	StoreStats StatsProvider
	WebSocket  http.Handler
	Conference *ConferenceSettings
}

// ConferenceSettings are the connection bounds handed to conferencing
// clients so every view retries and times out the same way.
type ConferenceSettings struct {
	ConnectTimeoutMS    int64  `json:"connect_timeout_ms"`
	MaxRetries          int    `json:"max_retries"`
	ScriptLoadTimeoutMS int64  `json:"script_load_timeout_ms"`
	RoomPrefix          string `json:"room_prefix"`
}

// ARCHITECTURAL DISCOVERY: HTTP API layer holds no business rules; every
// capability decision is delegated to the lifecycle package
type Server struct {
	deps    Deps
	router  *mux.Router
	limiter *RateLimiter
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces the clock used for lifecycle views.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRateLimit sets the per-user limit on mutating routes.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) { s.limiter = NewRateLimiter(perMinute) }
}

// NewServer builds the router
func NewServer(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:    deps,
		router:  mux.NewRouter(),
		limiter: NewRateLimiter(defaultRateLimit),
		now:     time.Now,
		logger:  logging.Component("api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiter.now = s.now

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logging.HTTPMiddleware(s.logger), corsMiddleware)

	// Preflight for any path
	s.router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	if s.deps.WebSocket != nil {
		s.router.Handle("/ws", s.deps.WebSocket).Methods(http.MethodGet)
	}
	s.router.Handle("/health", jsonMiddleware(http.HandlerFunc(s.healthCheck))).Methods(http.MethodGet)

	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiRouter.Use(jsonMiddleware, s.identityMiddleware)

	// /active is registered before /{id} so it is not read as an id
	apiRouter.HandleFunc("/sessions/active", s.listActiveSessions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/sessions", s.listSessions).Methods(http.MethodGet)
	apiRouter.Handle("/sessions", s.limited(s.createSession)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sessions/{id}", s.getSession).Methods(http.MethodGet)
	apiRouter.Handle("/sessions/{id}/start", s.limited(s.startSession)).Methods(http.MethodPost)
	apiRouter.Handle("/sessions/{id}/end", s.limited(s.endSession)).Methods(http.MethodPost)
	apiRouter.Handle("/sessions/{id}/join", s.limited(s.joinSession)).Methods(http.MethodPost)
	apiRouter.Handle("/sessions/{id}/leave", s.limited(s.leaveSession)).Methods(http.MethodPost)
	apiRouter.HandleFunc("/sessions/{id}/participants", s.listParticipants).Methods(http.MethodGet)
	if s.deps.Conference != nil {
		apiRouter.HandleFunc("/conference/settings", s.conferenceSettings).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// RunMaintenance sweeps idle rate limiter entries until ctx is done
func (s *Server) RunMaintenance(ctx context.Context) error {
	ticker := time.NewTicker(rateLimitSweepGap)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.limiter.Cleanup()
		}
	}
}

// Response types for JSON serialization
type SessionResponse struct {
	Session *types.Session `json:"session"`
	View    lifecycle.View `json:"view"`
}

type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type ParticipantsResponse struct {
	SessionID    string                      `json:"session_id"`
	Participants []*types.SessionParticipant `json:"participants"`
}

type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections,omitempty"`
	Sessions    map[string]int `json:"sessions,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type caller struct {
	userID string
	role   string
}

type callerKey struct{}

func callerFrom(ctx context.Context) caller {
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

// identityMiddleware reads and validates the identity headers
func (s *Server) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		role := r.Header.Get(HeaderUserRole)

		switch {
		case userID == "" || role == "":
			s.sendError(w, r, errMissingIdentity.Error(), http.StatusUnauthorized)
			return
		case !types.IsValidUserID(userID):
			s.sendError(w, r, types.ErrInvalidUserID.Error(), http.StatusBadRequest)
			return
		case !types.IsValidRole(role):
			s.sendError(w, r, types.ErrInvalidRole.Error(), http.StatusBadRequest)
			return
		}

		l := logging.Ctx(r.Context()).With().
			Str(logging.FieldUserID, userID).
			Str(logging.FieldRole, role).
			Logger()
		ctx := logging.WithLogger(r.Context(), l)
		ctx = context.WithValue(ctx, callerKey{}, caller{userID: userID, role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// limited applies the per-user rate limit
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(callerFrom(r.Context()).userID) {
			s.sendError(w, r, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		h(w, r)
	})
}

func (s *Server) view(session *types.Session, role string) SessionResponse {
	return SessionResponse{Session: session, View: lifecycle.Describe(session, s.now(), role)}
}

// GET /api/sessions?course_id=
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.ListSessions(r.Context(), r.URL.Query().Get("course_id"))
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, s.listResponse(sessions, callerFrom(r.Context()).role))
}

// GET /api/sessions/active
func (s *Server) listActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Store.ListActiveSessions(r.Context())
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, s.listResponse(sessions, callerFrom(r.Context()).role))
}

func (s *Server) listResponse(sessions []*types.Session, role string) ListSessionsResponse {
	resp := ListSessionsResponse{Sessions: make([]SessionResponse, len(sessions))}
	for i, session := range sessions {
		resp.Sessions[i] = s.view(session, role)
	}
	return resp
}

// POST /api/sessions
func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	if !lifecycle.CanCreate(c.role) {
		s.sendError(w, r, "Only instructors and admins can create sessions", http.StatusForbidden)
		return
	}

	var params types.CreateSessionParams
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.sendError(w, r, errInvalidJSON.Error(), http.StatusBadRequest)
		return
	}

	session, err := s.deps.Store.CreateSession(r.Context(), params)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusCreated, s.view(session, c.role))
}

// GET /api/sessions/{id}
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.deps.Store.GetSession(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	s.sendJSON(w, r, http.StatusOK, s.view(session, callerFrom(r.Context()).role))
}

// POST /api/sessions/{id}/start
// FUNCTIONAL DISCOVERY: Starting an already active session answers 200 with
// the unchanged session rather than a conflict.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	id := mux.Vars(r)["id"]

	session, err := s.deps.Store.GetSession(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	if !types.IsPrivileged(c.role) {
		s.sendError(w, r, "Only instructors and admins can start sessions", http.StatusForbidden)
		return
	}

	if lifecycle.CanStart(session, s.now(), c.role) {
		if err := s.deps.Store.StartSession(r.Context(), id); err != nil {
			s.sendStoreError(w, r, err)
			return
		}
	}
	s.respondWithSession(w, r, id, http.StatusOK)
}

// POST /api/sessions/{id}/end
func (s *Server) endSession(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	id := mux.Vars(r)["id"]

	session, err := s.deps.Store.GetSession(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	if !types.IsPrivileged(c.role) {
		s.sendError(w, r, "Only instructors and admins can end sessions", http.StatusForbidden)
		return
	}

	if lifecycle.CanEnd(session, c.role) {
		if err := s.deps.Store.EndSession(r.Context(), id); err != nil {
			s.sendStoreError(w, r, err)
			return
		}
	}
	s.respondWithSession(w, r, id, http.StatusOK)
}

// POST /api/sessions/{id}/join
func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	c := callerFrom(r.Context())
	id := mux.Vars(r)["id"]

	session, err := s.deps.Store.GetSession(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	if !lifecycle.CanJoin(session, s.now()) {
		s.sendError(w, r, "Session is not active", http.StatusConflict)
		return
	}

	if err := s.deps.Store.JoinSession(r.Context(), id, c.userID); err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	s.respondWithSession(w, r, id, http.StatusOK)
}

// POST /api/sessions/{id}/leave
func (s *Server) leaveSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Store.LeaveSession(r.Context(), id, callerFrom(r.Context()).userID); err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	s.respondWithSession(w, r, id, http.StatusOK)
}

// GET /api/sessions/{id}/participants
func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.deps.Store.GetSession(r.Context(), id); err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	if s.deps.Recorder == nil {
		s.sendError(w, r, "Participant history is not enabled", http.StatusServiceUnavailable)
		return
	}

	participants, err := s.deps.Recorder.SessionParticipants(r.Context(), id)
	if err != nil {
		l := logging.Ctx(r.Context())
		l.Error().Err(err).Str(logging.FieldSessionID, id).Msg("failed to read participant history")
		s.sendError(w, r, "Failed to read participant history", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, r, http.StatusOK, ParticipantsResponse{SessionID: id, Participants: participants})
}

// respondWithSession re-reads the session so the response reflects the mutation
func (s *Server) respondWithSession(w http.ResponseWriter, r *http.Request, id string, code int) {
	session, err := s.deps.Store.GetSession(r.Context(), id)
	if err != nil {
		s.sendStoreError(w, r, err)
		return
	}
	s.sendJSON(w, r, code, s.view(session, callerFrom(r.Context()).role))
}

// GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Timestamp: s.now(), Database: "disabled"}

	if s.deps.Recorder != nil {
		resp.Database = "healthy"
		if err := s.deps.Recorder.HealthCheck(ctx); err != nil {
			resp.Status = "unhealthy"
			resp.Database = fmt.Sprintf("error: %v", err)
		}
	}
	if s.deps.Registry != nil {
		resp.Connections = s.deps.Registry.GetStats()
	}
	if s.deps.StoreStats != nil {
		resp.Sessions = s.deps.StoreStats.GetStats()
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	s.sendJSON(w, r, code, resp)
}

// GET /api/conference/settings
func (s *Server) conferenceSettings(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, r, http.StatusOK, s.deps.Conference)
}

// sendStoreError maps typed store errors onto status codes
func (s *Server) sendStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *types.ValidationError
	switch {
	case errors.As(err, &vErr):
		w.WriteHeader(http.StatusBadRequest)
		s.encode(w, r, ErrorResponse{
			Error:   http.StatusText(http.StatusBadRequest),
			Code:    http.StatusBadRequest,
			Message: vErr.Error(),
			Field:   vErr.Field,
		})
	case errors.Is(err, types.ErrNotFound):
		s.sendError(w, r, err.Error(), http.StatusNotFound)
	default:
		l := logging.Ctx(r.Context())
		l.Error().Err(err).Msg("store operation failed")
		s.sendError(w, r, "Internal error", http.StatusInternalServerError)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, r *http.Request, message string, code int) {
	w.WriteHeader(code)
	s.encode(w, r, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	w.WriteHeader(code)
	s.encode(w, r, v)
}

func (s *Server) encode(w http.ResponseWriter, r *http.Request, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logging.Ctx(r.Context())
		l.Warn().Err(err).Msg("failed to write response")
	}
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// Allows all origins in development - would be restricted in production
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderUserID+", "+HeaderUserRole)
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
