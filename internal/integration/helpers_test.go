package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"livesession/internal/api"
	"livesession/internal/app"
	"livesession/internal/conference"
	"livesession/internal/config"
	"livesession/pkg/types"
)

// startApplication boots the full stack on an ephemeral port with a
// throwaway audit database
func startApplication(t *testing.T, mutate ...func(*config.Config)) *app.Application {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.DatabasePath = filepath.Join(t.TempDir(), "integration.db")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	for _, m := range mutate {
		m(cfg)
	}

	application, err := app.NewApplication(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(ctx); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return application
}

type client struct {
	t      *testing.T
	base   string
	userID string
	role   string
}

func newClient(t *testing.T, application *app.Application, userID, role string) *client {
	return &client{t: t, base: "http://" + application.Addr(), userID: userID, role: role}
}

func (c *client) do(method, path string, body interface{}, out interface{}) int {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderUserID, c.userID)
	req.Header.Set(api.HeaderUserRole, c.role)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("Decode %s %s failed: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func participantCount(t *testing.T, application *app.Application, id string) int {
	t.Helper()
	s, err := application.Store().GetSession(context.Background(), id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	return s.ParticipantCount
}

// Mock conferencing SDK. joins controls whether Open ever reports success.
type fakeEmbed struct {
	joins bool

	mu    sync.Mutex
	rooms []string
}

func (e *fakeEmbed) Load(ctx context.Context) error { return nil }

func (e *fakeEmbed) Open(room, displayName string, listener conference.EmbedListener) (conference.Conference, error) {
	e.mu.Lock()
	e.rooms = append(e.rooms, room)
	e.mu.Unlock()

	if e.joins {
		go listener.ConferenceJoined()
	}
	return &fakeConference{}, nil
}

func (e *fakeEmbed) opened() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.rooms...)
}

type fakeConference struct{}

func (c *fakeConference) ExecuteCommand(command string) {}
func (c *fakeConference) Dispose()                      {}

// Mock camera that is never available
type deniedCapture struct{}

func (deniedCapture) Open(ctx context.Context, audio, video bool) (conference.MediaStream, error) {
	return nil, errors.New("permission denied")
}

// stateRecorder collects observer callbacks
type stateRecorder struct {
	mu      sync.Mutex
	changes []conference.StateChange
}

func (r *stateRecorder) observe(c conference.StateChange) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *stateRecorder) last() (conference.StateChange, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.changes) == 0 {
		return conference.StateChange{}, false
	}
	return r.changes[len(r.changes)-1], true
}

func createSession(t *testing.T, c *client, title string, start time.Time) *types.Session {
	t.Helper()
	var resp api.SessionResponse
	status := c.do(http.MethodPost, "/api/sessions", types.CreateSessionParams{
		CourseID:  "course-1",
		Title:     title,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
	}, &resp)
	if status != http.StatusCreated {
		t.Fatalf("Create session returned %d", status)
	}
	return resp.Session
}
