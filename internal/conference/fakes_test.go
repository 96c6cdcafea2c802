package conference

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"livesession/pkg/types"
)

// Mock adapter whose handles are driven by the test
type fakeAdapter struct {
	name    string
	mu      sync.Mutex
	handles []*fakeHandle
}

func (a *fakeAdapter) Name() string { return a.name }

func (a *fakeAdapter) Connect(ctx context.Context, session *types.Session, user types.LocalUser) Handle {
	h := &fakeHandle{events: newEventStream()}
	a.mu.Lock()
	a.handles = append(a.handles, h)
	a.mu.Unlock()
	return h
}

func (a *fakeAdapter) handle(i int) *fakeHandle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handles[i]
}

func (a *fakeAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

type fakeHandle struct {
	events      *eventStream
	mu          sync.Mutex
	disconnects int
	toggles     []string
}

func (h *fakeHandle) emit(ev Event)        { h.events.emit(ev) }
func (h *fakeHandle) Events() <-chan Event { return h.events.ch }
func (h *fakeHandle) ToggleAudio()         { h.record("audio") }
func (h *fakeHandle) ToggleVideo()         { h.record("video") }
func (h *fakeHandle) ToggleScreenShare()   { h.record("screen") }

func (h *fakeHandle) record(name string) {
	h.mu.Lock()
	h.toggles = append(h.toggles, name)
	h.mu.Unlock()
}

func (h *fakeHandle) Disconnect() {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
	h.events.close()
}

func (h *fakeHandle) disconnectCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.disconnects
}

// Mock bookkeeper counting store calls
type fakeBookkeeper struct {
	mu     sync.Mutex
	joins  int
	leaves int
}

func (b *fakeBookkeeper) JoinSession(ctx context.Context, sessionID, userID string) error {
	b.mu.Lock()
	b.joins++
	b.mu.Unlock()
	return nil
}

func (b *fakeBookkeeper) LeaveSession(ctx context.Context, sessionID, userID string) error {
	b.mu.Lock()
	b.leaves++
	b.mu.Unlock()
	return nil
}

func (b *fakeBookkeeper) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.joins, b.leaves
}

// Manual timers fired by the test instead of the clock
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (m *manualTimers) start(d time.Duration, f func()) func() bool {
	t := &manualTimer{d: d, f: f}
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		was := !t.stopped
		t.stopped = true
		return was
	}
}

// fireLatest runs the most recently started timer if it is still pending
func (m *manualTimers) fireLatest(t *testing.T) {
	t.Helper()
	m.mu.Lock()
	if len(m.timers) == 0 {
		m.mu.Unlock()
		t.Fatal("no timer started")
	}
	timer := m.timers[len(m.timers)-1]
	stopped := timer.stopped
	m.mu.Unlock()
	if stopped {
		t.Fatal("latest timer already stopped")
	}
	timer.f()
}

type recorder struct {
	ch chan StateChange
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan StateChange, 256)}
}

func (r *recorder) observe(c StateChange) { r.ch <- c }

// waitFor reads changes until one reaches state
func (r *recorder) waitFor(t *testing.T, state State) StateChange {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c := <-r.ch:
			if c.To == state {
				return c
			}
		case <-timeout:
			t.Fatalf("timed out waiting for state %s", state)
		}
	}
}

func testSession() *types.Session {
	return &types.Session{ID: "s1", CourseID: "c1", Title: "Algorithms", RoomName: "algorithms-s1", Active: true, ParticipantCount: 2}
}

var testUser = types.LocalUser{ID: "u1", DisplayName: "Ada Lovelace", Role: types.RoleStudent}

var errBoom = errors.New("boom")

// Mock bookkeeper whose joins block until released. It clamps leaves at
// zero the way the session store does and logs the call order.
type gatedBookkeeper struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	count int
	calls []string
}

func newGatedBookkeeper() *gatedBookkeeper {
	return &gatedBookkeeper{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (b *gatedBookkeeper) JoinSession(ctx context.Context, sessionID, userID string) error {
	b.entered <- struct{}{}
	<-b.release
	b.mu.Lock()
	b.count++
	b.calls = append(b.calls, "join")
	b.mu.Unlock()
	return nil
}

func (b *gatedBookkeeper) LeaveSession(ctx context.Context, sessionID, userID string) error {
	b.mu.Lock()
	if b.count > 0 {
		b.count--
	}
	b.calls = append(b.calls, "leave")
	b.mu.Unlock()
	return nil
}

func (b *gatedBookkeeper) snapshot() (int, []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count, append([]string(nil), b.calls...)
}
