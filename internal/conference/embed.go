package conference

import (
	"context"
	"errors"
	"sync"
	"time"

	"livesession/pkg/types"
)

// Commands understood by an embedded conference.
const (
	CommandToggleAudio       = "toggleAudio"
	CommandToggleVideo       = "toggleVideo"
	CommandToggleShareScreen = "toggleShareScreen"
	CommandHangup            = "hangup"
)

const (
	// EmbedRoomPrefix namespaces platform rooms on a shared conferencing host
	EmbedRoomPrefix = "eduplatform-"

	DefaultScriptLoadTimeout = 10 * time.Second
)

var errScriptLoadTimeout = errors.New("embed script load timed out")

// Embed is a third-party conferencing SDK.
type Embed interface {
	// Load makes the SDK available. It may be slow or fail.
	Load(ctx context.Context) error

	// Open joins a room and reports back through the listener.
	Open(room, displayName string, listener EmbedListener) (Conference, error)
}

// EmbedListener receives SDK callbacks. Callbacks may arrive on any goroutine.
type EmbedListener interface {
	ConferenceJoined()
	ConferenceLeft()
	ParticipantJoined()
	ParticipantLeft()
	ReadyToClose()
	ConferenceError(err error)
}

// Conference is an open SDK room.
type Conference interface {
	ExecuteCommand(command string)
	Dispose()
}

// EmbedAdapter drives an Embed SDK.
type EmbedAdapter struct {
	embed       Embed
	loadTimeout time.Duration
}

// NewEmbedAdapter creates an adapter. A non-positive loadTimeout uses
// DefaultScriptLoadTimeout.
func NewEmbedAdapter(embed Embed, loadTimeout time.Duration) *EmbedAdapter {
	if loadTimeout <= 0 {
		loadTimeout = DefaultScriptLoadTimeout
	}
	return &EmbedAdapter{embed: embed, loadTimeout: loadTimeout}
}

// Name returns the adapter name
func (a *EmbedAdapter) Name() string { return "embed" }

// EmbedRoom returns the SDK room name for a session.
func EmbedRoom(session *types.Session) string {
	return EmbedRoomPrefix + session.RoomName
}

// Connect loads the SDK and opens the room in the background
func (a *EmbedAdapter) Connect(ctx context.Context, session *types.Session, user types.LocalUser) Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &embedHandle{
		events: newEventStream(),
		cancel: cancel,
	}
	go h.run(ctx, a.embed, a.loadTimeout, EmbedRoom(session), displayName(user))
	return h
}

type embedHandle struct {
	events *eventStream
	cancel context.CancelFunc

	mu           sync.Mutex
	conf         Conference
	ready        bool
	disconnected bool
}

func (h *embedHandle) run(ctx context.Context, embed Embed, loadTimeout time.Duration, room, name string) {
	loadCtx, cancelLoad := context.WithTimeout(ctx, loadTimeout)
	err := embed.Load(loadCtx)
	cancelLoad()

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errScriptLoadTimeout
		}
		h.fail(ErrorScriptLoadFailure, err)
		return
	}

	conf, err := embed.Open(room, name, h)
	if err != nil {
		h.fail(ErrorRemoteRejected, err)
		return
	}

	h.mu.Lock()
	if h.disconnected {
		h.mu.Unlock()
		conf.Dispose()
		return
	}
	h.conf = conf
	h.mu.Unlock()
}

func (h *embedHandle) fail(kind ErrorKind, err error) {
	h.events.emit(Event{Kind: EventError, Err: &ConnectionError{Kind: kind, Err: err}})
}

func (h *embedHandle) Events() <-chan Event { return h.events.ch }

func (h *embedHandle) ToggleAudio()       { h.command(CommandToggleAudio) }
func (h *embedHandle) ToggleVideo()       { h.command(CommandToggleVideo) }
func (h *embedHandle) ToggleScreenShare() { h.command(CommandToggleShareScreen) }

func (h *embedHandle) command(name string) {
	h.mu.Lock()
	conf, ready := h.conf, h.ready
	h.mu.Unlock()

	if conf == nil || !ready {
		return
	}
	conf.ExecuteCommand(name)
}

// Disconnect hangs up, disposes the SDK room and closes the event channel
func (h *embedHandle) Disconnect() {
	h.mu.Lock()
	if h.disconnected {
		h.mu.Unlock()
		return
	}
	h.disconnected = true
	conf, ready := h.conf, h.ready
	h.conf = nil
	h.mu.Unlock()

	h.cancel()
	if conf != nil {
		if ready {
			conf.ExecuteCommand(CommandHangup)
		}
		conf.Dispose()
	}
	h.events.close()
}

// EmbedListener implementation

func (h *embedHandle) ConferenceJoined() {
	h.mu.Lock()
	h.ready = true
	h.mu.Unlock()
	h.events.emit(Event{Kind: EventReady})
}

func (h *embedHandle) ConferenceLeft() {
	h.events.emit(Event{Kind: EventLocalHangup})
}

func (h *embedHandle) ParticipantJoined() {
	h.events.emit(Event{Kind: EventParticipantCountChanged, Delta: 1})
}

func (h *embedHandle) ParticipantLeft() {
	h.events.emit(Event{Kind: EventParticipantCountChanged, Delta: -1})
}

func (h *embedHandle) ReadyToClose() {
	h.events.emit(Event{Kind: EventClosedByRemote})
}

func (h *embedHandle) ConferenceError(err error) {
	h.fail(ErrorRemoteRejected, err)
}
