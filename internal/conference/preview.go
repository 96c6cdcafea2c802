package conference

import (
	"context"
	"sync"

	"livesession/pkg/types"
)

// MediaCapture opens the local camera and microphone.
type MediaCapture interface {
	Open(ctx context.Context, audio, video bool) (MediaStream, error)
}

// MediaStream is an open local capture.
type MediaStream interface {
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)
	Stop()
}

// LocalPreviewAdapter shows the local user's own media with no signalling.
// FUNCTIONAL DISCOVERY: This is the fallback when the embed is unreachable.
// A capture failure is reported but the handle still becomes ready, so the
// user keeps a working (video-less) view instead of a dead screen.
type LocalPreviewAdapter struct {
	capture MediaCapture
}

// NewLocalPreviewAdapter creates the fallback adapter
func NewLocalPreviewAdapter(capture MediaCapture) *LocalPreviewAdapter {
	return &LocalPreviewAdapter{capture: capture}
}

// Name returns the adapter name
func (a *LocalPreviewAdapter) Name() string { return "local_preview" }

// Connect opens local capture in the background
func (a *LocalPreviewAdapter) Connect(ctx context.Context, session *types.Session, user types.LocalUser) Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &previewHandle{
		events:       newEventStream(),
		cancel:       cancel,
		audioEnabled: true,
		videoEnabled: true,
	}
	go h.run(ctx, a.capture)
	return h
}

type previewHandle struct {
	events *eventStream
	cancel context.CancelFunc

	mu           sync.Mutex
	stream       MediaStream
	ready        bool
	disconnected bool
	audioEnabled bool
	videoEnabled bool
}

func (h *previewHandle) run(ctx context.Context, capture MediaCapture) {
	var stream MediaStream
	var err error
	if capture != nil {
		stream, err = capture.Open(ctx, true, true)
	}

	h.mu.Lock()
	if h.disconnected || ctx.Err() != nil {
		h.mu.Unlock()
		if stream != nil {
			stream.Stop()
		}
		return
	}
	h.stream = stream
	h.ready = true
	h.mu.Unlock()

	if err != nil {
		h.events.emit(Event{Kind: EventError, Err: &ConnectionError{Kind: ErrorCaptureFailure, Err: err}})
	}
	h.events.emit(Event{Kind: EventReady})
}

func (h *previewHandle) Events() <-chan Event { return h.events.ch }

func (h *previewHandle) ToggleAudio() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ready || h.stream == nil {
		return
	}
	h.audioEnabled = !h.audioEnabled
	h.stream.SetAudioEnabled(h.audioEnabled)
}

func (h *previewHandle) ToggleVideo() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ready || h.stream == nil {
		return
	}
	h.videoEnabled = !h.videoEnabled
	h.stream.SetVideoEnabled(h.videoEnabled)
}

// ToggleScreenShare is unsupported without signalling
func (h *previewHandle) ToggleScreenShare() {}

// Disconnect stops capture and closes the event channel
func (h *previewHandle) Disconnect() {
	h.mu.Lock()
	if h.disconnected {
		h.mu.Unlock()
		return
	}
	h.disconnected = true
	stream := h.stream
	h.stream = nil
	h.mu.Unlock()

	h.cancel()
	if stream != nil {
		stream.Stop()
	}
	h.events.close()
}
