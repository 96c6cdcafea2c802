package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"livesession/internal/logging"
	"livesession/internal/websocket"
	"livesession/pkg/types"
)

const eventBufferSize = 1000

// Hub fans session events out to websocket subscribers.
// ARCHITECTURAL DISCOVERY: One goroutine owns delivery, so subscribers see
// events in publish order and the store never waits on a socket.
type Hub struct {
	events   chan types.SessionEvent
	shutdown chan struct{}
	registry *websocket.Registry
	logger   zerolog.Logger

	running bool
	mu      sync.RWMutex

	published atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a stopped hub over registry
func NewHub(registry *websocket.Registry) *Hub {
	return &Hub{
		events:   make(chan types.SessionEvent, eventBufferSize),
		shutdown: make(chan struct{}),
		registry: registry,
		logger:   logging.Component("hub"),
	}
}

// Start begins delivery
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}
	h.running = true
	// A fresh channel per run so a stopped hub can be started again
	h.shutdown = make(chan struct{})

	h.logger.Info().Msg("starting event hub")
	go h.run(ctx, h.shutdown)

	return nil
}

// Stop shuts delivery down
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	h.logger.Info().Msg("stopping event hub")
	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	return nil
}

// Publish implements interfaces.Notifier. It never blocks: when the buffer
// is full the event is dropped and subscribers catch up on their next poll.
func (h *Hub) Publish(event types.SessionEvent) {
	h.published.Add(1)

	select {
	case h.events <- event:
	default:
		h.dropped.Add(1)
		h.logger.Warn().Str("event", event.Type).Msg("event buffer full, dropping event")
	}
}

// Stats returns delivery counters
func (h *Hub) Stats() map[string]int64 {
	return map[string]int64{
		"published": h.published.Load(),
		"delivered": h.delivered.Load(),
		"dropped":   h.dropped.Load(),
	}
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}) {
	defer h.logger.Info().Msg("event hub stopped")

	for {
		select {
		case event := <-h.events:
			h.deliver(event)
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) deliver(event types.SessionEvent) {
	courseID := ""
	if event.Session != nil {
		courseID = event.Session.CourseID
	}

	msg := types.PushMessage{
		Type:      types.PushTypeEvent,
		Event:     &event,
		Timestamp: time.Now(),
	}

	for _, conn := range h.registry.SubscribersFor(courseID) {
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug().Err(err).
				Str(logging.FieldUserID, conn.GetUserID()).
				Msg("failed to deliver event")
			continue
		}
		h.delivered.Add(1)
	}
}
