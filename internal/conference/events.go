package conference

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"livesession/internal/logging"
)

// EventKind identifies what an adapter is reporting.
type EventKind int

const (
	EventReady EventKind = iota
	EventParticipantCountChanged
	EventError
	EventClosedByRemote
	EventLocalHangup
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventParticipantCountChanged:
		return "participant_count_changed"
	case EventError:
		return "error"
	case EventClosedByRemote:
		return "closed_by_remote"
	case EventLocalHangup:
		return "local_hangup"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event is emitted by a Handle. Delta is set for EventParticipantCountChanged
// and Err for EventError.
type Event struct {
	Kind  EventKind
	Delta int
	Err   *ConnectionError
}

// ErrorKind classifies a connection failure.
type ErrorKind int

const (
	ErrorTimeout ErrorKind = iota
	ErrorRemoteRejected
	ErrorScriptLoadFailure
	ErrorCaptureFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTimeout:
		return "timeout"
	case ErrorRemoteRejected:
		return "remote_rejected"
	case ErrorScriptLoadFailure:
		return "script_load_failure"
	case ErrorCaptureFailure:
		return "capture_failure"
	default:
		return fmt.Sprintf("error(%d)", int(k))
	}
}

// ConnectionError reports a failed or degraded connection attempt.
// Terminal is set once no retries remain.
type ConnectionError struct {
	Kind     ErrorKind
	Attempt  int
	Terminal bool
	Err      error
}

func (e *ConnectionError) Error() string {
	msg := fmt.Sprintf("conference %s on attempt %d", e.Kind, e.Attempt)
	if e.Terminal {
		msg += " (terminal)"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

const eventBufferSize = 64

// eventStream is the channel behind Handle.Events. Sends after close are
// dropped, so SDK callbacks that fire late never panic.
// FUNCTIONAL DISCOVERY: Only participant count deltas may be dropped on a
// full buffer. Lifecycle events wait for room until the stream closes, since
// losing a Ready or ClosedByRemote would strand the controller.
type eventStream struct {
	mu      sync.RWMutex
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	closed  bool
	dropped atomic.Int64
	logger  zerolog.Logger
}

func newEventStream() *eventStream {
	return &eventStream{
		ch:     make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
		logger: logging.Component("conference"),
	}
}

func (s *eventStream) emit(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	if ev.Kind == EventParticipantCountChanged {
		select {
		case s.ch <- ev:
			return true
		default:
			s.dropped.Add(1)
			s.logger.Warn().Int("delta", ev.Delta).Msg("event buffer full, dropping participant count change")
			return false
		}
	}

	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	}
}

// close releases blocked senders before closing the channel
func (s *eventStream) close() {
	s.once.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
