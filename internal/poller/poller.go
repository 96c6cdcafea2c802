package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"livesession/internal/logging"
	"livesession/pkg/interfaces"
	"livesession/pkg/types"
)

// DefaultInterval is the resilience floor for active-session refreshes
const DefaultInterval = 30 * time.Second

// Sink receives each fresh active-session list.
type Sink func(sessions []*types.Session)

// Poller periodically reads the active sessions and hands them to a sink.
// ARCHITECTURAL DISCOVERY: At most one loop runs per Poller. Start replaces a
// running loop and waits for it to exit, so repeated Start/Stop cycles never
// leak tickers or goroutines.
type Poller struct {
	source   interfaces.ActiveLister
	sink     Sink
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	refresh chan struct{}

	polls    atomic.Int64
	failures atomic.Int64
}

// New creates a stopped poller. A non-positive interval uses DefaultInterval.
func New(source interfaces.ActiveLister, sink Sink, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		source:   source,
		sink:     sink,
		interval: interval,
		logger:   logging.Component("poller"),
		refresh:  make(chan struct{}, 1),
	}
}

// Start launches the polling loop; the first poll runs immediately
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go p.loop(ctx, done)
}

// Stop cancels the loop and waits for it to exit. Safe to call when stopped.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
}

// Refresh asks the running loop for an immediate poll. Requests coalesce.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

// Running reports whether a loop is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Stats returns poll counters
func (p *Poller) Stats() map[string]int64 {
	return map[string]int64{
		"polls":  p.polls.Load(),
		"errors": p.failures.Load(),
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.refresh:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	sessions, err := p.source.ListActiveSessions(ctx)
	if err != nil {
		p.failures.Add(1)
		p.logger.Warn().Err(err).Msg("active session poll failed")
		return
	}
	p.polls.Add(1)
	if ctx.Err() != nil {
		return
	}
	p.sink(sessions)
}
