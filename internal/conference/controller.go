package conference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livesession/internal/logging"
	"livesession/pkg/interfaces"
	"livesession/pkg/types"
)

// State of a Controller.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateFailed
	StateLeaving
	StateClosedByRemote
	StateFallbackMode
	StateDisposed
)

var stateNames = map[State]string{
	StateIdle:           "idle",
	StateConnecting:     "connecting",
	StateConnected:      "connected",
	StateFailed:         "failed",
	StateLeaving:        "leaving",
	StateClosedByRemote: "closed_by_remote",
	StateFallbackMode:   "fallback_mode",
	StateDisposed:       "disposed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	DefaultConnectTimeout = 20 * time.Second
	DefaultMaxRetries     = 3
)

var (
	ErrAlreadyOpened    = errors.New("conference: controller already opened")
	ErrDisposed         = errors.New("conference: controller disposed")
	ErrNotFailed        = errors.New("conference: controller is not in the failed state")
	ErrRetriesExhausted = errors.New("conference: no retries left")
	ErrNoFallback       = errors.New("conference: no fallback adapter configured")
)

// StateChange is delivered to observers. From equals To for participant
// count updates and non-fatal errors.
type StateChange struct {
	From            State
	To              State
	Err             *ConnectionError
	RetriesLeft     int
	FallbackOffered bool
	Participants    int
}

// Observer receives state changes outside the controller lock.
type Observer func(StateChange)

// Config bounds connection attempts.
type Config struct {
	ConnectTimeout time.Duration
	MaxRetries     int
}

// TimerFunc schedules f after d and returns a stop function.
type TimerFunc func(d time.Duration, f func()) (stop func() bool)

func realTimer(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithFallback sets the adapter offered once the primary keeps failing
func WithFallback(a Adapter) ControllerOption {
	return func(c *Controller) { c.fallback = a }
}

// WithObserver registers a state change observer
func WithObserver(o Observer) ControllerOption {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithTimerFunc replaces time.AfterFunc for the connect timeout
func WithTimerFunc(f TimerFunc) ControllerOption {
	return func(c *Controller) { c.timer = f }
}

// WithControllerLogger replaces the component logger
func WithControllerLogger(l zerolog.Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// Controller drives one user's connection to one session.
// ARCHITECTURAL DISCOVERY: Every attempt gets a generation number. Events
// and timeouts carrying an old generation, or arriving after disposal, are
// dropped, which is what keeps a torn-down view from touching the store.
type Controller struct {
	mu sync.Mutex

	// bookMu orders store bookkeeping; taken under mu, released after the
	// store call so a leave never overtakes the join it balances
	bookMu sync.Mutex

	primary  Adapter
	fallback Adapter
	store    interfaces.Bookkeeper
	session  *types.Session
	user     types.LocalUser
	cfg      Config

	ctx       context.Context
	state     State
	gen       int
	handle    Handle
	adapter   string
	cancel    context.CancelFunc
	stopTimer func() bool

	retriesUsed     int
	fallbackOffered bool
	fallbackReady   bool
	participants    int
	joined          bool
	left            bool

	observers []Observer
	timer     TimerFunc
	logger    zerolog.Logger
	done      chan struct{}
}

// effects collected under the lock and applied after it is released
type effects struct {
	ctx        context.Context
	changes    []StateChange
	disconnect []Handle
	join       bool
	leave      bool
	booked     bool
	closeDone  bool
}

// NewController creates an idle controller for a non-nil session. A non-positive
// ConnectTimeout and a negative MaxRetries fall back to the defaults.
func NewController(primary Adapter, store interfaces.Bookkeeper, session *types.Session, user types.LocalUser, cfg Config, opts ...ControllerOption) *Controller {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	c := &Controller{
		primary: primary,
		store:   store,
		session: session.Clone(),
		user:    user,
		cfg:     cfg,
		ctx:     context.Background(),
		timer:   realTimer,
		logger:  logging.Component("conference"),
		done:    make(chan struct{}),
	}
	c.participants = session.ParticipantCount
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().
		Str(logging.FieldSessionID, c.session.ID).
		Str(logging.FieldUserID, user.ID).
		Logger()
	return c
}

// Open starts the first connection attempt
func (c *Controller) Open(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
	case StateDisposed:
		c.mu.Unlock()
		return ErrDisposed
	default:
		c.mu.Unlock()
		return ErrAlreadyOpened
	}

	var e effects
	c.ctx = ctx
	c.setState(&e, StateConnecting, nil)
	c.startAttempt(c.primary, true)
	c.release(e)
	return nil
}

// Retry starts a new attempt after a failure
func (c *Controller) Retry() error {
	c.mu.Lock()
	if err := c.checkFailed(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.retriesUsed >= c.cfg.MaxRetries {
		c.mu.Unlock()
		return ErrRetriesExhausted
	}

	var e effects
	c.retriesUsed++
	c.fallbackOffered = false
	c.setState(&e, StateConnecting, nil)
	c.startAttempt(c.primary, true)
	c.release(e)
	return nil
}

// UseFallback switches to the fallback adapter after a failure
func (c *Controller) UseFallback() error {
	c.mu.Lock()
	if err := c.checkFailed(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.fallback == nil {
		c.mu.Unlock()
		return ErrNoFallback
	}

	var e effects
	c.setState(&e, StateFallbackMode, nil)
	c.startAttempt(c.fallback, false)
	c.release(e)
	return nil
}

// Close tears everything down. Safe to call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.state == StateDisposed {
		c.mu.Unlock()
		return
	}

	var e effects
	if c.state == StateConnected {
		c.setState(&e, StateLeaving, nil)
	}
	c.dispose(&e)
	c.release(e)
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Participants returns the locally tracked participant count
func (c *Controller) Participants() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participants
}

// Done is closed once the controller is disposed
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) ToggleAudio()       { c.withReadyHandle(Handle.ToggleAudio) }
func (c *Controller) ToggleVideo()       { c.withReadyHandle(Handle.ToggleVideo) }
func (c *Controller) ToggleScreenShare() { c.withReadyHandle(Handle.ToggleScreenShare) }

func (c *Controller) withReadyHandle(f func(Handle)) {
	c.mu.Lock()
	h := c.handle
	ready := c.state == StateConnected || (c.state == StateFallbackMode && c.fallbackReady)
	c.mu.Unlock()

	if h != nil && ready {
		f(h)
	}
}

func (c *Controller) checkFailed() error {
	switch c.state {
	case StateFailed:
		return nil
	case StateDisposed:
		return ErrDisposed
	default:
		return ErrNotFailed
	}
}

// startAttempt connects through a; caller holds the lock
func (c *Controller) startAttempt(a Adapter, withTimeout bool) {
	c.gen++
	gen := c.gen

	ctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	c.adapter = a.Name()
	c.handle = a.Connect(ctx, c.session.Clone(), c.user)

	if withTimeout {
		c.stopTimer = c.timer(c.cfg.ConnectTimeout, func() { c.onTimeout(gen) })
	}

	c.logger.Info().
		Str(logging.FieldAdapter, c.adapter).
		Int(logging.FieldAttempt, c.retriesUsed+1).
		Msg("connection attempt started")

	go c.pump(gen, c.handle)
}

// teardownAttempt stops the current attempt and retires its generation;
// caller holds the lock
func (c *Controller) teardownAttempt(e *effects) {
	c.gen++
	if c.stopTimer != nil {
		c.stopTimer()
		c.stopTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.handle != nil {
		e.disconnect = append(e.disconnect, c.handle)
		c.handle = nil
	}
}

func (c *Controller) pump(gen int, h Handle) {
	for ev := range h.Events() {
		c.handleEvent(gen, ev)
	}
}

func (c *Controller) handleEvent(gen int, ev Event) {
	c.mu.Lock()
	if c.state == StateDisposed || gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug().Str("event", ev.Kind.String()).Msg("ignoring stale conference event")
		return
	}

	var e effects
	switch ev.Kind {
	case EventReady:
		c.onReady(&e)
	case EventParticipantCountChanged:
		if c.state == StateConnected || c.state == StateFallbackMode {
			c.participants += ev.Delta
			if c.participants < 0 {
				c.participants = 0
			}
			c.setState(&e, c.state, nil)
		}
	case EventError:
		c.onError(&e, ev.Err)
	case EventClosedByRemote:
		switch c.state {
		case StateConnected:
			c.setState(&e, StateClosedByRemote, nil)
			c.dispose(&e)
		case StateFallbackMode:
			c.dispose(&e)
		case StateConnecting:
			c.fail(&e, &ConnectionError{Kind: ErrorRemoteRejected, Err: errors.New("closed before ready")})
		}
	case EventLocalHangup:
		if c.state == StateConnected {
			c.setState(&e, StateLeaving, nil)
		}
		c.dispose(&e)
	}
	c.release(e)
}

func (c *Controller) onReady(e *effects) {
	switch c.state {
	case StateConnecting:
		if c.stopTimer != nil {
			c.stopTimer()
			c.stopTimer = nil
		}
		c.participants++
		c.setState(e, StateConnected, nil)
		c.markJoined(e)
	case StateFallbackMode:
		if c.fallbackReady {
			return
		}
		c.fallbackReady = true
		c.participants++
		c.setState(e, StateFallbackMode, nil)
		c.markJoined(e)
	}
}

func (c *Controller) onError(e *effects, err *ConnectionError) {
	if err == nil {
		err = &ConnectionError{Kind: ErrorRemoteRejected}
	}
	if c.state == StateConnecting {
		c.fail(e, err)
		return
	}

	report := *err
	report.Attempt = c.retriesUsed + 1
	c.logger.Warn().Err(&report).Str(logging.FieldState, c.state.String()).Msg("conference error")
	c.setState(e, c.state, &report)
}

func (c *Controller) onTimeout(gen int) {
	c.mu.Lock()
	if c.state != StateConnecting || gen != c.gen {
		c.mu.Unlock()
		return
	}

	var e effects
	c.fail(&e, &ConnectionError{
		Kind: ErrorTimeout,
		Err:  fmt.Errorf("no ready event within %s", c.cfg.ConnectTimeout),
	})
	c.release(e)
}

// fail ends the current attempt; caller holds the lock
func (c *Controller) fail(e *effects, err *ConnectionError) {
	c.teardownAttempt(e)

	failure := *err
	failure.Attempt = c.retriesUsed + 1
	failure.Terminal = c.retriesUsed >= c.cfg.MaxRetries
	c.fallbackOffered = failure.Terminal && c.fallback != nil

	c.logger.Warn().Err(&failure).
		Str(logging.FieldAdapter, c.adapter).
		Bool("terminal", failure.Terminal).
		Msg("connection attempt failed")
	c.setState(e, StateFailed, &failure)
}

// dispose tears down and issues the balancing leave; caller holds the lock
func (c *Controller) dispose(e *effects) {
	c.teardownAttempt(e)
	if c.joined && !c.left {
		c.left = true
		e.leave = true
	}
	c.fallbackOffered = false
	c.setState(e, StateDisposed, nil)
	e.closeDone = true
}

func (c *Controller) markJoined(e *effects) {
	if !c.joined {
		c.joined = true
		e.join = true
	}
}

func (c *Controller) setState(e *effects, to State, err *ConnectionError) {
	from := c.state
	c.state = to
	e.ctx = c.ctx

	retriesLeft := c.cfg.MaxRetries - c.retriesUsed
	if retriesLeft < 0 {
		retriesLeft = 0
	}
	e.changes = append(e.changes, StateChange{
		From:            from,
		To:              to,
		Err:             err,
		RetriesLeft:     retriesLeft,
		FallbackOffered: c.fallbackOffered,
		Participants:    c.participants,
	})

	if from != to {
		c.logger.Info().
			Str(logging.FieldState, to.String()).
			Str("from", from.String()).
			Msg("conference state changed")
	}
}

// release unlocks mu and applies e. Bookkeeping effects take bookMu first,
// so store calls run in the order they were decided.
func (c *Controller) release(e effects) {
	if e.join || e.leave {
		c.bookMu.Lock()
		e.booked = true
	}
	c.mu.Unlock()
	c.apply(e)
}

func (c *Controller) apply(e effects) {
	for _, h := range e.disconnect {
		h.Disconnect()
	}

	if e.ctx == nil {
		e.ctx = context.Background()
	}
	bookCtx := context.WithoutCancel(e.ctx)
	if e.join && c.store != nil {
		if err := c.store.JoinSession(bookCtx, c.session.ID, c.user.ID); err != nil {
			c.logger.Error().Err(err).Msg("failed to record join")
		}
	}
	if e.leave && c.store != nil {
		if err := c.store.LeaveSession(bookCtx, c.session.ID, c.user.ID); err != nil {
			c.logger.Error().Err(err).Msg("failed to record leave")
		}
	}
	if e.booked {
		c.bookMu.Unlock()
	}

	for _, change := range e.changes {
		for _, o := range c.observers {
			o(change)
		}
	}

	if e.closeDone {
		close(c.done)
	}
}
