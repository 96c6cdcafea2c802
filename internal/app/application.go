package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"livesession/internal/api"
	"livesession/internal/conference"
	"livesession/internal/config"
	"livesession/internal/database"
	"livesession/internal/hub"
	"livesession/internal/logging"
	"livesession/internal/pubsub"
	"livesession/internal/session"
	"livesession/internal/websocket"
	"livesession/pkg/interfaces"
)

var (
	ErrAlreadyStarted = errors.New("application already started")
	ErrNotStarted     = errors.New("application not started")
)

// Application coordinates all system components
type Application struct {
	config     *config.Config
	recorder   *database.Manager
	registry   *websocket.Registry
	hub        *hub.Hub
	redis      *pubsub.RedisPublisher
	store      *session.Store
	apiServer  *api.Server
	httpServer *http.Server
	logger     zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
	stopped  bool
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Recorder → Registry → Hub → Redis → Store → WebSocket/API → HTTP
func NewApplication(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.Component("app")

	recorder, err := database.NewManager(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize participant recorder: %w", err)
	}

	registry := websocket.NewRegistry()
	eventHub := hub.NewHub(registry)
	notifiers := []interfaces.Notifier{eventHub}

	var redisPub *pubsub.RedisPublisher
	if cfg.Redis.Enabled() {
		redisPub, err = pubsub.NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			_ = recorder.Close()
			return nil, fmt.Errorf("failed to initialize redis publisher: %w", err)
		}
		notifiers = append(notifiers, redisPub)
		logger.Info().Str("address", cfg.Redis.Address).Msg("cross-instance events enabled")
	}

	store := session.NewStore(
		session.WithRecorder(recorder),
		session.WithNotifier(pubsub.NewFanout(notifiers...)),
		session.WithMinTitleLength(cfg.Sessions.MinTitleLength),
	)

	wsHandler := websocket.NewHandler(registry, store, cfg.Sessions.PollInterval,
		websocket.WithHeartbeat(cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout))

	apiServer := api.NewServer(api.Deps{
		Store:      store,
		Recorder:   recorder,
		Registry:   registry,
		StoreStats: api.StatsFunc(store.Stats),
		WebSocket:  wsHandler,
		Conference: &api.ConferenceSettings{
			ConnectTimeoutMS:    cfg.Conference.ConnectTimeout.Milliseconds(),
			MaxRetries:          cfg.Conference.MaxRetries,
			ScriptLoadTimeoutMS: cfg.Conference.ScriptLoadTimeout.Milliseconds(),
			RoomPrefix:          conference.EmbedRoomPrefix,
		},
	}, api.WithRateLimit(cfg.Sessions.RateLimit))

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		recorder:   recorder,
		registry:   registry,
		hub:        eventHub,
		redis:      redisPub,
		store:      store,
		apiServer:  apiServer,
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

// Start binds the listener and launches the background workers. It returns
// once the server is accepting connections; Wait reports worker failures.
func (app *Application) Start(ctx context.Context) error {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.group != nil || app.stopped {
		return ErrAlreadyStarted
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	if err := app.hub.Start(ctx); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to start event hub: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	// Subscribe before serving so a failure leaves the server untouched
	// and Start can be retried
	if app.redis != nil {
		// Remote events only refresh local subscribers; they never touch the store
		if err := app.redis.Subscribe(groupCtx, app.hub.Publish); err != nil {
			cancel()
			_ = listener.Close()
			_ = app.hub.Stop()
			return err
		}
	}

	group.Go(func() error {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return app.apiServer.RunMaintenance(groupCtx)
	})

	app.listener = listener
	app.group = group
	app.cancel = cancel

	app.logger.Info().Str("addr", listener.Addr().String()).Msg("livesession started")
	return nil
}

// Wait blocks until every background worker has returned
func (app *Application) Wait() error {
	app.mu.Lock()
	group := app.group
	app.mu.Unlock()

	if group == nil {
		return ErrNotStarted
	}
	return group.Wait()
}

// Stop gracefully shuts down the application in reverse dependency order:
// HTTP → subscribers → workers → Hub → Redis → Recorder
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	if app.stopped {
		app.mu.Unlock()
		return nil
	}
	app.stopped = true
	group, cancel := app.group, app.cancel
	app.mu.Unlock()

	var errs []error
	if group != nil {
		if err := app.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		}
		if n := app.registry.CloseAll(); n > 0 {
			app.logger.Info().Int("subscribers", n).Msg("closed subscriber connections")
		}
		cancel()
		if err := group.Wait(); err != nil {
			errs = append(errs, err)
		}
		if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
			errs = append(errs, fmt.Errorf("event hub shutdown: %w", err))
		}
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis shutdown: %w", err))
		}
	}
	if err := app.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder shutdown: %w", err))
	}

	app.logger.Info().Msg("livesession shutdown complete")
	return errors.Join(errs...)
}

// Addr returns the bound address once started, else the configured one
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()

	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Store returns the session store
func (app *Application) Store() *session.Store {
	return app.store
}

// Recorder returns the participant audit trail
func (app *Application) Recorder() interfaces.ParticipantRecorder {
	return app.recorder
}

// Config returns the resolved configuration
func (app *Application) Config() *config.Config {
	return app.config
}
