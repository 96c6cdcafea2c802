package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livesession/internal/app"
	"livesession/internal/config"
	"livesession/internal/logging"
	"livesession/internal/session"
)

// ConfigFileEnv names an optional JSON or YAML configuration file
const ConfigFileEnv = "LIVESESSION_CONFIG_FILE"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		l := logging.L()
		l.Fatal().Err(err).Msg("livesession exited")
	}
}

// ARCHITECTURAL DISCOVERY: run takes its context and arguments so tests can
// drive a full start/stop cycle without signals.
func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("livesession", flag.ContinueOnError)
	seed := flags.Bool("seed", false, "load the demo sessions at startup")
	configPath := flags.String("config", os.Getenv(ConfigFileEnv), "configuration file (env overrides file, file overrides defaults)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfigWithPrecedence(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logging.Init(cfg.Log)
	logger := logging.Component("main")

	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if *seed {
		n := application.Store().Seed(session.DemoSessions(time.Now())...)
		logger.Info().Int("sessions", n).Msg("seeded demo sessions")
	}

	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("failed to start application: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- application.Wait() }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-waitErr:
		if err != nil {
			runErr = fmt.Errorf("application error: %w", err)
		}
	}

	// FUNCTIONAL DISCOVERY: Shutdown gets a fresh context; the run context is
	// already cancelled by the signal.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("shutdown error: %w", err))
	}
	return runErr
}
