package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livesession/internal/logging"
	dbconfig "livesession/pkg/database"
	"livesession/pkg/types"
)

const (
	writeBufferSize    = 100
	writeTimeout       = 30 * time.Second
	defaultRetryDelay  = 5 * time.Second
	participantColumns = "id, session_id, user_id, joined_at, left_at, active"
)

var (
	// ErrClosed is returned for operations on a closed manager
	ErrClosed = errors.New("participant recorder is closed")

	// ErrWriteTimeout is returned when the write queue stays full
	ErrWriteTimeout = errors.New("write operation timeout")
)

// Manager persists the participant audit trail in SQLite
type Manager struct {
	db           *sql.DB
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
	logger       zerolog.Logger
}

// writeOperation represents a database write operation
type writeOperation struct {
	ctx       context.Context
	operation func(context.Context, *sql.DB) error
	result    chan error
}

// Option configures a Manager.
type Option func(*Manager)

// WithRetryDelay sets the pause before the single write retry.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// NewManager opens the database, applies the embedded migrations and starts
// the writer goroutine.
func NewManager(ctx context.Context, config *dbconfig.Config, opts ...Option) (*Manager, error) {
	db, err := dbconfig.Open(config)
	if err != nil {
		return nil, err
	}

	migrations := dbconfig.NewMigrationManager(db)
	if err := migrations.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	manager := &Manager{
		db:           db,
		writeChannel: make(chan writeOperation, writeBufferSize),
		shutdown:     make(chan struct{}),
		retryDelay:   defaultRetryDelay,
		logger:       logging.Component("database"),
	}
	for _, opt := range opts {
		opt(manager)
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	manager.logger.Info().Str("path", config.DatabasePath).Msg("participant recorder ready")
	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- m.runWrite(op)

		case <-m.shutdown:
			// Drain what was queued before Close so no caller is left waiting
			for {
				select {
				case op := <-m.writeChannel:
					op.result <- m.runWrite(op)
				default:
					m.logger.Debug().Msg("database write loop shutting down")
					return
				}
			}
		}
	}
}

// FUNCTIONAL DISCOVERY: A failed write is retried exactly once after the
// retry delay; transient SQLITE_BUSY is the usual cause.
func (m *Manager) runWrite(op writeOperation) error {
	err := op.operation(op.ctx, m.db)
	if err == nil {
		return nil
	}

	m.logger.Warn().Err(err).Dur("retry_in", m.retryDelay).Msg("database write failed, retrying")
	select {
	case <-time.After(m.retryDelay):
	case <-op.ctx.Done():
		return op.ctx.Err()
	}

	if err = op.operation(op.ctx, m.db); err != nil {
		m.logger.Error().Err(err).Msg("database write failed after retry")
	}
	return err
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(context.Context, *sql.DB) error) error {
	result := make(chan error, 1)
	timer := time.NewTimer(writeTimeout)
	defer timer.Stop()

	// TECHNICAL DISCOVERY: The read lock is held across the enqueue so Close
	// cannot finish its drain while a write is being handed over.
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	select {
	case m.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
		m.mu.RUnlock()
	case <-timer.C:
		m.mu.RUnlock()
		return ErrWriteTimeout
	case <-ctx.Done():
		m.mu.RUnlock()
		return ctx.Err()
	}

	return <-result
}

// RecordJoin inserts a new open participant row
func (m *Manager) RecordJoin(ctx context.Context, p *types.SessionParticipant) error {
	if p == nil || p.ID == "" || p.SessionID == "" || p.UserID == "" {
		return errors.New("participant requires id, session_id and user_id")
	}

	return m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			"INSERT INTO session_participants ("+participantColumns+") VALUES (?, ?, ?, ?, ?, ?)",
			p.ID, p.SessionID, p.UserID, p.JoinedAt.UTC(), nullTime(p.LeftAt), p.Active,
		)
		if err != nil {
			return fmt.Errorf("failed to insert participant: %w", err)
		}
		return nil
	})
}

// RecordLeave closes the newest open row of userID in sessionID. It reports
// false when there was no open row to close.
func (m *Manager) RecordLeave(ctx context.Context, sessionID, userID string, leftAt time.Time) (bool, error) {
	var closed bool
	err := m.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE session_participants
			SET left_at = ?, active = 0
			WHERE id = (
				SELECT id FROM session_participants
				WHERE session_id = ? AND user_id = ? AND active = 1
				ORDER BY joined_at DESC, rowid DESC
				LIMIT 1
			)`,
			leftAt.UTC(), sessionID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to close participant row: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		closed = n > 0
		return nil
	})
	return closed, err
}

// SessionParticipants returns the audit rows of a session, oldest join first
func (m *Manager) SessionParticipants(ctx context.Context, sessionID string) ([]*types.SessionParticipant, error) {
	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	rows, err := m.db.QueryContext(ctx,
		"SELECT "+participantColumns+" FROM session_participants WHERE session_id = ? ORDER BY joined_at ASC, rowid ASC",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query participants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	participants := make([]*types.SessionParticipant, 0)
	for rows.Next() {
		var p types.SessionParticipant
		var leftAt sql.NullTime

		if err := rows.Scan(&p.ID, &p.SessionID, &p.UserID, &p.JoinedAt, &leftAt, &p.Active); err != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", err)
		}
		if leftAt.Valid {
			t := leftAt.Time
			p.LeftAt = &t
		}
		participants = append(participants, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participant rows: %w", err)
	}
	return participants, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_participants").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close drains queued writes and closes the database
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
