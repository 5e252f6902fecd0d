// File: internal/journal/journal.go

// Package journal persists login attempts and their state transitions to
// PostgreSQL for audit. The journal is optional: with no DSN configured the
// no-op implementation is used, and once connected, journal failures degrade
// to log warnings rather than failing the login they describe.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aduanet/aduanet-cli/internal/config"
	"github.com/aduanet/aduanet-cli/internal/session"
)

// DB abstracts the pgxpool.Pool surface the journal needs, so tests can
// substitute pgxmock.
type DB interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Journal records attempts into the login_attempts and attempt_transitions
// tables. Implements session.Journal.
type Journal struct {
	db  DB
	log *zap.Logger
}

var _ session.Journal = (*Journal)(nil)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS login_attempts (
    session_id  TEXT PRIMARY KEY,
    company     TEXT NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    status      TEXT,
    reason      TEXT,
    settled_at  TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS attempt_transitions (
    id          BIGSERIAL PRIMARY KEY,
    session_id  TEXT NOT NULL,
    from_status TEXT NOT NULL,
    to_status   TEXT NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS attempt_transitions_session_idx
    ON attempt_transitions (session_id);
`

// Open connects to Postgres and ensures the journal schema exists. Returns
// a no-op journal and nil cleanup when no DSN is configured.
func Open(ctx context.Context, cfg config.JournalConfig, logger *zap.Logger) (session.Journal, func(), error) {
	if cfg.DSN == "" {
		logger.Debug("no journal DSN configured, attempt journaling disabled")
		return session.NopJournal{}, func() {}, nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to parse journal DSN: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create journal connection pool: %w", err)
	}

	j, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return j, pool.Close, nil
}

// New builds a journal over an existing connection, verifying it and
// creating the schema.
func New(ctx context.Context, db DB, logger *zap.Logger) (*Journal, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}
	if _, err := db.Exec(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to ensure journal schema: %w", err)
	}
	return &Journal{db: db, log: logger.Named("journal")}, nil
}

// RecordAttempt registers the start of an acquisition attempt.
func (j *Journal) RecordAttempt(ctx context.Context, sessionID, company string) error {
	_, err := j.db.Exec(ctx, `
		INSERT INTO login_attempts (session_id, company, started_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO NOTHING;
	`, sessionID, company, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// RecordTransition appends one state machine step.
func (j *Journal) RecordTransition(ctx context.Context, sessionID string, from, to session.Status) error {
	_, err := j.db.Exec(ctx, `
		INSERT INTO attempt_transitions (session_id, from_status, to_status, occurred_at)
		VALUES ($1, $2, $3, $4);
	`, sessionID, from.String(), to.String(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// RecordOutcome settles the attempt with its terminal status and reason.
func (j *Journal) RecordOutcome(ctx context.Context, sessionID string, status session.Status, reason session.Reason) error {
	_, err := j.db.Exec(ctx, `
		UPDATE login_attempts
		SET status = $2, reason = $3, settled_at = $4
		WHERE session_id = $1;
	`, sessionID, status.String(), string(reason), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}
