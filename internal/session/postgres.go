package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createSessionTables = `
CREATE TABLE IF NOT EXISTS realtime_sessions (
	id         TEXT PRIMARY KEY,
	started_at TIMESTAMPTZ NOT NULL,
	topics     TEXT[] NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS realtime_topics (
	slot       SMALLINT PRIMARY KEY DEFAULT 1,
	topics     TEXT[] NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const upsertSessionSQL = `
INSERT INTO realtime_sessions (id, started_at, topics)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET started_at = EXCLUDED.started_at, topics = EXCLUDED.topics
`

const lastSessionSQL = `
SELECT id, started_at, topics
FROM realtime_sessions
ORDER BY started_at DESC
LIMIT 1
`

const upsertTopicsSQL = `
INSERT INTO realtime_topics (slot, topics, updated_at)
VALUES (1, $1, now())
ON CONFLICT (slot) DO UPDATE
SET topics = EXCLUDED.topics, updated_at = now()
`

const loadTopicsSQL = `
SELECT topics FROM realtime_topics WHERE slot = 1
`

// PostgresStore keeps session state in Postgres.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a Postgres-backed store on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}
}

// EnsureSchema creates the session tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createSessionTables); err != nil {
		return fmt.Errorf("create session tables: %w", err)
	}
	return nil
}

// SaveSession records a session.
func (s *PostgresStore) SaveSession(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx, upsertSessionSQL, sess.ID, sess.StartedAt, sess.Topics)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	s.logger.Debug("session saved", "session_id", sess.ID, "topics", len(sess.Topics))
	return nil
}

// LastSession returns the most recently started session.
func (s *PostgresStore) LastSession(ctx context.Context) (Session, bool, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, lastSessionSQL).Scan(&sess.ID, &sess.StartedAt, &sess.Topics)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("load session: %w", err)
	}

	return sess, true, nil
}

// SaveTopics records the current topic set.
func (s *PostgresStore) SaveTopics(ctx context.Context, topics []string) error {
	if topics == nil {
		topics = []string{}
	}

	if _, err := s.pool.Exec(ctx, upsertTopicsSQL, topics); err != nil {
		return fmt.Errorf("save topics: %w", err)
	}
	return nil
}

// LoadTopics returns the recorded topic set.
func (s *PostgresStore) LoadTopics(ctx context.Context) ([]string, error) {
	var topics []string
	err := s.pool.QueryRow(ctx, loadTopicsSQL).Scan(&topics)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load topics: %w", err)
	}

	return topics, nil
}
