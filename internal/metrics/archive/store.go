// Package archive provides an optional PostgreSQL sink for the Event Log's
// speak and comment events, so a session's history survives past the
// in-memory bounded rings and the periodic JSONL export.
//
// Grounded on pkg/memory/postgres's pgx pool + migration pattern, repurposed
// from transcript search to append-only event archival: there is no
// full-text or vector search requirement here, only INSERT and
// time-ordered SELECT.
package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlEvents = `
CREATE TABLE IF NOT EXISTS comment_events (
    id         BIGSERIAL   PRIMARY KEY,
    session_id TEXT        NOT NULL,
    author     TEXT        NOT NULL,
    text       TEXT        NOT NULL,
    intent     TEXT        NOT NULL,
    timestamp  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_comment_events_session_timestamp
    ON comment_events (session_id, timestamp);

CREATE TABLE IF NOT EXISTS speak_events (
    id           BIGSERIAL   PRIMARY KEY,
    session_id   TEXT        NOT NULL,
    text         TEXT        NOT NULL,
    intent       TEXT        NOT NULL,
    phase        TEXT        NOT NULL,
    viewer_count INTEGER     NOT NULL,
    priority     INTEGER     NOT NULL,
    reason       TEXT        NOT NULL,
    timestamp    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_speak_events_session_timestamp
    ON speak_events (session_id, timestamp);
`

// Store is a PostgreSQL-backed archival sink for one session's events. All
// methods are safe for concurrent use.
type Store struct {
	pool      *pgxpool.Pool
	sessionID string
}

// NewStore connects to the database at dsn, runs [migrate], and returns a
// Store scoped to sessionID.
func NewStore(ctx context.Context, dsn, sessionID string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}

	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}

	return &Store{pool: pool, sessionID: sessionID}, nil
}

// migrate creates the archive tables and indexes if they do not exist yet.
func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, ddlEvents)
	return err
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
