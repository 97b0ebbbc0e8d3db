// Package store mirrors exploration sessions into PostgreSQL so journals of
// many sessions can be queried together.
package store

import (
	"context"
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/api/schemas"
)

// DBPool abstracts pgxpool.Pool to allow mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS murphy_sessions (
    id          TEXT PRIMARY KEY,
    policy      TEXT NOT NULL,
    reason      TEXT NOT NULL,
    nodes       INTEGER NOT NULL,
    edges       INTEGER NOT NULL,
    resets      INTEGER NOT NULL,
    actions     INTEGER NOT NULL,
    duration_ms BIGINT NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS murphy_nodes (
    session_id    TEXT NOT NULL,
    idx           INTEGER NOT NULL,
    title         TEXT NOT NULL,
    actions       INTEGER NOT NULL,
    discovered_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (session_id, idx)
);
CREATE TABLE IF NOT EXISTS murphy_edges (
    session_id  TEXT NOT NULL,
    head        INTEGER NOT NULL,
    tail        INTEGER NOT NULL,
    action      TEXT NOT NULL,
    kind        TEXT NOT NULL,
    rect        JSONB NOT NULL,
    recorded_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS murphy_resets (
    session_id TEXT NOT NULL,
    reason     TEXT NOT NULL,
    reset_at   TIMESTAMPTZ NOT NULL
);`

const (
	sqlInsertNode = `
        INSERT INTO murphy_nodes (session_id, idx, title, actions, discovered_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (session_id, idx) DO NOTHING;`
	sqlDeleteEdges = `
        DELETE FROM murphy_edges
        WHERE session_id = $1 AND head = $2 AND action = $3 AND kind = $4;`
	sqlInsertEdge = `
        INSERT INTO murphy_edges (session_id, head, tail, action, kind, rect, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7);`
	sqlInsertReset = `
        INSERT INTO murphy_resets (session_id, reason, reset_at)
        VALUES ($1, $2, $3);`
	sqlUpsertSession = `
        INSERT INTO murphy_sessions (id, policy, reason, nodes, edges, resets, actions, duration_ms, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO UPDATE SET
            reason = EXCLUDED.reason,
            nodes = EXCLUDED.nodes,
            edges = EXCLUDED.edges,
            resets = EXCLUDED.resets,
            actions = EXCLUDED.actions,
            duration_ms = EXCLUDED.duration_ms,
            finished_at = EXCLUDED.finished_at;`
)

// Store writes exploration events to PostgreSQL. It implements
// events.Publisher.
type Store struct {
	pool  DBPool
	log   *zap.Logger
	close func()
}

// Connect opens a pool to url and wraps it in a Store.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.close = pool.Close
	return s, nil
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool, log: logger.Named("store")}, nil
}

// Migrate creates the mirror tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Publish mirrors event. Unknown events are ignored.
func (s *Store) Publish(ctx context.Context, topic schemas.EventTopic, event any) error {
	var err error
	switch e := event.(type) {
	case schemas.NodeEvent:
		_, err = s.pool.Exec(ctx, sqlInsertNode, e.SessionID, e.Index, e.Title, e.Actions, e.Timestamp.UTC())
	case schemas.EdgeEvent:
		err = s.persistEdge(ctx, e)
	case schemas.ResetEvent:
		_, err = s.pool.Exec(ctx, sqlInsertReset, e.SessionID, e.Reason, e.Timestamp.UTC())
	case schemas.SessionEvent:
		_, err = s.pool.Exec(ctx, sqlUpsertSession,
			e.SessionID, e.Policy, e.Reason, e.Nodes, e.Edges, e.Resets, e.Actions,
			e.Duration.Milliseconds(), e.Timestamp.UTC())
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to mirror %s event: %w", topic, err)
	}
	return nil
}

// persistEdge inserts the edge. A retargeted edge replaces the rows of the
// same action in one transaction.
func (s *Store) persistEdge(ctx context.Context, e schemas.EdgeEvent) error {
	rect, err := json.Marshal(e.Rect)
	if err != nil {
		return fmt.Errorf("failed to encode rect: %w", err)
	}
	args := []any{e.SessionID, e.Head, e.Tail, e.Action, e.Kind, rect, e.Timestamp.UTC()}
	if !e.Replaced {
		_, err := s.pool.Exec(ctx, sqlInsertEdge, args...)
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, sqlDeleteEdges, e.SessionID, e.Head, e.Action, e.Kind); err != nil {
		return s.rollback(ctx, tx, fmt.Errorf("failed to delete stale edges: %w", err))
	}
	if _, err := tx.Exec(ctx, sqlInsertEdge, args...); err != nil {
		return s.rollback(ctx, tx, fmt.Errorf("failed to insert edge: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx, cause error) error {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(err))
	}
	return cause
}

// Close releases the pool when the store opened it.
func (s *Store) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
