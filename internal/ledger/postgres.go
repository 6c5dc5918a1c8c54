package ledger

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	request_id   TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	ts_millis    BIGINT NOT NULL,
	collection   TEXT NOT NULL,
	operation    TEXT NOT NULL,
	record_id    TEXT NOT NULL,
	data         TEXT NOT NULL,
	status_label TEXT NOT NULL,
	message      TEXT NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertEntrySQL = `
INSERT INTO ledger_entries
	(request_id, run_id, ts_millis, collection, operation, record_id, data, status_label, message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (request_id) DO NOTHING`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink mirrors entries into the ledger_entries table. Replaying an
// entry with a known request_id is a no-op.
type PostgresSink struct {
	db    execer
	close func()
	runID string
}

// NewPostgresSink connects to databaseURL and ensures the table exists.
func NewPostgresSink(ctx context.Context, databaseURL, runID string) (*PostgresSink, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ledger database URL: %w", err)
	}
	poolConfig.MaxConns = 2
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create ledger pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}

	sink := newPostgresSink(pool, pool.Close, runID)
	if err := sink.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

func newPostgresSink(db execer, closeFn func(), runID string) *PostgresSink {
	if closeFn == nil {
		closeFn = func() {}
	}
	return &PostgresSink{db: db, close: closeFn, runID: runID}
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create ledger table: %w", err)
	}
	return nil
}

// Write inserts one entry.
func (s *PostgresSink) Write(ctx context.Context, e Entry) error {
	millis, err := strconv.ParseInt(e.Timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("ledger timestamp %q: %w", e.Timestamp, err)
	}

	_, err = s.db.Exec(ctx, insertEntrySQL,
		e.RequestID,
		s.runID,
		millis,
		e.Collection,
		string(e.Operation),
		e.ID,
		e.Data,
		e.StatusLabel,
		e.Message,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresSink) Close() error {
	s.close()
	return nil
}
