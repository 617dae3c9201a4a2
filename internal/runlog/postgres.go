package runlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paceline-ai/stride/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS run_log (
	seq          BIGSERIAL PRIMARY KEY,
	id           UUID NOT NULL UNIQUE,
	ts           TIMESTAMPTZ NOT NULL,
	request_kind TEXT NOT NULL,
	profile      JSONB NOT NULL,
	context      JSONB,
	evidence     JSONB NOT NULL,
	raw_output   BYTEA,
	verdict      JSONB NOT NULL,
	artifact     JSONB NOT NULL,
	chain_hash   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_log_kind ON run_log (request_kind);
CREATE INDEX IF NOT EXISTS idx_run_log_ts ON run_log (ts);
`

// appendLockKey serializes appends across all writers so each chain hash
// extends the latest committed entry. Advisory, transaction-scoped.
const appendLockKey = 427189

// PostgresStore persists the run log in Postgres for shared deployments.
// Multiple processes may append concurrently.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects to the database and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("runlog: connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("runlog: create schema: %w", err)
	}
	logger.Info("runlog: postgres store opened")
	return &PostgresStore{pool: pool, logger: logger}, nil
}

// Append commits the entry in a transaction holding the append advisory
// lock. Timestamps are truncated to microseconds before hashing because
// that is the precision Postgres stores; the chain stays verifiable after
// a round trip.
func (s *PostgresStore) Append(ctx context.Context, entry model.RunLogEntry) (model.RunLogEntry, error) {
	entry.Timestamp = entry.Timestamp.UTC().Truncate(time.Microsecond)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.RunLogEntry{}, fmt.Errorf("runlog: begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, appendLockKey); err != nil {
		return model.RunLogEntry{}, fmt.Errorf("runlog: acquire append lock: %w", err)
	}

	var prev string
	err = tx.QueryRow(ctx, `SELECT chain_hash FROM run_log ORDER BY seq DESC LIMIT 1`).Scan(&prev)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return model.RunLogEntry{}, fmt.Errorf("runlog: read chain head: %w", err)
	}

	hash, err := chainHash(prev, entry)
	if err != nil {
		return model.RunLogEntry{}, err
	}
	entry.ChainHash = hash

	cols, err := encodeEntry(entry)
	if err != nil {
		return model.RunLogEntry{}, err
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO run_log (id, ts, request_kind, profile, context, evidence, raw_output, verdict, artifact, chain_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq`,
		entry.ID, entry.Timestamp, string(entry.RequestKind),
		cols.profile, cols.context, cols.evidence,
		entry.RawOutput, cols.verdict, entry.Artifact, entry.ChainHash,
	).Scan(&entry.Seq)
	if err != nil {
		return model.RunLogEntry{}, fmt.Errorf("runlog: insert entry: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.RunLogEntry{}, fmt.Errorf("runlog: commit append: %w", err)
	}
	return entry, nil
}

// Query returns matching entries in commit order.
func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]model.RunLogEntry, error) {
	var conds []string
	var args []any
	if f.Kind != "" {
		args = append(args, string(f.Kind))
		conds = append(conds, "request_kind = $"+strconv.Itoa(len(args)))
	}
	if !f.Since.IsZero() {
		args = append(args, f.Since.UTC())
		conds = append(conds, "ts >= $"+strconv.Itoa(len(args)))
	}
	q := "SELECT seq, id, ts, request_kind, profile, context, evidence, raw_output, verdict, artifact, chain_hash FROM run_log"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("runlog: query: %w", err)
	}
	defer rows.Close()

	var out []model.RunLogEntry
	for rows.Next() {
		var (
			entry   model.RunLogEntry
			kind    string
			profile []byte
			ctxCol  []byte
			ev      []byte
			verdict []byte
		)
		if err := rows.Scan(&entry.Seq, &entry.ID, &entry.Timestamp, &kind, &profile,
			&ctxCol, &ev, &entry.RawOutput, &verdict, &entry.Artifact, &entry.ChainHash); err != nil {
			return nil, fmt.Errorf("runlog: scan entry: %w", err)
		}
		entry.Timestamp = entry.Timestamp.UTC()
		entry.RequestKind = model.RequestKind(kind)
		if err := decodeEntry(&entry, profile, ctxCol, ev, verdict); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runlog: iterate entries: %w", err)
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
