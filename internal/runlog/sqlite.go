package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/paceline-ai/stride/internal/model"
)

// Fixed-width fraction so stored timestamps compare correctly as text.
// RFC3339Nano trims trailing zeros, which breaks lexicographic ordering.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS run_log (
	seq          INTEGER PRIMARY KEY,
	id           TEXT NOT NULL UNIQUE,
	ts           TEXT NOT NULL,
	request_kind TEXT NOT NULL,
	profile      TEXT NOT NULL,
	context      TEXT,
	evidence     TEXT NOT NULL,
	raw_output   BLOB,
	verdict      TEXT NOT NULL,
	artifact     BLOB NOT NULL,
	chain_hash   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_log_kind ON run_log(request_kind);
`

// SQLiteStore persists the run log in a local SQLite database. Appends are
// serialized under a store lock; SQLite allows a single writer anyway and
// the chain hash must extend the latest committed entry.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *slog.Logger
}

// OpenSQLite opens (and if needed creates) the database at path.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: create schema: %w", err)
	}
	logger.Info("runlog: sqlite store opened", "path", path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

// Append commits the entry in a single transaction.
func (s *SQLiteStore) Append(ctx context.Context, entry model.RunLogEntry) (model.RunLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.RunLogEntry{}, fmt.Errorf("runlog: begin append: %w", err)
	}
	defer tx.Rollback()

	var lastSeq int64
	var prev string
	err = tx.QueryRowContext(ctx, `SELECT seq, chain_hash FROM run_log ORDER BY seq DESC LIMIT 1`).Scan(&lastSeq, &prev)
	if err != nil && err != sql.ErrNoRows {
		return model.RunLogEntry{}, fmt.Errorf("runlog: read chain head: %w", err)
	}

	entry.Seq = lastSeq + 1
	hash, err := chainHash(prev, entry)
	if err != nil {
		return model.RunLogEntry{}, err
	}
	entry.ChainHash = hash

	cols, err := encodeEntry(entry)
	if err != nil {
		return model.RunLogEntry{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_log (seq, id, ts, request_kind, profile, context, evidence, raw_output, verdict, artifact, chain_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Seq, entry.ID.String(), entry.Timestamp.UTC().Format(sqliteTimeFormat),
		string(entry.RequestKind), cols.profile, cols.context, cols.evidence,
		entry.RawOutput, cols.verdict, entry.Artifact, entry.ChainHash,
	)
	if err != nil {
		return model.RunLogEntry{}, fmt.Errorf("runlog: insert entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.RunLogEntry{}, fmt.Errorf("runlog: commit append: %w", err)
	}
	return entry, nil
}

// Query returns matching entries in commit order.
func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]model.RunLogEntry, error) {
	var conds []string
	var args []any
	if f.Kind != "" {
		conds = append(conds, "request_kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.Since.IsZero() {
		conds = append(conds, "ts >= ?")
		args = append(args, f.Since.UTC().Format(sqliteTimeFormat))
	}
	q := "SELECT seq, id, ts, request_kind, profile, context, evidence, raw_output, verdict, artifact, chain_hash FROM run_log"
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY seq ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("runlog: query: %w", err)
	}
	defer rows.Close()

	var out []model.RunLogEntry
	for rows.Next() {
		var (
			entry   model.RunLogEntry
			id, ts  string
			kind    string
			profile []byte
			ctxCol  sql.Null[[]byte]
			ev      []byte
			verdict []byte
		)
		if err := rows.Scan(&entry.Seq, &id, &ts, &kind, &profile, &ctxCol,
			&ev, &entry.RawOutput, &verdict, &entry.Artifact, &entry.ChainHash); err != nil {
			return nil, fmt.Errorf("runlog: scan entry: %w", err)
		}
		entry.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("runlog: parse entry id: %w", err)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("runlog: parse entry timestamp: %w", err)
		}
		entry.RequestKind = model.RequestKind(kind)
		var ctxJSON []byte
		if ctxCol.Valid {
			ctxJSON = ctxCol.V
		}
		if err := decodeEntry(&entry, profile, ctxJSON, ev, verdict); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("runlog: iterate entries: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// encodedEntry holds the JSON column values shared by the SQL stores.
type encodedEntry struct {
	profile  []byte
	context  []byte // nil when the entry has no adjustment context
	evidence []byte
	verdict  []byte
}

func encodeEntry(entry model.RunLogEntry) (encodedEntry, error) {
	var enc encodedEntry
	var err error
	if enc.profile, err = json.Marshal(entry.Profile); err != nil {
		return enc, fmt.Errorf("runlog: marshal profile: %w", err)
	}
	if entry.Context != nil {
		if enc.context, err = json.Marshal(entry.Context); err != nil {
			return enc, fmt.Errorf("runlog: marshal context: %w", err)
		}
	}
	if enc.evidence, err = json.Marshal(entry.Evidence); err != nil {
		return enc, fmt.Errorf("runlog: marshal evidence: %w", err)
	}
	if enc.verdict, err = json.Marshal(entry.Verdict); err != nil {
		return enc, fmt.Errorf("runlog: marshal verdict: %w", err)
	}
	return enc, nil
}

func decodeEntry(entry *model.RunLogEntry, profile, ctxJSON, evidence, verdict []byte) error {
	if err := json.Unmarshal(profile, &entry.Profile); err != nil {
		return fmt.Errorf("runlog: unmarshal profile: %w", err)
	}
	if len(ctxJSON) > 0 {
		entry.Context = &model.AdjustmentContext{}
		if err := json.Unmarshal(ctxJSON, entry.Context); err != nil {
			return fmt.Errorf("runlog: unmarshal context: %w", err)
		}
	}
	if err := json.Unmarshal(evidence, &entry.Evidence); err != nil {
		return fmt.Errorf("runlog: unmarshal evidence: %w", err)
	}
	if err := json.Unmarshal(verdict, &entry.Verdict); err != nil {
		return fmt.Errorf("runlog: unmarshal verdict: %w", err)
	}
	return nil
}
