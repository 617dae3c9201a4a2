// Package runlog persists the append-only record of workflow executions.
//
// Three backends cover the deployment modes: Postgres for shared
// deployments, SQLite for single-node installs, and an in-memory store for
// tests and ephemeral runs. All of them provide the same contract: appends
// are atomic, entries are never mutated or lost, and Query returns entries
// in commit order. Each entry carries a blake2b hash chained to its
// predecessor so tampering with history is detectable.
package runlog

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/paceline-ai/stride/internal/model"
)

// Filter narrows a Query. Zero values match everything.
type Filter struct {
	Kind  model.RequestKind // match this request kind only
	Since time.Time         // entries at or after this instant
	Limit int               // max entries returned; 0 means no limit
}

// Store is the run-log port. Append assigns the entry's sequence number and
// chain hash and fails only on persistence-layer errors; it never retries.
// Query returns entries in commit order, oldest first.
type Store interface {
	Append(ctx context.Context, entry model.RunLogEntry) (model.RunLogEntry, error)
	Query(ctx context.Context, f Filter) ([]model.RunLogEntry, error)
	Close() error
}

// chainHash computes the tamper-evidence hash for an entry: blake2b-256
// over the previous entry's hash and the entry's canonical JSON with the
// store-assigned fields zeroed.
func chainHash(prev string, entry model.RunLogEntry) (string, error) {
	entry.Seq = 0
	entry.ChainHash = ""
	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("runlog: marshal entry for hashing: %w", err)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("runlog: init hash: %w", err)
	}
	h.Write([]byte(prev))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChain recomputes the hash chain over entries (in commit order) and
// returns an error at the first entry whose stored hash does not match.
func VerifyChain(entries []model.RunLogEntry) error {
	prev := ""
	for i, e := range entries {
		want, err := chainHash(prev, e)
		if err != nil {
			return err
		}
		if e.ChainHash != want {
			return fmt.Errorf("runlog: chain broken at seq %d (entry %d)", e.Seq, i)
		}
		prev = e.ChainHash
	}
	return nil
}

// matches applies the filter to a single entry.
func (f Filter) matches(e model.RunLogEntry) bool {
	if f.Kind != "" && e.RequestKind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}
