package runlog

import (
	"context"
	"sync"

	"github.com/paceline-ai/stride/internal/model"
)

// MemoryStore keeps the run log in process memory. Used by tests and by
// deployments that do not need the log to survive a restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries []model.RunLogEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Append commits the entry under the store lock so concurrent appends are
// atomic and the chain hash always extends the latest entry.
func (m *MemoryStore) Append(ctx context.Context, entry model.RunLogEntry) (model.RunLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return model.RunLogEntry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prev := ""
	if n := len(m.entries); n > 0 {
		prev = m.entries[n-1].ChainHash
	}
	entry.Seq = int64(len(m.entries) + 1)
	hash, err := chainHash(prev, entry)
	if err != nil {
		return model.RunLogEntry{}, err
	}
	entry.ChainHash = hash
	m.entries = append(m.entries, entry)
	return entry, nil
}

// Query returns matching entries in commit order.
func (m *MemoryStore) Query(ctx context.Context, f Filter) ([]model.RunLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.RunLogEntry
	for _, e := range m.entries {
		if !f.matches(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
