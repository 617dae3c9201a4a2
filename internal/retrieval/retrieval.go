// Package retrieval provides the retrieval port: scored passages from the
// reference corpus, served by a Qdrant vector index with a pgvector-backed
// Postgres index as the alternative backend.
package retrieval

import (
	"context"

	"github.com/paceline-ai/stride/internal/model"
)

// Retriever is the retrieval port consumed by the workflow nodes. Given a
// query and a result count, it returns passages ordered by descending
// relevance, each carrying provenance and a score in [0, 1].
//
// Implementations must be safe for concurrent use. Unreachable backends
// surface model.ErrIndexUnavailable so the workflow can apply its
// single-retry policy.
type Retriever interface {
	// Search returns up to k passages relevant to the query. domain, when
	// non-empty, restricts results to one section of the corpus.
	Search(ctx context.Context, query string, domain model.CorpusDomain, k int) ([]model.Evidence, error)

	// Healthy returns nil if the backing index is reachable.
	Healthy(ctx context.Context) error
}
