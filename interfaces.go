package stride

import (
	"context"
	"time"
)

// EmbeddingProvider generates vector embeddings from text.
// When provided via WithEmbeddingProvider, replaces the auto-detected
// Ollama/OpenAI/noop provider used to embed retrieval queries.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Retriever serves scored passages from a reference corpus.
// When provided via WithRetriever, replaces the Qdrant or pgvector index.
// Search returns passages ordered by descending relevance with scores in
// [0, 1]; domain, when non-empty, restricts results to one corpus section
// ("plans", "safety", "fueling", or "biomech"). Healthy returns nil if the
// backing index is reachable.
type Retriever interface {
	Search(ctx context.Context, query, domain string, k int) ([]Evidence, error)
	Healthy(ctx context.Context) error
}

// Generator produces a raw JSON completion for rendered prompt messages.
// When provided via WithGenerator, replaces the OpenAI-compatible chat
// backend. Stride renders the prompt and parses and validates the returned
// JSON; implementations only need to speak to their backend.
type Generator interface {
	Generate(ctx context.Context, system, user string) ([]byte, error)
}

// RunLogStore persists audit entries. When provided via WithRunLogStore,
// replaces the Postgres/SQLite/memory store. Append must assign Seq in
// commit order and a tamper-evidence ChainHash; Query returns entries in
// ascending Seq order, filtered by kind and since when non-zero.
type RunLogStore interface {
	Append(ctx context.Context, entry RunLogEntry) (RunLogEntry, error)
	Query(ctx context.Context, kind string, since time.Time, limit int) ([]RunLogEntry, error)
	Close() error
}
