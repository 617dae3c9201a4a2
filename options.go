package stride

import (
	"log/slog"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	port              int
	databaseURL       string
	logger            *slog.Logger
	version           string
	embeddingProvider EmbeddingProvider
	retriever         Retriever
	generator         Generator
	runLogStore       RunLogStore
	rules             *SafetyRules
}

// WithPort overrides the TCP port from config (STRIDE_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithDatabaseURL overrides the Postgres connection string from config
// (DATABASE_URL env var). Used by the pgvector retriever and the postgres
// run log backend.
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithEmbeddingProvider replaces the auto-detected embedding provider
// (Ollama/OpenAI/noop) used for retrieval queries. Ignored when
// WithRetriever is also set, since the replacement retriever embeds its
// own queries.
func WithEmbeddingProvider(p EmbeddingProvider) Option {
	return func(o *resolvedOptions) { o.embeddingProvider = p }
}

// WithRetriever replaces the Qdrant/pgvector retrieval index.
// Only the last call wins.
func WithRetriever(r Retriever) Option {
	return func(o *resolvedOptions) { o.retriever = r }
}

// WithGenerator replaces the OpenAI-compatible generation backend.
// Only the last call wins.
func WithGenerator(g Generator) Option {
	return func(o *resolvedOptions) { o.generator = g }
}

// WithRunLogStore replaces the configured run log backend.
// Only the last call wins.
func WithRunLogStore(s RunLogStore) Option {
	return func(o *resolvedOptions) { o.runLogStore = s }
}

// WithSafetyRules replaces the full rule threshold set, overriding both the
// built-in defaults and any STRIDE_* env or rules-file overrides.
func WithSafetyRules(rules SafetyRules) Option {
	return func(o *resolvedOptions) { o.rules = &rules }
}
