package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/paceline-ai/stride/internal/embedding"
	"github.com/paceline-ai/stride/internal/model"
)

// PgVectorIndex implements Retriever against a Postgres corpus_chunks table
// with a pgvector embedding column. Used when the corpus lives next to the
// run log instead of in a dedicated vector store.
type PgVectorIndex struct {
	pool     *pgxpool.Pool
	embedder embedding.Provider
	logger   *slog.Logger
}

// NewPgVectorIndex creates a retriever over an existing pgx pool.
// The pool's connections must have pgvector types registered.
func NewPgVectorIndex(pool *pgxpool.Pool, embedder embedding.Provider, logger *slog.Logger) *PgVectorIndex {
	return &PgVectorIndex{pool: pool, embedder: embedder, logger: logger}
}

// NewPgVectorPool creates a pgx pool with pgvector types registered on each
// connection, suitable for NewPgVectorIndex.
func NewPgVectorPool(ctx context.Context, dsn string, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("retrieval: parse DSN: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		if err := pgxvector.RegisterTypes(ctx, conn); err != nil {
			logger.Debug("retrieval: pgvector types not registered (extension may not exist yet)", "error", err)
		}
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("retrieval: create pool: %w", err)
	}
	return pool, nil
}

// Search embeds the query and runs a cosine-distance scan over the corpus.
func (p *PgVectorIndex) Search(ctx context.Context, query string, domain model.CorpusDomain, k int) ([]model.Evidence, error) {
	if k <= 0 {
		k = 6
	}

	queryEmb, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}
	if embedding.IsZeroVector(queryEmb) {
		return nil, fmt.Errorf("retrieval: %w: no embedding backend configured", model.ErrIndexUnavailable)
	}

	vec := pgvector.NewVector(queryEmb)
	rows, err := p.pool.Query(ctx,
		`SELECT source, content, 1 - (embedding <=> $1) AS score
		 FROM corpus_chunks
		 WHERE ($2 = '' OR domain = $2)
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, string(domain), k,
	)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w: corpus query: %v", model.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var results []model.Evidence
	rank := 0
	for rows.Next() {
		var ev model.Evidence
		var score float64
		if err := rows.Scan(&ev.Source, &ev.Text, &score); err != nil {
			return nil, fmt.Errorf("retrieval: scan corpus row: %w", err)
		}
		rank++
		ev.Rank = rank
		if score < 0 {
			score = 0
		}
		ev.Score = float32(score)
		results = append(results, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retrieval: %w: corpus rows: %v", model.ErrIndexUnavailable, err)
	}

	return results, nil
}

// Healthy pings the database.
func (p *PgVectorIndex) Healthy(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("retrieval: %w: %v", model.ErrIndexUnavailable, err)
	}
	return nil
}
