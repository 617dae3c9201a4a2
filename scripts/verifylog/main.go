// Command verifylog recomputes the run log's hash chain and reports whether
// history is intact. Point it at the same backend the server uses.
//
// Usage:
//
//	DATABASE_URL=postgres://... go run ./scripts/verifylog
//	go run ./scripts/verifylog -sqlite data/runlog.db
//
// The command reads every entry in commit order, recomputes each blake2b
// chain hash, and exits non-zero at the first mismatch. Safe to run against
// a live store; it only reads.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/paceline-ai/stride/internal/runlog"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	_ = godotenv.Load()

	sqlitePath := flag.String("sqlite", "", "path to a SQLite run log (overrides DATABASE_URL)")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, err := openStore(ctx, *sqlitePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.Query(ctx, runlog.Filter{})
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	if err := runlog.VerifyChain(entries); err != nil {
		return fmt.Errorf("verify %d entries: %w", len(entries), err)
	}

	fmt.Printf("chain intact: %d entries verified\n", len(entries))
	return nil
}

func openStore(ctx context.Context, sqlitePath string) (runlog.Store, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if sqlitePath != "" {
		return runlog.OpenSQLite(sqlitePath, logger)
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return runlog.OpenPostgres(ctx, dsn, logger)
	}
	return nil, fmt.Errorf("no backend: pass -sqlite or set DATABASE_URL")
}
