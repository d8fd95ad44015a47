// seed upserts the demo markets, merchants, agents and social answers for local testing.
// Safe to run repeatedly.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"merchant-voice-auth/internal/config"
	"merchant-voice-auth/internal/db"
	"merchant-voice-auth/internal/logging"
	"merchant-voice-auth/internal/security"
	"merchant-voice-auth/internal/seed"
)

func main() {
	cost := flag.Int("bcrypt-cost", 10, "bcrypt cost for hashed answers")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("text", "info").Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is not set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		logger.Error("begin", "error", err)
		os.Exit(1)
	}
	ds := seed.Demo()
	if err := ds.Postgres(ctx, tx, security.NewHasher(*cost)); err != nil {
		_ = tx.Rollback(ctx)
		logger.Error("seed", "error", err)
		os.Exit(1)
	}
	if err := tx.Commit(ctx); err != nil {
		logger.Error("commit", "error", err)
		os.Exit(1)
	}
	logger.Info("seed applied", "merchants", len(ds.Merchants), "agents", len(ds.Agents), "answers", len(ds.Answers))
}
