// cmd/archiver/main.go is an asynchronous archiver service that drains
// match lifecycle events from the Redis journal queue and persists them
// to PostgreSQL. The server journals fire-and-forget; this process is
// the only component that ever writes event history to the database.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/mfigueroa/quizparty/internal/config"
	"github.com/mfigueroa/quizparty/internal/database"
	"github.com/mfigueroa/quizparty/internal/journal"
)

const (
	batchSize = 20
	popWait   = 3 * time.Second
)

func main() {
	logger := logrus.New()

	cfgPath := os.Getenv("CONFIG_FILE")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadAndValidate(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()
	if err := ensureEventSchema(ctx, pool); err != nil {
		log.Fatalf("database: %v", err)
	}

	pub, err := journal.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Queue, logger)
	if err != nil {
		log.Fatalf("journal: %v", err)
	}
	defer pub.Close()

	logger.Infof("archiver draining %s on %s", cfg.Redis.Queue, cfg.Redis.Addr)

	for {
		records, err := pub.Drain(ctx, popWait, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("archiver shutting down")
				return
			}
			logger.Errorf("drain: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(records) == 0 {
			continue
		}
		if err := insertBatch(ctx, pool, records); err != nil {
			logger.Errorf("insert batch of %d: %v", len(records), err)
			continue
		}
		logger.Debugf("archived %d events", len(records))
	}
}

func ensureEventSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_events (
			id       BIGSERIAL   PRIMARY KEY,
			match_id TEXT        NOT NULL,
			event    TEXT        NOT NULL,
			payload  JSONB,
			occurred TIMESTAMPTZ NOT NULL
		)
	`)
	return err
}

func insertBatch(ctx context.Context, pool *pgxpool.Pool, records []journal.Record) error {
	batch := &pgx.Batch{}
	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			payload = []byte("{}")
		}
		batch.Queue(`
			INSERT INTO match_events (match_id, event, payload, occurred)
			VALUES ($1, $2, $3, $4)
		`, rec.MatchID, rec.Event, payload, rec.Timestamp)
	}
	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
