// internal/journal/journal.go
//
// Package journal pushes match lifecycle events onto a Redis queue so
// the archiver can persist them out of band. Journaling is best effort:
// a dead Redis degrades to a warning log, never to a failed match
// operation.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Record is one journaled match event.
type Record struct {
	MatchID   string         `json:"matchId"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Publisher appends records to the configured Redis list.
type Publisher struct {
	client *redis.Client
	queue  string
	log    *logrus.Logger
}

// Connect dials Redis and verifies it with a ping.
func Connect(ctx context.Context, addr, queue string, log *logrus.Logger) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Publisher{client: client, queue: queue, log: log}, nil
}

// Record enqueues one event. Errors are logged and swallowed.
func (p *Publisher) Record(matchID, event string, payload map[string]any) {
	rec := Record{
		MatchID:   matchID,
		Event:     event,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		p.log.Errorf("journal: marshal %s for match %s: %v", event, matchID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.RPush(ctx, p.queue, data).Err(); err != nil {
		p.log.Warnf("journal: rpush %s for match %s: %v", event, matchID, err)
	}
}

// Drain pops up to max records from the queue, blocking up to wait for
// the first one. Used by the archiver.
func (p *Publisher) Drain(ctx context.Context, wait time.Duration, max int) ([]Record, error) {
	first, err := p.client.BLPop(ctx, wait, p.queue).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("blpop %s: %w", p.queue, err)
	}

	// BLPop returns [queue, value].
	raw := [][]byte{[]byte(first[1])}
	for len(raw) < max {
		val, err := p.client.LPop(ctx, p.queue).Result()
		if err != nil {
			if err == redis.Nil {
				break
			}
			return nil, fmt.Errorf("lpop %s: %w", p.queue, err)
		}
		raw = append(raw, []byte(val))
	}

	records := make([]Record, 0, len(raw))
	for _, data := range raw {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			p.log.Warnf("journal: skipping malformed record: %v", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close releases the underlying Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}
