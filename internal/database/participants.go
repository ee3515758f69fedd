package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ParticipantDB records which users took part in which matches. This is
// the only durable state the server keeps; everything else about a match
// lives in memory and dies with the retention window.
type ParticipantDB struct {
	Pool *pgxpool.Pool
}

// InsertParticipant upserts a (match, user) row. Re-joining the same
// match is a no-op rather than a constraint violation.
func (p *ParticipantDB) InsertParticipant(ctx context.Context, matchID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := p.Pool.Exec(ctx, `
		INSERT INTO participants (match_id, user_id, joined_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (match_id, user_id) DO NOTHING
	`, matchID, userID)
	if err != nil {
		return fmt.Errorf("insert participant %s into match %s: %w", userID, matchID, err)
	}
	return nil
}

// EnsureSchema creates the participants table if it is missing.
func (p *ParticipantDB) EnsureSchema(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS participants (
			match_id  TEXT        NOT NULL,
			user_id   TEXT        NOT NULL,
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (match_id, user_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure participants schema: %w", err)
	}
	return nil
}
