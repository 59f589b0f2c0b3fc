package fraud

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresCounter implements Counter with a per-user counter row. The
// upsert claims the next ordinal in a single statement, so concurrent
// attempts for the same user are serialized by the row lock and each
// receives a distinct prior count.
type PostgresCounter struct {
	db *sql.DB
}

// NewPostgresCounter creates a PostgreSQL-backed attempt counter.
func NewPostgresCounter(db *sql.DB) *PostgresCounter {
	return &PostgresCounter{db: db}
}

// Migrate creates the user_attempt_counters table if it doesn't exist.
func (p *PostgresCounter) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_attempt_counters (
			user_id       VARCHAR(255) PRIMARY KEY,
			attempt_count INTEGER NOT NULL DEFAULT 0,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (p *PostgresCounter) NextOrdinal(ctx context.Context, userID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO user_attempt_counters (user_id, attempt_count, updated_at)
		VALUES ($1, 1, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			attempt_count = user_attempt_counters.attempt_count + 1,
			updated_at    = NOW()
		RETURNING attempt_count - 1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("claim attempt ordinal: %w", err)
	}
	return count, nil
}
