package quota

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresUsageStore is the relational implementation of UsageStore. Period
// rows are created lazily by the upsert, so a fresh period key starts at
// zero without any reset job.
type PostgresUsageStore struct {
	db *sql.DB
}

// NewPostgresUsageStore creates a store over an open database handle.
func NewPostgresUsageStore(db *sql.DB) *PostgresUsageStore {
	return &PostgresUsageStore{db: db}
}

// AddUsage increments the day and month counters in one statement. The
// ON CONFLICT arithmetic runs inside the database, so concurrent callers on
// the same subject never lose updates.
func (s *PostgresUsageStore) AddUsage(ctx context.Context, subject Subject, dayKey, monthKey string, tokens int64, cost float64) error {
	query := `
		INSERT INTO quota_usage (subject_kind, subject_id, period_key, tokens_used, cost_used)
		VALUES ($1, $2, $3, $4, $5), ($1, $2, $6, $4, $5)
		ON CONFLICT (subject_kind, subject_id, period_key)
		DO UPDATE SET
			tokens_used = quota_usage.tokens_used + EXCLUDED.tokens_used,
			cost_used = quota_usage.cost_used + EXCLUDED.cost_used,
			updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, subject.Kind, subject.ID, dayKey, tokens, cost, monthKey); err != nil {
		return fmt.Errorf("failed to add usage: %w", err)
	}
	return nil
}

// PeriodUsage reads the day and month rows; missing rows read as zero.
func (s *PostgresUsageStore) PeriodUsage(ctx context.Context, subject Subject, dayKey, monthKey string) (Usage, Usage, error) {
	query := `
		SELECT period_key, tokens_used, cost_used
		FROM quota_usage
		WHERE subject_kind = $1 AND subject_id = $2 AND period_key IN ($3, $4)
	`
	rows, err := s.db.QueryContext(ctx, query, subject.Kind, subject.ID, dayKey, monthKey)
	if err != nil {
		return Usage{}, Usage{}, fmt.Errorf("failed to read usage: %w", err)
	}
	defer rows.Close()

	var day, month Usage
	for rows.Next() {
		var key string
		var u Usage
		if err := rows.Scan(&key, &u.Tokens, &u.Cost); err != nil {
			return Usage{}, Usage{}, fmt.Errorf("failed to scan usage: %w", err)
		}
		switch key {
		case dayKey:
			day = u
		case monthKey:
			month = u
		}
	}
	return day, month, rows.Err()
}

// Migration returns the DDL for the quota_usage table.
func Migration() string {
	return `
		CREATE TABLE IF NOT EXISTS quota_usage (
			subject_kind VARCHAR(16) NOT NULL,
			subject_id BIGINT NOT NULL,
			period_key VARCHAR(10) NOT NULL,
			tokens_used BIGINT NOT NULL DEFAULT 0,
			cost_used DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (subject_kind, subject_id, period_key)
		);
	`
}
