package accounts

import (
	"context"
	"database/sql"
	"fmt"
)

// Directory is the read-only port to the account inventory.
type Directory interface {
	// Account returns one account by id.
	Account(ctx context.Context, id int64) (*Account, error)

	// ListByPlatform returns every account for a platform, regardless of
	// status. Callers filter on usability themselves so that exclusion
	// decisions happen at selection time.
	ListByPlatform(ctx context.Context, platform Platform) ([]Account, error)
}

// PostgresDirectory is the relational Directory implementation.
type PostgresDirectory struct {
	db *sql.DB
}

// NewPostgresDirectory creates a directory over an open database handle.
func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const accountColumns = `id, name, platform, status, daily_token_quota, monthly_budget, priority, active_connections, avg_response_time_ms, created_at, updated_at`

// Account returns one account by id.
func (d *PostgresDirectory) Account(ctx context.Context, id int64) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM ai_accounts WHERE id = $1`

	var a Account
	err := d.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Platform, &a.Status,
		&a.DailyTokenQuota, &a.MonthlyBudget,
		&a.Priority, &a.ActiveConnections, &a.AvgResponseTimeMs,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("account not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// ListByPlatform returns every account for a platform.
func (d *PostgresDirectory) ListByPlatform(ctx context.Context, platform Platform) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM ai_accounts WHERE platform = $1 ORDER BY priority ASC, id ASC`

	rows, err := d.db.QueryContext(ctx, query, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Platform, &a.Status,
			&a.DailyTokenQuota, &a.MonthlyBudget,
			&a.Priority, &a.ActiveConnections, &a.AvgResponseTimeMs,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
