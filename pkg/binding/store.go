package binding

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// bindRetries bounds how often a conflicting concurrent exclusive bind is
// retried. The partial unique index on active exclusive bindings turns the
// lost-update race into a unique violation; a retry re-runs the
// deactivate-then-insert transaction against the winner's row so the last
// writer wins without a transient double-exclusive state.
const bindRetries = 3

// Store is the storage port for resource and account bindings.
type Store interface {
	// Binding returns the group's resource binding or ErrBindingNotFound.
	Binding(ctx context.Context, groupID int64) (*ResourceBinding, error)

	// UpsertBinding creates or replaces the group's resource binding.
	UpsertBinding(ctx context.Context, b *ResourceBinding) error

	// ActiveAccountBindings returns the group's active account bindings.
	ActiveAccountBindings(ctx context.Context, groupID int64) ([]AccountBinding, error)

	// ActiveExclusiveOwners maps each exclusively bound account to the
	// group currently holding it.
	ActiveExclusiveOwners(ctx context.Context) (map[int64]int64, error)

	// BindExclusive atomically deactivates any prior active exclusive
	// binding for the account (in any group) and creates a new one for
	// groupID. Two concurrent calls for the same account must not both
	// leave an active binding.
	BindExclusive(ctx context.Context, groupID, accountID int64) (*AccountBinding, error)

	// ReleaseAccountBinding deactivates the group's active binding to the
	// account. A no-op when none exists.
	ReleaseAccountBinding(ctx context.Context, groupID, accountID int64) error

	// GroupsWithModes returns the ids of groups whose binding mode is one
	// of the given modes.
	GroupsWithModes(ctx context.Context, modes ...Mode) ([]int64, error)

	// GroupEnterprise returns the owning enterprise of a group.
	GroupEnterprise(ctx context.Context, groupID int64) (int64, error)
}

// PostgresStore is the relational Store implementation.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Binding returns the group's resource binding.
func (s *PostgresStore) Binding(ctx context.Context, groupID int64) (*ResourceBinding, error) {
	query := `
		SELECT group_id, mode, daily_token_limit, monthly_budget, priority_level,
		       warning_percent, alert_percent, config, created_at, updated_at
		FROM resource_bindings
		WHERE group_id = $1
	`

	var b ResourceBinding
	var configJSON []byte
	err := s.db.QueryRowContext(ctx, query, groupID).Scan(
		&b.GroupID, &b.Mode, &b.DailyTokenLimit, &b.MonthlyBudget, &b.PriorityLevel,
		&b.WarningPercent, &b.AlertPercent, &configJSON, &b.CreatedAt, &b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrBindingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get binding: %w", err)
	}

	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &b.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal binding config: %w", err)
		}
	}
	return &b, nil
}

// UpsertBinding creates or replaces the group's resource binding.
func (s *PostgresStore) UpsertBinding(ctx context.Context, b *ResourceBinding) error {
	configJSON, err := json.Marshal(b.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal binding config: %w", err)
	}

	query := `
		INSERT INTO resource_bindings (group_id, mode, daily_token_limit, monthly_budget, priority_level,
			warning_percent, alert_percent, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (group_id)
		DO UPDATE SET
			mode = EXCLUDED.mode,
			daily_token_limit = EXCLUDED.daily_token_limit,
			monthly_budget = EXCLUDED.monthly_budget,
			priority_level = EXCLUDED.priority_level,
			warning_percent = EXCLUDED.warning_percent,
			alert_percent = EXCLUDED.alert_percent,
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at
	`
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query,
		b.GroupID, b.Mode, b.DailyTokenLimit, b.MonthlyBudget, b.PriorityLevel,
		b.WarningPercent, b.AlertPercent, configJSON, now,
	); err != nil {
		return fmt.Errorf("failed to upsert binding: %w", err)
	}
	b.UpdatedAt = now
	return nil
}

// ActiveAccountBindings returns the group's active account bindings.
func (s *PostgresStore) ActiveAccountBindings(ctx context.Context, groupID int64) ([]AccountBinding, error) {
	query := `
		SELECT id, group_id, account_id, binding_type, is_active, bound_at, released_at
		FROM account_bindings
		WHERE group_id = $1 AND is_active
		ORDER BY bound_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account bindings: %w", err)
	}
	defer rows.Close()

	var out []AccountBinding
	for rows.Next() {
		var ab AccountBinding
		var releasedAt sql.NullTime
		if err := rows.Scan(&ab.ID, &ab.GroupID, &ab.AccountID, &ab.Type, &ab.IsActive, &ab.BoundAt, &releasedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account binding: %w", err)
		}
		if releasedAt.Valid {
			t := releasedAt.Time
			ab.ReleasedAt = &t
		}
		out = append(out, ab)
	}
	return out, rows.Err()
}

// ActiveExclusiveOwners maps each exclusively bound account to its group.
func (s *PostgresStore) ActiveExclusiveOwners(ctx context.Context) (map[int64]int64, error) {
	query := `
		SELECT account_id, group_id
		FROM account_bindings
		WHERE binding_type = 'exclusive' AND is_active
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusive owners: %w", err)
	}
	defer rows.Close()

	owners := make(map[int64]int64)
	for rows.Next() {
		var accountID, groupID int64
		if err := rows.Scan(&accountID, &groupID); err != nil {
			return nil, fmt.Errorf("failed to scan exclusive owner: %w", err)
		}
		owners[accountID] = groupID
	}
	return owners, rows.Err()
}

// BindExclusive moves the account's exclusive binding to groupID.
func (s *PostgresStore) BindExclusive(ctx context.Context, groupID, accountID int64) (*AccountBinding, error) {
	var ab *AccountBinding
	var err error
	for attempt := 0; attempt < bindRetries; attempt++ {
		if ab, err = s.bindExclusiveTx(ctx, groupID, accountID); err == nil {
			return ab, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("exclusive bind conflict not resolved after %d attempts: %w", bindRetries, err)
}

func (s *PostgresStore) bindExclusiveTx(ctx context.Context, groupID, accountID int64) (*AccountBinding, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deactivate := `
		UPDATE account_bindings
		SET is_active = FALSE, released_at = NOW()
		WHERE account_id = $1 AND binding_type = 'exclusive' AND is_active
	`
	if _, err := tx.ExecContext(ctx, deactivate, accountID); err != nil {
		return nil, fmt.Errorf("failed to deactivate prior exclusive binding: %w", err)
	}

	insert := `
		INSERT INTO account_bindings (group_id, account_id, binding_type, is_active, bound_at)
		VALUES ($1, $2, 'exclusive', TRUE, $3)
		RETURNING id
	`
	ab := &AccountBinding{
		GroupID:   groupID,
		AccountID: accountID,
		Type:      TypeExclusive,
		IsActive:  true,
		BoundAt:   time.Now(),
	}
	if err := tx.QueryRowContext(ctx, insert, groupID, accountID, ab.BoundAt).Scan(&ab.ID); err != nil {
		return nil, fmt.Errorf("failed to insert exclusive binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit exclusive binding: %w", err)
	}
	return ab, nil
}

// ReleaseAccountBinding deactivates the group's binding to the account.
func (s *PostgresStore) ReleaseAccountBinding(ctx context.Context, groupID, accountID int64) error {
	query := `
		UPDATE account_bindings
		SET is_active = FALSE, released_at = NOW()
		WHERE group_id = $1 AND account_id = $2 AND is_active
	`
	if _, err := s.db.ExecContext(ctx, query, groupID, accountID); err != nil {
		return fmt.Errorf("failed to release account binding: %w", err)
	}
	return nil
}

// GroupsWithModes returns the groups whose binding mode matches.
func (s *PostgresStore) GroupsWithModes(ctx context.Context, modes ...Mode) ([]int64, error) {
	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}

	query := `SELECT group_id FROM resource_bindings WHERE mode = ANY($1) ORDER BY group_id`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("failed to list groups by mode: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GroupEnterprise returns the owning enterprise of a group.
func (s *PostgresStore) GroupEnterprise(ctx context.Context, groupID int64) (int64, error) {
	var enterpriseID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT enterprise_id FROM groups WHERE id = $1`, groupID,
	).Scan(&enterpriseID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("group not found: %d", groupID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get group enterprise: %w", err)
	}
	return enterpriseID, nil
}

// GetMigrations returns the DDL owned by the binding package.
func GetMigrations() []string {
	return []string{
		`
		CREATE TABLE IF NOT EXISTS resource_bindings (
			group_id BIGINT PRIMARY KEY,
			mode VARCHAR(16) NOT NULL,
			daily_token_limit BIGINT NOT NULL DEFAULT 0,
			monthly_budget DOUBLE PRECISION NOT NULL DEFAULT 0,
			priority_level INT NOT NULL DEFAULT 0,
			warning_percent INT NOT NULL DEFAULT 80,
			alert_percent INT NOT NULL DEFAULT 95,
			config JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		`,
		`
		CREATE TABLE IF NOT EXISTS account_bindings (
			id BIGSERIAL PRIMARY KEY,
			group_id BIGINT NOT NULL,
			account_id BIGINT NOT NULL,
			binding_type VARCHAR(16) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			bound_at TIMESTAMP NOT NULL DEFAULT NOW(),
			released_at TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_account_bindings_group_active
			ON account_bindings(group_id) WHERE is_active;

		CREATE UNIQUE INDEX IF NOT EXISTS uniq_account_bindings_exclusive
			ON account_bindings(account_id)
			WHERE is_active AND binding_type = 'exclusive';
		`,
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
