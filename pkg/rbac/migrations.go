package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the migrations owned by the rbac package. The
// enterprises/departments/groups tables belong to the wider platform schema;
// only role_assignments is created here.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create role_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					role_name VARCHAR(64) NOT NULL,
					scope_level VARCHAR(16) NOT NULL,
					resource_id BIGINT,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					granted_by BIGINT,
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_role_assignments_user_active
					ON role_assignments(user_id) WHERE is_active;
			`,
		},
		{
			Version:     2,
			Description: "Enforce single active assignment per scope tuple",
			SQL: `
				CREATE UNIQUE INDEX IF NOT EXISTS uniq_role_assignments_active_tuple
					ON role_assignments(user_id, scope_level, COALESCE(resource_id, 0))
					WHERE is_active;
			`,
		},
	}
}

// RunMigrations applies all rbac migrations in order.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, m := range GetMigrations() {
		if _, err := db.ExecContext(ctx, m.SQL); err != nil {
			return fmt.Errorf("rbac migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}
