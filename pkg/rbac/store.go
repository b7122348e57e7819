package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// createRetries bounds how often a conflicting concurrent grant is retried
// before giving up. The partial unique index on active assignments turns a
// lost-update race into a unique violation; the retry re-runs the
// deactivate-then-insert transaction against the winner's row.
const createRetries = 3

// PostgresStore is the relational implementation of AssignmentStore.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// ActiveAssignments returns every active assignment for a user.
func (s *PostgresStore) ActiveAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_name, scope_level, resource_id, is_active, granted_by, granted_at, revoked_at
		FROM role_assignments
		WHERE user_id = $1 AND is_active
		ORDER BY granted_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []RoleAssignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// GetAssignment returns one assignment by id.
func (s *PostgresStore) GetAssignment(ctx context.Context, id int64) (*RoleAssignment, error) {
	query := `
		SELECT id, user_id, role_name, scope_level, resource_id, is_active, granted_by, granted_at, revoked_at
		FROM role_assignments
		WHERE id = $1
	`

	a, err := scanAssignment(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("assignment not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return a, nil
}

// CreateAssignment writes a new active assignment, deactivating any
// conflicting active assignment for the same (user, scope, resource) tuple.
// Two concurrent calls for the same tuple race on the partial unique index;
// the loser retries and deactivates the winner, leaving exactly one active
// row.
func (s *PostgresStore) CreateAssignment(ctx context.Context, a *RoleAssignment) error {
	var err error
	for attempt := 0; attempt < createRetries; attempt++ {
		if err = s.createAssignmentTx(ctx, a); err == nil {
			return nil
		}
		if !isUniqueViolation(err) {
			return err
		}
	}
	return fmt.Errorf("assignment conflict not resolved after %d attempts: %w", createRetries, err)
}

func (s *PostgresStore) createAssignmentTx(ctx context.Context, a *RoleAssignment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	deactivate := `
		UPDATE role_assignments
		SET is_active = FALSE, revoked_at = NOW()
		WHERE user_id = $1 AND scope_level = $2
		  AND resource_id IS NOT DISTINCT FROM $3
		  AND is_active
	`
	if _, err := tx.ExecContext(ctx, deactivate, a.UserID, a.ScopeLevel, a.ResourceID); err != nil {
		return fmt.Errorf("failed to deactivate duplicates: %w", err)
	}

	insert := `
		INSERT INTO role_assignments (user_id, role_name, scope_level, resource_id, is_active, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6)
		RETURNING id
	`
	now := time.Now()
	if err := tx.QueryRowContext(ctx, insert,
		a.UserID, a.Role, a.ScopeLevel, a.ResourceID, a.GrantedBy, now,
	).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assignment: %w", err)
	}
	a.IsActive = true
	a.GrantedAt = now
	return nil
}

// DeactivateAssignment marks an assignment inactive; already-inactive rows
// are left untouched.
func (s *PostgresStore) DeactivateAssignment(ctx context.Context, id int64) error {
	query := `
		UPDATE role_assignments
		SET is_active = FALSE, revoked_at = NOW()
		WHERE id = $1 AND is_active
	`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to deactivate assignment: %w", err)
	}
	return nil
}

// GroupDepartment returns the owning department of a group, or 0 when the
// group has none.
func (s *PostgresStore) GroupDepartment(ctx context.Context, groupID int64) (int64, error) {
	var departmentID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT department_id FROM groups WHERE id = $1`, groupID,
	).Scan(&departmentID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("group not found: %d", groupID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get group department: %w", err)
	}
	return departmentID.Int64, nil
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

// DepartmentEnterprise returns the owning enterprise of a department.
func (s *PostgresStore) DepartmentEnterprise(ctx context.Context, departmentID int64) (int64, error) {
	var enterpriseID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT enterprise_id FROM departments WHERE id = $1`, departmentID,
	).Scan(&enterpriseID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("department not found: %d", departmentID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get department enterprise: %w", err)
	}
	return enterpriseID, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func scanAssignment(scanner interface {
	Scan(dest ...interface{}) error
}) (*RoleAssignment, error) {
	var a RoleAssignment
	var resourceID, grantedBy sql.NullInt64
	var revokedAt sql.NullTime

	err := scanner.Scan(
		&a.ID,
		&a.UserID,
		&a.Role,
		&a.ScopeLevel,
		&resourceID,
		&a.IsActive,
		&grantedBy,
		&a.GrantedAt,
		&revokedAt,
	)
	if err != nil {
		return nil, err
	}

	if resourceID.Valid {
		id := resourceID.Int64
		a.ResourceID = &id
	}
	if grantedBy.Valid {
		id := grantedBy.Int64
		a.GrantedBy = &id
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		a.RevokedAt = &t
	}
	return &a, nil
}
