package rbac

import (
	"context"
	"strings"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestMigrationsAreIdempotent(t *testing.T) {
	// The daemon applies these on every boot, so every CREATE must tolerate
	// already-existing objects.
	for _, m := range GetMigrations() {
		for _, line := range strings.Split(m.SQL, "\n") {
			trimmed := strings.TrimSpace(line)
			if !strings.HasPrefix(trimmed, "CREATE") {
				continue
			}
			if !strings.Contains(trimmed, "IF NOT EXISTS") {
				t.Errorf("migration %d: %q lacks IF NOT EXISTS", m.Version, trimmed)
			}
		}
	}
}

func TestRunMigrationsAppliesInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS role_assignments").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE UNIQUE INDEX IF NOT EXISTS uniq_role_assignments_active_tuple").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("RunMigrations() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
