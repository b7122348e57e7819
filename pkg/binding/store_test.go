package binding

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStoreBinding(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"group_id", "mode", "daily_token_limit", "monthly_budget", "priority_level",
		"warning_percent", "alert_percent", "config", "created_at", "updated_at",
	}).AddRow(7, "hybrid", 50000, 200.0, 1, 70, 90, []byte(`{"strategy":"round_robin","max_candidates":3}`), time.Now(), time.Now())

	mock.ExpectQuery("SELECT group_id, mode").
		WithArgs(int64(7)).
		WillReturnRows(rows)

	b, err := store.Binding(context.Background(), 7)
	if err != nil {
		t.Fatalf("Binding() error = %v", err)
	}
	if b.Mode != ModeHybrid || b.DailyTokenLimit != 50000 {
		t.Errorf("binding = %+v", b)
	}
	if b.Config.Strategy != StrategyRoundRobin || b.Config.MaxCandidates != 3 {
		t.Errorf("binding config = %+v, want round_robin with 3 candidates", b.Config)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreBindingNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT group_id, mode").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}))

	if _, err := store.Binding(context.Background(), 404); err != ErrBindingNotFound {
		t.Errorf("Binding() error = %v, want ErrBindingNotFound", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreUpsertBinding(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO resource_bindings").
		WithArgs(int64(7), ModeShared, int64(1000), 50.0, 0, 80, 95, []byte(`{"strategy":"priority"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	b := &ResourceBinding{
		GroupID: 7, Mode: ModeShared, DailyTokenLimit: 1000, MonthlyBudget: 50,
		WarningPercent: 80, AlertPercent: 95,
		Config: Config{Strategy: StrategyPriority},
	}
	if err := store.UpsertBinding(context.Background(), b); err != nil {
		t.Fatalf("UpsertBinding() error = %v", err)
	}
	if b.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreBindExclusive(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE account_bindings").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO account_bindings").
		WithArgs(int64(7), int64(3), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
	mock.ExpectCommit()

	ab, err := store.BindExclusive(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("BindExclusive() error = %v", err)
	}
	if ab.ID != 11 || ab.GroupID != 7 || ab.AccountID != 3 {
		t.Errorf("binding = %+v", ab)
	}
	if ab.Type != TypeExclusive || !ab.IsActive {
		t.Errorf("binding = %+v, want active exclusive", ab)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreBindExclusiveRetriesOnConflict(t *testing.T) {
	store, mock := newMockStore(t)

	// The loser of a concurrent bind race hits the partial unique index and
	// retries against the winner's row.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE account_bindings").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("INSERT INTO account_bindings").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE account_bindings").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("INSERT INTO account_bindings").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))
	mock.ExpectCommit()

	ab, err := store.BindExclusive(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("BindExclusive() error = %v", err)
	}
	if ab.ID != 12 {
		t.Errorf("binding ID = %d, want 12", ab.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreActiveExclusiveOwners(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"account_id", "group_id"}).
		AddRow(1, 7).
		AddRow(2, 8)
	mock.ExpectQuery("SELECT account_id, group_id").WillReturnRows(rows)

	owners, err := store.ActiveExclusiveOwners(context.Background())
	if err != nil {
		t.Fatalf("ActiveExclusiveOwners() error = %v", err)
	}
	if owners[1] != 7 || owners[2] != 8 {
		t.Errorf("owners = %v", owners)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreGroupsWithModes(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT group_id FROM resource_bindings").
		WithArgs(pq.Array([]string{"shared", "hybrid"})).
		WillReturnRows(sqlmock.NewRows([]string{"group_id"}).AddRow(7).AddRow(8))

	ids, err := store.GroupsWithModes(context.Background(), ModeShared, ModeHybrid)
	if err != nil {
		t.Fatalf("GroupsWithModes() error = %v", err)
	}
	if len(ids) != 2 || ids[0] != 7 || ids[1] != 8 {
		t.Errorf("GroupsWithModes() = %v, want [7 8]", ids)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStoreReleaseAccountBinding(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE account_bindings").
		WithArgs(int64(7), int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.ReleaseAccountBinding(context.Background(), 7, 3); err != nil {
		t.Fatalf("ReleaseAccountBinding() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
