package accounts

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func accountRowColumns() []string {
	return []string{
		"id", "name", "platform", "status", "daily_token_quota", "monthly_budget",
		"priority", "active_connections", "avg_response_time_ms", "created_at", "updated_at",
	}
}

func TestPostgresDirectoryAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM ai_accounts WHERE id").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows(accountRowColumns()).
			AddRow(3, "claude-prod-1", "claude", "active", 100000, 500.0, 1, 4, 230, now, now))

	directory := NewPostgresDirectory(db)
	a, err := directory.Account(context.Background(), 3)
	if err != nil {
		t.Fatalf("Account() error = %v", err)
	}
	if a.Platform != PlatformClaude || a.Status != StatusActive {
		t.Errorf("account = %+v", a)
	}
	if !a.Usable() {
		t.Error("active account not usable")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresDirectoryAccountNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT .+ FROM ai_accounts WHERE id").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows(accountRowColumns()))

	directory := NewPostgresDirectory(db)
	if _, err := directory.Account(context.Background(), 404); err == nil {
		t.Error("Account() error = nil for missing account")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresDirectoryListByPlatform(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT .+ FROM ai_accounts WHERE platform").
		WithArgs(PlatformGemini).
		WillReturnRows(sqlmock.NewRows(accountRowColumns()).
			AddRow(1, "gem-1", "gemini", "active", 0, 0.0, 1, 0, 120, now, now).
			AddRow(2, "gem-2", "gemini", "disabled", 0, 0.0, 2, 0, 340, now, now))

	directory := NewPostgresDirectory(db)
	listed, err := directory.ListByPlatform(context.Background(), PlatformGemini)
	if err != nil {
		t.Fatalf("ListByPlatform() error = %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("ListByPlatform() returned %d accounts, want 2", len(listed))
	}

	// Disabled accounts are listed; usability filtering happens at selection.
	if listed[1].Usable() {
		t.Error("disabled account reports usable")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUsable(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusActive, true},
		{StatusDisabled, false},
		{StatusError, false},
	}
	for _, tt := range tests {
		a := Account{Status: tt.status}
		if got := a.Usable(); got != tt.want {
			t.Errorf("Usable() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}
