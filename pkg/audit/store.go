package audit

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/aicarpool/carpool/pkg/observability"
)

// DBRecorder persists audit events to the audit_events table.
type DBRecorder struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewDBRecorder creates a database-backed recorder.
func NewDBRecorder(db *sql.DB, logger *observability.Logger) *DBRecorder {
	return &DBRecorder{db: db, logger: logger}
}

// Record implements Recorder. Failures are logged, never returned.
func (r *DBRecorder) Record(ctx context.Context, event Event) {
	stamp(&event)

	details, err := json.Marshal(event.Details)
	if err != nil {
		details = []byte("{}")
	}

	query := `
		INSERT INTO audit_events (id, event_type, actor_id, target_user_id, group_id, account_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.ActorID,
		nullableID(event.TargetUserID),
		nullableID(event.GroupID),
		nullableID(event.AccountID),
		details,
		event.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithField("event_type", string(event.Type)).Error("failed to persist audit event")
	}
}

// Migration returns the DDL for the audit_events table.
func Migration() string {
	return `
		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			event_type VARCHAR(64) NOT NULL,
			actor_id BIGINT NOT NULL,
			target_user_id BIGINT,
			group_id BIGINT,
			account_id BIGINT,
			details JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events(actor_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type, created_at);
	`
}

func nullableID(id int64) interface{} {
	if id == 0 {
		return nil
	}
	return id
}
