package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aicarpool/carpool/pkg/observability"
)

// Recorder accepts audit events. Recording is best-effort: implementations
// log failures instead of propagating them, so an audit outage never blocks
// an authorization or binding decision.
type Recorder interface {
	Record(ctx context.Context, event Event)
}

// LogRecorder writes audit events to the structured logger.
type LogRecorder struct {
	logger *observability.Logger
}

// NewLogRecorder creates a recorder that emits events as log lines.
func NewLogRecorder(logger *observability.Logger) *LogRecorder {
	return &LogRecorder{logger: logger}
}

// Record implements Recorder.
func (r *LogRecorder) Record(ctx context.Context, event Event) {
	stamp(&event)
	fields := map[string]interface{}{
		"audit_id":   event.ID,
		"event_type": string(event.Type),
		"actor_id":   event.ActorID,
	}
	if event.TargetUserID != 0 {
		fields["target_user_id"] = event.TargetUserID
	}
	if event.GroupID != 0 {
		fields["group_id"] = event.GroupID
	}
	if event.AccountID != 0 {
		fields["account_id"] = event.AccountID
	}
	for k, v := range event.Details {
		fields[k] = v
	}
	r.logger.WithFields(fields).Info("audit event")
}

// MultiRecorder fans an event out to several recorders.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a recorder wrapping the given recorders.
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record implements Recorder.
func (m *MultiRecorder) Record(ctx context.Context, event Event) {
	stamp(&event)
	for _, r := range m.recorders {
		r.Record(ctx, event)
	}
}

func stamp(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
}
