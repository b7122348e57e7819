package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventRoleGranted  EventType = "authz.role_granted"
	EventRoleRevoked  EventType = "authz.role_revoked"
	EventAccessDenied EventType = "authz.access_denied"

	// Resource binding events
	EventBindingConfigured EventType = "binding.configured"
	EventBindingModeChange EventType = "binding.mode_changed"
	EventExclusiveSwap     EventType = "binding.exclusive_swap"
	EventBindingReleased   EventType = "binding.released"
)

// Event is one audit record. The zero values of TargetUserID and GroupID
// mean "not applicable".
type Event struct {
	ID           string         `json:"id"`
	Type         EventType      `json:"type"`
	ActorID      int64          `json:"actor_id"`
	TargetUserID int64          `json:"target_user_id,omitempty"`
	GroupID      int64          `json:"group_id,omitempty"`
	AccountID    int64          `json:"account_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
