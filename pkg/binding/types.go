package binding

import (
	"time"
)

// Mode is the strategy by which a group's AI requests map to upstream
// accounts.
type Mode string

const (
	// ModeDedicated restricts the group to its exclusively bound accounts.
	// No fallback: an empty dedicated pool is a hard capacity failure.
	ModeDedicated Mode = "dedicated"

	// ModeShared draws from the enterprise-wide pool of shareable accounts.
	ModeShared Mode = "shared"

	// ModeHybrid tries dedicated first and falls back to the shared pool
	// when the dedicated pool is empty or exhausted.
	ModeHybrid Mode = "hybrid"
)

// ValidMode reports whether m is a known binding mode.
func ValidMode(m Mode) bool {
	switch m {
	case ModeDedicated, ModeShared, ModeHybrid:
		return true
	}
	return false
}

// BindingType distinguishes how an account is attached to a group.
type BindingType string

const (
	// TypeExclusive reserves the account for exactly one group at a time.
	// Exclusivity is global: at most one active exclusive binding exists
	// per account across all groups.
	TypeExclusive BindingType = "exclusive"

	// TypeShared attaches an account without reserving it.
	TypeShared BindingType = "shared"
)

// Config carries the tunable selection behavior of a binding.
type Config struct {
	Strategy      StrategyName `json:"strategy,omitempty"`
	MaxCandidates int          `json:"max_candidates,omitempty"`
}

// ResourceBinding is the per-group resource configuration. One binding per
// group.
type ResourceBinding struct {
	GroupID         int64   `json:"group_id"`
	Mode            Mode    `json:"mode"`
	DailyTokenLimit int64   `json:"daily_token_limit"`
	MonthlyBudget   float64 `json:"monthly_budget"`
	PriorityLevel   int     `json:"priority_level"`
	WarningPercent  int     `json:"warning_percent"`
	AlertPercent    int     `json:"alert_percent"`
	Config          Config  `json:"config"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AccountBinding attaches one account to one group. Deactivated rather than
// deleted, so binding history survives.
type AccountBinding struct {
	ID         int64       `json:"id"`
	GroupID    int64       `json:"group_id"`
	AccountID  int64       `json:"account_id"`
	Type       BindingType `json:"type"`
	IsActive   bool        `json:"is_active"`
	BoundAt    time.Time   `json:"bound_at"`
	ReleasedAt *time.Time  `json:"released_at,omitempty"`
}

// Params is the caller-supplied configuration for ConfigureBinding.
type Params struct {
	Mode            Mode    `json:"mode"`
	DailyTokenLimit int64   `json:"daily_token_limit"`
	MonthlyBudget   float64 `json:"monthly_budget"`
	PriorityLevel   int     `json:"priority_level"`
	WarningPercent  int     `json:"warning_percent"`
	AlertPercent    int     `json:"alert_percent"`
	Config          Config  `json:"config"`
}
