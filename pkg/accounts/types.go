package accounts

import (
	"time"
)

// Platform identifies an upstream AI provider.
type Platform string

const (
	PlatformClaude Platform = "claude"
	PlatformGemini Platform = "gemini"
	PlatformOpenAI Platform = "openai"
)

// AllPlatforms lists every supported platform.
func AllPlatforms() []Platform {
	return []Platform{PlatformClaude, PlatformGemini, PlatformOpenAI}
}

// Status represents the operational state of an upstream account.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
	StatusError    Status = "error"
)

// Account is an upstream AI API account as exposed by the account directory.
// The directory is owned by the wider platform; this core only reads and
// ranks accounts, it never mutates them.
type Account struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Platform Platform `json:"platform"`
	Status   Status   `json:"status"`

	// Quota configuration; zero means unlimited.
	DailyTokenQuota int64   `json:"daily_token_quota"`
	MonthlyBudget   float64 `json:"monthly_budget"`

	// Ranking signals maintained by the proxy layer.
	Priority          int   `json:"priority"` // lower is preferred
	ActiveConnections int   `json:"active_connections"`
	AvgResponseTimeMs int64 `json:"avg_response_time_ms"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Usable reports whether the account can serve requests at all. Quota
// exhaustion is checked separately against live counters.
func (a Account) Usable() bool {
	return a.Status == StatusActive
}
