package quota

import (
	"fmt"
	"time"
)

// SubjectKind distinguishes the two things usage is tracked against.
type SubjectKind string

const (
	SubjectGroup   SubjectKind = "group"
	SubjectAccount SubjectKind = "account"
)

// Subject identifies one tracked scope: a carpool group or an upstream AI
// account.
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   int64       `json:"id"`
}

// GroupSubject returns the subject for a group.
func GroupSubject(groupID int64) Subject {
	return Subject{Kind: SubjectGroup, ID: groupID}
}

// AccountSubject returns the subject for an account.
func AccountSubject(accountID int64) Subject {
	return Subject{Kind: SubjectAccount, ID: accountID}
}

// Key returns a stable string form used in storage and logs.
func (s Subject) Key() string {
	return fmt.Sprintf("%s:%d", s.Kind, s.ID)
}

// Limits are the configured ceilings for one subject. Zero means unlimited.
type Limits struct {
	DailyTokens   int64   `json:"daily_tokens"`
	MonthlyBudget float64 `json:"monthly_budget"`
}

// Thresholds are the warning/alert percentages from a group's binding
// configuration.
type Thresholds struct {
	WarningPercent int `json:"warning_percent"`
	AlertPercent   int `json:"alert_percent"`
}

// Usage is the accumulated consumption within one period.
type Usage struct {
	Tokens int64   `json:"tokens"`
	Cost   float64 `json:"cost"`
}

// Remaining is the headroom left in the current periods. Values never go
// negative; overconsumption floors at zero.
type Remaining struct {
	DailyTokens   int64   `json:"daily_tokens"`
	MonthlyBudget float64 `json:"monthly_budget"`
}

// Exhausted reports whether either period has no headroom left. Unlimited
// dimensions (zero limit) never exhaust.
func (r Remaining) Exhausted(limits Limits) bool {
	if limits.DailyTokens > 0 && r.DailyTokens == 0 {
		return true
	}
	if limits.MonthlyBudget > 0 && r.MonthlyBudget == 0 {
		return true
	}
	return false
}

// ThresholdState classifies usage against the configured thresholds.
type ThresholdState string

const (
	StateOK      ThresholdState = "ok"
	StateWarning ThresholdState = "warning"
	StateAlert   ThresholdState = "alert"
)

// DayKey returns the daily period key for t (UTC).
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// MonthKey returns the monthly period key for t (UTC).
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
