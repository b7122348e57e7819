package api

import (
	"github.com/aicarpool/carpool/pkg/binding"
	"github.com/aicarpool/carpool/pkg/quota"
	"github.com/aicarpool/carpool/pkg/rbac"
)

// scopeRequest is the wire form of a scope. ResourceID carries the
// department or group id; EnterpriseID names the owning enterprise for
// sub-enterprise levels.
type scopeRequest struct {
	ScopeLevel   string `json:"scope_level"`
	ResourceID   int64  `json:"resource_id,omitempty"`
	EnterpriseID int64  `json:"enterprise_id,omitempty"`
}

type checkPermissionRequest struct {
	UserID     int64  `json:"user_id,omitempty"` // defaults to the caller
	Permission string `json:"permission"`
	Scope      scopeRequest `json:"scope"`
}

type checkPermissionResponse struct {
	Allowed bool `json:"allowed"`
}

type assignRoleRequest struct {
	TargetUserID int64        `json:"target_user_id"`
	Role         string       `json:"role"`
	Scope        scopeRequest `json:"scope"`
}

type configureBindingRequest struct {
	Mode            string  `json:"mode"`
	DailyTokenLimit int64   `json:"daily_token_limit"`
	MonthlyBudget   float64 `json:"monthly_budget"`
	PriorityLevel   int     `json:"priority_level"`
	WarningPercent  int     `json:"warning_percent"`
	AlertPercent    int     `json:"alert_percent"`
	Strategy        string  `json:"strategy,omitempty"`
	MaxCandidates   int     `json:"max_candidates,omitempty"`
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

type selectAccountRequest struct {
	Platform string `json:"platform"`
}

type recordUsageRequest struct {
	SubjectKind string  `json:"subject_kind"`
	SubjectID   int64   `json:"subject_id"`
	Tokens      int64   `json:"tokens"`
	Cost        float64 `json:"cost"`
}

type permissionsResponse struct {
	UserID      int64    `json:"user_id"`
	Permissions []string `json:"permissions"`
}

type rolesResponse struct {
	UserID int64           `json:"user_id"`
	Roles  []rbac.RoleName `json:"roles"`
}

type remainingResponse struct {
	Subject   quota.Subject   `json:"subject"`
	Remaining quota.Remaining `json:"remaining"`
}

type thresholdResponse struct {
	Subject quota.Subject        `json:"subject"`
	State   quota.ThresholdState `json:"state"`
}

type bindingResponse struct {
	Binding *binding.ResourceBinding `json:"binding"`
}
