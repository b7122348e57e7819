package rbac

import (
	"strings"
	"time"
)

// Permission is an opaque "resource.action" identifier (e.g. "group.manage").
// The full set of valid permissions is the closed catalog in catalog.go.
type Permission string

const (
	PermSystemAdmin Permission = "system.admin"

	PermEnterpriseView   Permission = "enterprise.view"
	PermEnterpriseManage Permission = "enterprise.manage"
	PermEnterpriseInvite Permission = "enterprise.invite"

	PermDepartmentView   Permission = "department.view"
	PermDepartmentManage Permission = "department.manage"

	PermGroupView   Permission = "group.view"
	PermGroupCreate Permission = "group.create"
	PermGroupManage Permission = "group.manage"
	PermGroupInvite Permission = "group.invite"

	PermAIUse    Permission = "ai.use"
	PermAIManage Permission = "ai.manage"

	PermQuotaView   Permission = "quota.view"
	PermQuotaManage Permission = "quota.manage"
)

// Resource returns the resource part of the permission identifier.
func (p Permission) Resource() string {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return string(p)[:i]
	}
	return string(p)
}

// Action returns the action part of the permission identifier.
func (p Permission) Action() string {
	if i := strings.IndexByte(string(p), '.'); i >= 0 {
		return string(p)[i+1:]
	}
	return ""
}

// PermissionSet is a de-duplicated set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the given permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Merge adds every permission from other into the set.
func (s PermissionSet) Merge(other PermissionSet) {
	for p := range other {
		s[p] = struct{}{}
	}
}

// List returns the permissions in unspecified order.
func (s PermissionSet) List() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// RoleName identifies a built-in role.
type RoleName string

// Built-in role names
const (
	RoleSystemAdmin       RoleName = "system:admin"
	RoleEnterpriseOwner   RoleName = "enterprise:owner"
	RoleEnterpriseAdmin   RoleName = "enterprise:admin"
	RoleEnterpriseViewer  RoleName = "enterprise:viewer"
	RoleDepartmentManager RoleName = "department:manager"
	RoleGroupOwner        RoleName = "group:owner"
	RoleGroupAdmin        RoleName = "group:admin"
	RoleGroupMember       RoleName = "group:member"
)

// Role is a named, statically defined collection of permissions.
type Role struct {
	Name        RoleName     `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

// RoleAssignment binds a role to a user at a specific scope.
//
// Within one (UserID, ScopeLevel, ResourceID) tuple at most one assignment is
// active at a time. Assignments are deactivated rather than deleted so the
// grant history survives for auditing.
type RoleAssignment struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	Role       RoleName   `json:"role"`
	ScopeLevel ScopeLevel `json:"scope_level"`
	ResourceID *int64     `json:"resource_id,omitempty"` // nil only for global scope
	IsActive   bool       `json:"is_active"`
	GrantedBy  *int64     `json:"granted_by,omitempty"`
	GrantedAt  time.Time  `json:"granted_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}
