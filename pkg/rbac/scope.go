package rbac

import (
	"fmt"
)

// ScopeLevel is the tenancy level at which an assignment or check applies.
type ScopeLevel string

const (
	LevelGlobal     ScopeLevel = "global"
	LevelEnterprise ScopeLevel = "enterprise"
	LevelDepartment ScopeLevel = "department"
	LevelGroup      ScopeLevel = "group"
)

// Scope is a tagged tenancy scope. Constructors enforce that a group or
// department scope always carries its owning enterprise id, so an
// enterprise-level role can satisfy a group-level check without a runtime
// lookup.
//
// The zero Scope is invalid; use one of the constructors.
type Scope struct {
	level        ScopeLevel
	enterpriseID int64
	departmentID int64
	groupID      int64
}

// GlobalScope is the system-wide scope.
func GlobalScope() Scope {
	return Scope{level: LevelGlobal}
}

// EnterpriseScope scopes a check to one enterprise.
func EnterpriseScope(enterpriseID int64) Scope {
	return Scope{level: LevelEnterprise, enterpriseID: enterpriseID}
}

// DepartmentScope scopes a check to one department of an enterprise.
func DepartmentScope(departmentID, enterpriseID int64) Scope {
	return Scope{level: LevelDepartment, departmentID: departmentID, enterpriseID: enterpriseID}
}

// GroupScope scopes a check to one carpool group of an enterprise.
func GroupScope(groupID, enterpriseID int64) Scope {
	return Scope{level: LevelGroup, groupID: groupID, enterpriseID: enterpriseID}
}

// WithDepartment returns a copy of a group scope that also carries the
// group's owning department, enabling department-level roles to apply.
func (s Scope) WithDepartment(departmentID int64) Scope {
	s.departmentID = departmentID
	return s
}

// Level returns the tenancy level of the scope.
func (s Scope) Level() ScopeLevel { return s.level }

// EnterpriseID returns the enterprise id, or 0 for global scope.
func (s Scope) EnterpriseID() int64 { return s.enterpriseID }

// DepartmentID returns the department id, or 0 when not set.
func (s Scope) DepartmentID() int64 { return s.departmentID }

// GroupID returns the group id, or 0 for non-group scopes.
func (s Scope) GroupID() int64 { return s.groupID }

// ResourceID returns the id the scope is anchored to: the group id for group
// scope, the department id for department scope, the enterprise id for
// enterprise scope, and nil for global.
func (s Scope) ResourceID() *int64 {
	switch s.level {
	case LevelEnterprise:
		id := s.enterpriseID
		return &id
	case LevelDepartment:
		id := s.departmentID
		return &id
	case LevelGroup:
		id := s.groupID
		return &id
	default:
		return nil
	}
}

// Validate checks the structural invariants of the scope.
func (s Scope) Validate() error {
	switch s.level {
	case LevelGlobal:
		return nil
	case LevelEnterprise:
		if s.enterpriseID == 0 {
			return &InvalidArgumentError{Field: "scope", Reason: "enterprise scope requires an enterprise id"}
		}
		return nil
	case LevelDepartment:
		if s.departmentID == 0 || s.enterpriseID == 0 {
			return &InvalidArgumentError{Field: "scope", Reason: "department scope requires department and enterprise ids"}
		}
		return nil
	case LevelGroup:
		if s.groupID == 0 || s.enterpriseID == 0 {
			return &InvalidArgumentError{Field: "scope", Reason: "group scope requires group and enterprise ids"}
		}
		return nil
	default:
		return &InvalidArgumentError{Field: "scope", Reason: fmt.Sprintf("unknown scope level %q", s.level)}
	}
}

// Key returns a stable normalized representation used as a cache key
// component. Scopes that differ only in field order or construction path
// produce the same key.
func (s Scope) Key() string {
	return fmt.Sprintf("%s:e%d:d%d:g%d", s.level, s.enterpriseID, s.departmentID, s.groupID)
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	switch s.level {
	case LevelGlobal:
		return "global"
	case LevelEnterprise:
		return fmt.Sprintf("enterprise/%d", s.enterpriseID)
	case LevelDepartment:
		return fmt.Sprintf("department/%d", s.departmentID)
	case LevelGroup:
		return fmt.Sprintf("group/%d", s.groupID)
	default:
		return string(s.level)
	}
}
