package rbac

import (
	"context"
	"time"
)

// AssignmentStore is the storage port for role assignments. The relational
// schema behind it is owned by the wider platform; this package only depends
// on the operations below.
type AssignmentStore interface {
	// ActiveAssignments returns every active assignment for the user across
	// all scopes.
	ActiveAssignments(ctx context.Context, userID int64) ([]RoleAssignment, error)

	// GetAssignment returns one assignment by id, active or not.
	GetAssignment(ctx context.Context, id int64) (*RoleAssignment, error)

	// CreateAssignment writes a new active assignment, deactivating any
	// conflicting active assignment for the same (user, scope, resource)
	// tuple in the same transaction.
	CreateAssignment(ctx context.Context, a *RoleAssignment) error

	// DeactivateAssignment marks an assignment inactive. Deactivating an
	// already-inactive assignment is a no-op.
	DeactivateAssignment(ctx context.Context, id int64) error

	// GroupDepartment returns the owning department of a group, or 0 when
	// the group is not attached to a department.
	GroupDepartment(ctx context.Context, groupID int64) (int64, error)

	// GroupEnterprise returns the owning enterprise of a group.
	GroupEnterprise(ctx context.Context, groupID int64) (int64, error)

	// DepartmentEnterprise returns the owning enterprise of a department.
	DepartmentEnterprise(ctx context.Context, departmentID int64) (int64, error)
}

// ScopeResolver determines which of a user's role assignments apply to a
// requested scope. It is read-only and queries the store exactly once per
// call; caching happens upstream in the Evaluator.
type ScopeResolver struct {
	store   AssignmentStore
	timeout time.Duration
}

// NewScopeResolver creates a resolver over the given store. A timeout of 0
// disables the per-call deadline.
func NewScopeResolver(store AssignmentStore, timeout time.Duration) *ScopeResolver {
	return &ScopeResolver{store: store, timeout: timeout}
}

// ResolveAssignments returns all active assignments applicable at or above
// the requested scope:
//
//   - global assignments always apply
//   - enterprise assignments apply when the scope's enterprise matches
//   - department assignments apply when the scope's department (or the
//     group's owning department) matches
//   - group assignments apply when the scope's group matches
//
// Storage failures, including timeouts, surface as StorageUnavailableError;
// callers must treat that as deny.
func (r *ScopeResolver) ResolveAssignments(ctx context.Context, userID int64, scope Scope) ([]RoleAssignment, error) {
	if userID == 0 {
		return nil, &InvalidArgumentError{Field: "userID", Reason: "must be non-zero"}
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	all, err := r.store.ActiveAssignments(ctx, userID)
	if err != nil {
		return nil, &StorageUnavailableError{Op: "resolve assignments", Err: err}
	}

	// A group-scoped check may match department-level assignments through the
	// group's owning department. Look it up at most once and only when a
	// department assignment is actually present.
	groupDept := scope.DepartmentID()
	groupDeptResolved := groupDept != 0

	applicable := make([]RoleAssignment, 0, len(all))
	for _, a := range all {
		switch a.ScopeLevel {
		case LevelGlobal:
			applicable = append(applicable, a)
		case LevelEnterprise:
			if scope.EnterpriseID() != 0 && a.ResourceID != nil && *a.ResourceID == scope.EnterpriseID() {
				applicable = append(applicable, a)
			}
		case LevelDepartment:
			if a.ResourceID == nil {
				continue
			}
			switch scope.Level() {
			case LevelDepartment:
				if *a.ResourceID == scope.DepartmentID() {
					applicable = append(applicable, a)
				}
			case LevelGroup:
				if !groupDeptResolved {
					groupDept, err = r.store.GroupDepartment(ctx, scope.GroupID())
					if err != nil {
						return nil, &StorageUnavailableError{Op: "resolve group department", Err: err}
					}
					groupDeptResolved = true
				}
				if groupDept != 0 && *a.ResourceID == groupDept {
					applicable = append(applicable, a)
				}
			}
		case LevelGroup:
			if scope.Level() == LevelGroup && a.ResourceID != nil && *a.ResourceID == scope.GroupID() {
				applicable = append(applicable, a)
			}
		}
	}

	return applicable, nil
}
