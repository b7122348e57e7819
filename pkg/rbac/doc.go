// Package rbac provides hierarchical role-based access control for the
// carpool platform.
//
// # Overview
//
// Access is decided across four tenancy levels: global, enterprise,
// department and group. A permission check at group scope is satisfied by a
// group-level role, by a role on the group's owning department, by a role on
// the owning enterprise, or by a global role. The permission and role sets
// are closed catalogs defined in catalog.go; roles are not user-editable.
//
// # Components
//
//   - Catalog: the static role -> permission table (pure, no storage)
//   - ScopeResolver: maps a (user, scope) pair to the applicable active
//     role assignments via the AssignmentStore port
//   - Evaluator: the public decision surface, with a read-through TTL cache
//     of resolved assignment sets and single-flight coalescing of
//     concurrent identical misses
//
// # Scopes
//
// Scope is a tagged value built through constructors:
//
//	rbac.GlobalScope()
//	rbac.EnterpriseScope(enterpriseID)
//	rbac.DepartmentScope(departmentID, enterpriseID)
//	rbac.GroupScope(groupID, enterpriseID)
//
// A group scope always carries its owning enterprise, so the enterprise
// fallback never needs a runtime lookup on the hot path.
//
// # Checking permissions
//
//	eval := rbac.NewEvaluator(store, rbac.EvaluatorConfig{})
//	if eval.HasPermission(ctx, userID, rbac.GroupScope(gid, eid), rbac.PermAIUse) {
//		// allowed
//	}
//
// HasPermission never returns an error: storage outages, timeouts and
// malformed input all produce a deny. A user holding system.admin at global
// scope is allowed every permission.
//
// # Mutations and consistency
//
// AssignRole and RemoveRole authorize the actor against the management
// permission of the target scope, write through the store, and invalidate
// the target user's cache entries synchronously. A check issued after a
// successful mutation therefore observes the new state immediately; stale
// reads are only possible within the unexpired TTL window before any write.
//
// # Related Packages
//
//   - pkg/binding: resource binding decisions, authorized through this package
//   - pkg/audit: records role grants, revocations and denied mutations
package rbac
