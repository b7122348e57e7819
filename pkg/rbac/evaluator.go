package rbac

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aicarpool/carpool/pkg/audit"
	"github.com/aicarpool/carpool/pkg/observability"
)

// DefaultCacheTTL is the default lifetime of a cached assignment resolution.
const DefaultCacheTTL = 5 * time.Minute

// Evaluator combines the role catalog and scope resolver into permission
// decisions, and owns the read-through cache over resolved assignments.
//
// Read operations never fail open: any resolution error, including storage
// outages and malformed input, produces a deny. Mutating operations return
// typed errors (ForbiddenError, StorageUnavailableError, InvalidArgumentError)
// so callers can distinguish "not allowed" from "system problem".
type Evaluator struct {
	catalog  *Catalog
	resolver *ScopeResolver
	store    AssignmentStore
	cache    *assignmentCache
	flight   singleflight.Group
	logger   *observability.Logger
	audit    audit.Recorder
	metrics  *observability.Metrics
}

// EvaluatorConfig configures an Evaluator. Zero values select defaults.
type EvaluatorConfig struct {
	// CacheTTL bounds how long a resolved assignment set is served without
	// re-querying storage. Defaults to DefaultCacheTTL.
	CacheTTL time.Duration

	// CacheSize is the maximum number of cached (user, scope) resolutions.
	CacheSize int

	// ResolveTimeout bounds each storage round-trip. A timed-out resolution
	// is treated as a storage failure (deny), not retried.
	ResolveTimeout time.Duration

	Logger  *observability.Logger
	Audit   audit.Recorder
	Metrics *observability.Metrics
}

// NewEvaluator creates an evaluator over the given assignment store.
func NewEvaluator(store AssignmentStore, cfg EvaluatorConfig) *Evaluator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Evaluator{
		catalog:  NewCatalog(),
		resolver: NewScopeResolver(store, cfg.ResolveTimeout),
		store:    store,
		cache:    newAssignmentCache(cfg.CacheSize, cfg.CacheTTL),
		logger:   cfg.Logger,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
	}
}

// Catalog exposes the role catalog backing this evaluator.
func (e *Evaluator) Catalog() *Catalog { return e.catalog }

// HasPermission reports whether the user holds the permission at the scope.
// A cache hit performs no I/O. Errors of any kind yield false.
func (e *Evaluator) HasPermission(ctx context.Context, userID int64, scope Scope, perm Permission) bool {
	allowed := e.hasPermission(ctx, userID, scope, perm)
	if e.metrics != nil {
		result := "deny"
		if allowed {
			result = "allow"
		}
		e.metrics.PermissionChecksTotal.WithLabelValues(result).Inc()
	}
	return allowed
}

func (e *Evaluator) hasPermission(ctx context.Context, userID int64, scope Scope, perm Permission) bool {
	if userID == 0 {
		return false
	}
	if !e.catalog.IsValidPermission(perm) && perm != PermSystemAdmin {
		return false
	}

	assignments, err := e.assignments(ctx, userID, scope)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Warn("permission check failed closed")
		return false
	}

	for _, a := range assignments {
		set := e.catalog.PermissionsOf(a.Role)
		// A global system admin holds every permission.
		if a.ScopeLevel == LevelGlobal && set.Has(PermSystemAdmin) {
			return true
		}
		if set.Has(perm) {
			return true
		}
	}
	return false
}

// UserPermissions returns the de-duplicated union of permissions across all
// assignments applicable at the scope. Failures yield an empty set.
func (e *Evaluator) UserPermissions(ctx context.Context, userID int64, scope Scope) PermissionSet {
	set := make(PermissionSet)
	if userID == 0 {
		return set
	}
	assignments, err := e.assignments(ctx, userID, scope)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Warn("permission listing failed closed")
		return set
	}
	for _, a := range assignments {
		perms := e.catalog.PermissionsOf(a.Role)
		if a.ScopeLevel == LevelGlobal && perms.Has(PermSystemAdmin) {
			// Copy so callers cannot mutate the catalog's master set.
			full := make(PermissionSet, len(e.catalog.perms))
			full.Merge(e.catalog.perms)
			return full
		}
		set.Merge(perms)
	}
	return set
}

// UserRoles returns the distinct role names behind the applicable
// assignments, not the expanded permissions.
func (e *Evaluator) UserRoles(ctx context.Context, userID int64, scope Scope) []RoleName {
	if userID == 0 {
		return nil
	}
	assignments, err := e.assignments(ctx, userID, scope)
	if err != nil {
		e.logger.WithError(err).WithField("user_id", userID).Warn("role listing failed closed")
		return nil
	}
	seen := make(map[RoleName]struct{}, len(assignments))
	roles := make([]RoleName, 0, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.Role]; ok {
			continue
		}
		seen[a.Role] = struct{}{}
		roles = append(roles, a.Role)
	}
	return roles
}

// AssignRole grants a role to targetUserID at the given scope. The actor must
// hold the management permission for that scope; self-service escalation is
// rejected like any other unauthorized grant. On success the target user's
// cache entries are invalidated synchronously, so the new role is visible to
// the next check.
func (e *Evaluator) AssignRole(ctx context.Context, actorID, targetUserID int64, role RoleName, scope Scope) (*RoleAssignment, error) {
	if !e.catalog.IsValidRole(role) {
		return nil, &InvalidArgumentError{Field: "role", Reason: "unknown role " + string(role)}
	}
	if targetUserID == 0 {
		return nil, &InvalidArgumentError{Field: "targetUserID", Reason: "must be non-zero"}
	}
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	need := ManagementPermission(scope.Level())
	if !e.HasPermission(ctx, actorID, scope, need) {
		e.record(ctx, audit.Event{
			Type:    audit.EventAccessDenied,
			ActorID: actorID,
			Details: map[string]any{"permission": string(need), "scope": scope.String()},
		})
		return nil, &ForbiddenError{UserID: actorID, Permission: need, Scope: scope}
	}

	assignment := &RoleAssignment{
		UserID:     targetUserID,
		Role:       role,
		ScopeLevel: scope.Level(),
		ResourceID: scope.ResourceID(),
		IsActive:   true,
		GrantedBy:  &actorID,
	}
	if err := e.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, &StorageUnavailableError{Op: "assign role", Err: err}
	}

	e.cache.invalidateUser(targetUserID)
	if e.metrics != nil {
		e.metrics.RoleMutationsTotal.WithLabelValues("assign").Inc()
	}
	e.record(ctx, audit.Event{
		Type:         audit.EventRoleGranted,
		ActorID:      actorID,
		TargetUserID: targetUserID,
		Details:      map[string]any{"role": string(role), "scope": scope.String()},
	})
	return assignment, nil
}

// RemoveRole deactivates an assignment. The assignment survives as an
// inactive row for audit history. Authorization mirrors AssignRole.
func (e *Evaluator) RemoveRole(ctx context.Context, actorID, assignmentID int64) error {
	assignment, err := e.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return &StorageUnavailableError{Op: "load assignment", Err: err}
	}

	scope, err := e.scopeOfAssignment(ctx, assignment)
	if err != nil {
		return err
	}
	need := ManagementPermission(assignment.ScopeLevel)
	if !e.HasPermission(ctx, actorID, scope, need) {
		e.record(ctx, audit.Event{
			Type:    audit.EventAccessDenied,
			ActorID: actorID,
			Details: map[string]any{"permission": string(need), "scope": scope.String()},
		})
		return &ForbiddenError{UserID: actorID, Permission: need, Scope: scope}
	}

	if err := e.store.DeactivateAssignment(ctx, assignmentID); err != nil {
		return &StorageUnavailableError{Op: "remove role", Err: err}
	}
	e.cache.invalidateUser(assignment.UserID)
	if e.metrics != nil {
		e.metrics.RoleMutationsTotal.WithLabelValues("revoke").Inc()
	}
	e.record(ctx, audit.Event{
		Type:         audit.EventRoleRevoked,
		ActorID:      actorID,
		TargetUserID: assignment.UserID,
		Details:      map[string]any{"role": string(assignment.Role), "scope": scope.String()},
	})
	return nil
}

// ClearCache drops every cached resolution.
func (e *Evaluator) ClearCache() {
	e.cache.purge()
}

// ClearUserCache drops every cached resolution for one user.
func (e *Evaluator) ClearUserCache(userID int64) {
	e.cache.invalidateUser(userID)
}

// CacheStats returns cumulative cache hit and miss counts.
func (e *Evaluator) CacheStats() (hits, misses int64) {
	return e.cache.stats()
}

// ManagementPermission returns the permission that authorizes role and
// binding mutations at a scope level.
func ManagementPermission(level ScopeLevel) Permission {
	switch level {
	case LevelGlobal:
		return PermSystemAdmin
	case LevelEnterprise:
		return PermEnterpriseManage
	case LevelDepartment:
		return PermDepartmentManage
	default:
		return PermGroupManage
	}
}

// assignments is the cached resolution path. Concurrent misses for the same
// key are coalesced into a single storage round-trip.
func (e *Evaluator) assignments(ctx context.Context, userID int64, scope Scope) ([]RoleAssignment, error) {
	key := cacheKey(userID, scope)
	if cached, ok := e.cache.get(key); ok {
		if e.metrics != nil {
			e.metrics.PermissionCacheHits.Inc()
		}
		return cached, nil
	}
	if e.metrics != nil {
		e.metrics.PermissionCacheMisses.Inc()
	}

	result, err, _ := e.flight.Do(key, func() (interface{}, error) {
		// Another caller may have populated the cache while this one waited
		// on the flight group.
		if cached, ok := e.cache.get(key); ok {
			return cached, nil
		}
		resolved, err := e.resolver.ResolveAssignments(ctx, userID, scope)
		if err != nil {
			return nil, err
		}
		e.cache.put(userID, key, resolved)
		return resolved, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]RoleAssignment), nil
}

// scopeOfAssignment rebuilds a checkable scope from a stored assignment,
// looking up the group's owning enterprise when needed so enterprise-level
// actors can manage group assignments.
func (e *Evaluator) scopeOfAssignment(ctx context.Context, a *RoleAssignment) (Scope, error) {
	switch a.ScopeLevel {
	case LevelGlobal:
		return GlobalScope(), nil
	case LevelEnterprise:
		if a.ResourceID == nil {
			return Scope{}, &InvalidArgumentError{Field: "assignment", Reason: "enterprise assignment without resource id"}
		}
		return EnterpriseScope(*a.ResourceID), nil
	case LevelDepartment:
		if a.ResourceID == nil {
			return Scope{}, &InvalidArgumentError{Field: "assignment", Reason: "department assignment without resource id"}
		}
		entID, err := e.store.DepartmentEnterprise(ctx, *a.ResourceID)
		if err != nil {
			return Scope{}, &StorageUnavailableError{Op: "resolve department enterprise", Err: err}
		}
		return DepartmentScope(*a.ResourceID, entID), nil
	case LevelGroup:
		if a.ResourceID == nil {
			return Scope{}, &InvalidArgumentError{Field: "assignment", Reason: "group assignment without resource id"}
		}
		entID, err := e.store.GroupEnterprise(ctx, *a.ResourceID)
		if err != nil {
			return Scope{}, &StorageUnavailableError{Op: "resolve group enterprise", Err: err}
		}
		return GroupScope(*a.ResourceID, entID), nil
	default:
		return Scope{}, &InvalidArgumentError{Field: "assignment", Reason: "unknown scope level"}
	}
}

func (e *Evaluator) record(ctx context.Context, event audit.Event) {
	if e.audit != nil {
		e.audit.Record(ctx, event)
	}
}
