package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/aicarpool/carpool/pkg/rbac"
)

// ScopeFunc derives the scope a request acts within, typically from route
// variables.
type ScopeFunc func(r *http.Request) (rbac.Scope, error)

// GroupEnterpriseFunc resolves the enterprise owning a group. The binding
// store and the assignment store both provide one.
type GroupEnterpriseFunc func(ctx context.Context, groupID int64) (int64, error)

// RequirePermission creates middleware that checks the caller holds perm at
// the scope derived from the request. Scope derivation failures and missing
// identities both deny; checks never fail open.
func RequirePermission(evaluator *rbac.Evaluator, perm rbac.Permission, scopeOf ScopeFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident := GetIdentity(r)
			if ident == nil {
				forbiddenResponse(w, "authentication required")
				return
			}

			scope, err := scopeOf(r)
			if err != nil {
				forbiddenResponse(w, "unresolvable scope")
				return
			}

			if !evaluator.HasPermission(r.Context(), ident.UserID, scope, perm) {
				forbiddenResponse(w, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GlobalScopeFunc always yields the global scope.
func GlobalScopeFunc(*http.Request) (rbac.Scope, error) {
	return rbac.GlobalScope(), nil
}

// EnterpriseScopeFromRoute derives an enterprise scope from a route variable.
func EnterpriseScopeFromRoute(param string) ScopeFunc {
	return func(r *http.Request) (rbac.Scope, error) {
		id, err := routeInt64(r, param)
		if err != nil {
			return rbac.Scope{}, err
		}
		return rbac.EnterpriseScope(id), nil
	}
}

// GroupScopeFromRoute derives a group scope from a route variable, resolving
// the owning enterprise through lookup.
func GroupScopeFromRoute(param string, lookup GroupEnterpriseFunc) ScopeFunc {
	return func(r *http.Request) (rbac.Scope, error) {
		groupID, err := routeInt64(r, param)
		if err != nil {
			return rbac.Scope{}, err
		}
		enterpriseID, err := lookup(r.Context(), groupID)
		if err != nil {
			return rbac.Scope{}, err
		}
		return rbac.GroupScope(groupID, enterpriseID), nil
	}
}

func routeInt64(r *http.Request, param string) (int64, error) {
	raw := mux.Vars(r)[param]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &rbac.InvalidArgumentError{Field: param, Reason: "not a valid id: " + raw}
	}
	return id, nil
}
