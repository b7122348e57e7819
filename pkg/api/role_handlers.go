package api

import (
	"net/http"

	"github.com/aicarpool/carpool/pkg/httputil"
	"github.com/aicarpool/carpool/pkg/rbac"
)

// handleCheckPermission evaluates one permission at one scope. The check
// itself never errors; a malformed request is the only failure mode.
func (s *Server) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkPermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	userID := req.UserID
	if userID == 0 {
		userID = actor(r)
	}
	scope, err := parseScope(req.Scope)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	allowed := s.evaluator.HasPermission(r.Context(), userID, scope, rbac.Permission(req.Permission))
	httputil.WriteSuccess(w, checkPermissionResponse{Allowed: allowed})
}

func (s *Server) handleUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}
	scope, ok := scopeFromQuery(w, r)
	if !ok {
		return
	}

	perms := s.evaluator.UserPermissions(r.Context(), userID, scope)
	httputil.WriteSuccess(w, permissionsResponse{
		UserID:      userID,
		Permissions: permissionStrings(perms),
	})
}

func (s *Server) handleUserRoles(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}
	scope, ok := scopeFromQuery(w, r)
	if !ok {
		return
	}

	roles := s.evaluator.UserRoles(r.Context(), userID, scope)
	httputil.WriteSuccess(w, rolesResponse{UserID: userID, Roles: roles})
}

func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	scope, err := parseScope(req.Scope)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	assignment, err := s.evaluator.AssignRole(r.Context(), actor(r), req.TargetUserID, rbac.RoleName(req.Role), scope)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteCreated(w, assignment)
}

func (s *Server) handleRemoveRole(w http.ResponseWriter, r *http.Request) {
	assignmentID, ok := httputil.ParsePathInt64OrError(w, r, "assignmentID")
	if !ok {
		return
	}

	if err := s.evaluator.RemoveRole(r.Context(), actor(r), assignmentID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// scopeFromQuery reads scope parameters from the query string:
// ?scope_level=group&resource_id=7&enterprise_id=2
func scopeFromQuery(w http.ResponseWriter, r *http.Request) (rbac.Scope, bool) {
	resourceID, err := httputil.ParseQueryInt64(r, "resource_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return rbac.Scope{}, false
	}
	enterpriseID, err := httputil.ParseQueryInt64(r, "enterprise_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return rbac.Scope{}, false
	}

	scope, serr := parseScope(scopeRequest{
		ScopeLevel:   httputil.ParseQueryString(r, "scope_level", string(rbac.LevelGlobal)),
		ResourceID:   resourceID,
		EnterpriseID: enterpriseID,
	})
	if serr != nil {
		httputil.WriteBadRequest(w, serr.Error())
		return rbac.Scope{}, false
	}
	return scope, true
}

func permissionStrings(set rbac.PermissionSet) []string {
	perms := set.List()
	out := make([]string, len(perms))
	for i, p := range perms {
		out[i] = string(p)
	}
	return out
}
