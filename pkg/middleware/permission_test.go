package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/aicarpool/carpool/pkg/rbac"
)

// staticAssignments implements rbac.AssignmentStore over a fixed slice.
type staticAssignments struct {
	assignments []rbac.RoleAssignment
}

func (s *staticAssignments) ActiveAssignments(ctx context.Context, userID int64) ([]rbac.RoleAssignment, error) {
	var out []rbac.RoleAssignment
	for _, a := range s.assignments {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *staticAssignments) GetAssignment(ctx context.Context, id int64) (*rbac.RoleAssignment, error) {
	return nil, nil
}
func (s *staticAssignments) CreateAssignment(ctx context.Context, a *rbac.RoleAssignment) error {
	return nil
}
func (s *staticAssignments) DeactivateAssignment(ctx context.Context, id int64) error { return nil }
func (s *staticAssignments) GroupDepartment(ctx context.Context, groupID int64) (int64, error) {
	return 0, nil
}
func (s *staticAssignments) GroupEnterprise(ctx context.Context, groupID int64) (int64, error) {
	return 1, nil
}
func (s *staticAssignments) DepartmentEnterprise(ctx context.Context, departmentID int64) (int64, error) {
	return 1, nil
}

func ownerEvaluator(userID, groupID int64) *rbac.Evaluator {
	resource := groupID
	return rbac.NewEvaluator(&staticAssignments{assignments: []rbac.RoleAssignment{{
		UserID: userID, Role: rbac.RoleGroupOwner, ScopeLevel: rbac.LevelGroup,
		ResourceID: &resource, IsActive: true,
	}}}, rbac.EvaluatorConfig{})
}

func TestRequirePermission(t *testing.T) {
	evaluator := ownerEvaluator(10, 7)
	lookup := func(ctx context.Context, groupID int64) (int64, error) { return 1, nil }

	router := mux.NewRouter()
	router.Handle("/groups/{groupID}/binding",
		RequirePermission(evaluator, rbac.PermGroupManage, GroupScopeFromRoute("groupID", lookup))(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}),
		),
	)
	handler := NewIdentityMiddleware(true).Handler(router)

	tests := []struct {
		name       string
		user       string
		target     string
		wantStatus int
	}{
		{name: "owner allowed on own group", user: "10", target: "/groups/7/binding", wantStatus: http.StatusOK},
		{name: "owner denied on other group", user: "10", target: "/groups/8/binding", wantStatus: http.StatusForbidden},
		{name: "unknown user denied", user: "99", target: "/groups/7/binding", wantStatus: http.StatusForbidden},
		{name: "anonymous denied", user: "", target: "/groups/7/binding", wantStatus: http.StatusForbidden},
		{name: "malformed group id denied", user: "10", target: "/groups/abc/binding", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.user != "" {
				req.Header.Set(HeaderUserID, tt.user)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequirePermissionScopeLookupFailure(t *testing.T) {
	evaluator := ownerEvaluator(10, 7)
	lookup := func(ctx context.Context, groupID int64) (int64, error) {
		return 0, &rbac.StorageUnavailableError{Op: "resolve group enterprise"}
	}

	router := mux.NewRouter()
	router.Handle("/groups/{groupID}/binding",
		RequirePermission(evaluator, rbac.PermGroupManage, GroupScopeFromRoute("groupID", lookup))(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}),
		),
	)
	handler := NewIdentityMiddleware(false).Handler(router)

	req := httptest.NewRequest(http.MethodGet, "/groups/7/binding", nil)
	req.Header.Set(HeaderUserID, "10")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// An unresolvable scope denies rather than failing open.
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestGlobalScopeFunc(t *testing.T) {
	scope, err := GlobalScopeFunc(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("GlobalScopeFunc() error = %v", err)
	}
	if scope.Level() != rbac.LevelGlobal {
		t.Errorf("scope level = %q, want global", scope.Level())
	}
}

func TestEnterpriseScopeFromRoute(t *testing.T) {
	var got rbac.Scope
	router := mux.NewRouter()
	router.HandleFunc("/enterprises/{enterpriseID}", func(w http.ResponseWriter, r *http.Request) {
		scope, err := EnterpriseScopeFromRoute("enterpriseID")(r)
		if err != nil {
			t.Fatalf("scope error = %v", err)
		}
		got = scope
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/enterprises/3", nil))

	if got.Level() != rbac.LevelEnterprise || got.EnterpriseID() != 3 {
		t.Errorf("scope = %v, want enterprise/3", got)
	}
}
