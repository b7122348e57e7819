package api

import (
	"database/sql"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/aicarpool/carpool/pkg/allocator"
	"github.com/aicarpool/carpool/pkg/binding"
	"github.com/aicarpool/carpool/pkg/httputil"
	"github.com/aicarpool/carpool/pkg/middleware"
	"github.com/aicarpool/carpool/pkg/observability"
	"github.com/aicarpool/carpool/pkg/quota"
	"github.com/aicarpool/carpool/pkg/rbac"
)

// Server exposes the access-control and resource-allocation core over HTTP.
type Server struct {
	router    *mux.Router
	evaluator *rbac.Evaluator
	manager   *binding.Manager
	tracker   *quota.Tracker
	allocator *allocator.Allocator
	db        *sql.DB
	redis     *redis.Client
	logger    *observability.Logger
}

// Config wires a Server. Evaluator, Manager and Tracker are required;
// Allocator, Redis and DB enable the readiness probe and status endpoints.
type Config struct {
	Evaluator *rbac.Evaluator
	Manager   *binding.Manager
	Tracker   *quota.Tracker
	Allocator *allocator.Allocator
	DB        *sql.DB
	Redis     *redis.Client
	Logger    *observability.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		router:    mux.NewRouter(),
		evaluator: cfg.Evaluator,
		manager:   cfg.Manager,
		tracker:   cfg.Tracker,
		allocator: cfg.Allocator,
		db:        cfg.DB,
		redis:     cfg.Redis,
		logger:    cfg.Logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the configured router for mounting under middleware.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ready", s.handleReady).Methods("GET")

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Permission evaluation
	v1.HandleFunc("/permissions/check", s.handleCheckPermission).Methods("POST")
	v1.HandleFunc("/users/{userID}/permissions", s.handleUserPermissions).Methods("GET")
	v1.HandleFunc("/users/{userID}/roles", s.handleUserRoles).Methods("GET")

	// Role assignments
	v1.HandleFunc("/roles/assignments", s.handleAssignRole).Methods("POST")
	v1.HandleFunc("/roles/assignments/{assignmentID}", s.handleRemoveRole).Methods("DELETE")

	// Resource bindings
	v1.HandleFunc("/groups/{groupID}/binding", s.handleGetBinding).Methods("GET")
	v1.HandleFunc("/groups/{groupID}/binding", s.handleConfigureBinding).Methods("PUT")
	v1.HandleFunc("/groups/{groupID}/binding/mode", s.handleSetBindingMode).Methods("PUT")
	v1.HandleFunc("/groups/{groupID}/accounts/{accountID}/exclusive", s.handleBindExclusive).Methods("POST")
	v1.HandleFunc("/groups/{groupID}/accounts/{accountID}", s.handleReleaseBinding).Methods("DELETE")
	v1.HandleFunc("/groups/{groupID}/select", s.handleSelectAccount).Methods("POST")

	// Quota tracking
	v1.HandleFunc("/usage", s.handleRecordUsage).Methods("POST")
	v1.HandleFunc("/quota/{kind}/{id}/remaining", s.handleRemaining).Methods("GET")
	v1.HandleFunc("/quota/{kind}/{id}/threshold", s.handleThresholdState).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			httputil.WriteServiceUnavailable(w, "database unavailable")
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			httputil.WriteServiceUnavailable(w, "redis unavailable")
			return
		}
	}
	httputil.WriteSuccess(w, map[string]string{"status": "ready"})
}

// actor returns the authenticated caller's user id, or 0 when the identity
// middleware did not run. Zero fails every permission check downstream.
func actor(r *http.Request) int64 {
	if ident := middleware.GetIdentity(r); ident != nil {
		return ident.UserID
	}
	return 0
}

// writeDomainError maps the typed domain errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case rbac.IsForbidden(err):
		httputil.WriteForbidden(w, err.Error())
	case rbac.IsInvalidArgument(err):
		httputil.WriteBadRequest(w, err.Error())
	case binding.IsNoAvailableAccount(err):
		httputil.WriteServiceUnavailable(w, err.Error())
	case err == binding.ErrBindingNotFound:
		httputil.WriteNotFoundError(w, err.Error())
	case rbac.IsStorageUnavailable(err):
		s.logger.WithError(err).Error("storage failure")
		httputil.WriteServiceUnavailable(w, "storage unavailable")
	default:
		s.logger.WithError(err).Error("unhandled error")
		httputil.WriteInternalError(w, err)
	}
}

// parseScope builds a scope from a request payload.
func parseScope(req scopeRequest) (rbac.Scope, error) {
	switch rbac.ScopeLevel(req.ScopeLevel) {
	case rbac.LevelGlobal:
		return rbac.GlobalScope(), nil
	case rbac.LevelEnterprise:
		return rbac.EnterpriseScope(req.EnterpriseID), nil
	case rbac.LevelDepartment:
		return rbac.DepartmentScope(req.ResourceID, req.EnterpriseID), nil
	case rbac.LevelGroup:
		return rbac.GroupScope(req.ResourceID, req.EnterpriseID), nil
	default:
		return rbac.Scope{}, &rbac.InvalidArgumentError{Field: "scope_level", Reason: "unknown scope level " + req.ScopeLevel}
	}
}
