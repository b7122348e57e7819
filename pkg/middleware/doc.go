// Package middleware provides HTTP middleware for identity, authorization, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware: caller identity
// extraction from gateway headers, permission enforcement through the
// rbac.Evaluator, and Redis-backed distributed rate limiting.
//
// # Middleware Components
//
// IdentityMiddleware: trusted-gateway identity extraction
//
//	router.Use(middleware.NewIdentityMiddleware(false).Handler)
//	// Reads X-Carpool-User-Id / X-Carpool-Group-Id, adds Identity to request
//
// RequirePermission: scope-aware permission enforcement
//
//	router.Use(middleware.RequirePermission(evaluator, rbac.PermGroupManage,
//		middleware.GroupScopeFromRoute("groupID", store.GroupEnterprise)))
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting
//
//	rl := middleware.NewDistributedRateLimitMiddleware(redisClient, nil)
//	router.Use(rl.Handler)
//
// # Rate Limiting
//
// Group-scoped requests share a per-group window; requests without a group
// fall back to per-user, and unidentified requests to per-IP with a stricter
// window.
//
// # Related Packages
//
//   - pkg/rbac: Permission checking
//   - pkg/contextkeys: Context key definitions
package middleware
