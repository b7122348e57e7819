// Package httputil provides JSON response helpers, request parsing, and the
// outer HTTP middleware used by the API server.
//
// Handlers parse input with the OrError variants, which write the 400
// themselves:
//
//	groupID, ok := httputil.ParsePathInt64OrError(w, r, "groupID")
//	if !ok {
//		return
//	}
//
// Responses use the status-specific writers:
//
//	httputil.WriteSuccess(w, binding)
//	httputil.WriteForbidden(w, "permission denied")
//
// The middleware composes with Chain, first listed outermost:
//
//	httputil.Chain(
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//	)
package httputil
