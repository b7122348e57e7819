package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aicarpool/carpool/pkg/contextkeys"
)

// Identity is the authenticated caller as asserted by the API gateway.
// Authentication itself happens upstream; this core trusts the gateway's
// headers and only decides what the caller may do.
type Identity struct {
	UserID int64

	// GroupID is the carpool group the request acts within, zero when the
	// request is not group-scoped.
	GroupID int64
}

// Header names set by the gateway.
const (
	HeaderUserID  = "X-Carpool-User-Id"
	HeaderGroupID = "X-Carpool-Group-Id"
)

// IdentityMiddleware extracts the caller identity from gateway headers
type IdentityMiddleware struct {
	optional bool // If true, allow requests without an identity
}

// NewIdentityMiddleware creates a new identity middleware
func NewIdentityMiddleware(optional bool) *IdentityMiddleware {
	return &IdentityMiddleware{optional: optional}
}

// Handler wraps an HTTP handler with identity extraction
func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userHeader := r.Header.Get(HeaderUserID)
		if userHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			unauthorizedResponse(w, "missing identity header")
			return
		}

		userID, err := strconv.ParseInt(userHeader, 10, 64)
		if err != nil || userID <= 0 {
			unauthorizedResponse(w, "invalid identity header")
			return
		}

		ident := &Identity{UserID: userID}
		if groupHeader := r.Header.Get(HeaderGroupID); groupHeader != "" {
			groupID, err := strconv.ParseInt(groupHeader, 10, 64)
			if err != nil || groupID <= 0 {
				unauthorizedResponse(w, "invalid group header")
				return
			}
			ident.GroupID = groupID
		}

		ctx := contextkeys.WithIdentity(r.Context(), ident)
		ctx = contextkeys.WithUserID(ctx, userHeader)
		if contextkeys.GetRequestID(ctx) == "" {
			ctx = contextkeys.WithRequestID(ctx, uuid.NewString())
		}
		ctx = contextkeys.WithRequestStartTime(ctx, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetIdentity extracts the caller identity from a request
func GetIdentity(r *http.Request) *Identity {
	v := r.Context().Value(contextkeys.IdentityKey)
	if v == nil {
		return nil
	}
	ident, ok := v.(*Identity)
	if !ok {
		return nil
	}
	return ident
}

func unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

func forbiddenResponse(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
