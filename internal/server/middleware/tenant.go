package middleware

import (
	"net/http"

	"github.com/google/uuid"
)

// RequireTenant admits authenticated callers bound to a tenant. Handlers
// behind it may scope every query by the caller's TenantID.
func RequireTenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())
			switch {
			case !caller.Authenticated():
				writeProblem(w, http.StatusUnauthorized, "authentication required")
			case caller.TenantID == uuid.Nil:
				writeProblem(w, http.StatusForbidden, "valid tenant required")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
