package middleware

import (
	"net/http"

	"github.com/rs/zerolog/log"
)

// Roles carried in the "role" claim of access tokens. Only admins manage
// credentials and read the audit trail; members call RPC functions.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// RequireRole admits authenticated callers holding one of roles. It must be
// chained after Identify. Anonymous callers get 401, other roles 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := CallerFromContext(r.Context())
			if !caller.Authenticated() {
				writeProblem(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if _, ok := allowed[caller.Role]; !ok {
				log.Debug().
					Str("actor_id", caller.ActorID).
					Str("tenant_id", caller.TenantID.String()).
					Str("role", caller.Role).
					Str("path", r.URL.Path).
					Msg("middleware: role not permitted")
				writeProblem(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin is RequireRole(RoleAdmin).
func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(RoleAdmin)
}
