package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/relaygate/internal/auth"
	"github.com/gosuda/relaygate/internal/domain"
)

// Identify resolves the caller of every request. A request without a bearer
// token continues as an anonymous caller keyed by its remote address; a
// request with an invalid token is rejected.
func Identify(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := extractBearer(r)
			if tok == "" {
				ctx := WithCaller(r.Context(), domain.Caller{Source: r.RemoteAddr})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims, err := auth.ValidateToken(jwtSecret, tok)
			if err != nil {
				log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("middleware: rejected bearer token")
				writeProblem(w, http.StatusUnauthorized, "missing or invalid credentials")
				return
			}

			caller, err := claims.Caller(r.RemoteAddr)
			if err != nil {
				log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("middleware: token carries no identity")
				writeProblem(w, http.StatusUnauthorized, "missing or invalid credentials")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func extractBearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
