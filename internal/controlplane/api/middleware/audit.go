package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittoswap/internal/logger"
)

// Audit logs who changed the cache's control state and whether it worked.
// The caller is taken from the claims JWTAuth stored, or "anonymous" when
// the API runs without tokens.
func Audit(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			subject, role := "anonymous", ""
			if claims := GetClaimsFromContext(r.Context()); claims != nil {
				subject, role = claims.Subject, claims.Role
			}

			args := []any{
				logger.Operation(action),
				logger.Subject(subject),
				logger.Role(role),
				logger.Path(r.URL.Path),
				logger.Status(ww.Status()),
				logger.ClientIP(r.RemoteAddr),
			}
			if ww.Status() >= http.StatusBadRequest {
				logger.Warn("Control action rejected", args...)
				return
			}
			logger.Info("Control action", args...)
		})
	}
}
