package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/iyunix/go-telemed/internal/auth"
)

// RequireSession validates the Bearer session token and stores the patientId
// in the request context.
func RequireSession(secretKey []byte, log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				writeEnvelopeError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			claims, err := auth.ValidateSessionToken(token, secretKey)
			if err != nil {
				log.Warn("[AuthMiddleware] invalid token", "error", err)
				writeEnvelopeError(w, http.StatusUnauthorized, "Invalid or expired session")
				return
			}
			ctx := context.WithValue(r.Context(), PatientIDKey, claims.Subject)
			ctx = context.WithValue(ctx, EmailKey, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PatientIDFrom returns the authenticated patientId, if any.
func PatientIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(PatientIDKey).(string)
	return id, ok && id != ""
}
