// File: internal/middleware/recovery.go
package middleware

import (
	"net/http"
	"runtime/debug"
)

// RecoverPanic turns a handler panic into a 500 envelope. The stack goes to
// the log, never to the client.
func RecoverPanic(log Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error("[PANIC] recovered", "path", r.URL.Path, "panic", err, "stack", string(debug.Stack()))
					w.Header().Set("Connection", "close")
					writeEnvelopeError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
