package middleware

import (
	"net/http"
	"strings"
)

// BodyLimit caps request bodies: multipart uploads at imageBytes, everything
// else at jsonBytes. Handlers see the cap as a read error.
func BodyLimit(jsonBytes, imageBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limit := jsonBytes
			if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
				limit = imageBytes
			}
			if limit > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
