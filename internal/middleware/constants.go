// File: internal/middleware/constants.go
package middleware

// Context keys for middleware communication
type contextKey string

const (
	PatientIDKey contextKey = "patient_id"
	EmailKey     contextKey = "email"
)

// Logger is the subset of services.Logger the middleware needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}
