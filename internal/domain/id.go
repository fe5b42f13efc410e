package domain

import "github.com/google/uuid"

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// NewSessionID returns an identifier for one client session.
func NewSessionID() string {
	return "session_" + uuid.NewString()
}
