// File: internal/handlers/response.go
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/repository"
)

// Envelope is the shape of every API response body.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, Envelope{Success: true, Data: data})
}

// writeError is a helper for sending JSON error responses.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, Envelope{Success: false, Error: message})
}

// writeStoreError maps storage and validation errors onto status codes.
// notFound is the message used for a missing record.
func (h *Handler) writeStoreError(w http.ResponseWriter, op string, err error, notFound string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, notFound, http.StatusNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.As(err, &tooLarge):
		writeError(w, "Request body too large", http.StatusRequestEntityTooLarge)
	case domain.IsValidation(err):
		writeError(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("["+op+"] failed", "error", err)
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// decodeBody strictly decodes the request body into v.
func decodeBody(r *http.Request, c domain.Collection, v interface{}) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return domain.NewValidationError(c, "", "request body is empty")
	}
	return domain.DecodeStrict(c, raw, v)
}
