package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/iyunix/go-telemed/internal/auth"
	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/middleware"
	"github.com/iyunix/go-telemed/internal/repository"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login checks email and password and issues a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, domain.CollectionPatients, &req); err != nil {
		h.writeStoreError(w, "Login", err, "")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	rec, err := h.store.FindOne(r.Context(), domain.CollectionPatients, "email", email)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.writeStoreError(w, "Login", err, "")
		return
	}
	patient := rec.(domain.Patient)
	if !patient.CheckPassword(req.Password) {
		h.log.Warn("[AuthHandler] failed login", "patientId", patient.PatientID)
		writeError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateSessionToken(patient.PatientID, patient.Email, h.cfg.JWTSecret, h.cfg.SessionTTL)
	if err != nil {
		h.writeStoreError(w, "Login", err, "")
		return
	}
	writeData(w, http.StatusOK, domain.LoginResult{User: patient.Sanitized(), Token: token})
}

// Me returns the patient behind the current session token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.PatientIDFrom(r.Context())
	if !ok {
		writeError(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	rec, err := h.store.Get(r.Context(), domain.CollectionPatients, id)
	if err != nil {
		h.writeStoreError(w, "Me", err, "Patient not found")
		return
	}
	writeData(w, http.StatusOK, rec.(domain.Patient).Sanitized())
}
