// File: internal/handlers/patients.go
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-telemed/internal/domain"
)

// CreatePatient inserts a patient, generating patientId when absent.
func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var p domain.Patient
	if err := decodeBody(r, domain.CollectionPatients, &p); err != nil {
		h.writeStoreError(w, "CreatePatient", err, "")
		return
	}
	if p.PatientID == "" {
		p.PatientID = domain.NewID()
	}
	now := h.now()
	p.CreatedAt, p.UpdatedAt = now, now
	p.ApplyDerivedFields(now)
	if err := p.HashPassword(); err != nil {
		h.writeStoreError(w, "CreatePatient", err, "")
		return
	}
	if err := p.Validate(); err != nil {
		h.writeStoreError(w, "CreatePatient", err, "")
		return
	}
	if err := h.store.Insert(r.Context(), p); err != nil {
		h.writeStoreError(w, "CreatePatient", err, "")
		return
	}
	h.log.Info("[PatientHandler] patient created", "patientId", p.PatientID)
	writeData(w, http.StatusCreated, p.Sanitized())
}

func (h *Handler) GetPatient(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.Get(r.Context(), domain.CollectionPatients, mux.Vars(r)["id"])
	if err != nil {
		h.writeStoreError(w, "GetPatient", err, "Patient not found")
		return
	}
	writeData(w, http.StatusOK, rec.(domain.Patient).Sanitized())
}

// UpdatePatient merges the body onto the stored patient and returns the result.
func (h *Handler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeStoreError(w, "UpdatePatient", err, "")
		return
	}
	var update domain.PatientUpdate
	if err := json.Unmarshal(raw, &update); err != nil {
		writeError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	update, err = update.Normalize()
	if err != nil {
		h.writeStoreError(w, "UpdatePatient", err, "")
		return
	}

	rec, err := h.store.Get(r.Context(), domain.CollectionPatients, id)
	if err != nil {
		h.writeStoreError(w, "UpdatePatient", err, "Patient not found")
		return
	}
	merged, err := rec.(domain.Patient).Merge(update)
	if err != nil {
		h.writeStoreError(w, "UpdatePatient", err, "")
		return
	}
	now := h.now()
	merged.UpdatedAt = now
	merged.ApplyDerivedFields(now)
	if err := merged.Validate(); err != nil {
		h.writeStoreError(w, "UpdatePatient", err, "")
		return
	}
	if err := h.store.Replace(r.Context(), merged); err != nil {
		h.writeStoreError(w, "UpdatePatient", err, "Patient not found")
		return
	}
	writeData(w, http.StatusOK, merged.Sanitized())
}
