package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-telemed/internal/domain"
)

func (h *Handler) CreateMedicalRecord(w http.ResponseWriter, r *http.Request) {
	var rec domain.MedicalRecord
	if err := decodeBody(r, domain.CollectionMedicalRecords, &rec); err != nil {
		h.writeStoreError(w, "CreateMedicalRecord", err, "")
		return
	}
	if rec.RecordID == "" {
		rec.RecordID = domain.NewID()
	}
	rec.CreatedAt = h.now()
	if err := rec.Validate(); err != nil {
		h.writeStoreError(w, "CreateMedicalRecord", err, "")
		return
	}
	if err := h.store.Insert(r.Context(), rec); err != nil {
		h.writeStoreError(w, "CreateMedicalRecord", err, "")
		return
	}
	writeData(w, http.StatusCreated, rec)
}

func (h *Handler) ListMedicalRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ListByPatient(r.Context(), domain.CollectionMedicalRecords, mux.Vars(r)["id"], 0)
	if err != nil {
		h.writeStoreError(w, "ListMedicalRecords", err, "")
		return
	}
	writeData(w, http.StatusOK, recs)
}
