package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/iyunix/go-telemed/internal/domain"
)

// CreateConsultation stamps the write time and inserts the consultation.
func (h *Handler) CreateConsultation(w http.ResponseWriter, r *http.Request) {
	var c domain.Consultation
	if err := decodeBody(r, domain.CollectionConsultations, &c); err != nil {
		h.writeStoreError(w, "CreateConsultation", err, "")
		return
	}
	if c.ConsultationID == "" {
		c.ConsultationID = domain.NewID()
	}
	if c.Status == "" {
		c.Status = domain.StatusCompleted
	}
	now := h.now()
	c.Timestamp, c.CreatedAt = now, now
	if err := c.Validate(); err != nil {
		h.writeStoreError(w, "CreateConsultation", err, "")
		return
	}
	if err := h.store.Insert(r.Context(), c); err != nil {
		h.writeStoreError(w, "CreateConsultation", err, "")
		return
	}
	writeData(w, http.StatusCreated, c)
}

// ListConsultations returns up to ?limit consultations for a patient, newest first.
func (h *Handler) ListConsultations(w http.ResponseWriter, r *http.Request) {
	limit := h.consultationLimit(r.URL.Query().Get("limit"))
	recs, err := h.store.ListByPatient(r.Context(), domain.CollectionConsultations, mux.Vars(r)["id"], limit)
	if err != nil {
		h.writeStoreError(w, "ListConsultations", err, "")
		return
	}
	writeData(w, http.StatusOK, recs)
}

func (h *Handler) consultationLimit(raw string) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return h.cfg.DefaultConsultationLimit
	}
	return limit
}

func (h *Handler) DeleteConsultation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.store.Delete(r.Context(), domain.CollectionConsultations, id); err != nil {
		h.writeStoreError(w, "DeleteConsultation", err, "Consultation not found")
		return
	}
	writeData(w, http.StatusOK, map[string]string{"consultationId": id})
}
