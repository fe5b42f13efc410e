package handlers

import (
	"net/http"

	"github.com/iyunix/go-telemed/internal/domain"
)

// Health reports store connectivity and per-collection counts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := domain.HealthStatus{Status: "OK", Database: "connected", Timestamp: h.now()}
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Error("[HealthHandler] store ping failed", "error", err)
		status.Status, status.Database = "DEGRADED", "disconnected"
		writeJSON(w, http.StatusServiceUnavailable, Envelope{Success: false, Data: status, Error: "Database unavailable"})
		return
	}
	counts, err := h.store.Counts(r.Context())
	if err != nil {
		h.log.Warn("[HealthHandler] counts unavailable", "error", err)
	}
	status.Counts = counts
	writeData(w, http.StatusOK, status)
}

// DashboardStats aggregates totals and consultations grouped by feature type.
func (h *Handler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Counts(r.Context())
	if err != nil {
		h.writeStoreError(w, "DashboardStats", err, "")
		return
	}
	features, err := h.store.ConsultationsByFeature(r.Context())
	if err != nil {
		h.writeStoreError(w, "DashboardStats", err, "")
		return
	}
	if features == nil {
		features = []domain.FeatureCount{}
	}
	writeData(w, http.StatusOK, domain.DashboardStats{
		TotalPatients:          counts[domain.CollectionPatients],
		TotalConsultations:     counts[domain.CollectionConsultations],
		TotalMedicalRecords:    counts[domain.CollectionMedicalRecords],
		TotalImageAnalyses:     counts[domain.CollectionImageAnalyses],
		ConsultationsByFeature: features,
	})
}
