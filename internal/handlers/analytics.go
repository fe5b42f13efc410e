package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/iyunix/go-telemed/internal/domain"
)

// CreateAnalyticsEvent stores an event and then forwards it to the publisher.
// A publish failure is logged; the event is already stored.
func (h *Handler) CreateAnalyticsEvent(w http.ResponseWriter, r *http.Request) {
	var e domain.AnalyticsEvent
	if err := decodeBody(r, domain.CollectionAnalytics, &e); err != nil {
		h.writeStoreError(w, "CreateAnalyticsEvent", err, "")
		return
	}
	if e.EventID == "" {
		e.EventID = domain.NewID()
	}
	e.Timestamp = h.now()
	if err := e.Validate(); err != nil {
		h.writeStoreError(w, "CreateAnalyticsEvent", err, "")
		return
	}
	if err := h.store.Insert(r.Context(), e); err != nil {
		h.writeStoreError(w, "CreateAnalyticsEvent", err, "")
		return
	}

	ctx, cancel := h.detached(r.Context())
	defer cancel()
	if err := h.events.Publish(ctx, e); err != nil {
		h.log.Warn("[AnalyticsHandler] publish failed", "eventId", e.EventID, "error", err)
	}
	writeData(w, http.StatusCreated, e)
}

// QueryAnalytics filters by patientId, eventType, startDate and endDate.
// Each bound applies on its own.
func (h *Handler) QueryAnalytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		f   domain.AnalyticsFilter
		err error
	)
	f.EventType = q.Get("eventType")
	if f.Start, err = parseBound(q.Get("startDate"), false); err != nil {
		writeError(w, "Invalid startDate", http.StatusBadRequest)
		return
	}
	if f.End, err = parseBound(q.Get("endDate"), true); err != nil {
		writeError(w, "Invalid endDate", http.StatusBadRequest)
		return
	}
	if raw := q.Get("limit"); raw != "" {
		if f.Limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
	}

	events, err := h.store.QueryAnalytics(r.Context(), q.Get("patientId"), f)
	if err != nil {
		h.writeStoreError(w, "QueryAnalytics", err, "")
		return
	}
	writeData(w, http.StatusOK, events)
}

// parseBound accepts RFC 3339 or a bare date. A bare end date covers the whole day.
func parseBound(raw string, end bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(domain.DateOfBirthLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if end {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
