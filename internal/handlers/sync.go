package handlers

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/iyunix/go-telemed/internal/domain"
)

// Sync bulk upserts every collection in the body. Each collection succeeds or
// fails on its own; the response is 500 if any of them failed.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req domain.SyncRequest
	if err := decodeBody(r, domain.CollectionPatients, &req); err != nil {
		h.writeStoreError(w, "Sync", err, "")
		return
	}
	for c := range req {
		if !slices.Contains(domain.SyncCollections, c) {
			writeError(w, "Unsupported sync collection: "+string(c), http.StatusBadRequest)
			return
		}
	}

	report := domain.NewSyncReport(h.now())
	for _, c := range domain.SyncCollections {
		records, ok := req[c]
		if !ok {
			continue
		}
		n, err := h.syncCollection(r, c, records)
		if err != nil {
			h.log.Error("[SyncHandler] collection failed", "collection", c, "error", err)
			report.Results[c] = domain.CollectionSyncResult{Success: false, Error: err.Error()}
			continue
		}
		report.Results[c] = domain.CollectionSyncResult{Success: true, Upserted: n}
	}

	if !report.OK() {
		writeJSON(w, http.StatusInternalServerError, Envelope{Success: false, Data: report, Error: "Sync failed"})
		return
	}
	writeData(w, http.StatusOK, report)
}

func (h *Handler) syncCollection(r *http.Request, c domain.Collection, records map[string]json.RawMessage) (int, error) {
	recs, err := domain.DecodeBatch(c, records)
	if err != nil {
		return 0, err
	}
	if c == domain.CollectionPatients {
		for i, rec := range recs {
			p := rec.(domain.Patient)
			if err := p.HashPassword(); err != nil {
				return 0, err
			}
			recs[i] = p
		}
	}
	return h.store.BulkUpsert(r.Context(), c, recs)
}
