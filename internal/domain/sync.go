// File: internal/domain/sync.go
package domain

import (
	"encoding/json"
	"time"
)

// Export is a full dump of one store: each collection maps id to raw record.
type Export struct {
	Collections map[Collection]map[string]json.RawMessage `json:"collections"`
	ExportDate  time.Time                                 `json:"exportDate"`
}

// SyncRequest is the body of POST /sync: collection name to id -> record.
// The Sync Engine sends one collection per request; the backend accepts any
// subset of SyncCollections.
type SyncRequest map[Collection]map[string]json.RawMessage

// DecodeBatch turns every raw record of c into its typed, validated form.
// A record without an identity takes the mapping key.
func DecodeBatch(c Collection, records map[string]json.RawMessage) ([]Record, error) {
	if !c.Valid() {
		return nil, NewValidationError(c, "collection", "is not a known collection")
	}
	out := make([]Record, 0, len(records))
	for id, raw := range records {
		rec, err := DecodeRecord(c, raw)
		if err != nil {
			return nil, err
		}
		if rec.NaturalID() == "" {
			rec = withNaturalID(rec, id)
		}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// withNaturalID fills a missing identity from the mapping key.
func withNaturalID(rec Record, id string) Record {
	switch r := rec.(type) {
	case Patient:
		r.PatientID = id
		return r
	case Consultation:
		r.ConsultationID = id
		return r
	case MedicalRecord:
		r.RecordID = id
		return r
	case ImageAnalysis:
		r.ImageID = id
		return r
	case AnalyticsEvent:
		r.EventID = id
		return r
	}
	return rec
}

// CollectionSyncResult is the outcome of one collection's bulk upsert.
type CollectionSyncResult struct {
	Success  bool   `json:"success"`
	Upserted int    `json:"upserted"`
	Error    string `json:"error,omitempty"`
}

// SyncReport maps every attempted collection to its outcome.
type SyncReport struct {
	Results   map[Collection]CollectionSyncResult `json:"results"`
	Timestamp time.Time                           `json:"timestamp"`
}

func NewSyncReport(now time.Time) SyncReport {
	return SyncReport{Results: map[Collection]CollectionSyncResult{}, Timestamp: now}
}

// OK reports whether every collection synced.
func (r SyncReport) OK() bool {
	for _, res := range r.Results {
		if !res.Success {
			return false
		}
	}
	return true
}

// Failed lists the collections that did not sync.
func (r SyncReport) Failed() []Collection {
	var out []Collection
	for _, c := range AllCollections {
		if res, ok := r.Results[c]; ok && !res.Success {
			out = append(out, c)
		}
	}
	return out
}
