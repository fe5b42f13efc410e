package domain

import (
	"sort"
	"time"
)

// FeatureCount is the number of consultations for one feature type.
type FeatureCount struct {
	FeatureType FeatureType `json:"featureType" bson:"_id"`
	Count       int         `json:"count" bson:"count"`
}

// DashboardStats aggregates counts across the store.
type DashboardStats struct {
	TotalPatients          int            `json:"totalPatients"`
	TotalConsultations     int            `json:"totalConsultations"`
	TotalMedicalRecords    int            `json:"totalMedicalRecords"`
	TotalImageAnalyses     int            `json:"totalImageAnalyses"`
	ConsultationsByFeature []FeatureCount `json:"consultationsByFeature"`
}

// SortFeatureCounts orders by count descending, then feature name.
func SortFeatureCounts(counts []FeatureCount) {
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].FeatureType < counts[j].FeatureType
	})
}

// CountFeatures groups consultations by feature type.
func CountFeatures(consultations []Consultation) []FeatureCount {
	byFeature := map[FeatureType]int{}
	for _, c := range consultations {
		byFeature[c.FeatureType]++
	}
	out := make([]FeatureCount, 0, len(byFeature))
	for f, n := range byFeature {
		out = append(out, FeatureCount{FeatureType: f, Count: n})
	}
	SortFeatureCounts(out)
	return out
}

// HealthStatus is returned by the backend health probe.
type HealthStatus struct {
	Status    string             `json:"status"`
	Database  string             `json:"database"`
	Timestamp time.Time          `json:"timestamp"`
	Counts    map[Collection]int `json:"counts,omitempty"`
}

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	User  Patient `json:"user"`
	Token string  `json:"token"`
}

// SortNewestFirst orders records by SortTime descending; ties break on id
// so listings are stable.
func SortNewestFirst[T Record](records []T) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].SortTime(), records[j].SortTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return records[i].NaturalID() > records[j].NaturalID()
	})
}
