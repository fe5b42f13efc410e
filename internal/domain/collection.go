// File: internal/domain/collection.go
package domain

import "time"

// Collection names a group of records. The string value doubles as the
// durable local storage key and the backend collection name.
type Collection string

const (
	CollectionPatients       Collection = "patients"
	CollectionConsultations  Collection = "consultations"
	CollectionMedicalRecords Collection = "medicalRecords"
	CollectionImageAnalyses  Collection = "imageAnalyses"
	CollectionAnalytics      Collection = "analytics"
)

// AllCollections lists every collection in dependency order: patients first,
// since every other collection references them by patientId.
var AllCollections = []Collection{
	CollectionPatients,
	CollectionConsultations,
	CollectionMedicalRecords,
	CollectionImageAnalyses,
	CollectionAnalytics,
}

// SyncCollections are the collections pushed during sync. Image analyses are
// excluded because local copies never hold the binary payload.
var SyncCollections = []Collection{
	CollectionPatients,
	CollectionConsultations,
	CollectionMedicalRecords,
	CollectionAnalytics,
}

// NaturalKey returns the JSON field holding the record identity.
func (c Collection) NaturalKey() string {
	switch c {
	case CollectionPatients:
		return "patientId"
	case CollectionConsultations:
		return "consultationId"
	case CollectionMedicalRecords:
		return "recordId"
	case CollectionImageAnalyses:
		return "imageId"
	case CollectionAnalytics:
		return "eventId"
	}
	return ""
}

// SortKey returns the timestamp field listings are ordered by.
func (c Collection) SortKey() string {
	switch c {
	case CollectionPatients:
		return "updatedAt"
	case CollectionMedicalRecords:
		return "createdAt"
	case CollectionImageAnalyses:
		return "uploadedAt"
	}
	return "timestamp"
}

func (c Collection) Valid() bool {
	return c.NaturalKey() != ""
}

func (c Collection) String() string { return string(c) }

// Record is implemented by every tagged collection type.
type Record interface {
	Collection() Collection
	NaturalID() string
	// PatientRef is the owning patient; for a Patient it is its own id.
	PatientRef() string
	// SortTime orders records newest-first in listings.
	SortTime() time.Time
	Validate() error
}

// FeatureType classifies a consultation by the assistant feature that produced it.
type FeatureType string

const (
	FeatureSymptomAnalysis       FeatureType = "symptom-analysis"
	FeatureMedicationInfo        FeatureType = "medication-info"
	FeatureHealthRecommendations FeatureType = "health-recommendations"
	FeatureImageAnalysis         FeatureType = "image-analysis"
	FeatureReportAnalysis        FeatureType = "report-analysis"
	FeatureEmergencyGuidance     FeatureType = "emergency-guidance"
)

var featureNames = map[FeatureType]string{
	FeatureSymptomAnalysis:       "Symptom Analysis",
	FeatureMedicationInfo:        "Medication Information",
	FeatureHealthRecommendations: "Health Recommendations",
	FeatureImageAnalysis:         "Image Analysis",
	FeatureReportAnalysis:        "Report Analysis",
	FeatureEmergencyGuidance:     "Emergency Guidance",
}

func (f FeatureType) Valid() bool {
	_, ok := featureNames[f]
	return ok
}

// DisplayName returns the human readable label, or "General Consultation"
// for unknown values.
func (f FeatureType) DisplayName() string {
	if name, ok := featureNames[f]; ok {
		return name
	}
	return "General Consultation"
}
