package domain

import (
	"strings"
	"time"
)

// MedicalRecord is a free-form clinical document attached to a patient.
type MedicalRecord struct {
	RecordID   string         `json:"recordId" bson:"recordId"`
	PatientID  string         `json:"patientId" bson:"patientId"`
	RecordType string         `json:"recordType,omitempty" bson:"recordType,omitempty"`
	Title      string         `json:"title,omitempty" bson:"title,omitempty"`
	Payload    map[string]any `json:"payload,omitempty" bson:"payload,omitempty"`
	CreatedAt  time.Time      `json:"createdAt" bson:"createdAt"`
}

func (r MedicalRecord) Collection() Collection { return CollectionMedicalRecords }
func (r MedicalRecord) NaturalID() string      { return r.RecordID }
func (r MedicalRecord) PatientRef() string     { return r.PatientID }
func (r MedicalRecord) SortTime() time.Time    { return r.CreatedAt }

func (r MedicalRecord) Validate() error {
	if strings.TrimSpace(r.RecordID) == "" {
		return NewValidationError(CollectionMedicalRecords, "recordId", "is required")
	}
	if strings.TrimSpace(r.PatientID) == "" {
		return NewValidationError(CollectionMedicalRecords, "patientId", "is required")
	}
	return nil
}
