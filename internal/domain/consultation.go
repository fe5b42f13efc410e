// File: internal/domain/consultation.go
package domain

import (
	"strings"
	"time"
)

// StatusCompleted is the status stamped on every saved consultation.
const StatusCompleted = "completed"

// Message is one turn of a consultation transcript.
type Message struct {
	Sender    string    `json:"sender" bson:"sender"`
	Content   string    `json:"content" bson:"content"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Consultation is a finished exchange with the assistant.
type Consultation struct {
	ConsultationID string      `json:"consultationId" bson:"consultationId"`
	PatientID      string      `json:"patientId" bson:"patientId"`
	SessionID      string      `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
	FeatureType    FeatureType `json:"featureType" bson:"featureType"`
	Messages       []Message   `json:"messages,omitempty" bson:"messages,omitempty"`
	AIResponse     string      `json:"aiResponse,omitempty" bson:"aiResponse,omitempty"`
	// Duration of the exchange in seconds.
	Duration  int       `json:"duration,omitempty" bson:"duration,omitempty"`
	Status    string    `json:"status" bson:"status"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

func (c Consultation) Collection() Collection { return CollectionConsultations }
func (c Consultation) NaturalID() string      { return c.ConsultationID }
func (c Consultation) PatientRef() string     { return c.PatientID }
func (c Consultation) SortTime() time.Time    { return c.Timestamp }

func (c Consultation) Validate() error {
	if strings.TrimSpace(c.ConsultationID) == "" {
		return NewValidationError(CollectionConsultations, "consultationId", "is required")
	}
	if strings.TrimSpace(c.PatientID) == "" {
		return NewValidationError(CollectionConsultations, "patientId", "is required")
	}
	if c.FeatureType == "" {
		return NewValidationError(CollectionConsultations, "featureType", "is required")
	}
	if !c.FeatureType.Valid() {
		return NewValidationError(CollectionConsultations, "featureType", "is not a known feature")
	}
	if c.Duration < 0 {
		return NewValidationError(CollectionConsultations, "duration", "cannot be negative")
	}
	return nil
}
