package domain

import (
	"strings"
	"time"
)

// MaxAnalyticsResults caps analytics query results.
const MaxAnalyticsResults = 1000

// AnalyticsEvent is one usage event. PatientID may be empty for anonymous use.
type AnalyticsEvent struct {
	EventID   string         `json:"eventId" bson:"eventId"`
	PatientID string         `json:"patientId,omitempty" bson:"patientId,omitempty"`
	SessionID string         `json:"sessionId,omitempty" bson:"sessionId,omitempty"`
	EventType string         `json:"eventType" bson:"eventType"`
	EventData map[string]any `json:"eventData,omitempty" bson:"eventData,omitempty"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
}

func (e AnalyticsEvent) Collection() Collection { return CollectionAnalytics }
func (e AnalyticsEvent) NaturalID() string      { return e.EventID }
func (e AnalyticsEvent) PatientRef() string     { return e.PatientID }
func (e AnalyticsEvent) SortTime() time.Time    { return e.Timestamp }

func (e AnalyticsEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return NewValidationError(CollectionAnalytics, "eventId", "is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return NewValidationError(CollectionAnalytics, "eventType", "is required")
	}
	return nil
}

// AnalyticsFilter selects analytics events. Zero values mean "no bound".
type AnalyticsFilter struct {
	EventType string
	Start     time.Time
	End       time.Time
	Limit     int
}

// Matches reports whether e passes the filter. Bounds are inclusive.
func (f AnalyticsFilter) Matches(e AnalyticsEvent) bool {
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	return true
}

// EffectiveLimit clamps Limit to (0, MaxAnalyticsResults].
func (f AnalyticsFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > MaxAnalyticsResults {
		return MaxAnalyticsResults
	}
	return f.Limit
}
