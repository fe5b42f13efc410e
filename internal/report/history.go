// Package report summarizes and exports consultation history.
package report

import (
	"strings"
	"time"

	"github.com/iyunix/go-telemed/internal/domain"
)

// Summary is the headline numbers for a consultation history.
type Summary struct {
	Total           int                   `json:"total"`
	ThisMonth       int                   `json:"thisMonth"`
	MostUsedFeature domain.FeatureType    `json:"mostUsedFeature,omitempty"`
	ByFeature       []domain.FeatureCount `json:"byFeature"`
}

// Summarize counts consultations overall, in the calendar month of now, and
// per feature.
func Summarize(consultations []domain.Consultation, now time.Time) Summary {
	s := Summary{Total: len(consultations), ByFeature: domain.CountFeatures(consultations)}
	year, month, _ := now.Date()
	for _, c := range consultations {
		y, m, _ := c.Timestamp.In(now.Location()).Date()
		if y == year && m == month {
			s.ThisMonth++
		}
	}
	if len(s.ByFeature) > 0 {
		s.MostUsedFeature = s.ByFeature[0].FeatureType
	}
	return s
}

// Filter narrows a history. Zero fields do not filter.
type Filter struct {
	FeatureType domain.FeatureType
	// Search matches the AI response or any message, case-insensitively.
	Search string
	Since  time.Time
	Until  time.Time
}

func (f Filter) matches(c domain.Consultation) bool {
	if f.FeatureType != "" && c.FeatureType != f.FeatureType {
		return false
	}
	if !f.Since.IsZero() && c.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && c.Timestamp.After(f.Until) {
		return false
	}
	if f.Search == "" {
		return true
	}
	needle := strings.ToLower(f.Search)
	if strings.Contains(strings.ToLower(c.AIResponse), needle) {
		return true
	}
	for _, m := range c.Messages {
		if strings.Contains(strings.ToLower(m.Content), needle) {
			return true
		}
	}
	return false
}

// Apply returns the consultations that pass f, keeping their order.
func (f Filter) Apply(consultations []domain.Consultation) []domain.Consultation {
	out := make([]domain.Consultation, 0, len(consultations))
	for _, c := range consultations {
		if f.matches(c) {
			out = append(out, c)
		}
	}
	return out
}
