package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-telemed/internal/domain"
)

var now = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

func sample() []domain.Consultation {
	return []domain.Consultation{
		{ConsultationID: "c1", FeatureType: domain.FeatureSymptomAnalysis, AIResponse: "**Rest** and fluids", Timestamp: now.Add(-time.Hour),
			Messages: []domain.Message{{Sender: "user", Content: "I have a headache"}}},
		{ConsultationID: "c2", FeatureType: domain.FeatureSymptomAnalysis, AIResponse: "Monitor temperature", Timestamp: now.AddDate(0, 0, -3)},
		{ConsultationID: "c3", FeatureType: domain.FeatureMedicationInfo, AIResponse: "Take with food", Timestamp: now.AddDate(0, -2, 0)},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sample(), now)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.ThisMonth)
	assert.Equal(t, domain.FeatureSymptomAnalysis, s.MostUsedFeature)

	empty := Summarize(nil, now)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.MostUsedFeature)
}

func TestFilterApply(t *testing.T) {
	all := sample()
	assert.Len(t, Filter{FeatureType: domain.FeatureMedicationInfo}.Apply(all), 1)
	assert.Len(t, Filter{Search: "HEADACHE"}.Apply(all), 1, "search covers messages")
	assert.Len(t, Filter{Search: "food"}.Apply(all), 1)
	assert.Len(t, Filter{Since: now.AddDate(0, 0, -7)}.Apply(all), 2)
	assert.Len(t, Filter{Until: now.AddDate(0, -1, 0)}.Apply(all), 1)
	assert.Len(t, Filter{}.Apply(all), 3)
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, NewHistoryExport("p1", sample(), now)))

	var decoded HistoryExport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "p1", decoded.PatientID)
	assert.Len(t, decoded.Consultations, 3)
	assert.Equal(t, 2, decoded.Summary.ThisMonth)
}

func TestWriteHTMLRendersMarkdown(t *testing.T) {
	var buf bytes.Buffer
	exp := NewHistoryExport("p1", sample()[:1], now)
	require.NoError(t, WriteHTML(&buf, exp))

	out := buf.String()
	assert.Contains(t, out, "<strong>Rest</strong>")
	assert.Contains(t, out, "Symptom Analysis")
	assert.Contains(t, out, "I have a headache")
}

func TestRenderMarkdownDropsRawHTML(t *testing.T) {
	out, err := RenderMarkdown("hello <script>alert(1)</script>")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>")
}
