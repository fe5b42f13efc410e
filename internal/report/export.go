package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/iyunix/go-telemed/internal/domain"
)

// HistoryExport is the JSON document written by WriteJSON.
type HistoryExport struct {
	PatientID     string                `json:"patientId,omitempty"`
	ExportDate    time.Time             `json:"exportDate"`
	Summary       Summary               `json:"summary"`
	Consultations []domain.Consultation `json:"consultations"`
}

func NewHistoryExport(patientID string, consultations []domain.Consultation, now time.Time) HistoryExport {
	if consultations == nil {
		consultations = []domain.Consultation{}
	}
	return HistoryExport{
		PatientID:     patientID,
		ExportDate:    now,
		Summary:       Summarize(consultations, now),
		Consultations: consultations,
	}
}

func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderMarkdown converts an AI response to HTML. Raw HTML in the source is
// dropped.
func RenderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

type htmlEntry struct {
	Feature   string
	Timestamp string
	Prompt    string
	Response  template.HTML
}

var pageTemplate = template.Must(template.New("history").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Consultation history</title></head>
<body>
<h1>Consultation history{{if .PatientID}} for {{.PatientID}}{{end}}</h1>
<p>Exported {{.ExportDate}}. {{.Summary.Total}} consultations, {{.Summary.ThisMonth}} this month.</p>
{{range .Entries}}<section class="consultation">
<h2>{{.Feature}}</h2>
<time>{{.Timestamp}}</time>
{{if .Prompt}}<blockquote>{{.Prompt}}</blockquote>{{end}}
<div class="response">{{.Response}}</div>
</section>
{{end}}</body>
</html>
`))

// WriteHTML renders the export as a standalone HTML page.
func WriteHTML(w io.Writer, exp HistoryExport) error {
	entries := make([]htmlEntry, 0, len(exp.Consultations))
	for _, c := range exp.Consultations {
		body, err := RenderMarkdown(c.AIResponse)
		if err != nil {
			return err
		}
		entries = append(entries, htmlEntry{
			Feature:   c.FeatureType.DisplayName(),
			Timestamp: c.Timestamp.Format(time.RFC1123),
			Prompt:    lastUserMessage(c.Messages),
			Response:  body,
		})
	}
	return pageTemplate.Execute(w, struct {
		PatientID  string
		ExportDate string
		Summary    Summary
		Entries    []htmlEntry
	}{
		PatientID:  exp.PatientID,
		ExportDate: exp.ExportDate.Format(time.RFC1123),
		Summary:    exp.Summary,
		Entries:    entries,
	})
}

func lastUserMessage(messages []domain.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Sender == "user" {
			return messages[i].Content
		}
	}
	return ""
}
