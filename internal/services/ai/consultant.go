// File: internal/services/ai/consultant.go
package ai

import (
	"context"
	"strings"
	"time"

	"github.com/iyunix/go-telemed/internal/domain"
)

// Logger is the subset of services.Logger the consultant needs.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Request is one question to the assistant.
type Request struct {
	PatientID   string
	FeatureType domain.FeatureType
	Prompt      string
	// History holds earlier turns of the same conversation, oldest first.
	History []domain.Message
}

// Consultant asks the model and records every answered exchange.
type Consultant struct {
	provider CompletionProvider
	recorder Recorder
	log      Logger
	now      func() time.Time
}

func NewConsultant(provider CompletionProvider, recorder Recorder, log Logger) *Consultant {
	return &Consultant{
		provider: provider,
		recorder: recorder,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Ask sends the prompt and saves the exchange as a consultation. onDelta,
// when set, receives the answer as it streams.
func (c *Consultant) Ask(ctx context.Context, req Request, onDelta func(string) error) (domain.Consultation, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return domain.Consultation{}, NewValidationError("ask", "prompt is empty")
	}
	if req.FeatureType == "" {
		req.FeatureType = domain.FeatureSymptomAnalysis
	}
	if !req.FeatureType.Valid() {
		return domain.Consultation{}, NewValidationError("ask", "unknown feature type "+string(req.FeatureType))
	}

	turns := buildTurns(req.FeatureType, req.History, prompt)
	started := c.now()
	var (
		answer string
		err    error
	)
	if onDelta != nil {
		var sb strings.Builder
		err = c.provider.StreamCompletion(ctx, turns, func(delta string) error {
			sb.WriteString(delta)
			return onDelta(delta)
		})
		answer = sb.String()
	} else {
		answer, err = c.provider.GetCompletion(ctx, turns)
	}
	if err != nil {
		c.log.Error("[Consultant] completion failed", "feature", req.FeatureType, "error", err)
		return domain.Consultation{}, err
	}
	finished := c.now()

	messages := append([]domain.Message{}, req.History...)
	messages = append(messages,
		domain.Message{Sender: RoleUser, Content: prompt, Timestamp: started},
		domain.Message{Sender: RoleAssistant, Content: answer, Timestamp: finished},
	)
	saved, err := c.recorder.SaveConsultation(ctx, domain.Consultation{
		PatientID:   req.PatientID,
		FeatureType: req.FeatureType,
		Messages:    messages,
		AIResponse:  answer,
		Duration:    int(finished.Sub(started).Seconds()),
	})
	if err != nil {
		return domain.Consultation{}, err
	}
	c.log.Info("[Consultant] consultation saved", "consultationId", saved.ConsultationID, "feature", req.FeatureType)
	return saved, nil
}

func buildTurns(feature domain.FeatureType, history []domain.Message, prompt string) []Turn {
	turns := make([]Turn, 0, len(history)+2)
	turns = append(turns, Turn{
		Role: RoleSystem,
		Content: "You are a medical information assistant helping with " + feature.DisplayName() +
			". You do not diagnose. Recommend professional care when symptoms are serious.",
	})
	for _, m := range history {
		role := RoleUser
		if m.Sender == RoleAssistant {
			role = RoleAssistant
		}
		turns = append(turns, Turn{Role: role, Content: m.Content})
	}
	return append(turns, Turn{Role: RoleUser, Content: prompt})
}
