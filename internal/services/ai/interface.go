// File: internal/services/ai/interface.go
package ai

import (
	"context"

	"github.com/iyunix/go-telemed/internal/domain"
)

// Turn is one chat message sent to the model.
type Turn struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionProvider handles chat completions.
type CompletionProvider interface {
	GetCompletion(ctx context.Context, turns []Turn) (string, error)
	StreamCompletion(ctx context.Context, turns []Turn, onDelta func(string) error) error
}

// Recorder persists finished consultations. The persistence coordinator
// implements it.
type Recorder interface {
	SaveConsultation(ctx context.Context, c domain.Consultation) (domain.Consultation, error)
}
