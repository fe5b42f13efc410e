package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/services"
)

type mockRecorder struct {
	saved []domain.Consultation
	err   error
}

func (m *mockRecorder) SaveConsultation(_ context.Context, c domain.Consultation) (domain.Consultation, error) {
	if m.err != nil {
		return domain.Consultation{}, m.err
	}
	c.ConsultationID = fmt.Sprintf("c%d", len(m.saved)+1)
	m.saved = append(m.saved, c)
	return c, nil
}

type mockProvider struct {
	GetCompletionFunc    func(ctx context.Context, turns []Turn) (string, error)
	StreamCompletionFunc func(ctx context.Context, turns []Turn, onDelta func(string) error) error
}

func (m *mockProvider) GetCompletion(ctx context.Context, turns []Turn) (string, error) {
	return m.GetCompletionFunc(ctx, turns)
}

func (m *mockProvider) StreamCompletion(ctx context.Context, turns []Turn, onDelta func(string) error) error {
	return m.StreamCompletionFunc(ctx, turns, onDelta)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	var aiErr *AIError
	require.ErrorAs(t, cfg.Validate(), &aiErr)
	assert.Equal(t, ErrTypeConfig, aiErr.Type)

	cfg.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestAskSavesConsultation(t *testing.T) {
	var sent []Turn
	provider := &mockProvider{GetCompletionFunc: func(_ context.Context, turns []Turn) (string, error) {
		sent = turns
		return "Drink fluids and rest.", nil
	}}
	rec := &mockRecorder{}
	c := NewConsultant(provider, rec, &services.NoOpLogger{})

	history := []domain.Message{
		{Sender: RoleUser, Content: "I have a fever"},
		{Sender: RoleAssistant, Content: "How high?"},
	}
	saved, err := c.Ask(context.Background(), Request{PatientID: "p1", Prompt: " 38.5C ", History: history}, nil)
	require.NoError(t, err)

	assert.Equal(t, "c1", saved.ConsultationID)
	assert.Equal(t, domain.FeatureSymptomAnalysis, saved.FeatureType)
	assert.Equal(t, "Drink fluids and rest.", saved.AIResponse)
	require.Len(t, saved.Messages, 4)
	assert.Equal(t, "38.5C", saved.Messages[2].Content)

	require.Len(t, sent, 4)
	assert.Equal(t, RoleSystem, sent[0].Role)
	assert.Contains(t, sent[0].Content, "Symptom Analysis")
	assert.Equal(t, RoleAssistant, sent[2].Role)
}

func TestAskStreams(t *testing.T) {
	provider := &mockProvider{StreamCompletionFunc: func(_ context.Context, _ []Turn, onDelta func(string) error) error {
		for _, d := range []string{"Take ", "ibuprofen ", "with food."} {
			if err := onDelta(d); err != nil {
				return err
			}
		}
		return nil
	}}
	rec := &mockRecorder{}
	c := NewConsultant(provider, rec, &services.NoOpLogger{})

	var got []string
	saved, err := c.Ask(context.Background(), Request{FeatureType: domain.FeatureMedicationInfo, Prompt: "ibuprofen?"}, func(d string) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, "Take ibuprofen with food.", saved.AIResponse)
}

func TestAskFailures(t *testing.T) {
	rec := &mockRecorder{}
	failing := &mockProvider{GetCompletionFunc: func(context.Context, []Turn) (string, error) {
		return "", NewProviderError("completion", "upstream", errors.New("502"))
	}}
	c := NewConsultant(failing, rec, &services.NoOpLogger{})

	_, err := c.Ask(context.Background(), Request{Prompt: "   "}, nil)
	var aiErr *AIError
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, ErrTypeValidation, aiErr.Type)

	_, err = c.Ask(context.Background(), Request{Prompt: "hi", FeatureType: "astrology"}, nil)
	require.ErrorAs(t, err, &aiErr)

	_, err = c.Ask(context.Background(), Request{Prompt: "hi"}, nil)
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, ErrTypeProvider, aiErr.Type)
	assert.Empty(t, rec.saved, "failed exchanges are not recorded")
}

func TestOpenAIProviderCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"See a doctor."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(&Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "test-model", Timeout: 5 * time.Second})
	answer, err := p.GetCompletion(context.Background(), []Turn{{Role: RoleUser, Content: "chest pain"}})
	require.NoError(t, err)
	assert.Equal(t, "See a doctor.", answer)
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(&Config{APIKey: "k", BaseURL: srv.URL, Model: "m", Timeout: time.Second})
	_, err := p.GetCompletion(context.Background(), []Turn{{Role: RoleUser, Content: "x"}})
	var aiErr *AIError
	require.ErrorAs(t, err, &aiErr)
	assert.Equal(t, "empty completion response", aiErr.Message)
}
