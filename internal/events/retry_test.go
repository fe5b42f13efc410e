package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iyunix/go-telemed/internal/domain"
	"github.com/iyunix/go-telemed/internal/services"
)

type flakyPublisher struct {
	failures int
	err      error
	calls    int
	closed   bool
}

func (f *flakyPublisher) Publish(context.Context, domain.AnalyticsEvent) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return nil
}

func (f *flakyPublisher) Close() error {
	f.closed = true
	return nil
}

func TestRetryingRecoversFromTransientFailure(t *testing.T) {
	next := &flakyPublisher{failures: 2, err: errors.New("broker unavailable")}
	r := NewRetrying(next, RetryConfig{MaxAttempts: 3, Delay: time.Millisecond}, &services.NoOpLogger{})

	require.NoError(t, r.Publish(context.Background(), domain.AnalyticsEvent{EventID: "e1", EventType: "page_view"}))
	assert.Equal(t, 3, next.calls)
}

func TestRetryingGivesUp(t *testing.T) {
	boom := errors.New("broker unavailable")
	next := &flakyPublisher{failures: 10, err: boom}
	r := NewRetrying(next, RetryConfig{MaxAttempts: 2, Delay: time.Millisecond}, &services.NoOpLogger{})

	err := r.Publish(context.Background(), domain.AnalyticsEvent{EventID: "e1"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, next.calls)
}

func TestRetryingStopsOnDeadline(t *testing.T) {
	next := &flakyPublisher{failures: 10, err: context.DeadlineExceeded}
	r := NewRetrying(next, DefaultRetryConfig(), &services.NoOpLogger{})

	err := r.Publish(context.Background(), domain.AnalyticsEvent{EventID: "e1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, next.calls)

	require.NoError(t, r.Close())
	assert.True(t, next.closed)
}
