package events

import (
	"context"
	"errors"
	"time"

	"github.com/iyunix/go-telemed/internal/domain"
)

// RetryConfig bounds how hard Retrying tries before giving up on an event.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, Delay: 200 * time.Millisecond}
}

// Logger is the subset of services.Logger the retry wrapper needs.
type Logger interface {
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Retrying re-publishes an event after transient broker failures.
type Retrying struct {
	next Publisher
	cfg  RetryConfig
	log  Logger
}

func NewRetrying(next Publisher, cfg RetryConfig, log Logger) *Retrying {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Retrying{next: next, cfg: cfg, log: log}
}

func (r *Retrying) Publish(ctx context.Context, e domain.AnalyticsEvent) error {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxAttempts; attempt++ {
		err := r.next.Publish(ctx, e)
		if err == nil {
			return nil
		}
		lastErr = err

		// A cancelled or expired context will not recover on retry.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if attempt < r.cfg.MaxAttempts-1 {
			r.log.Warn("[Events] publish failed, retrying", "eventId", e.EventID, "attempt", attempt+1, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.Delay):
			}
		}
	}
	r.log.Error("[Events] publish failed after all retries", "eventId", e.EventID, "attempts", r.cfg.MaxAttempts, "error", lastErr)
	return lastErr
}

func (r *Retrying) Close() error {
	return r.next.Close()
}
