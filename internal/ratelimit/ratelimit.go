// File: internal/ratelimit/ratelimit.go
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Config holds rate limiting configuration
type Config struct {
	WindowSize    time.Duration // Time window for counting attempts
	MaxAttempts   int           // Maximum attempts per window
	CleanupPeriod time.Duration // How often to clean up old entries
	BanDuration   time.Duration // How long to block after exceeding limit
}

// DefaultLoginConfig returns the limits applied to POST /auth/login.
func DefaultLoginConfig() Config {
	return Config{
		WindowSize:    15 * time.Minute,
		MaxAttempts:   10,
		CleanupPeriod: 30 * time.Minute,
		BanDuration:   15 * time.Minute,
	}
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type window struct {
	count     int
	start     time.Time
	blockedAt time.Time
}

func (w *window) blocked(now time.Time, ban time.Duration) bool {
	return !w.blockedAt.IsZero() && now.Sub(w.blockedAt) < ban
}

// Limiter counts attempts per key in fixed windows and blocks keys that
// exceed the limit for BanDuration.
type Limiter struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	windows map[string]*window
	stopCh  chan struct{}
	once    sync.Once
}

func New(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
		stopCh:  make(chan struct{}),
	}
	if cfg.CleanupPeriod > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Allow records one attempt for key.
func (l *Limiter) Allow(key string) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if ok && w.blocked(now, l.cfg.BanDuration) {
		return Decision{RetryAfter: l.cfg.BanDuration - now.Sub(w.blockedAt)}
	}
	if !ok || now.Sub(w.start) > l.cfg.WindowSize {
		w = &window{start: now}
		l.windows[key] = w
	}
	w.count++
	if w.count > l.cfg.MaxAttempts {
		w.blockedAt = now
		return Decision{RetryAfter: l.cfg.BanDuration}
	}
	return Decision{Allowed: true, Remaining: l.cfg.MaxAttempts - w.count}
}

// Reset forgets key, typically after a successful login.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(l.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

func (l *Limiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.windows {
		if w.blocked(now, l.cfg.BanDuration) {
			continue
		}
		if now.Sub(w.start) > l.cfg.WindowSize {
			delete(l.windows, key)
		}
	}
}

// Close stops the cleanup goroutine
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stopCh) })
}

// ClientIP extracts the client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
