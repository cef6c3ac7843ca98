package verification

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// AttemptLimiter counts failed confirmations per (session, provider). The count
// expires window after the first failure. A nil limiter allows everything.
type AttemptLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	failed *cache.Cache
}

// NewAttemptLimiter returns nil when max is not positive, which disables limiting.
func NewAttemptLimiter(max int, window time.Duration) *AttemptLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &AttemptLimiter{
		max:    max,
		window: window,
		failed: cache.New(window, 2*window),
	}
}

func attemptKey(sessionKey, provider string) string {
	return sessionKey + "|" + provider
}

// Allowed reports whether another attempt may be made.
func (l *AttemptLimiter) Allowed(sessionKey, provider string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.failed.Get(attemptKey(sessionKey, provider))
	if !ok {
		return true
	}
	return n.(int) < l.max
}

// Failed records a failed attempt.
func (l *AttemptLimiter) Failed(sessionKey, provider string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key := attemptKey(sessionKey, provider)
	if _, err := l.failed.IncrementInt(key, 1); err != nil {
		l.failed.Set(key, 1, l.window)
	}
}

// Reset forgets the failures of a (session, provider) pair.
func (l *AttemptLimiter) Reset(sessionKey, provider string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed.Delete(attemptKey(sessionKey, provider))
}
