package middleware

import (
	"strconv"
	"sync"
	"time"
)

const attemptCleanupPeriod = 5 * time.Minute

type attemptWindow struct {
	count       int
	windowStart time.Time
}

// AttemptLimiter caps failed attempts per client IP in fixed windows. It
// guards the admin API against password guessing; successful requests are
// never counted.
type AttemptLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*attemptWindow
	lastCleanup time.Time
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

func NewAttemptLimiter(maxAttempts int, window time.Duration) *AttemptLimiter {
	return &AttemptLimiter{
		attempts:    make(map[string]*attemptWindow),
		lastCleanup: time.Now(),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func (l *AttemptLimiter) cleanup(now time.Time) {
	if now.Sub(l.lastCleanup) < attemptCleanupPeriod {
		return
	}
	l.lastCleanup = now

	for ip, attempt := range l.attempts {
		if now.Sub(attempt.windowStart) > l.window {
			delete(l.attempts, ip)
		}
	}
}

// Blocked reports whether ip has used up its failed attempts in the current
// window.
func (l *AttemptLimiter) Blocked(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.cleanup(now)

	attempt, exists := l.attempts[ip]
	if !exists || now.Sub(attempt.windowStart) > l.window {
		return false
	}
	return attempt.count >= l.maxAttempts
}

// RecordFailure counts one failed attempt for ip.
func (l *AttemptLimiter) RecordFailure(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	attempt, exists := l.attempts[ip]
	if !exists || now.Sub(attempt.windowStart) > l.window {
		l.attempts[ip] = &attemptWindow{count: 1, windowStart: now}
		return
	}
	attempt.count++
}

// Reset forgets the failures of ip after a successful attempt.
func (l *AttemptLimiter) Reset(ip string) {
	l.mu.Lock()
	delete(l.attempts, ip)
	l.mu.Unlock()
}

func (l *AttemptLimiter) RetryAfter() string {
	return strconv.Itoa(int(l.window.Seconds()))
}
