package gate

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/lojix/lojix/internal/metrics"
)

// Login throttling constants, exposed for tests.
const (
	MaxFailedAttempts = 5
	LockoutDuration   = 15 * time.Minute
)

// RateLimitResult is the answer to a login throttling check.
type RateLimitResult struct {
	Allowed   bool   `json:"allowed"`
	Remaining int    `json:"remaining"`
	Message   string `json:"message,omitempty"`
}

// LoginRecord is one email's standing with the limiter.
type LoginRecord struct {
	FailedAttempts int
	LockedUntil    time.Time
}

// AttemptStore keeps per-email failure records. The in-process
// implementation below suffices for a single instance; a multi-node
// deployment needs a shared implementation behind this interface.
type AttemptStore interface {
	Get(email string) (*LoginRecord, bool)
	Set(email string, rec *LoginRecord)
	Delete(email string)
}

type memoryAttempts struct {
	mu      sync.Mutex
	records map[string]*LoginRecord
}

func newMemoryAttempts() *memoryAttempts {
	return &memoryAttempts{records: make(map[string]*LoginRecord)}
}

func (m *memoryAttempts) Get(email string) (*LoginRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[email]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

func (m *memoryAttempts) Set(email string, rec *LoginRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.records[email] = &cp
}

func (m *memoryAttempts) Delete(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, email)
}

// LoginLimiter locks an email out after repeated failed logins.
type LoginLimiter struct {
	attempts AttemptStore
	now      func() time.Time
}

type LimiterOption func(*LoginLimiter)

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *LoginLimiter) { l.now = now }
}

// WithAttemptStore swaps the backing store.
func WithAttemptStore(store AttemptStore) LimiterOption {
	return func(l *LoginLimiter) { l.attempts = store }
}

func NewLoginLimiter(opts ...LimiterOption) *LoginLimiter {
	l := &LoginLimiter{
		attempts: newMemoryAttempts(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// CheckRateLimit reports whether a login attempt for email may proceed.
// An expired lock purges the record, so the caller starts fresh.
func (l *LoginLimiter) CheckRateLimit(email string) RateLimitResult {
	key := normalizeKey(email)
	rec, ok := l.attempts.Get(key)
	if !ok {
		return RateLimitResult{Allowed: true, Remaining: MaxFailedAttempts}
	}

	now := l.now()
	if !rec.LockedUntil.IsZero() {
		if now.Before(rec.LockedUntil) {
			return l.denied(rec, now)
		}
		l.attempts.Delete(key)
		return RateLimitResult{Allowed: true, Remaining: MaxFailedAttempts}
	}

	return RateLimitResult{Allowed: true, Remaining: MaxFailedAttempts - rec.FailedAttempts}
}

// RecordFailedAttempt counts a failed login and locks the email once
// the limit is reached.
func (l *LoginLimiter) RecordFailedAttempt(email string) RateLimitResult {
	key := normalizeKey(email)
	now := l.now()

	rec, ok := l.attempts.Get(key)
	if !ok || (!rec.LockedUntil.IsZero() && !now.Before(rec.LockedUntil)) {
		rec = &LoginRecord{}
	}

	rec.FailedAttempts++
	if rec.FailedAttempts >= MaxFailedAttempts {
		rec.LockedUntil = now.Add(LockoutDuration)
		l.attempts.Set(key, rec)
		metrics.LoginLockoutsTotal.Inc()
		return l.denied(rec, now)
	}

	l.attempts.Set(key, rec)
	return RateLimitResult{Allowed: true, Remaining: MaxFailedAttempts - rec.FailedAttempts}
}

// RecordSuccessfulLogin fully resets the counter for email.
func (l *LoginLimiter) RecordSuccessfulLogin(email string) {
	l.attempts.Delete(normalizeKey(email))
}

func (l *LoginLimiter) denied(rec *LoginRecord, now time.Time) RateLimitResult {
	minutes := int(math.Ceil(rec.LockedUntil.Sub(now).Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return RateLimitResult{
		Allowed:   false,
		Remaining: 0,
		Message:   fmt.Sprintf("too many failed attempts, try again in %d minutes", minutes),
	}
}

func normalizeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
