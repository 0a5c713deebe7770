// Package ratelimit provides token bucket rate limiting for MCP tools.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrLimited is wrapped by every rejection from Limits.Check.
var ErrLimited = errors.New("rate limit exceeded")

// Limiter is a token bucket. It is safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	rate      float64 // tokens per second
	burst     float64 // bucket capacity, also the initial fill
	tokens    float64
	lastCheck time.Time
	nowFunc   func() time.Time
}

// NewLimiter creates a limiter that refills rate tokens per second up to
// burst, starting full.
func NewLimiter(rate float64, burst int) *Limiter {
	now := time.Now()
	return &Limiter{
		rate:      rate,
		burst:     float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
		nowFunc:   time.Now,
	}
}

func (l *Limiter) refill(now time.Time) {
	if elapsed := now.Sub(l.lastCheck).Seconds(); elapsed > 0 {
		l.tokens = math.Min(l.burst, l.tokens+l.rate*elapsed)
		l.lastCheck = now
	}
}

// Allow takes one token if available.
func (l *Limiter) Allow() bool {
	ok, _ := l.take()
	return ok
}

// take takes one token, or reports how long until one is available.
func (l *Limiter) take() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill(l.nowFunc())
	if l.tokens >= 1 {
		l.tokens--
		return true, 0
	}
	if l.rate <= 0 {
		return false, 0
	}
	wait := (1 - l.tokens) / l.rate
	return false, time.Duration(math.Ceil(wait * float64(time.Second)))
}

// Limits maps tool names to their limiters. Tools without an entry are
// never limited.
type Limits map[string]*Limiter

// Check takes a token for tool and returns an error wrapping ErrLimited
// when none is left.
func (ls Limits) Check(tool string) error {
	l, ok := ls[tool]
	if !ok {
		return nil
	}
	allowed, wait := l.take()
	if allowed {
		return nil
	}
	if wait > 0 {
		return fmt.Errorf("%w for %s, retry in %s", ErrLimited, tool, wait.Round(time.Millisecond))
	}
	return fmt.Errorf("%w for %s", ErrLimited, tool)
}

// NewToolLimits returns the default limits for the mendoza MCP tools.
// Simulation tools integrate hundreds of ODE systems per call and get a
// tighter budget than the read-only ones.
func NewToolLimits() Limits {
	return Limits{
		"mendoza_matrices": NewLimiter(1.0, 10),      // 60/minute, burst 10
		"mendoza_runs":     NewLimiter(1.0, 10),      // 60/minute, burst 10
		"mendoza_simulate": NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"mendoza_perturb":  NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
	}
}
