// Package ratelimit throttles MCP tool calls with per-key token buckets so a
// chatty client cannot queue unbounded distance computations.
package ratelimit

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRateLimited is wrapped by CheckLimit when a tool's bucket is empty.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter is a token bucket per key. Buckets start full. Safe for
// concurrent use.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64 // tokens per second
	burst   int
	nowFunc func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewLimiter returns a limiter refilling at rate tokens/sec up to burst.
func NewLimiter(rate float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow takes one token from key's bucket and reports whether it had one.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: float64(l.burst), last: now}
		l.buckets[key] = b
	}
	b.refill(now, l.rate, float64(l.burst))

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (b *bucket) refill(now time.Time, rate, capacity float64) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(capacity, b.tokens+rate*elapsed)
	b.last = now
}

// ToolLimiters maps MCP tool names to their limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters returns the default limits for tbc's MCP tools. Tools
// that fan out over whole populations get the tightest budgets.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"tbc_distance":   NewLimiter(1.0, 20),      // 60/minute, burst 20
		"tbc_estimate":   NewLimiter(2.0, 20),      // 120/minute, burst 20
		"tbc_fano":       NewLimiter(30.0/60.0, 5), // 30/minute, burst 5
		"tbc_poisson":    NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"tbc_null_stats": NewLimiter(5.0/60.0, 2),  // 5/minute, burst 2
	}
}

// CheckLimit returns an error wrapping ErrRateLimited if toolName is out of
// tokens. Tools without a limiter are never limited.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil
	}
	if !limiter.Allow(toolName) {
		return fmt.Errorf("%w for %s, please try again shortly", ErrRateLimited, toolName)
	}
	return nil
}
