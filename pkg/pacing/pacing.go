// Package pacing spaces out platform-visible operations: a token bucket
// caps request rate, and a randomized delay generator spreads publishing
// actions over human-looking intervals.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow checks if a request is allowed under the current rate limit
	Allow() bool
	// Reset resets the rate limiter state
	Reset()
}

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a new token bucket rate limiter
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Reset resets the token bucket to full capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

// refill restores tokens once the refill period has elapsed
func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}

// Delayer produces randomized delays between publishing operations.
type Delayer struct {
	min  time.Duration
	max  time.Duration
	rand *rand.Rand
	mu   sync.Mutex
}

// NewDelayer creates a delayer over the [min, max] window.
func NewDelayer(min, max time.Duration) *Delayer {
	if max < min {
		max = min
	}
	return &Delayer{
		min:  min,
		max:  max,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns a random delay within the window.
func (d *Delayer) Next() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.max == d.min {
		return d.min
	}
	return d.min + time.Duration(d.rand.Int63n(int64(d.max-d.min)))
}

// Sleep blocks for a randomized delay, returning early with the context's
// error when cancelled. Shutdown must not wait out a multi-minute nap.
func (d *Delayer) Sleep(ctx context.Context) error {
	delay := d.Next()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
