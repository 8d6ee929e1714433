package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter gates outgoing API requests
type Limiter interface {
	// Allow reports whether a request may proceed now
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset returns the limiter to a full burst
	Reset()
}

// New returns a limiter admitting rps requests per second with the given
// burst. A non-positive rps disables limiting.
func New(rps float64, burst int) Limiter {
	if rps <= 0 {
		return Unlimited{}
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// TokenBucket is a Limiter backed by golang.org/x/time/rate
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	rps     rate.Limit
	burst   int
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Wait blocks until a token is available
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.current().Wait(ctx)
}

// Reset refills the bucket
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.limiter = rate.NewLimiter(tb.rps, tb.burst)
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

// Unlimited admits every request
type Unlimited struct{}

func (Unlimited) Allow() bool { return true }

func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }

func (Unlimited) Reset() {}

// Registry hands out one limiter per key (a group id)
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]Limiter
	rps      float64
	burst    int
}

// NewRegistry creates a registry whose limiters share rps and burst
func NewRegistry(rps float64, burst int) *Registry {
	return &Registry{
		limiters: make(map[string]Limiter),
		rps:      rps,
		burst:    burst,
	}
}

// Get retrieves the limiter for key, creating it on first use
func (r *Registry) Get(key string) Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[key]
	r.mu.RUnlock()

	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, exists := r.limiters[key]; exists {
		return limiter
	}

	limiter = New(r.rps, r.burst)
	r.limiters[key] = limiter
	return limiter
}
