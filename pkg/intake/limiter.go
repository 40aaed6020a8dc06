package intake

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles submissions per submitter.
type Limiter interface {
	Allow(submitterID string) bool
}

// SubmitterLimiter keeps one token bucket per submitter.
type SubmitterLimiter struct {
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
}

// NewSubmitterLimiter allows rps submissions per second with the given
// burst per submitter.
func NewSubmitterLimiter(rps float64, burst int) *SubmitterLimiter {
	return &SubmitterLimiter{
		rate:    rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

func (l *SubmitterLimiter) Allow(submitterID string) bool {
	l.mu.Lock()
	b, ok := l.buckets[submitterID]
	if !ok {
		b = rate.NewLimiter(l.rate, l.burst)
		l.buckets[submitterID] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// UnlimitedLimiter disables throttling.
type UnlimitedLimiter struct{}

func (UnlimitedLimiter) Allow(string) bool { return true }
