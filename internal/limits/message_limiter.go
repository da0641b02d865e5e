package limits

import (
	"sync"

	"golang.org/x/time/rate"
)

// MessageLimiter is the per-connection inbound flood guard: a token bucket
// per connection id so one client flooding frames cannot starve the others.
// Buckets are created on first use and must be removed on disconnect.
type MessageLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     float64
	burst    int
}

func NewMessageLimiter(perSecond float64, burst int) *MessageLimiter {
	return &MessageLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     perSecond,
		burst:    burst,
	}
}

// Allow reports whether a frame from the given connection may be processed.
func (ml *MessageLimiter) Allow(connID string) bool {
	ml.mu.Lock()
	lim, ok := ml.limiters[connID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(ml.rate), ml.burst)
		ml.limiters[connID] = lim
	}
	ml.mu.Unlock()
	return lim.Allow()
}

// Remove drops the bucket for a disconnected connection.
func (ml *MessageLimiter) Remove(connID string) {
	ml.mu.Lock()
	delete(ml.limiters, connID)
	ml.mu.Unlock()
}
