// Package limits holds the rate-limit counter store consumed by the request
// gate, the per-connection inbound flood guard, and connection admission
// control.
package limits

import (
	"context"
	"sync"
	"time"
)

// Store is an atomic counter keyed by string over a fixed window. Increment
// performs the read-modify-write and returns the count for the current
// window; the caller compares it against its quota. The store owns the
// window-boundary semantics.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MemoryStore is an in-process fixed-window counter store.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	start time.Time
	count int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Increment bumps the counter for key in the current fixed window. A counter
// resets when its window boundary has passed; stale entries for other keys
// are swept opportunistically.
func (s *MemoryStore) Increment(_ context.Context, key string, windowDur time.Duration) (int64, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= windowDur {
		w = &window{start: now.Truncate(windowDur)}
		s.windows[key] = w
	}
	w.count++
	count := w.count

	// Bounded sweep keeps the map from accumulating dead keys without a
	// background goroutine.
	swept := 0
	for k, v := range s.windows {
		if swept >= 16 {
			break
		}
		if now.Sub(v.start) >= 2*windowDur {
			delete(s.windows, k)
		}
		swept++
	}

	return count, nil
}
