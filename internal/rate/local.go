package rate

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const localIdleTTL = 10 * time.Minute

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// Local is an in-process token bucket per key. It does not coordinate
// across instances.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	every   rate.Limit
	burst   int
	now     func() time.Time
	sweptAt time.Time
}

// NewLocal allows burst hits immediately and then limit hits per window.
func NewLocal(limit int, window time.Duration, burst int) *Local {
	if burst < 1 {
		burst = 1
	}
	return &Local{
		buckets: make(map[string]*bucket),
		every:   rate.Limit(float64(limit) / window.Seconds()),
		burst:   burst,
		now:     time.Now,
	}
}

// Allow consumes a token for key.
func (l *Local) Allow(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.ts = now
	if !b.lim.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

// Reset drops the key's bucket.
func (l *Local) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
	return nil
}

func (l *Local) sweep(now time.Time) {
	if now.Sub(l.sweptAt) < time.Minute {
		return
	}
	l.sweptAt = now
	for k, b := range l.buckets {
		if now.Sub(b.ts) > localIdleTTL {
			delete(l.buckets, k)
		}
	}
}
