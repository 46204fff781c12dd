package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	ts     time.Time
}

// MemoryBucket is the single-process token bucket used without redis.
type MemoryBucket struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
	now     func() time.Time
}

func NewMemoryBucket(rate float64, burst int) (*MemoryBucket, error) {
	if rate <= 0 || burst <= 0 {
		return nil, errors.New("rate limit rate and burst must be positive")
	}
	return &MemoryBucket{buckets: make(map[string]*bucket), rate: rate, burst: burst, now: time.Now}, nil
}

func (m *MemoryBucket) Allow(_ context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(m.burst), ts: now}
		m.buckets[key] = b
	} else {
		elapsed := math.Max(0, now.Sub(b.ts).Seconds())
		b.tokens = math.Min(float64(m.burst), b.tokens+elapsed*m.rate)
		b.ts = now
	}

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	return result(allowed, b.tokens, m.rate), nil
}
