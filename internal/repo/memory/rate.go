package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type window struct {
	count     int64
	expiresAt time.Time
}

// RateStore is a fixed-window counter with the same contract as the Redis
// rate repo, for single-process deployments.
type RateStore struct {
	mu      sync.Mutex
	windows map[string]window
	now     func() time.Time
}

func NewRateStore() *RateStore {
	return &RateStore{windows: make(map[string]window), now: time.Now}
}

func (s *RateStore) IncrementWindow(_ context.Context, key string, size time.Duration) (int64, time.Duration, error) {
	if key == "" || size <= 0 {
		return 0, 0, fmt.Errorf("invalid rate window payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = window{expiresAt: now.Add(size)}
	}
	w.count++
	s.windows[key] = w
	return w.count, w.expiresAt.Sub(now), nil
}
