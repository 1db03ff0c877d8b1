package ratelimit

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-process counters. Expired
// counters are reaped by a background janitor; call Close to stop it.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter

	janitor   *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

type memoryCounter struct {
	value     int64
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory counter store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		counters: make(map[string]*memoryCounter),
		janitor:  time.NewTicker(time.Minute),
		done:     make(chan struct{}),
	}

	go s.runJanitor()

	return s
}

// IncrementWindow implements Store.
func (s *MemoryStore) IncrementWindow(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok || now.After(c.expiresAt) {
		s.counters[key] = &memoryCounter{
			value:     1,
			expiresAt: now.Add(expiration),
		}
		return 1, nil
	}

	c.value++
	return c.value, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)
	return nil
}

// Ping implements Store. The memory store is always reachable.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close implements Store. Safe to call multiple times.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.janitor.Stop()
		close(s.done)
	})
	return nil
}

// Len returns the number of live counters.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.counters)
}

func (s *MemoryStore) runJanitor() {
	for {
		select {
		case <-s.janitor.C:
			s.reapExpired(time.Now())
		case <-s.done:
			return
		}
	}
}

func (s *MemoryStore) reapExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, c := range s.counters {
		if now.After(c.expiresAt) {
			delete(s.counters, key)
		}
	}
}
