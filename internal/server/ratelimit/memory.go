package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/authcore/internal/server/models"
)

type memoryEntry struct {
	rec     models.RateLimitRecord
	resetAt time.Time
}

// MemoryStore is a process-local Store. Counters are not shared between
// instances; use RedisStore when running more than one.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (int, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = &memoryEntry{
			rec:     models.RateLimitRecord{Identifier: key, WindowStart: now},
			resetAt: now.Add(window),
		}
		s.entries[key] = e
	}
	e.rec.Count++
	return e.rec.Count, e.resetAt, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Prune drops every window that has ended by now and returns how many were
// removed.
func (s *MemoryStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, e := range s.entries {
		if !now.Before(e.resetAt) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run prunes on every tick of interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Prune(now)
		}
	}
}
