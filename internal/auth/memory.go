package auth

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps tokens in-process. Single-replica deployments without
// a shared Redis still get the refresh serialization, just not across
// processes.
type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	val      string
	expireAt time.Time
}

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	return &memoryStore{entries: map[string]memoryEntry{}}
}

func (s *memoryStore) get(key string) (string, bool) {
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		delete(s.entries, key)
		return "", false
	}
	return e.val, true
}

func (s *memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.get(key)
	return val, ok, nil
}

func (s *memoryStore) Set(_ context.Context, key, val string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entryWithTTL(val, ttl)
	return nil
}

func (s *memoryStore) SetNX(_ context.Context, key, val string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.get(key); held {
		return false, nil
	}
	s.entries[key] = entryWithTTL(val, ttl)
	return true, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) CompareAndDelete(_ context.Context, key, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.get(key); ok && cur == val {
		delete(s.entries, key)
	}
	return nil
}

func entryWithTTL(val string, ttl time.Duration) memoryEntry {
	e := memoryEntry{val: val}
	if ttl > 0 {
		e.expireAt = time.Now().Add(ttl)
	}
	return e
}
