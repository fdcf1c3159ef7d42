package cache

import (
	"sync"
	"time"
)

type localEntry struct {
	val      []byte
	inserted time.Time
	ttl      time.Duration
}

// localTier is the in-process fallback behind the remote KV. Entries are
// lazily pruned on read when expired.
type localTier struct {
	mu sync.Mutex
	m  map[string]localEntry
}

func newLocalTier() *localTier {
	return &localTier{m: make(map[string]localEntry)}
}

func (t *localTier) get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[key]
	if !ok {
		return nil, false
	}
	if e.ttl > 0 && time.Since(e.inserted) > e.ttl {
		delete(t.m, key)
		return nil, false
	}
	return e.val, true
}

func (t *localTier) set(key string, val []byte, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = localEntry{
		val:      append([]byte(nil), val...),
		inserted: time.Now(),
		ttl:      ttl,
	}
}

func (t *localTier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, key)
}
