package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-process Store with real SET-if-absent and
// compare-and-delete semantics, optionally failing on demand.
type fakeStore struct {
	mu      sync.Mutex
	m       map[string]fakeEntry
	failGet bool
	failCAD bool
}

type fakeEntry struct {
	val string
	exp time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{m: make(map[string]fakeEntry)}
}

func (s *fakeStore) live(key string) (fakeEntry, bool) {
	e, ok := s.m[key]
	if !ok || (!e.exp.IsZero() && time.Now().After(e.exp)) {
		delete(s.m, key)
		return fakeEntry{}, false
	}
	return e, true
}

func (s *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return "", false, errors.New("store unavailable")
	}
	e, ok := s.live(key)
	return e.val, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key, val string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := fakeEntry{val: val}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	s.m[key] = e
	return nil
}

func (s *fakeStore) SetNX(_ context.Context, key, val string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	e := fakeEntry{val: val}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	s.m[key] = e
	return true, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *fakeStore) CompareAndDelete(_ context.Context, key, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCAD {
		return errors.New("store unavailable")
	}
	if e, ok := s.live(key); ok && e.val == val {
		delete(s.m, key)
	}
	return nil
}

func TestRefresh_Stampede_SingleFetch(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	var fetches int32
	fetch := func(context.Context) (string, time.Duration, error) {
		atomic.AddInt32(&fetches, 1)
		time.Sleep(100 * time.Millisecond)
		return "T", time.Hour, nil
	}

	const callers = 50
	tokens := make([]string, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := NewManager(store)
			tokens[i], errs[i] = m.Refresh(ctx, fetch)
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt32(&fetches), "exactly one OAuth exchange per refresh epoch")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "T", tokens[i])
	}

	// A later reader sees the same token without another fetch.
	m := NewManager(store)
	got, err := m.Refresh(ctx, fetch)
	require.NoError(t, err)
	assert.Equal(t, "T", got)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetches))
}

func TestRefresh_ValidTokenShortCircuits(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	m := NewManager(store)

	_, err := m.Refresh(ctx, func(context.Context) (string, time.Duration, error) {
		return "T1", time.Hour, nil
	})
	require.NoError(t, err)

	got, err := m.Refresh(ctx, func(context.Context) (string, time.Duration, error) {
		t.Fatal("fetcher must not run while a valid token exists")
		return "", 0, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "T1", got)
}

func TestRefresh_ExpiryBuffer(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	m := NewManager(store)

	// Token that expires in 30s: inside the 60s buffer, so invalid.
	_, err := m.Refresh(ctx, func(context.Context) (string, time.Duration, error) {
		return "SHORT", 30 * time.Second, nil
	})
	require.NoError(t, err)
	assert.Empty(t, m.Token(ctx), "token inside expiry buffer must be treated as invalid")

	got, err := m.Refresh(ctx, func(context.Context) (string, time.Duration, error) {
		return "LONG", time.Hour, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "LONG", got)
	assert.Equal(t, "LONG", m.Token(ctx))
}

func TestRefresh_FetcherErrorReleasesLock(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	m := NewManager(store)

	_, err := m.Refresh(ctx, func(context.Context) (string, time.Duration, error) {
		return "", 0, errors.New("upstream 500")
	})
	require.Error(t, err)

	// Lock must be gone: a second refresh proceeds immediately.
	got, err := m.Refresh(ctx, func(context.Context) (string, time.Duration, error) {
		return "T2", time.Hour, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "T2", got)
}

func TestReleaseLock_OnlyHolderValueIsDeleted(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	m := NewManager(store)

	ok, err := m.acquireLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A peer steals the key (as if our TTL had fired and it re-acquired).
	require.NoError(t, store.Set(ctx, LockKey, "peer-value", lockTTL))

	m.releaseLock(ctx)
	val, present, err := store.Get(ctx, LockKey)
	require.NoError(t, err)
	assert.True(t, present, "peer's lock must survive our release")
	assert.Equal(t, "peer-value", val)
}

func TestReleaseLock_SurvivesStoreFailure(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	m := NewManager(store)

	ok, err := m.acquireLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	store.failCAD = true
	m.releaseLock(ctx) // must not panic or error out
	store.failCAD = false

	// TTL-based expiry is the fallback; here we just confirm the manager
	// cleared its held value.
	assert.NoError(t, m.Close())
}

func TestClear_ForcesRefetch(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	m := NewManager(store)

	_, err := m.Refresh(ctx, func(context.Context) (string, time.Duration, error) {
		return "T1", time.Hour, nil
	})
	require.NoError(t, err)

	m.Clear(ctx)
	assert.Empty(t, m.Token(ctx))

	got, err := m.Refresh(ctx, func(context.Context) (string, time.Duration, error) {
		return "T2", time.Hour, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "T2", got)
}

func TestRedisStore_GetAndSetNX(t *testing.T) {
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db)
	ctx := context.Background()

	mock.ExpectGet(TokenKey).RedisNil()
	_, ok, err := s.Get(ctx, TokenKey)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectSetNX(LockKey, "v", lockTTL).SetVal(true)
	got, err := s.SetNX(ctx, LockKey, "v", lockTTL)
	require.NoError(t, err)
	assert.True(t, got)

	require.NoError(t, mock.ExpectationsWereMet())
}
