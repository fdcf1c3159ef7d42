// Package auth manages the broker's shared OAuth bearer token: lazy fetch,
// expiry-buffered validation, and refresh serialised across process
// replicas by a distributed mutex in the shared store.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// TokenKey and LockKey are the well-known shared-store keys.
	TokenKey = "kis:access_token"
	LockKey  = "kis:token:lock"

	lockTTL      = 30 * time.Second
	expiryBuffer = 60 * time.Second

	preReadAttempts = 3
	preReadSpacing  = 50 * time.Millisecond

	lockPollAttempts = 30
	lockPollSpacing  = 100 * time.Millisecond
)

// ErrLockAcquisition is returned when no peer produced a valid token and
// the refresh mutex could not be taken within the polling budget.
var ErrLockAcquisition = errors.New("refresh lock acquisition failed")

// TokenRecord is the shared-store envelope for the bearer token.
type TokenRecord struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	CreatedAt   int64  `json:"created_at"`
}

// Fetcher performs the upstream OAuth exchange and reports the token with
// its advertised lifetime.
type Fetcher func(ctx context.Context) (accessToken string, expiresIn time.Duration, err error)

// Manager coordinates token reads and refreshes for one process.
type Manager struct {
	store      Store
	instanceID string
	now        func() time.Time

	mu        sync.Mutex
	lockValue string // our current refresh-lock value, empty when not held
}

// NewManager creates a token manager over the shared store.
func NewManager(store Store) *Manager {
	return &Manager{
		store:      store,
		instanceID: uuid.NewString()[:8],
		now:        time.Now,
	}
}

// valid applies the expiry buffer: a token within 60s of expiry is stale.
func (m *Manager) valid(rec *TokenRecord) bool {
	return rec != nil && rec.AccessToken != "" && m.now().Unix() < rec.ExpiresAt-int64(expiryBuffer.Seconds())
}

// read returns the current record, or nil when absent/unreadable. Store
// errors degrade to "absent": the caller will refresh.
func (m *Manager) read(ctx context.Context) *TokenRecord {
	raw, ok, err := m.store.Get(ctx, TokenKey)
	if err != nil {
		log.Warn().Err(err).Msg("token read failed, treating as absent")
		return nil
	}
	if !ok {
		return nil
	}
	var rec TokenRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		log.Warn().Err(err).Msg("token record corrupt, treating as absent")
		return nil
	}
	return &rec
}

// Token returns the cached token if still valid, or "" when a refresh is
// needed.
func (m *Manager) Token(ctx context.Context) string {
	if rec := m.read(ctx); m.valid(rec) {
		return rec.AccessToken
	}
	return ""
}

// Refresh returns a valid token, performing the OAuth exchange at most once
// per refresh epoch across all replicas. Under a stampede, all but one
// caller return the token produced by the winner.
func (m *Manager) Refresh(ctx context.Context, fetch Fetcher) (string, error) {
	// Most stampede callers should find a fresh token without touching
	// the lock at all.
	for i := 0; i < preReadAttempts; i++ {
		if rec := m.read(ctx); m.valid(rec) {
			return rec.AccessToken, nil
		}
		if i < preReadAttempts-1 {
			time.Sleep(preReadSpacing)
		}
	}

	acquired, err := m.acquireLock(ctx)
	if err != nil {
		return "", err
	}
	if !acquired {
		// A peer is refreshing; poll for its result.
		for i := 0; i < lockPollAttempts; i++ {
			time.Sleep(lockPollSpacing)
			if rec := m.read(ctx); m.valid(rec) {
				return rec.AccessToken, nil
			}
		}
		return "", ErrLockAcquisition
	}
	defer m.releaseLock(ctx)

	// A peer may have finished between our pre-reads and lock entry.
	if rec := m.read(ctx); m.valid(rec) {
		return rec.AccessToken, nil
	}

	token, expiresIn, err := fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("token fetch: %w", err)
	}

	now := m.now()
	rec := TokenRecord{
		AccessToken: token,
		ExpiresAt:   now.Add(expiresIn).Unix(),
		CreatedAt:   now.Unix(),
	}
	raw, _ := json.Marshal(rec)
	if err := m.store.Set(ctx, TokenKey, string(raw), expiresIn+expiryBuffer); err != nil {
		// Peers will each fetch their own; wasteful but not fatal.
		log.Warn().Err(err).Msg("token persist failed")
	}
	return token, nil
}

// Clear invalidates the shared token, forcing the next caller to refresh.
func (m *Manager) Clear(ctx context.Context) {
	if err := m.store.Delete(ctx, TokenKey); err != nil {
		log.Warn().Err(err).Msg("token invalidation failed")
	}
}

// Close releases a refresh lock left held by this process, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	held := m.lockValue != ""
	m.mu.Unlock()
	if held {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		m.releaseLock(ctx)
	}
	return nil
}

func (m *Manager) acquireLock(ctx context.Context) (bool, error) {
	value := fmt.Sprintf("%d:%s:%d", m.now().Unix(), m.instanceID, os.Getpid())
	ok, err := m.store.SetNX(ctx, LockKey, value, lockTTL)
	if err != nil {
		return false, fmt.Errorf("refresh lock: %w", err)
	}
	if ok {
		m.mu.Lock()
		m.lockValue = value
		m.mu.Unlock()
	}
	return ok, nil
}

// releaseLock deletes the lock only if it still holds our value. Failures
// are logged, never fatal: the 30s TTL guarantees eventual release.
func (m *Manager) releaseLock(ctx context.Context) {
	m.mu.Lock()
	value := m.lockValue
	m.lockValue = ""
	m.mu.Unlock()
	if value == "" {
		return
	}
	if err := m.store.CompareAndDelete(ctx, LockKey, value); err != nil {
		log.Warn().Err(err).Msg("refresh lock release failed, TTL will expire it")
	}
}
