package coingecko

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketCaps_FetchAndCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode([]map[string]any{
			{"symbol": "btc", "market_cap": 2.7e15},
			{"symbol": "eth", "market_cap": 5.6e14},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	snap, err := c.MarketCaps(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.7e15, snap.Caps["BTC"])

	// Within TTL: cached, no second call.
	snap2, err := c.MarketCaps(ctx)
	require.NoError(t, err)
	assert.Same(t, snap, snap2)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestMarketCaps_StaleFallback(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{{"symbol": "btc", "market_cap": 1.0}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	ctx := context.Background()

	snap, err := c.MarketCaps(ctx)
	require.NoError(t, err)

	// Force expiry, then break the upstream.
	c.mu.Lock()
	c.last.FetchedAt = time.Now().Add(-time.Hour)
	c.mu.Unlock()
	fail.Store(true)

	stale, err := c.MarketCaps(ctx)
	assert.ErrorIs(t, err, ErrStaleSnapshot)
	require.NotNil(t, stale)
	assert.Equal(t, snap.Caps, stale.Caps)
	assert.True(t, stale.Stale())
}

func TestMarketCaps_TotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	snap, err := c.MarketCaps(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleSnapshot)
	assert.Nil(t, snap)
}

func TestMarketCaps_SymbolCollisionKeepsLargest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"symbol": "grt", "market_cap": 100.0},
			{"symbol": "grt", "market_cap": 900.0},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	snap, err := c.MarketCaps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 900.0, snap.Caps["GRT"])
}
