package kis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finscope/finscope/internal/auth"
	"github.com/finscope/finscope/internal/providers"
	"github.com/finscope/finscope/internal/ratelimit"
)

// memStore is a minimal in-process auth.Store for adapter tests.
type memStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemStore() *memStore { return &memStore{m: make(map[string]string)} }

func (s *memStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok, nil
}
func (s *memStore) Set(_ context.Context, key, val string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = val
	return nil
}
func (s *memStore) SetNX(_ context.Context, key, val string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false, nil
	}
	s.m[key] = val
	return true, nil
}
func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
func (s *memStore) CompareAndDelete(_ context.Context, key, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m[key] == val {
		delete(s.m, key)
	}
	return nil
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	limiters := ratelimit.NewRegistry()
	tokens := auth.NewManager(newMemStore())
	c := New(Config{BaseURL: srv.URL, AppKey: "k", AppSecret: "s"}, limiters, tokens)
	return c, srv
}

func tokenResponse(w http.ResponseWriter, token string) {
	json.NewEncoder(w).Encode(map[string]any{"access_token": token, "expires_in": 86400})
}

func TestRanking_NormalisesRows(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenResponse(w, "T")
			return
		}
		assert.Equal(t, "Bearer T", r.Header.Get("authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "0",
			"output": []map[string]string{
				{"mksc_shrn_iscd": "005930", "hts_kor_isnm": "삼성전자", "stck_prpr": "71,500", "prdy_ctrt": "1.25", "acml_vol": "12,345,678"},
				{"mksc_shrn_iscd": "000660", "hts_kor_isnm": "SK하이닉스", "stck_prpr": "178,000", "prdy_ctrt": "-0.84", "acml_vol": "3,456,789"},
			},
		})
	}))

	rows, err := c.Ranking(context.Background(), RankVolume)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "005930", rows[0].Code)
	assert.Equal(t, 71500.0, rows[0].Close)
	assert.Equal(t, 12345678.0, rows[0].Volume)
	assert.Equal(t, -0.84, rows[1].ChangeRate)
	assert.Equal(t, 1, rows[0].Rank)
}

func TestCall_TokenExpiredRetriesOnce(t *testing.T) {
	var dataCalls, tokenCalls int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			n := atomic.AddInt32(&tokenCalls, 1)
			if n == 1 {
				tokenResponse(w, "STALE")
			} else {
				tokenResponse(w, "FRESH")
			}
			return
		}
		if atomic.AddInt32(&dataCalls, 1) == 1 {
			json.NewEncoder(w).Encode(map[string]any{"rt_cd": "1", "msg_cd": "EGW00123", "msg1": "token expired"})
			return
		}
		assert.Equal(t, "Bearer FRESH", r.Header.Get("authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd":  "0",
			"output": []map[string]string{{"mksc_shrn_iscd": "005930", "stck_prpr": "70000"}},
		})
	}))

	rows, err := c.Ranking(context.Background(), RankVolume)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 2, atomic.LoadInt32(&dataCalls), "one invalidate-and-retry only")
	assert.EqualValues(t, 2, atomic.LoadInt32(&tokenCalls))
}

func TestCall_PersistentAuthFailureSurfaces(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenResponse(w, "T")
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"rt_cd": "1", "msg_cd": "EGW00123", "msg1": "token expired"})
	}))

	_, err := c.Ranking(context.Background(), RankVolume)
	require.Error(t, err)
	assert.Equal(t, providers.KindAuth, providers.KindOf(err))
}

func TestMaxWorkDate(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenResponse(w, "T")
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd":  "0",
			"output": []map[string]string{{"max_work_dt": "20250103"}},
		})
	}))

	d, err := c.MaxWorkDate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "20250103", d)
}

func TestDailyCandles_OldestFirstAndTrimmed(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/tokenP" {
			tokenResponse(w, "T")
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"rt_cd": "0",
			"output": []map[string]string{
				{"stck_bsop_date": "20250103", "stck_clpr": "300"},
				{"stck_bsop_date": "20250102", "stck_clpr": "200"},
				{"stck_bsop_date": "20250101", "stck_clpr": "100"},
			},
		})
	}))

	candles, err := c.DailyCandles(context.Background(), "005930", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "20250102", candles[0].Date)
	assert.Equal(t, "20250103", candles[1].Date)
	assert.Equal(t, 300.0, candles[1].Close)
}
