package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finscope/finscope/internal/ratelimit"
)

func TestKindOf(t *testing.T) {
	auth := E("kis", KindAuth, "token expired", nil)
	assert.Equal(t, KindAuth, KindOf(auth))

	wrapped := errors.Join(errors.New("outer"), E("upbit", KindRateLimited, "429", nil))
	assert.Equal(t, KindRateLimited, KindOf(wrapped))

	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindUpstream, KindOf(errors.New("plain")))
}

func TestTransport_RetriesOn5xxThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tr := NewTransport("test", TransportConfig{Backoff: 5 * time.Millisecond})
	var out struct {
		OK bool `json:"ok"`
	}
	err := tr.GetJSON(context.Background(), srv.URL, nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestTransport_4xxNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := NewTransport("test", TransportConfig{Backoff: 5 * time.Millisecond})
	resp, err := tr.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "4xx is the caller's problem, not a retry case")
}

func TestTransport_RetriesExhaustedTagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewTransport("krx", TransportConfig{MaxRetries: 2, Backoff: 5 * time.Millisecond})
	_, err := tr.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "krx", pe.Provider)
	assert.Equal(t, KindUpstream, pe.Kind)
}

func TestTransport_429TaggedRateLimited(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := NewTransport("upbit", TransportConfig{MaxRetries: 2, Backoff: 5 * time.Millisecond})
	_, err := tr.Do(context.Background(), http.MethodGet, srv.URL, nil, nil)
	require.Error(t, err)

	assert.Equal(t, KindRateLimited, KindOf(err))
	var rbe *ratelimit.ErrRetryBudgetExhausted
	require.ErrorAs(t, err, &rbe)
	assert.Equal(t, "upbit", rbe.Limiter)
	assert.Equal(t, 2, rbe.Retries)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls), "429 is retried before it is tagged")
}

func TestTransport_SchemaMismatchTagged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	tr := NewTransport("naver", TransportConfig{})
	var out map[string]any
	err := tr.GetJSON(context.Background(), srv.URL, nil, &out)
	require.Error(t, err)
	assert.Equal(t, KindSchema, KindOf(err))
}
