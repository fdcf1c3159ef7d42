package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/finscope/finscope/internal/metrics"
	"github.com/finscope/finscope/internal/ratelimit"
)

// Transport is the breaker-guarded HTTP layer shared by all adapters:
// bounded retry with backoff on network errors and 5xx, per-provider
// timeouts, provider-tagged errors out.
type Transport struct {
	provider   string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	backoff    time.Duration
	userAgent  string
}

// TransportConfig carries the per-adapter tuning knobs; zero values get
// conservative defaults.
type TransportConfig struct {
	Timeout    time.Duration // per-call wall clock, 5-15s per adapter
	MaxRetries int
	Backoff    time.Duration
	UserAgent  string
}

// NewTransport builds the shared HTTP layer for one provider.
func NewTransport(provider string, cfg TransportConfig) *Transport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff == 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "FinScope/1.0"
	}
	return &Transport{
		provider: provider,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		breaker:    newBreaker(provider),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
		userAgent:  cfg.UserAgent,
	}
}

// Response is the raw outcome of one upstream call.
type Response struct {
	Status int
	Body   []byte
}

// errUpstreamRateLimit marks a 429 attempt inside the retry loop.
var errUpstreamRateLimit = errors.New("upstream status 429")

// Do executes the request through the breaker with bounded retries.
// 4xx responses are returned without retry, the caller interprets them,
// except 429: the upstream is shedding load, so it is retried like a 5xx
// and tagged rate-limited once the budget is spent.
func (t *Transport) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	metrics.ProviderRequests.WithLabelValues(t.provider).Inc()

	var lastErr error
	for attempt := 0; attempt < t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(t.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, t.tag(KindTimeout, "request cancelled", ctx.Err())
			}
		}

		resp, err := t.once(ctx, method, url, headers, body)
		switch {
		case err == nil && resp.Status == http.StatusTooManyRequests:
			lastErr = errUpstreamRateLimit
		case err == nil && resp.Status < 500:
			return resp, nil
		case err != nil:
			lastErr = err
		default:
			lastErr = fmt.Errorf("upstream status %d", resp.Status)
		}
		log.Debug().Err(lastErr).Str("provider", t.provider).Int("attempt", attempt+1).Str("url", url).Msg("upstream call failed")
	}

	kind := KindUpstream
	switch {
	case errors.Is(lastErr, errUpstreamRateLimit):
		kind = KindRateLimited
		lastErr = &ratelimit.ErrRetryBudgetExhausted{Limiter: t.provider, Retries: t.maxRetries}
	case errors.Is(lastErr, context.DeadlineExceeded):
		kind = KindTimeout
	}
	metrics.ProviderErrors.WithLabelValues(t.provider, string(kind)).Inc()
	return nil, t.tag(kind, "retries exhausted", lastErr)
}

func (t *Transport) once(ctx context.Context, method, url string, headers map[string]string, body []byte) (*Response, error) {
	out, err := t.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", t.userAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		r := &Response{Status: resp.StatusCode, Body: raw}
		if resp.StatusCode >= 500 {
			// Feed the breaker, but hand the response back for logging.
			return r, fmt.Errorf("upstream status %d", resp.StatusCode)
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, t.tag(KindUpstream, "circuit open", err)
		}
		if r, ok := out.(*Response); ok {
			return r, err
		}
		return nil, err
	}
	return out.(*Response), nil
}

// GetJSON performs a GET and decodes the body into out.
func (t *Transport) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	resp, err := t.Do(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return err
	}
	if resp.Status != http.StatusOK {
		return t.tag(KindUpstream, fmt.Sprintf("unexpected status %d", resp.Status), nil)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return t.tag(KindSchema, "response body is not the expected shape", err)
	}
	return nil
}

func (t *Transport) tag(kind Kind, message string, err error) *Error {
	return E(t.provider, kind, message, err)
}
