// Package coingecko backfills crypto market caps from the external ranking
// source. The domestic exchange does not publish caps, so the crypto
// screener joins against this 10-minute snapshot.
package coingecko

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finscope/finscope/internal/providers"
)

const providerName = "coingecko"

// ErrStaleSnapshot reports that the returned snapshot is past its TTL
// because the refresh failed; callers surface a warning but keep the data.
var ErrStaleSnapshot = errors.New("market-cap snapshot is stale")

const snapshotTTL = 10 * time.Minute

// Snapshot maps base symbol (upper case, e.g. "BTC") to market cap in KRW.
type Snapshot struct {
	Caps      map[string]float64
	FetchedAt time.Time
}

// Age reports how old the snapshot is.
func (s *Snapshot) Age() time.Duration { return time.Since(s.FetchedAt) }

// Stale reports whether the snapshot has outlived its TTL.
func (s *Snapshot) Stale() bool { return s.Age() > snapshotTTL }

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client fetches and caches the ranking snapshot.
type Client struct {
	cfg       Config
	transport *providers.Transport

	mu   sync.Mutex
	last *Snapshot
}

// New creates the ranking client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:       cfg,
		transport: providers.NewTransport(providerName, providers.TransportConfig{Timeout: cfg.Timeout, MaxRetries: 2}),
	}
}

// MarketCaps returns the current snapshot, refreshing it past the TTL.
// A failed refresh degrades to the prior snapshot with ErrStaleSnapshot;
// with no prior snapshot the fetch error is returned.
func (c *Client) MarketCaps(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && !c.last.Stale() {
		return c.last, nil
	}

	snap, err := c.fetch(ctx)
	if err != nil {
		if c.last != nil {
			log.Warn().Err(err).Dur("age", c.last.Age()).Msg("market-cap refresh failed, serving stale snapshot")
			return c.last, ErrStaleSnapshot
		}
		return nil, err
	}
	c.last = snap
	return snap, nil
}

func (c *Client) fetch(ctx context.Context) (*Snapshot, error) {
	var rows []struct {
		Symbol    string  `json:"symbol"`
		MarketCap float64 `json:"market_cap"`
	}
	url := c.cfg.BaseURL + "/api/v3/coins/markets?vs_currency=krw&order=market_cap_desc&per_page=250&page=1"
	if err := c.transport.GetJSON(ctx, url, nil, &rows); err != nil {
		return nil, err
	}

	caps := make(map[string]float64, len(rows))
	for _, r := range rows {
		sym := strings.ToUpper(r.Symbol)
		// Keep the largest entry when symbols collide across chains.
		if r.MarketCap > caps[sym] {
			caps[sym] = r.MarketCap
		}
	}
	return &Snapshot{Caps: caps, FetchedAt: time.Now()}, nil
}

// Fetch implements providers.Adapter.
func (c *Client) Fetch(ctx context.Context, resource string, _ map[string]string) (any, error) {
	switch resource {
	case "market_caps":
		return c.MarketCaps(ctx)
	default:
		return nil, providers.E(providerName, providers.KindValidation, "unknown resource "+resource, nil)
	}
}

// InvalidateCredentials is a no-op for the public ranking API.
func (c *Client) InvalidateCredentials(context.Context) {}
