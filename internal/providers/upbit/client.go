// Package upbit is the adapter over the KRW-pair crypto exchange's public
// REST API. No authentication; every endpoint is guarded by the shared
// rate governor.
package upbit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/finscope/finscope/internal/providers"
	"github.com/finscope/finscope/internal/ratelimit"
)

const providerName = "upbit"

const (
	epMarkets = "GET /v1/market/all"
	epTicker  = "GET /v1/ticker"
	epCandles = "GET /v1/candles/days"
)

// Market is one listed pair with the exchange's own caution flags.
type Market struct {
	Market      string `json:"market"`
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`
	// Warning carries the exchange flag verbatim; see Flagged.
	Warning string `json:"warning"`
}

// Flagged reports whether the exchange marked the pair for elevated
// investor caution, across the flag spellings seen in the wild.
func (m Market) Flagged() bool {
	switch strings.ToUpper(strings.TrimSpace(m.Warning)) {
	case "CAUTION", "WARNING", "TRUE", "Y", "1":
		return true
	}
	return false
}

// Ticker is the 24h snapshot for one pair.
type Ticker struct {
	Market           string  `json:"market"`
	TradePrice       float64 `json:"trade_price"`
	SignedChangeRate float64 `json:"signed_change_rate"`
	AccTradePrice24h float64 `json:"acc_trade_price_24h"`
	AccTradeVolume   float64 `json:"acc_trade_volume_24h"`
}

// Candle is one daily OHLCV bar.
type Candle struct {
	Market string  `json:"market"`
	Date   string  `json:"candle_date_time_kst"`
	Open   float64 `json:"opening_price"`
	High   float64 `json:"high_price"`
	Low    float64 `json:"low_price"`
	Close  float64 `json:"trade_price"`
	Volume float64 `json:"candle_acc_trade_volume"`
}

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the crypto exchange adapter.
type Client struct {
	cfg       Config
	transport *providers.Transport
	limiters  *ratelimit.Registry
}

// New creates the exchange client.
func New(cfg Config, limiters *ratelimit.Registry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.upbit.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg:       cfg,
		transport: providers.NewTransport(providerName, providers.TransportConfig{Timeout: cfg.Timeout}),
		limiters:  limiters,
	}
}

// Markets lists KRW pairs with their caution flags.
func (c *Client) Markets(ctx context.Context) ([]Market, error) {
	c.limiters.Get(providerName, epMarkets).Acquire(nil)

	var raw []struct {
		Market        string `json:"market"`
		KoreanName    string `json:"korean_name"`
		EnglishName   string `json:"english_name"`
		MarketWarning string `json:"market_warning"`
		MarketEvent   struct {
			Warning bool `json:"warning"`
		} `json:"market_event"`
	}
	if err := c.transport.GetJSON(ctx, c.cfg.BaseURL+"/v1/market/all?isDetails=true", nil, &raw); err != nil {
		return nil, err
	}

	out := make([]Market, 0, len(raw))
	for _, r := range raw {
		if !strings.HasPrefix(r.Market, "KRW-") {
			continue
		}
		warning := r.MarketWarning
		if r.MarketEvent.Warning {
			warning = "WARNING"
		}
		out = append(out, Market{
			Market:      r.Market,
			KoreanName:  r.KoreanName,
			EnglishName: r.EnglishName,
			Warning:     warning,
		})
	}
	return out, nil
}

// Tickers fetches 24h snapshots for the given pairs, preserving order.
func (c *Client) Tickers(ctx context.Context, markets []string) ([]Ticker, error) {
	if len(markets) == 0 {
		return nil, nil
	}
	c.limiters.Get(providerName, epTicker).Acquire(nil)

	var out []Ticker
	url := fmt.Sprintf("%s/v1/ticker?markets=%s", c.cfg.BaseURL, strings.Join(markets, ","))
	if err := c.transport.GetJSON(ctx, url, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DailyCandles returns up to count daily bars, oldest first.
func (c *Client) DailyCandles(ctx context.Context, market string, count int) ([]Candle, error) {
	c.limiters.Get(providerName, epCandles).Acquire(nil)

	var out []Candle
	url := fmt.Sprintf("%s/v1/candles/days?market=%s&count=%d", c.cfg.BaseURL, market, count)
	if err := c.transport.GetJSON(ctx, url, nil, &out); err != nil {
		return nil, err
	}
	// Upstream serves newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Fetch implements providers.Adapter.
func (c *Client) Fetch(ctx context.Context, resource string, params map[string]string) (any, error) {
	switch resource {
	case "markets":
		return c.Markets(ctx)
	case "tickers":
		return c.Tickers(ctx, strings.Split(params["markets"], ","))
	case "daily_candles":
		count := 30
		if v := params["count"]; v != "" {
			fmt.Sscanf(v, "%d", &count)
		}
		return c.DailyCandles(ctx, params["market"], count)
	default:
		return nil, providers.E(providerName, providers.KindValidation, "unknown resource "+resource, nil)
	}
}

// InvalidateCredentials is a no-op: public endpoints carry no credentials.
func (c *Client) InvalidateCredentials(context.Context) {}
