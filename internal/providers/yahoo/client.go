// Package yahoo is the adapter over the US-market quote service: equity
// screener queries expressed in its JSON operator DSL, plus daily closes
// for indicator enrichment.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/finscope/finscope/internal/providers"
	"github.com/finscope/finscope/internal/ratelimit"
)

const providerName = "yahoo"

const (
	epScreener = "POST /v1/finance/screener"
	epChart    = "GET /v8/finance/chart"
)

// Screened is one normalised screener row.
type Screened struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	ChangeRate    float64 `json:"change_rate"`
	Volume        float64 `json:"volume"`
	MarketCap     float64 `json:"market_cap"`
	PER           float64 `json:"per"`
	PBR           float64 `json:"pbr"`
	DividendYield float64 `json:"dividend_yield"`
}

// Query is the subset of screener filters the pipeline translates.
type Query struct {
	MinMarketCap     float64
	MaxPER           float64
	MaxPBR           float64
	MinDividendYield float64 // decimal, e.g. 0.03
	SortBy           string
	SortOrder        string
	Limit            int
}

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the US screener adapter.
type Client struct {
	cfg       Config
	transport *providers.Transport
	limiters  *ratelimit.Registry
}

// New creates the screener client.
func New(cfg Config, limiters *ratelimit.Registry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://query2.finance.yahoo.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:       cfg,
		transport: providers.NewTransport(providerName, providers.TransportConfig{Timeout: cfg.Timeout}),
		limiters:  limiters,
	}
}

// dsl builds the upstream operator tree for a query.
func dsl(q Query) map[string]any {
	operands := []any{
		map[string]any{"operator": "eq", "operands": []any{"region", "us"}},
	}
	if q.MinMarketCap > 0 {
		operands = append(operands, map[string]any{"operator": "gt", "operands": []any{"intradaymarketcap", q.MinMarketCap}})
	}
	if q.MaxPER > 0 {
		operands = append(operands, map[string]any{"operator": "lt", "operands": []any{"peratio.lasttwelvemonths", q.MaxPER}})
	}
	if q.MaxPBR > 0 {
		operands = append(operands, map[string]any{"operator": "lt", "operands": []any{"pricebookratio.quarterly", q.MaxPBR}})
	}
	if q.MinDividendYield > 0 {
		// Upstream speaks percent.
		operands = append(operands, map[string]any{"operator": "gt", "operands": []any{"forward_dividend_yield", q.MinDividendYield * 100}})
	}

	sortField := map[string]string{
		"market_cap":     "intradaymarketcap",
		"volume":         "dayvolume",
		"change_rate":    "percentchange",
		"dividend_yield": "forward_dividend_yield",
		"price":          "intradayprice",
	}[q.SortBy]
	if sortField == "" {
		sortField = "intradaymarketcap"
	}
	sortType := "DESC"
	if q.SortOrder == "asc" {
		sortType = "ASC"
	}

	size := q.Limit
	if size <= 0 || size > 150 {
		size = 150
	}
	return map[string]any{
		"size":      size,
		"offset":    0,
		"sortField": sortField,
		"sortType":  sortType,
		"quoteType": "EQUITY",
		"query":     map[string]any{"operator": "and", "operands": operands},
	}
}

// Screen runs a screener query and returns normalised rows. Rows without a
// usable price are dropped.
func (c *Client) Screen(ctx context.Context, q Query) ([]Screened, error) {
	c.limiters.Get(providerName, epScreener).Acquire(nil)

	body, _ := json.Marshal(dsl(q))
	resp, err := c.transport.Do(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/finance/screener",
		map[string]string{"Content-Type": "application/json"}, body)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, providers.E(providerName, providers.KindUpstream, fmt.Sprintf("screener status %d", resp.Status), nil)
	}

	var env struct {
		Finance struct {
			Result []struct {
				Quotes []struct {
					Symbol                     string  `json:"symbol"`
					ShortName                  string  `json:"shortName"`
					RegularMarketPrice         float64 `json:"regularMarketPrice"`
					RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
					RegularMarketVolume        float64 `json:"regularMarketVolume"`
					MarketCap                  float64 `json:"marketCap"`
					TrailingPE                 float64 `json:"trailingPE"`
					PriceToBook                float64 `json:"priceToBook"`
					DividendYield              float64 `json:"dividendYield"`
				} `json:"quotes"`
			} `json:"result"`
		} `json:"finance"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, providers.E(providerName, providers.KindSchema, "screener response malformed", err)
	}
	if len(env.Finance.Result) == 0 {
		return nil, nil
	}

	quotes := env.Finance.Result[0].Quotes
	out := make([]Screened, 0, len(quotes))
	for _, r := range quotes {
		if r.RegularMarketPrice <= 0 {
			continue
		}
		out = append(out, Screened{
			Symbol:        r.Symbol,
			Name:          r.ShortName,
			Price:         r.RegularMarketPrice,
			ChangeRate:    r.RegularMarketChangePercent,
			Volume:        r.RegularMarketVolume,
			MarketCap:     r.MarketCap,
			PER:           r.TrailingPE,
			PBR:           r.PriceToBook,
			DividendYield: r.DividendYield / 100,
		})
	}
	return out, nil
}

// Closes returns daily closing prices for a symbol, oldest first.
func (c *Client) Closes(ctx context.Context, symbol string, days int) ([]float64, error) {
	c.limiters.Get(providerName, epChart).Acquire(nil)

	rng := "3mo"
	if days > 66 {
		rng = "6mo"
	}
	var env struct {
		Chart struct {
			Result []struct {
				Indicators struct {
					Quote []struct {
						Close []*float64 `json:"close"`
					} `json:"quote"`
				} `json:"indicators"`
			} `json:"result"`
		} `json:"chart"`
	}
	url := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d", c.cfg.BaseURL, symbol, rng)
	if err := c.transport.GetJSON(ctx, url, nil, &env); err != nil {
		return nil, err
	}
	if len(env.Chart.Result) == 0 || len(env.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, providers.E(providerName, providers.KindSchema, "chart response missing quote block", nil)
	}

	raw := env.Chart.Result[0].Indicators.Quote[0].Close
	closes := make([]float64, 0, len(raw))
	for _, p := range raw {
		if p != nil {
			closes = append(closes, *p)
		}
	}
	if days > 0 && len(closes) > days {
		closes = closes[len(closes)-days:]
	}
	return closes, nil
}

// Fetch implements providers.Adapter.
func (c *Client) Fetch(ctx context.Context, resource string, params map[string]string) (any, error) {
	switch resource {
	case "closes":
		days := 30
		fmt.Sscanf(params["days"], "%d", &days)
		return c.Closes(ctx, params["symbol"], days)
	default:
		return nil, providers.E(providerName, providers.KindValidation, "unknown resource "+resource, nil)
	}
}

// InvalidateCredentials is a no-op for the public quote service.
func (c *Client) InvalidateCredentials(context.Context) {}
