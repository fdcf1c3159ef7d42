// Package krx covers the Korean bourse's bulk-data portal: the thin form
// POST client, the display-string normalisation rules, and the fetch
// service that walks trading-date candidates until data appears.
package krx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/finscope/finscope/internal/providers"
	"github.com/finscope/finscope/internal/ratelimit"
)

const providerName = "krx"

// Portal screen ids (bld values) for the daily master lists.
const (
	bldStocks     = "dbms/MDC/STAT/standard/MDCSTAT01501"
	bldETFs       = "dbms/MDC/STAT/standard/MDCSTAT04301"
	bldValuations = "dbms/MDC/STAT/standard/MDCSTAT03501"
)

// Config holds portal client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the bulk portal adapter. The portal is unauthenticated but
// aggressive callers get IP-banned, so every fetch passes the governor.
type Client struct {
	cfg       Config
	transport *providers.Transport
	limiters  *ratelimit.Registry
}

// NewClient creates the portal client.
func NewClient(cfg Config, limiters *ratelimit.Registry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://data.krx.co.kr/comm/bldAttendant/getJsonData.cmd"
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

// fetch posts one portal form and returns its rows. Empty output is not an
// error: callers advance to the next candidate date.
func (c *Client) fetch(ctx context.Context, bld string, params map[string]string) ([]rawRow, error) {
	c.limiters.Get(providerName, bld, ratelimit.Window{Rate: 2, Period: time.Second}).Acquire(nil)

	form := url.Values{"bld": {bld}}
	for k, v := range params {
		form.Set(k, v)
	}

	resp, err := c.transport.Do(ctx, http.MethodPost, c.cfg.BaseURL,
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		[]byte(form.Encode()))
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusOK {
		return nil, providers.E(providerName, providers.KindUpstream, fmt.Sprintf("portal status %d", resp.Status), nil)
	}

	var env struct {
		OutBlock []rawRow `json:"OutBlock_1"`
		Output   []rawRow `json:"output"`
	}
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, providers.E(providerName, providers.KindSchema, "portal response malformed", err)
	}
	if len(env.OutBlock) > 0 {
		return env.OutBlock, nil
	}
	return env.Output, nil
}

// Stocks fetches the stock master list for one market and date.
func (c *Client) Stocks(ctx context.Context, marketID, date string) ([]Stock, error) {
	rows, err := c.fetch(ctx, bldStocks, map[string]string{"mktId": marketID, "trdDd": date})
	if err != nil {
		return nil, err
	}
	out := make([]Stock, 0, len(rows))
	for _, row := range rows {
		if row["ISU_SRT_CD"] == "" {
			continue
		}
		out = append(out, normalizeStock(row))
	}
	return out, nil
}

// ETFs fetches the ETF master list; clsCode optionally narrows by index
// classification.
func (c *Client) ETFs(ctx context.Context, clsCode, date string) ([]ETF, error) {
	params := map[string]string{"trdDd": date}
	if clsCode != "" {
		params["idxClsCd"] = clsCode
	}
	rows, err := c.fetch(ctx, bldETFs, params)
	if err != nil {
		return nil, err
	}
	out := make([]ETF, 0, len(rows))
	for _, row := range rows {
		if row["ISU_SRT_CD"] == "" {
			continue
		}
		out = append(out, normalizeETF(row))
	}
	return out, nil
}

// Valuations fetches per-issue PER/PBR/dividend rows.
func (c *Client) Valuations(ctx context.Context, marketID, date string) ([]Valuation, error) {
	rows, err := c.fetch(ctx, bldValuations, map[string]string{"mktId": marketID, "trdDd": date})
	if err != nil {
		return nil, err
	}
	out := make([]Valuation, 0, len(rows))
	for _, row := range rows {
		if row["ISU_SRT_CD"] == "" {
			continue
		}
		out = append(out, normalizeValuation(row))
	}
	return out, nil
}

// Fetch implements providers.Adapter.
func (c *Client) Fetch(ctx context.Context, resource string, params map[string]string) (any, error) {
	switch resource {
	case "stocks":
		return c.Stocks(ctx, params["market"], params["date"])
	case "etfs":
		return c.ETFs(ctx, params["cls"], params["date"])
	case "valuations":
		return c.Valuations(ctx, params["market"], params["date"])
	default:
		return nil, providers.E(providerName, providers.KindValidation, "unknown resource "+resource, nil)
	}
}

// InvalidateCredentials is a no-op: the portal is unauthenticated.
func (c *Client) InvalidateCredentials(context.Context) {}
