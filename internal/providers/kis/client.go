// Package kis is the adapter over the Korean investment broker's OAuth
// bearer REST API: rankings, daily candles, and the self-reported working
// date the trading-date resolver consults.
package kis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finscope/finscope/internal/auth"
	"github.com/finscope/finscope/internal/providers"
	"github.com/finscope/finscope/internal/ratelimit"
)

const providerName = "kis"

// tokenExpiredCode is the broker's 401-equivalent; it arrives with HTTP
// 200 or 500 depending on the gateway, so we match the code itself.
const tokenExpiredCode = "EGW00123"

// endpoint ids double as rate-limit registry keys.
const (
	epVolumeRank  = "VOLUME_RANK|/uapi/domestic-stock/v1/quotations/volume-rank"
	epCapRank     = "MARKET_CAP|/uapi/domestic-stock/v1/ranking/market-cap"
	epFluctRank   = "FLUCTUATION|/uapi/domestic-stock/v1/ranking/fluctuation"
	epForeignRank = "FOREIGN|/uapi/domestic-stock/v1/quotations/frgnmem-trade-trend"
	epDailyPrice  = "DAILY_PRICE|/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	epWorkDate    = "WORK_DATE|/uapi/domestic-stock/v1/quotations/chk-workingday"
	epToken       = "TOKEN|/oauth2/tokenP"
)

// Config holds client settings; zero values get defaults.
type Config struct {
	BaseURL   string
	AppKey    string
	AppSecret string
	Timeout   time.Duration
}

// Client is the broker REST adapter. All calls acquire a rate-limit slot
// and attach the shared bearer token.
type Client struct {
	cfg       Config
	transport *providers.Transport
	limiters  *ratelimit.Registry
	tokens    *auth.Manager
}

// New creates the broker client.
func New(cfg Config, limiters *ratelimit.Registry, tokens *auth.Manager) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openapi.koreainvestment.com:9443"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:       cfg,
		transport: providers.NewTransport(providerName, providers.TransportConfig{Timeout: cfg.Timeout}),
		limiters:  limiters,
		tokens:    tokens,
	}
}

// FetchToken is the auth.Fetcher wired into the token manager: it performs
// the OAuth exchange against the broker.
func (c *Client) FetchToken(ctx context.Context) (string, time.Duration, error) {
	c.limiters.Get(providerName, epToken).Acquire(nil)

	body, _ := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     c.cfg.AppKey,
		"appsecret":  c.cfg.AppSecret,
	})
	resp, err := c.transport.Do(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth2/tokenP",
		map[string]string{"Content-Type": "application/json"}, body)
	if err != nil {
		return "", 0, err
	}
	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return "", 0, providers.E(providerName, providers.KindSchema, "token response malformed", err)
	}
	if env.Token == "" {
		return "", 0, providers.E(providerName, providers.KindAuth, "token exchange refused: "+env.Msg1, nil)
	}
	return env.Token, time.Duration(env.ExpIn) * time.Second, nil
}

// InvalidateCredentials drops the shared token so the next call refreshes.
func (c *Client) InvalidateCredentials(ctx context.Context) {
	c.tokens.Clear(ctx)
}

// MaxWorkDate reports the broker's most recent working date (YYYYMMDD).
func (c *Client) MaxWorkDate(ctx context.Context) (string, error) {
	rows, err := c.call(ctx, epWorkDate, "/uapi/domestic-stock/v1/quotations/chk-workingday", "TRDT0001", nil)
	if err != nil {
		return "", err
	}
	for _, row := range rows {
		if d := row["max_work_dt"]; d != "" {
			return d, nil
		}
	}
	return "", providers.E(providerName, providers.KindSchema, "working date missing from response", nil)
}

// Ranking fetches one of the domestic ranking boards.
func (c *Client) Ranking(ctx context.Context, kind RankingType) ([]RankedStock, error) {
	var endpoint, path, trID string
	switch kind {
	case RankVolume:
		endpoint, path, trID = epVolumeRank, "/uapi/domestic-stock/v1/quotations/volume-rank", "FHPST01710000"
	case RankMarketCap:
		endpoint, path, trID = epCapRank, "/uapi/domestic-stock/v1/ranking/market-cap", "FHPST01740000"
	case RankGainers, RankLosers:
		endpoint, path, trID = epFluctRank, "/uapi/domestic-stock/v1/ranking/fluctuation", "FHPST01700000"
	case RankForeignBuying:
		endpoint, path, trID = epForeignRank, "/uapi/domestic-stock/v1/quotations/frgnmem-trade-trend", "FHPST04320000"
	default:
		return nil, providers.E(providerName, providers.KindValidation, "unknown ranking type "+string(kind), nil)
	}

	params := map[string]string{}
	if kind == RankLosers {
		params["fid_rank_sort_cls_code"] = "1" // descending fluctuation board, losers side
	}

	rows, err := c.call(ctx, endpoint, path, trID, params)
	if err != nil {
		return nil, err
	}

	out := make([]RankedStock, 0, len(rows))
	for i, row := range rows {
		code := firstOf(row, "mksc_shrn_iscd", "stck_shrn_iscd", "code")
		if code == "" {
			continue
		}
		out = append(out, RankedStock{
			Code:       code,
			Name:       firstOf(row, "hts_kor_isnm", "name"),
			Close:      num(row, "stck_prpr"),
			ChangeRate: num(row, "prdy_ctrt"),
			Volume:     num(row, "acml_vol"),
			TradeValue: num(row, "acml_tr_pbmn"),
			MarketCap:  num(row, "stck_avls"),
			Rank:       i + 1,
		})
	}
	return out, nil
}

// DailyCandles returns up to `count` most recent daily bars, oldest first.
func (c *Client) DailyCandles(ctx context.Context, code string, count int) ([]Candle, error) {
	rows, err := c.call(ctx, epDailyPrice, "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice", "FHKST03010100",
		map[string]string{"fid_input_iscd": code})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(rows))
	for _, row := range rows {
		d := row["stck_bsop_date"]
		if d == "" {
			continue
		}
		candles = append(candles, Candle{
			Date:   d,
			Open:   num(row, "stck_oprc"),
			High:   num(row, "stck_hgpr"),
			Low:    num(row, "stck_lwpr"),
			Close:  num(row, "stck_clpr"),
			Volume: num(row, "acml_vol"),
		})
	}
	// Upstream serves newest first; flip to oldest-first for indicators.
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	if count > 0 && len(candles) > count {
		candles = candles[len(candles)-count:]
	}
	return candles, nil
}

// Fetch implements providers.Adapter.
func (c *Client) Fetch(ctx context.Context, resource string, params map[string]string) (any, error) {
	switch resource {
	case "ranking":
		return c.Ranking(ctx, RankingType(params["type"]))
	case "daily_candles":
		count, _ := strconv.Atoi(params["count"])
		return c.DailyCandles(ctx, params["code"], count)
	case "working_date":
		return c.MaxWorkDate(ctx)
	default:
		return nil, providers.E(providerName, providers.KindValidation, "unknown resource "+resource, nil)
	}
}

// call performs one authenticated broker request, refreshing the token and
// retrying exactly once when the broker reports token expiry.
func (c *Client) call(ctx context.Context, endpoint, path, trID string, params map[string]string) ([]outputRow, error) {
	for attempt := 0; ; attempt++ {
		rows, err := c.callOnce(ctx, endpoint, path, trID, params)
		if err != nil && providers.KindOf(err) == providers.KindAuth && attempt == 0 {
			log.Info().Str("path", path).Msg("broker token expired, invalidating and retrying once")
			c.tokens.Clear(ctx)
			continue
		}
		return rows, err
	}
}

func (c *Client) callOnce(ctx context.Context, endpoint, path, trID string, params map[string]string) ([]outputRow, error) {
	c.limiters.Get(providerName, endpoint).Acquire(func(wait time.Duration) error {
		log.Debug().Dur("wait", wait).Str("endpoint", endpoint).Msg("broker call throttled")
		return nil
	})

	token, err := c.tokens.Refresh(ctx, c.FetchToken)
	if err != nil {
		return nil, providers.E(providerName, providers.KindAuth, "no bearer token available", err)
	}

	url := c.cfg.BaseURL + path
	if len(params) > 0 {
		pairs := make([]string, 0, len(params))
		for k, v := range params {
			pairs = append(pairs, k+"="+v)
		}
		url += "?" + strings.Join(pairs, "&")
	}

	resp, err := c.transport.Do(ctx, http.MethodGet, url, map[string]string{
		"authorization": "Bearer " + token,
		"appkey":        c.cfg.AppKey,
		"appsecret":     c.cfg.AppSecret,
		"tr_id":         trID,
	}, nil)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, providers.E(providerName, providers.KindSchema, "response envelope malformed", err)
	}
	if env.MsgCd == tokenExpiredCode {
		return nil, providers.E(providerName, providers.KindAuth, "token expired ("+tokenExpiredCode+")", nil)
	}
	if resp.Status == http.StatusUnauthorized {
		return nil, providers.E(providerName, providers.KindAuth, "unauthorized", nil)
	}
	if resp.Status != http.StatusOK || (env.RtCd != "" && env.RtCd != "0") {
		return nil, providers.E(providerName, providers.KindUpstream,
			fmt.Sprintf("broker error rt_cd=%s msg=%s status=%d", env.RtCd, env.Msg1, resp.Status), nil)
	}
	return env.Output, nil
}

func firstOf(row outputRow, keys ...string) string {
	for _, k := range keys {
		if v := row[k]; v != "" {
			return v
		}
	}
	return ""
}

// num parses the broker's comma-grouped numeric strings; "-" and empty
// parse to 0.
func num(row outputRow, key string) float64 {
	s := strings.ReplaceAll(strings.TrimSpace(row[key]), ",", "")
	if s == "" || s == "-" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}
