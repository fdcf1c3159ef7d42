// Package screen implements the market screeners over the acquisition
// core: KR (bulk portal universes), US (upstream screener DSL), and crypto
// (exchange tickers joined with the external cap ranking), all sharing the
// bounded-parallel indicator enrichment and the diagnostics surface.
package screen

import (
	"time"
)

// Request is the resolved screener input.
type Request struct {
	Market    string `json:"market"` // kr, kospi, kosdaq, us, crypto
	AssetType string `json:"asset_type,omitempty"`
	Category  string `json:"category,omitempty"`
	Strategy  string `json:"strategy,omitempty"`

	SortBy    string `json:"sort_by"`
	SortOrder string `json:"sort_order"`

	MinMarketCap     *float64 `json:"min_market_cap,omitempty"`
	MaxPER           *float64 `json:"max_per,omitempty"`
	MaxPBR           *float64 `json:"max_pbr,omitempty"`
	MinDividendYield *float64 `json:"min_dividend_yield,omitempty"`
	MaxRSI           *float64 `json:"max_rsi,omitempty"`

	Limit int `json:"limit"`

	// EnrichBudget caps per-symbol quote calls for this invocation when
	// positive. Callers that fan out screens, like the recommender, bound
	// their upstream footprint with it. Not part of the wire shape.
	EnrichBudget int `json:"-"`
}

// Item is one screened row with whatever enrichment applied.
type Item struct {
	Code          string   `json:"code"`
	Name          string   `json:"name,omitempty"`
	Market        string   `json:"market,omitempty"`
	Close         *float64 `json:"close,omitempty"`
	ChangeRate    *float64 `json:"change_rate,omitempty"`
	Volume        *float64 `json:"volume,omitempty"`
	TradeAmount   *float64 `json:"trade_amount,omitempty"`
	MarketCap     *float64 `json:"market_cap,omitempty"`
	PER           *float64 `json:"per,omitempty"`
	PBR           *float64 `json:"pbr,omitempty"`
	DividendYield *float64 `json:"dividend_yield,omitempty"`
	RSI           *float64 `json:"rsi,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	RSIBucket     *int     `json:"rsi_bucket,omitempty"`
	Categories    []string `json:"categories,omitempty"`
}

// EnrichmentMeta folds per-symbol enrichment statuses.
type EnrichmentMeta struct {
	Attempted    int      `json:"attempted"`
	Succeeded    int      `json:"succeeded"`
	Failed       int      `json:"failed"`
	RateLimited  int      `json:"rate_limited"`
	Timeout      int      `json:"timeout"`
	ErrorSamples []string `json:"error_samples"`
}

// Meta is the diagnostics block of a screen result. The crypto-only
// fields stay zero elsewhere.
type Meta struct {
	RSIEnrichment EnrichmentMeta `json:"rsi_enrichment"`

	TotalMarkets        int     `json:"total_markets,omitempty"`
	TopByVolume         int     `json:"top_by_volume,omitempty"`
	FilteredByWarning   int     `json:"filtered_by_warning,omitempty"`
	FilteredByCrash     int     `json:"filtered_by_crash,omitempty"`
	RSIEnriched         int     `json:"rsi_enriched,omitempty"`
	FinalCount          int     `json:"final_count,omitempty"`
	CoingeckoCached     bool    `json:"coingecko_cached,omitempty"`
	CoingeckoAgeSeconds float64 `json:"coingecko_age_seconds,omitempty"`
}

// Result is the screener output contract. Degraded-but-returned paths are
// described in Warnings, never as errors.
type Result struct {
	Results        []Item         `json:"results"`
	TotalCount     int            `json:"total_count"`
	ReturnedCount  int            `json:"returned_count"`
	FiltersApplied map[string]any `json:"filters_applied"`
	Market         string         `json:"market"`
	Meta           Meta           `json:"meta"`
	Timestamp      time.Time      `json:"timestamp"`
	Warnings       []string       `json:"warnings,omitempty"`
}

// ptr returns a pointer to v; the row builders lean on it.
func ptr[T any](v T) *T { return &v }
