package screen

import (
	"context"
	"sort"
	"time"

	"github.com/finscope/finscope/internal/krx"
	"github.com/finscope/finscope/internal/providers/coingecko"
	"github.com/finscope/finscope/internal/providers/kis"
	"github.com/finscope/finscope/internal/providers/upbit"
	"github.com/finscope/finscope/internal/providers/yahoo"
)

// Options carries the pipeline knobs; zero values get the defaults.
type Options struct {
	EnrichConcurrency int
	EnrichTimeout     time.Duration
	TopByVolume       int
	DropThreshold     float64 // crash filter cut, e.g. -0.30
	MarketPanic       float64 // broad-market drawdown excusing crashes, e.g. -0.10
}

func (o *Options) setDefaults() {
	if o.EnrichConcurrency <= 0 {
		o.EnrichConcurrency = 10
	}
	if o.EnrichTimeout <= 0 {
		o.EnrichTimeout = 30 * time.Second
	}
	if o.TopByVolume <= 0 {
		o.TopByVolume = 100
	}
	if o.DropThreshold == 0 {
		o.DropThreshold = -0.30
	}
	if o.MarketPanic == 0 {
		o.MarketPanic = -0.10
	}
}

// KRBulk is the bulk-portal surface the KR pipeline consumes.
type KRBulk interface {
	AllStocks(ctx context.Context, marketID, explicitDate string) ([]krx.Stock, error)
	AllETFs(ctx context.Context, clsCode, explicitDate string) ([]krx.ETF, error)
	ValuationIndex(ctx context.Context, explicitDate string) map[string]krx.Valuation
}

// Broker is the KIS surface: rankings and per-symbol candles.
type Broker interface {
	Ranking(ctx context.Context, kind kis.RankingType) ([]kis.RankedStock, error)
	DailyCandles(ctx context.Context, code string, count int) ([]kis.Candle, error)
}

// CryptoExchange is the Upbit surface.
type CryptoExchange interface {
	Markets(ctx context.Context) ([]upbit.Market, error)
	Tickers(ctx context.Context, markets []string) ([]upbit.Ticker, error)
	DailyCandles(ctx context.Context, market string, count int) ([]upbit.Candle, error)
}

// USScreener is the US quote-service surface.
type USScreener interface {
	Screen(ctx context.Context, q yahoo.Query) ([]yahoo.Screened, error)
	Closes(ctx context.Context, symbol string, days int) ([]float64, error)
}

// CapSource supplies the external market-cap snapshot.
type CapSource interface {
	MarketCaps(ctx context.Context) (*coingecko.Snapshot, error)
}

// Service holds the screener dependencies. Market identifiers map to
// adapters here rather than through any global registry so tests can wire
// fakes per pipeline.
type Service struct {
	bulk   KRBulk
	broker Broker
	crypto CryptoExchange
	us     USScreener
	caps   CapSource
	opts   Options
}

// NewService wires the screeners.
func NewService(bulk KRBulk, broker Broker, crypto CryptoExchange, us USScreener, caps CapSource, opts Options) *Service {
	opts.setDefaults()
	return &Service{bulk: bulk, broker: broker, crypto: crypto, us: us, caps: caps, opts: opts}
}

// Screen runs the market-appropriate pipeline. It only errors on
// validation; upstream degradation comes back as warnings in the result.
func (s *Service) Screen(ctx context.Context, req Request) (*Result, error) {
	filters, err := resolve(&req)
	if err != nil {
		return nil, err
	}

	switch req.Market {
	case "crypto":
		return s.screenCrypto(ctx, req, filters)
	case "us":
		return s.screenUS(ctx, req, filters)
	default:
		return s.screenKR(ctx, req, filters)
	}
}

// candidateCount sizes the pre-enrichment cut: limit*3 capped at 150.
func candidateCount(limit int) int {
	n := limit * 3
	if n > 150 {
		n = 150
	}
	return n
}

// sortKey extracts the active sort field from an item; nil means the item
// has no usable value and sorts last.
func sortKey(it *Item, sortBy string) *float64 {
	switch sortBy {
	case "market_cap":
		return it.MarketCap
	case "volume":
		return it.Volume
	case "trade_amount":
		return it.TradeAmount
	case "change_rate":
		return it.ChangeRate
	case "dividend_yield":
		return it.DividendYield
	case "rsi":
		return it.RSI
	case "per":
		return it.PER
	case "close", "price":
		return it.Close
	default:
		return it.MarketCap
	}
}

// sortItems orders items by the sort key; nil keys sort last either way.
// The sort is stable within equal key groups.
func sortItems(items []Item, sortBy, sortOrder string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := sortKey(&items[i], sortBy), sortKey(&items[j], sortBy)
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		if sortOrder == "asc" {
			return *a < *b
		}
		return *a > *b
	})
}

// applyBasicFilters drops rows failing the non-RSI filters. A row missing
// a filtered field fails that filter.
func applyBasicFilters(items []Item, req Request) []Item {
	out := items[:0]
	for _, it := range items {
		if req.MinMarketCap != nil && (it.MarketCap == nil || *it.MarketCap < *req.MinMarketCap) {
			continue
		}
		if req.MaxPER != nil && (it.PER == nil || *it.PER > *req.MaxPER) {
			continue
		}
		if req.MaxPBR != nil && (it.PBR == nil || *it.PBR > *req.MaxPBR) {
			continue
		}
		if req.MinDividendYield != nil && (it.DividendYield == nil || *it.DividendYield < *req.MinDividendYield) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// applyMaxRSI keeps rows at or under the cap; unenriched rows fail it.
func applyMaxRSI(items []Item, maxRSI float64) []Item {
	out := items[:0]
	for _, it := range items {
		if it.RSI != nil && *it.RSI <= maxRSI {
			out = append(out, it)
		}
	}
	return out
}

func truncate(items []Item, limit int) []Item {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}
