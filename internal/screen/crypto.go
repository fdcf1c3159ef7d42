package screen

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finscope/finscope/internal/indicators"
	"github.com/finscope/finscope/internal/providers/coingecko"
)

const btcMarket = "KRW-BTC"

// nullRSIBucket sorts unenriched rows after every real bucket.
const nullRSIBucket = 999

// screenCrypto runs the exchange pipeline: KRW pairs ranked by 24h trade
// amount, crash and caution filtering, then indicator enrichment in
// parallel with the external market-cap snapshot.
func (s *Service) screenCrypto(ctx context.Context, req Request, filters map[string]any) (*Result, error) {
	res := &Result{
		Market:         req.Market,
		FiltersApplied: filters,
		Timestamp:      time.Now().UTC(),
	}

	markets, err := s.crypto.Markets(ctx)
	if err != nil {
		return nil, err
	}
	res.Meta.TotalMarkets = len(markets)

	flagged := make(map[string]bool, len(markets))
	names := make(map[string]string, len(markets))
	codes := make([]string, 0, len(markets))
	for _, m := range markets {
		flagged[m.Market] = m.Flagged()
		names[m.Market] = m.KoreanName
		codes = append(codes, m.Market)
	}

	tickers, err := s.crypto.Tickers(ctx, codes)
	if err != nil {
		return nil, err
	}

	// Top pairs by 24h KRW trade amount bound the per-symbol work.
	sort.SliceStable(tickers, func(i, j int) bool {
		return tickers[i].AccTradePrice24h > tickers[j].AccTradePrice24h
	})
	if len(tickers) > s.opts.TopByVolume {
		tickers = tickers[:s.opts.TopByVolume]
	}
	res.Meta.TopByVolume = len(tickers)

	btcChange, btcKnown := 0.0, false
	for _, t := range tickers {
		if t.Market == btcMarket {
			btcChange, btcKnown = t.SignedChangeRate, true
			break
		}
	}
	if !btcKnown {
		res.Warnings = append(res.Warnings,
			"BTC ticker missing from top pairs; crash filter assumes a flat market")
	}

	items := make([]Item, 0, len(tickers))
	for _, t := range tickers {
		// A coin in freefall while the broad market holds is excluded;
		// when BTC itself is in a drawdown the drop reads as systemic.
		if t.SignedChangeRate <= s.opts.DropThreshold && btcChange > s.opts.MarketPanic {
			res.Meta.FilteredByCrash++
			continue
		}
		if flagged[t.Market] {
			res.Meta.FilteredByWarning++
			continue
		}
		items = append(items, Item{
			Code:        t.Market,
			Name:        names[t.Market],
			Market:      "crypto",
			Close:       ptr(t.TradePrice),
			ChangeRate:  ptr(t.SignedChangeRate),
			Volume:      ptr(t.AccTradeVolume),
			TradeAmount: ptr(t.AccTradePrice24h),
		})
	}

	// A caller-imposed quote budget bounds the enrichment universe. Rows
	// are still in trade-amount order, so the cut keeps the most liquid.
	if req.EnrichBudget > 0 && len(items) > req.EnrichBudget {
		items = items[:req.EnrichBudget]
	}

	// Cap snapshot and candle enrichment hit different upstreams, so they
	// overlap; the snapshot result merges after both finish.
	snapCh := make(chan capSnapshot, 1)
	go func() {
		snap, err := s.caps.MarketCaps(ctx)
		snapCh <- capSnapshot{snap: snap, err: err}
	}()

	enrichCodes := make([]string, len(items))
	for i, it := range items {
		enrichCodes[i] = it.Code
	}
	results, meta, warns := s.enrich(ctx, enrichCodes, func(ctx context.Context, market string) (indicators.Result, error) {
		candles, err := s.crypto.DailyCandles(ctx, market, dailyBars)
		if err != nil {
			return indicators.Result{}, err
		}
		bars := make([]indicators.Candle, len(candles))
		for i, c := range candles {
			bars[i] = indicators.Candle{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
		}
		return indicators.Compute(bars), nil
	})
	res.Meta.RSIEnrichment = meta
	res.Meta.RSIEnriched = meta.Succeeded
	res.Warnings = append(res.Warnings, warns...)

	for i := range items {
		if r := results[i]; r != nil {
			items[i].RSI = r.RSI
			items[i].Score = ptr(r.Score)
		}
		items[i].RSIBucket = ptr(rsiBucket(items[i].RSI))
	}

	sc := <-snapCh
	s.mergeCaps(res, items, sc)

	items = applyBasicFilters(items, req)
	res.TotalCount = len(items)

	if req.MaxRSI != nil {
		items = applyMaxRSI(items, *req.MaxRSI)
	}

	if req.SortBy == "rsi" {
		if req.SortOrder == "desc" {
			res.Warnings = append(res.Warnings,
				"rsi sort is ascending only; sort_order desc ignored")
			res.FiltersApplied["sort_order"] = "asc"
		}
		sortByRSIBucket(items)
	} else {
		sortItems(items, req.SortBy, req.SortOrder)
	}

	items = truncate(items, req.Limit)
	res.Results = items
	res.ReturnedCount = len(items)
	res.Meta.FinalCount = len(items)
	return res, nil
}

type capSnapshot struct {
	snap *coingecko.Snapshot
	err  error
}

// mergeCaps attaches market caps from the snapshot, tolerating a stale or
// absent one with warnings rather than failing the screen.
func (s *Service) mergeCaps(res *Result, items []Item, sc capSnapshot) {
	if sc.snap == nil {
		log.Warn().Err(sc.err).Msg("market cap snapshot unavailable")
		res.Warnings = append(res.Warnings, "market cap data unavailable; market_cap fields omitted")
		return
	}
	if sc.err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"market cap snapshot is stale (%.0fs old); serving last known values", sc.snap.Age().Seconds()))
	}
	res.Meta.CoingeckoCached = sc.snap.Age() > time.Second
	res.Meta.CoingeckoAgeSeconds = math.Round(sc.snap.Age().Seconds())
	for i := range items {
		symbol := strings.TrimPrefix(items[i].Code, "KRW-")
		if v, ok := sc.snap.Caps[symbol]; ok {
			items[i].MarketCap = ptr(v)
		}
	}
}

// rsiBucket floors RSI to its 5-point band; unenriched rows get the
// sentinel bucket that sorts last.
func rsiBucket(rsi *float64) int {
	if rsi == nil {
		return nullRSIBucket
	}
	return int(math.Floor(*rsi/5)) * 5
}

// sortByRSIBucket orders by 5-point RSI band ascending, breaking ties by
// 24h trade amount descending so the most liquid oversold names lead.
func sortByRSIBucket(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		bi, bj := rsiBucket(items[i].RSI), rsiBucket(items[j].RSI)
		if bi != bj {
			return bi < bj
		}
		ti, tj := items[i].TradeAmount, items[j].TradeAmount
		if ti == nil {
			return false
		}
		if tj == nil {
			return true
		}
		return *ti > *tj
	})
}
