package screen

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finscope/finscope/internal/indicators"
	"github.com/finscope/finscope/internal/krx"
)

// dailyBars is how much history per-symbol enrichment pulls; enough for
// the 14-period momentum set plus the smoothed trend warm-up.
const dailyBars = 40

// screenKR runs the domestic pipeline over the bulk-portal universe.
// Per-symbol broker calls happen only when an RSI cap asks for them.
func (s *Service) screenKR(ctx context.Context, req Request, filters map[string]any) (*Result, error) {
	var (
		items []Item
		err   error
	)
	if req.AssetType == "etf" || isETFCategory(req.Category) {
		items, err = s.krETFUniverse(ctx, req)
	} else {
		items, err = s.krStockUniverse(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{
		Market:         req.Market,
		FiltersApplied: filters,
		Timestamp:      time.Now().UTC(),
	}

	needsValuation := req.MaxPER != nil || req.MaxPBR != nil || req.MinDividendYield != nil ||
		req.SortBy == "per" || req.SortBy == "dividend_yield"
	if needsValuation {
		index := s.bulk.ValuationIndex(ctx, "")
		if len(index) == 0 {
			res.Warnings = append(res.Warnings,
				"valuation data unavailable; PER/PBR/dividend filters dropped all rows")
		}
		for i := range items {
			v, ok := index[items[i].Code]
			if !ok {
				continue
			}
			items[i].PER = v.PER
			items[i].PBR = v.PBR
			items[i].DividendYield = v.DividendYield
		}
	}

	items = applyBasicFilters(items, req)
	res.TotalCount = len(items)
	sortItems(items, req.SortBy, req.SortOrder)

	if req.MaxRSI != nil {
		cut := candidateCount(req.Limit)
		if req.EnrichBudget > 0 && req.EnrichBudget < cut {
			cut = req.EnrichBudget
		}
		items = truncate(items, cut)
		items, res.Meta.RSIEnrichment, res.Warnings = s.enrichKR(ctx, items, res.Warnings)
		items = applyMaxRSI(items, *req.MaxRSI)
		sortItems(items, req.SortBy, req.SortOrder)
	}

	items = truncate(items, req.Limit)
	res.Results = items
	res.ReturnedCount = len(items)
	return res, nil
}

// enrichKR attaches RSI and scores via per-symbol broker candles.
func (s *Service) enrichKR(ctx context.Context, items []Item, warnings []string) ([]Item, EnrichmentMeta, []string) {
	codes := make([]string, len(items))
	for i, it := range items {
		codes[i] = it.Code
	}
	results, meta, warns := s.enrich(ctx, codes, func(ctx context.Context, code string) (indicators.Result, error) {
		candles, err := s.broker.DailyCandles(ctx, code, dailyBars)
		if err != nil {
			return indicators.Result{}, err
		}
		bars := make([]indicators.Candle, len(candles))
		for i, c := range candles {
			bars[i] = indicators.Candle{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close, Volume: c.Volume}
		}
		return indicators.Compute(bars), nil
	})
	for i := range items {
		if r := results[i]; r != nil {
			items[i].RSI = r.RSI
			items[i].Score = ptr(r.Score)
		}
	}
	return items, meta, append(warnings, warns...)
}

func (s *Service) krStockUniverse(ctx context.Context, req Request) ([]Item, error) {
	// "kr" merges the two boards explicitly rather than asking the portal
	// for its ALL universe, which carries KONEX issues and would cache
	// under a key shape the per-board fetches never share.
	marketIDs := []string{krx.MarketKOSPI, krx.MarketKOSDAQ}
	switch req.Market {
	case "kospi":
		marketIDs = []string{krx.MarketKOSPI}
	case "kosdaq":
		marketIDs = []string{krx.MarketKOSDAQ}
	}
	var items []Item
	for _, id := range marketIDs {
		stocks, err := s.bulk.AllStocks(ctx, id, "")
		if err != nil {
			return nil, err
		}
		for _, st := range stocks {
			items = append(items, Item{
				Code:        st.Code,
				Name:        st.Name,
				Market:      st.Market,
				Close:       st.Close,
				ChangeRate:  st.ChangeRate,
				Volume:      st.Volume,
				TradeAmount: st.TradeValue,
				MarketCap:   st.MarketCap,
			})
		}
	}
	log.Debug().Int("universe", len(items)).Strs("markets", marketIDs).Msg("kr stock universe loaded")
	return items, nil
}

func (s *Service) krETFUniverse(ctx context.Context, req Request) ([]Item, error) {
	etfs, err := s.bulk.AllETFs(ctx, "", "")
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(etfs))
	for _, e := range etfs {
		labels := classifyETF(e.Name, e.IndexName)
		if isETFCategory(req.Category) && !hasCategory(labels, req.Category) {
			continue
		}
		items = append(items, Item{
			Code:       e.Code,
			Name:       e.Name,
			Market:     "ETF",
			Close:      e.Close,
			ChangeRate: e.ChangeRate,
			Volume:     e.Volume,
			MarketCap:  e.MarketCap,
			Categories: labels,
		})
	}
	return items, nil
}
