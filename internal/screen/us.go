package screen

import (
	"context"
	"time"

	"github.com/finscope/finscope/internal/indicators"
	"github.com/finscope/finscope/internal/providers/yahoo"
)

// screenUS translates the request into the upstream screener DSL and
// post-filters locally only where the upstream cannot express a filter.
func (s *Service) screenUS(ctx context.Context, req Request, filters map[string]any) (*Result, error) {
	q := yahoo.Query{
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
		Limit:     candidateCount(req.Limit),
	}
	if req.MinMarketCap != nil {
		q.MinMarketCap = *req.MinMarketCap
	}
	if req.MaxPER != nil {
		q.MaxPER = *req.MaxPER
	}
	if req.MaxPBR != nil {
		q.MaxPBR = *req.MaxPBR
	}
	if req.MinDividendYield != nil {
		q.MinDividendYield = *req.MinDividendYield
	}

	rows, err := s.us.Screen(ctx, q)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		it := Item{
			Code:       r.Symbol,
			Name:       r.Name,
			Market:     "US",
			Close:      ptr(r.Price),
			ChangeRate: ptr(r.ChangeRate),
			Volume:     ptr(r.Volume),
			MarketCap:  ptr(r.MarketCap),
		}
		if r.PER != 0 {
			it.PER = ptr(r.PER)
		}
		if r.PBR != 0 {
			it.PBR = ptr(r.PBR)
		}
		if r.DividendYield != 0 {
			it.DividendYield = ptr(r.DividendYield)
		}
		items = append(items, it)
	}

	res := &Result{
		Market:         req.Market,
		FiltersApplied: filters,
		TotalCount:     len(items),
		Timestamp:      time.Now().UTC(),
	}

	if req.MaxRSI != nil {
		if req.EnrichBudget > 0 && len(items) > req.EnrichBudget {
			items = items[:req.EnrichBudget]
		}
		codes := make([]string, len(items))
		for i, it := range items {
			codes[i] = it.Code
		}
		results, meta, warns := s.enrich(ctx, codes, func(ctx context.Context, symbol string) (indicators.Result, error) {
			closes, err := s.us.Closes(ctx, symbol, dailyBars)
			if err != nil {
				return indicators.Result{}, err
			}
			bars := make([]indicators.Candle, len(closes))
			for i, c := range closes {
				bars[i] = indicators.Candle{Open: c, High: c, Low: c, Close: c}
			}
			return indicators.Compute(bars), nil
		})
		for i := range items {
			if r := results[i]; r != nil {
				items[i].RSI = r.RSI
			}
		}
		res.Meta.RSIEnrichment = meta
		res.Warnings = append(res.Warnings, warns...)
		items = applyMaxRSI(items, *req.MaxRSI)
		sortItems(items, req.SortBy, req.SortOrder)
	}

	items = truncate(items, req.Limit)
	res.Results = items
	res.ReturnedCount = len(items)
	return res, nil
}
