// Package recommend turns screener output into equal-weight position
// suggestions sized against a cash budget.
package recommend

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/finscope/finscope/internal/screen"
)

// ohlcvBudget caps per-invocation quote calls. The screen carries it as
// its enrichment budget, so pipelines that enrich unconditionally (crypto)
// stay inside it too.
const ohlcvBudget = 30

const defaultPositions = 5

// Strategy names the candidate filter applied before sizing.
type Strategy string

const (
	StrategyBalanced Strategy = "balanced"
	StrategyGrowth   Strategy = "growth"
	StrategyValue    Strategy = "value"
	StrategyIncome   Strategy = "income"
)

// Request describes one recommendation run.
type Request struct {
	Market       string   `json:"market"`
	Strategy     Strategy `json:"strategy"`
	Budget       float64  `json:"budget"`
	MaxPositions int      `json:"max_positions"`
	ExcludeHeld  bool     `json:"exclude_held"`
	Holdings     []string `json:"holdings,omitempty"`
}

// Position is one sized suggestion.
type Position struct {
	Code     string   `json:"code"`
	Name     string   `json:"name,omitempty"`
	Price    float64  `json:"price"`
	Quantity float64  `json:"quantity"`
	Amount   float64  `json:"amount"`
	Score    *float64 `json:"score,omitempty"`
	RSI      *float64 `json:"rsi,omitempty"`
}

// Result is the recommendation output.
type Result struct {
	Strategy  Strategy   `json:"strategy"`
	Market    string     `json:"market"`
	Budget    float64    `json:"budget"`
	Allocated float64    `json:"allocated"`
	Positions []Position `json:"positions"`
	Warnings  []string   `json:"warnings,omitempty"`
	Excluded  []string   `json:"excluded_held,omitempty"`
}

// Screener is the slice of the screening service the recommender needs.
type Screener interface {
	Screen(ctx context.Context, req screen.Request) (*screen.Result, error)
}

// Recommender builds sized suggestions from screener candidates.
type Recommender struct {
	screener Screener
}

func New(screener Screener) *Recommender {
	return &Recommender{screener: screener}
}

// Recommend screens candidates per strategy, drops held symbols when
// asked, and splits the budget equally across the survivors.
func (r *Recommender) Recommend(ctx context.Context, req Request) (*Result, error) {
	if req.Budget <= 0 {
		return nil, fmt.Errorf("budget must be positive, got %v", req.Budget)
	}
	if req.MaxPositions <= 0 {
		req.MaxPositions = defaultPositions
	}
	if req.Strategy == "" {
		req.Strategy = StrategyBalanced
	}

	sreq, err := strategyRequest(req)
	if err != nil {
		return nil, err
	}

	sres, err := r.screener.Screen(ctx, sreq)
	if err != nil {
		return nil, fmt.Errorf("candidate screen: %w", err)
	}

	res := &Result{
		Strategy: req.Strategy,
		Market:   req.Market,
		Budget:   req.Budget,
		Warnings: sres.Warnings,
	}

	held := map[string]bool{}
	if req.ExcludeHeld {
		for _, h := range req.Holdings {
			held[h] = true
		}
	}

	candidates := make([]screen.Item, 0, len(sres.Results))
	for _, it := range sres.Results {
		if held[it.Code] {
			res.Excluded = append(res.Excluded, it.Code)
			continue
		}
		if it.Close == nil || *it.Close <= 0 {
			continue
		}
		candidates = append(candidates, it)
	}

	if req.Market == "crypto" {
		// Composite score, not trade amount, ranks crypto suggestions.
		sort.SliceStable(candidates, func(i, j int) bool {
			si, sj := candidates[i].Score, candidates[j].Score
			if si == nil {
				return false
			}
			if sj == nil {
				return true
			}
			return *si > *sj
		})
	}

	if len(candidates) > req.MaxPositions {
		candidates = candidates[:req.MaxPositions]
	}
	if len(candidates) == 0 {
		res.Warnings = append(res.Warnings, "no candidates passed the strategy filters")
		return res, nil
	}

	perPosition := req.Budget / float64(len(candidates))
	fractional := req.Market == "crypto"
	for _, c := range candidates {
		price := *c.Close
		qty := perPosition / price
		if !fractional {
			qty = math.Floor(qty)
			if qty < 1 {
				log.Debug().Str("code", c.Code).Float64("price", price).
					Msg("slice too small for one share, skipping")
				continue
			}
		}
		amount := qty * price
		res.Positions = append(res.Positions, Position{
			Code:     c.Code,
			Name:     c.Name,
			Price:    price,
			Quantity: qty,
			Amount:   amount,
			Score:    c.Score,
			RSI:      c.RSI,
		})
		res.Allocated += amount
	}
	if len(res.Positions) == 0 {
		res.Warnings = append(res.Warnings, "budget too small for a single share of any candidate")
	}
	return res, nil
}

// strategyRequest maps a strategy onto screener filters. The enrichment
// budget bounds per-symbol quote calls; the limit mirrors it so the
// RSI-gated pipelines pull no more candidates than the budget covers.
func strategyRequest(req Request) (screen.Request, error) {
	limit := ohlcvBudget / 3
	sreq := screen.Request{Market: req.Market, Limit: limit, EnrichBudget: ohlcvBudget}

	if req.Market == "crypto" {
		switch req.Strategy {
		case StrategyBalanced, StrategyGrowth:
		case StrategyValue, StrategyIncome:
			return sreq, fmt.Errorf("strategy %q is not available for crypto", req.Strategy)
		default:
			return sreq, fmt.Errorf("unknown strategy %q", req.Strategy)
		}
		// sort defaults to trade amount; composite score reorders later
		return sreq, nil
	}

	switch req.Strategy {
	case StrategyBalanced:
		sreq.MinMarketCap = ptr(10000.0)
	case StrategyGrowth:
		sreq.SortBy = "change_rate"
		sreq.SortOrder = "desc"
	case StrategyValue:
		sreq.MaxPER = ptr(15.0)
		sreq.MaxPBR = ptr(1.5)
	case StrategyIncome:
		sreq.MinDividendYield = ptr(0.03)
		sreq.SortBy = "dividend_yield"
		sreq.SortOrder = "desc"
	default:
		return sreq, fmt.Errorf("unknown strategy %q", req.Strategy)
	}
	return sreq, nil
}

func ptr[T any](v T) *T { return &v }
