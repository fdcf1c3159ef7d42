package screen

import (
	"context"
	"fmt"

	"github.com/finscope/finscope/internal/providers/kis"
)

// RankingResult is the ranking endpoint payload. A degraded upstream
// answer comes back as an in-band error block, never partial rows.
type RankingResult struct {
	Results []kis.RankedStock `json:"results,omitempty"`
	Market  string            `json:"market"`
	Type    string            `json:"type"`
	Error   string            `json:"error,omitempty"`
	Source  string            `json:"source,omitempty"`
	Message string            `json:"message,omitempty"`
}

// TopStocks serves the broker rankings. The losers board only counts rows
// that actually declined; when the upstream serves none, the whole board
// is reported as an upstream error instead of a misleading gainers list.
func (s *Service) TopStocks(ctx context.Context, market string, kind kis.RankingType) (*RankingResult, error) {
	switch kind {
	case kis.RankVolume, kis.RankMarketCap, kis.RankGainers, kis.RankLosers, kis.RankForeignBuying:
	default:
		return nil, invalid("type", "unknown ranking type %q", string(kind))
	}

	res := &RankingResult{Market: market, Type: string(kind)}
	rows, err := s.broker.Ranking(ctx, kind)
	if err != nil {
		res.Error = "ranking_unavailable"
		res.Source = "kis"
		res.Message = err.Error()
		return res, nil
	}

	if kind == kis.RankLosers {
		declined := rows[:0]
		for _, r := range rows {
			if r.ChangeRate < 0 {
				declined = append(declined, r)
			}
		}
		if len(declined) == 0 {
			res.Error = "no_declining_stocks"
			res.Source = "kis"
			res.Message = fmt.Sprintf("losers ranking returned %d rows but none declined", len(rows))
			return res, nil
		}
		rows = declined
	}

	res.Results = rows
	return res, nil
}
