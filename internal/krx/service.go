package krx

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/finscope/finscope/internal/cache"
	"github.com/finscope/finscope/internal/dates"
)

const defaultBulkTTL = 5 * time.Minute

// Portal is the client surface the service consumes; *Client satisfies it.
type Portal interface {
	Stocks(ctx context.Context, marketID, date string) ([]Stock, error)
	ETFs(ctx context.Context, clsCode, date string) ([]ETF, error)
	Valuations(ctx context.Context, marketID, date string) ([]Valuation, error)
}

// Service wraps the portal with the shared cache and the trading-date
// fallback: for each candidate date consult cache, then the portal; an
// empty response advances to the next date.
type Service struct {
	portal   Portal
	cache    *cache.Cache
	resolver *dates.Resolver
	ttl      time.Duration
}

// NewService wires the bulk fetchers. bulkTTL bounds how long a daily
// snapshot is served from cache; zero means the default.
func NewService(portal Portal, c *cache.Cache, r *dates.Resolver, bulkTTL time.Duration) *Service {
	if bulkTTL <= 0 {
		bulkTTL = defaultBulkTTL
	}
	return &Service{portal: portal, cache: c, resolver: r, ttl: bulkTTL}
}

// AllStocks returns the stock master list for a market, walking candidate
// dates until a non-empty snapshot is found. explicitDate short-circuits
// the resolver. An exhausted walk returns an empty slice, not an error.
func (s *Service) AllStocks(ctx context.Context, marketID, explicitDate string) ([]Stock, error) {
	var lastErr error
	for _, date := range s.resolver.Candidates(ctx, explicitDate) {
		key := fmt.Sprintf("krx:stock:all:%s:%s", marketID, date)

		var cached []Stock
		if s.cache.GetJSON(ctx, key, &cached) && len(cached) > 0 {
			return cached, nil
		}

		rows, err := s.portal.Stocks(ctx, marketID, date)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("date", date).Str("market", marketID).Msg("stock master fetch failed, trying next date")
			continue
		}
		if len(rows) == 0 {
			log.Debug().Str("date", date).Str("market", marketID).Msg("stock master empty, trying next date")
			continue
		}
		s.cache.SetJSON(ctx, key, rows, s.ttl)
		return rows, nil
	}
	return nil, lastErr
}

// AllETFs returns the ETF master list with the same fallback walk.
func (s *Service) AllETFs(ctx context.Context, clsCode, explicitDate string) ([]ETF, error) {
	var lastErr error
	for _, date := range s.resolver.Candidates(ctx, explicitDate) {
		key := "krx:etf:all:" + date
		if clsCode != "" {
			key = fmt.Sprintf("krx:etf:all:%s:%s", clsCode, date)
		}

		var cached []ETF
		if s.cache.GetJSON(ctx, key, &cached) && len(cached) > 0 {
			return cached, nil
		}

		rows, err := s.portal.ETFs(ctx, clsCode, date)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("date", date).Msg("etf master fetch failed, trying next date")
			continue
		}
		if len(rows) == 0 {
			continue
		}
		s.cache.SetJSON(ctx, key, rows, s.ttl)
		return rows, nil
	}
	return nil, lastErr
}

// Valuations returns per-issue valuation rows. Cached entries predating a
// schema change are tolerated: records without ISU_SRT_CD are logged and
// dropped, and a fully invalid entry triggers a re-fetch.
func (s *Service) Valuations(ctx context.Context, marketID, explicitDate string) ([]Valuation, error) {
	var lastErr error
	for _, date := range s.resolver.Candidates(ctx, explicitDate) {
		key := fmt.Sprintf("krx:valuation:%s:%s", marketID, date)

		var cached []Valuation
		if s.cache.GetJSON(ctx, key, &cached) && len(cached) > 0 {
			valid := cached[:0]
			for _, v := range cached {
				if v.Code == "" {
					log.Warn().Str("key", key).Msg("cached valuation record missing ISU_SRT_CD, discarding")
					continue
				}
				valid = append(valid, v)
			}
			if len(valid) > 0 {
				return valid, nil
			}
			log.Warn().Str("key", key).Msg("cached valuation entry fully invalid, re-fetching")
		}

		rows, err := s.portal.Valuations(ctx, marketID, date)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("date", date).Str("market", marketID).Msg("valuation fetch failed, trying next date")
			continue
		}
		if len(rows) == 0 {
			continue
		}
		s.cache.SetJSON(ctx, key, rows, s.ttl)
		return rows, nil
	}
	return nil, lastErr
}

// ValuationIndex builds a code-keyed lookup over the whole universe in
// one portal call, best effort: a failed fetch yields an empty index.
// Attaching by code tolerates the extra issues the ALL universe carries.
func (s *Service) ValuationIndex(ctx context.Context, explicitDate string) map[string]Valuation {
	out := make(map[string]Valuation)
	rows, err := s.Valuations(ctx, MarketAll, explicitDate)
	if err != nil {
		log.Warn().Err(err).Msg("valuation index degraded")
		return out
	}
	for _, v := range rows {
		out[v.Code] = v
	}
	return out
}
