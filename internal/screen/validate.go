package screen

import (
	"fmt"
)

const maxLimit = 50

// ValidationError reports a rejected request before any I/O happened.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// applyStrategy folds the preset into the request before validation.
func applyStrategy(req *Request) error {
	switch req.Strategy {
	case "":
	case "oversold":
		req.MaxRSI = ptr(30.0)
		req.SortBy = "volume"
		req.SortOrder = "desc"
	case "momentum":
		req.SortBy = "change_rate"
		req.SortOrder = "desc"
	case "high_volume":
		req.SortBy = "volume"
		req.SortOrder = "desc"
	default:
		return invalid("strategy", "unknown strategy %q (use oversold, momentum, or high_volume)", req.Strategy)
	}
	return nil
}

// resolve normalises and validates the request in place, returning the
// filters_applied echo. All failures happen before any I/O.
func resolve(req *Request) (map[string]any, error) {
	if err := applyStrategy(req); err != nil {
		return nil, err
	}

	crypto := req.Market == "crypto"

	if req.SortBy == "" {
		if crypto {
			req.SortBy = "trade_amount"
		} else {
			req.SortBy = "market_cap"
		}
	}
	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}
	if req.SortOrder != "asc" && req.SortOrder != "desc" {
		return nil, invalid("sort_order", "%q is not asc or desc", req.SortOrder)
	}

	if req.Limit <= 0 {
		return nil, invalid("limit", "must be at least 1")
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}

	switch req.Market {
	case "kr", "kospi", "kosdaq", "us", "crypto":
	default:
		return nil, invalid("market", "unknown market %q", req.Market)
	}

	if crypto {
		if req.MaxPER != nil {
			return nil, invalid("max_per", "not available for crypto")
		}
		if req.MinDividendYield != nil {
			return nil, invalid("min_dividend_yield", "not available for crypto")
		}
		switch req.SortBy {
		case "volume", "dividend_yield":
			return nil, invalid("sort_by", "%q is not available for crypto; use trade_amount or rsi", req.SortBy)
		}
	} else {
		switch req.SortBy {
		case "rsi", "trade_amount":
			return nil, invalid("sort_by", "%q is only available for crypto", req.SortBy)
		}
	}

	if (req.Market == "kr" || req.Market == "kospi" || req.Market == "kosdaq") && req.AssetType == "etn" {
		return nil, invalid("asset_type", "etn is not supported for KR markets")
	}

	filters := map[string]any{
		"market":     req.Market,
		"sort_by":    req.SortBy,
		"sort_order": req.SortOrder,
		"limit":      req.Limit,
	}
	if req.Strategy != "" {
		filters["strategy"] = req.Strategy
	}
	if req.AssetType != "" {
		filters["asset_type"] = req.AssetType
	}
	if req.Category != "" {
		filters["category"] = req.Category
	}
	if req.MinMarketCap != nil {
		filters["min_market_cap"] = *req.MinMarketCap
	}
	if req.MaxPER != nil {
		filters["max_per"] = *req.MaxPER
	}
	if req.MaxPBR != nil {
		filters["max_pbr"] = *req.MaxPBR
	}
	if req.MaxRSI != nil {
		filters["max_rsi"] = *req.MaxRSI
	}

	if req.MinDividendYield != nil {
		input := *req.MinDividendYield
		normalized := input
		// Values >= 1 are percentages; 1.0 itself reads as 1%.
		if input >= 1 {
			normalized = input / 100
		}
		req.MinDividendYield = ptr(normalized)
		filters["min_dividend_yield_input"] = input
		filters["min_dividend_yield_normalized"] = normalized
	}

	return filters, nil
}
