package krx

// Market identifiers as the bulk portal spells them.
const (
	MarketKOSPI  = "STK"
	MarketKOSDAQ = "KSQ"
	MarketAll    = "ALL"
)

// Stock is one daily-snapshot master row, normalised. Nullable numerics
// are pointers: the portal serves "-" or blank for halted and new issues.
type Stock struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	Market     string   `json:"market"`
	Close      *float64 `json:"close"`
	ChangeRate *float64 `json:"change_rate"`
	Volume     *float64 `json:"volume"`
	TradeValue *float64 `json:"trade_value"`
	// MarketCap is in 억 KRW (portal serves raw KRW).
	MarketCap *float64 `json:"market_cap"`
}

// ETF is one ETF master row.
type ETF struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	IndexName  string   `json:"index_name"`
	Close      *float64 `json:"close"`
	ChangeRate *float64 `json:"change_rate"`
	Volume     *float64 `json:"volume"`
	MarketCap  *float64 `json:"market_cap"`
	NAV        *float64 `json:"nav"`
}

// Valuation is one per-issue valuation row. The code keeps the portal's
// own field name in JSON so cached entries from older builds stay
// readable; see Service.Valuations for the tolerance rules.
type Valuation struct {
	Code          string   `json:"ISU_SRT_CD"`
	PER           *float64 `json:"per"`
	PBR           *float64 `json:"pbr"`
	EPS           *float64 `json:"eps"`
	BPS           *float64 `json:"bps"`
	DPS           *float64 `json:"dps"`
	DividendYield *float64 `json:"dividend_yield"` // decimal, 0.0256 for 2.56%
}
