package kis

// RankedStock is one row of a domestic ranking, normalised to the common
// keys the screeners consume.
type RankedStock struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	Close      float64 `json:"close"`
	ChangeRate float64 `json:"change_rate"`
	Volume     float64 `json:"volume"`
	TradeValue float64 `json:"trade_value"`
	MarketCap  float64 `json:"market_cap"`
	Rank       int     `json:"rank"`
}

// Candle is one daily OHLCV bar, oldest-last as the upstream serves it;
// callers reverse as needed.
type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// RankingType selects a domestic ranking endpoint.
type RankingType string

const (
	RankVolume        RankingType = "volume"
	RankMarketCap     RankingType = "market_cap"
	RankGainers       RankingType = "gainers"
	RankLosers        RankingType = "losers"
	RankForeignBuying RankingType = "foreign_buying"
)

// envelope is the broker's uniform response wrapper.
type envelope struct {
	RtCd   string      `json:"rt_cd"`
	MsgCd  string      `json:"msg_cd"`
	Msg1   string      `json:"msg1"`
	Output []outputRow `json:"output"`
	Token  string      `json:"access_token"`
	ExpIn  int64       `json:"expires_in"`
}

// outputRow is a loosely typed ranking/quote row; the broker returns all
// numerics as strings.
type outputRow map[string]string
