// Package indicators holds the pure numeric kernel: RSI, directional
// movement, single-candle classification, and the composite score used by
// the crypto screener and recommender. Nothing here suspends.
package indicators

import (
	"math"

	"github.com/markcheno/go-talib"
)

const period = 14

// CandleType classifies a single (O, H, L, C) bar.
type CandleType string

const (
	CandleBullish       CandleType = "bullish"
	CandleHammer        CandleType = "hammer"
	CandleBearishStrong CandleType = "bearish_strong"
	CandleBearishNormal CandleType = "bearish_normal"
	CandleFlat          CandleType = "flat"
)

// Candle is one OHLCV bar, oldest-first in series.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Result bundles the per-symbol indicator outputs. Nullable components are
// pointers; Score is always defined, with defaults filling missing inputs.
type Result struct {
	RSI         *float64   `json:"rsi,omitempty"`
	ADX         *float64   `json:"adx,omitempty"`
	PlusDI      *float64   `json:"plus_di,omitempty"`
	MinusDI     *float64   `json:"minus_di,omitempty"`
	CandleCoef  float64    `json:"candle_coef"`
	CandleType  CandleType `json:"candle_type"`
	Volume24h   *float64   `json:"volume_24h,omitempty"`
	VolumeRatio *float64   `json:"volume_ratio,omitempty"`
	Score       float64    `json:"score"`
}

func lastValid(vals []float64) *float64 {
	if len(vals) == 0 {
		return nil
	}
	v := vals[len(vals)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RSI computes Wilder's 14-period RSI over closes (oldest first). Returns
// nil with fewer than period+1 points.
func RSI(closes []float64) *float64 {
	if len(closes) < period+1 {
		return nil
	}
	return lastValid(talib.Rsi(closes, period))
}

// DirectionalIndex computes ADX and the ±DI components. Components are nil
// when the series is too short for their warm-up.
func DirectionalIndex(high, low, close []float64) (adx, plusDI, minusDI *float64) {
	if len(high) != len(low) || len(low) != len(close) {
		return nil, nil, nil
	}
	if len(close) >= period+1 {
		plusDI = lastValid(talib.PlusDI(high, low, close, period))
		minusDI = lastValid(talib.MinusDI(high, low, close, period))
	}
	if len(close) >= 2*period+1 {
		adx = lastValid(talib.Adx(high, low, close, period))
	}
	return adx, plusDI, minusDI
}

// CandleCoefficient classifies one bar. Bullish wins before the hammer
// test: a long lower shadow on an up candle stays bullish.
func CandleCoefficient(open, high, low, close float64) (float64, CandleType) {
	totalRange := high - low
	if totalRange <= 0 {
		return 0.5, CandleFlat
	}
	if close > open {
		return 1.0, CandleBullish
	}
	body := math.Abs(close - open)
	lowerShadow := math.Min(open, close) - low
	if lowerShadow > 2*body {
		return 0.8, CandleHammer
	}
	if body > 0.7*totalRange {
		return 0.0, CandleBearishStrong
	}
	return 0.5, CandleBearishNormal
}

// VolumeScore scales today's volume against the 20-day average, capped at
// 100. Missing inputs score 0.
func VolumeScore(todayVolume, avgVolume float64) float64 {
	if todayVolume <= 0 || avgVolume <= 0 {
		return 0
	}
	return math.Min(100, 33.3*todayVolume/avgVolume)
}

// TrendScore maps directional movement onto [10, 90]: a dominant +DI is
// strongly favourable, a strengthening downtrend increasingly is not.
func TrendScore(adx, plusDI, minusDI *float64) float64 {
	if plusDI != nil && minusDI != nil && *plusDI > *minusDI {
		return 90
	}
	if adx == nil {
		return 30
	}
	switch {
	case *adx < 35:
		return 60
	case *adx <= 50:
		return 30
	default:
		return 10
	}
}

// RSIScore inverts RSI so oversold symbols score high. Missing RSI is
// neutral.
func RSIScore(rsi *float64) float64 {
	if rsi == nil {
		return 50
	}
	return 100 - *rsi
}

// CompositeScore combines the component scores into [0, 100], rounded to
// two decimals.
func CompositeScore(rsiScore, volumeScore, candleCoef, trendScore float64) float64 {
	score := 0.4*rsiScore + 0.3*volumeScore*candleCoef + 0.3*trendScore
	score = math.Max(0, math.Min(100, score))
	return math.Round(score*100) / 100
}

// Compute derives the full indicator set from an oldest-first daily series.
func Compute(candles []Candle) Result {
	n := len(candles)
	res := Result{CandleCoef: 0.5, CandleType: CandleFlat}
	if n == 0 {
		res.Score = CompositeScore(RSIScore(nil), 0, res.CandleCoef, TrendScore(nil, nil, nil))
		return res
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	res.RSI = RSI(closes)
	res.ADX, res.PlusDI, res.MinusDI = DirectionalIndex(highs, lows, closes)

	last := candles[n-1]
	res.CandleCoef, res.CandleType = CandleCoefficient(last.Open, last.High, last.Low, last.Close)

	vol := last.Volume
	if vol > 0 {
		res.Volume24h = &vol
	}
	volScore := 0.0
	if avg := averageVolume(candles, 20); avg > 0 && vol > 0 {
		ratio := vol / avg
		res.VolumeRatio = &ratio
		volScore = VolumeScore(vol, avg)
	}

	res.Score = CompositeScore(RSIScore(res.RSI), volScore, res.CandleCoef,
		TrendScore(res.ADX, res.PlusDI, res.MinusDI))
	return res
}

// averageVolume averages the trailing n bars, excluding the latest.
func averageVolume(candles []Candle, n int) float64 {
	if len(candles) < 2 {
		return 0
	}
	prior := candles[:len(candles)-1]
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	sum := 0.0
	count := 0
	for _, c := range prior {
		if c.Volume > 0 {
			sum += c.Volume
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
