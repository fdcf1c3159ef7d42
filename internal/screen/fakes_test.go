package screen

import (
	"context"
	"sync/atomic"

	"github.com/finscope/finscope/internal/krx"
	"github.com/finscope/finscope/internal/providers/coingecko"
	"github.com/finscope/finscope/internal/providers/kis"
	"github.com/finscope/finscope/internal/providers/upbit"
	"github.com/finscope/finscope/internal/providers/yahoo"
)

type fakeBulk struct {
	stocks     map[string][]krx.Stock // keyed by portal market ID
	etfs       []krx.ETF
	valuations map[string]krx.Valuation
	stocksErr  error
	stockCalls []string
}

func (f *fakeBulk) AllStocks(_ context.Context, marketID, _ string) ([]krx.Stock, error) {
	f.stockCalls = append(f.stockCalls, marketID)
	return f.stocks[marketID], f.stocksErr
}

func (f *fakeBulk) AllETFs(_ context.Context, _, _ string) ([]krx.ETF, error) {
	return f.etfs, nil
}

func (f *fakeBulk) ValuationIndex(_ context.Context, _ string) map[string]krx.Valuation {
	return f.valuations
}

type fakeBroker struct {
	candles     map[string][]kis.Candle
	candlesErr  error
	rankings    []kis.RankedStock
	rankingErr  error
	candleCalls atomic.Int64
}

func (f *fakeBroker) Ranking(_ context.Context, _ kis.RankingType) ([]kis.RankedStock, error) {
	return f.rankings, f.rankingErr
}

func (f *fakeBroker) DailyCandles(_ context.Context, code string, _ int) ([]kis.Candle, error) {
	f.candleCalls.Add(1)
	if f.candlesErr != nil {
		return nil, f.candlesErr
	}
	return f.candles[code], nil
}

type fakeCrypto struct {
	markets     []upbit.Market
	tickers     []upbit.Ticker
	candles     map[string][]upbit.Candle
	candlesErr  error
	candleCalls atomic.Int64
}

func (f *fakeCrypto) Markets(_ context.Context) ([]upbit.Market, error) {
	return f.markets, nil
}

func (f *fakeCrypto) Tickers(_ context.Context, markets []string) ([]upbit.Ticker, error) {
	return f.tickers, nil
}

func (f *fakeCrypto) DailyCandles(_ context.Context, market string, _ int) ([]upbit.Candle, error) {
	f.candleCalls.Add(1)
	if f.candlesErr != nil {
		return nil, f.candlesErr
	}
	return f.candles[market], nil
}

type fakeUS struct {
	rows      []yahoo.Screened
	screenErr error
	closes    map[string][]float64
	closesErr error
}

func (f *fakeUS) Screen(_ context.Context, _ yahoo.Query) ([]yahoo.Screened, error) {
	return f.rows, f.screenErr
}

func (f *fakeUS) Closes(_ context.Context, symbol string, _ int) ([]float64, error) {
	if f.closesErr != nil {
		return nil, f.closesErr
	}
	return f.closes[symbol], nil
}

type fakeCaps struct {
	snap *coingecko.Snapshot
	err  error
}

func (f *fakeCaps) MarketCaps(_ context.Context) (*coingecko.Snapshot, error) {
	return f.snap, f.err
}

// risingCandles trends up hard enough that RSI pins near 100.
func risingCandles(n int) []upbit.Candle {
	out := make([]upbit.Candle, n)
	price := 100.0
	for i := range out {
		out[i] = upbit.Candle{Open: price, High: price + 2, Low: price - 0.5, Close: price + 1.5, Volume: 1000}
		price += 1.5
	}
	return out
}

// fallingCandles trends down so RSI pins near 0.
func fallingCandles(n int) []upbit.Candle {
	out := make([]upbit.Candle, n)
	price := 200.0
	for i := range out {
		out[i] = upbit.Candle{Open: price, High: price + 0.5, Low: price - 2, Close: price - 1.5, Volume: 1000}
		price -= 1.5
	}
	return out
}

func kisCandlesFrom(bars []upbit.Candle) []kis.Candle {
	out := make([]kis.Candle, len(bars))
	for i, b := range bars {
		out[i] = kis.Candle{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out
}
