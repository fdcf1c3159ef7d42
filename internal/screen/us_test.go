package screen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finscope/finscope/internal/providers/yahoo"
)

func usFixture() *fakeUS {
	return &fakeUS{
		rows: []yahoo.Screened{
			{Symbol: "AAPL", Name: "Apple Inc.", Price: 232.5, ChangeRate: 0.012, Volume: 4.8e7, MarketCap: 3.5e12, PER: 31.0, DividendYield: 0.004},
			{Symbol: "T", Name: "AT&T Inc.", Price: 21.8, ChangeRate: -0.004, Volume: 3.1e7, MarketCap: 1.6e11, PER: 11.2, DividendYield: 0.051},
			{Symbol: "PLTR", Name: "Palantir", Price: 158.0, ChangeRate: 0.03, Volume: 6.0e7, MarketCap: 3.7e11},
		},
	}
}

func TestScreenUSTranslation(t *testing.T) {
	us := usFixture()
	svc := NewService(nil, nil, nil, us, nil, Options{})

	res, err := svc.Screen(context.Background(), Request{
		Market:           "us",
		MinDividendYield: ptr(3.0), // percent form
		Limit:            10,
	})
	require.NoError(t, err)

	assert.Equal(t, "us", res.Market)
	assert.Equal(t, 3.0, res.FiltersApplied["min_dividend_yield_input"])
	assert.Equal(t, 0.03, res.FiltersApplied["min_dividend_yield_normalized"])
	assert.Equal(t, 3, res.TotalCount)
	assert.Len(t, res.Results, 3)

	// Zero-valued upstream ratios map to null, not 0.
	byCode := map[string]Item{}
	for _, it := range res.Results {
		byCode[it.Code] = it
	}
	assert.Nil(t, byCode["PLTR"].PER)
	assert.Nil(t, byCode["PLTR"].DividendYield)
	require.NotNil(t, byCode["T"].DividendYield)
	assert.Equal(t, 0.051, *byCode["T"].DividendYield)
}

func TestScreenUSMaxRSI(t *testing.T) {
	us := usFixture()
	us.closes = map[string][]float64{}
	falling := make([]float64, 40)
	rising := make([]float64, 40)
	for i := range falling {
		falling[i] = 200 - 1.5*float64(i)
		rising[i] = 100 + 1.5*float64(i)
	}
	us.closes["AAPL"] = rising
	us.closes["T"] = falling
	us.closes["PLTR"] = rising
	svc := NewService(nil, nil, nil, us, nil, Options{})

	res, err := svc.Screen(context.Background(), Request{Market: "us", MaxRSI: ptr(30.0), Limit: 10})
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	assert.Equal(t, "T", res.Results[0].Code)
	require.NotNil(t, res.Results[0].RSI)
	assert.Less(t, *res.Results[0].RSI, 30.0)
	assert.Equal(t, 3, res.Meta.RSIEnrichment.Attempted)
}

func TestScreenUSLimitRespected(t *testing.T) {
	us := usFixture()
	svc := NewService(nil, nil, nil, us, nil, Options{})

	res, err := svc.Screen(context.Background(), Request{Market: "us", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.Equal(t, 2, res.ReturnedCount)
	assert.LessOrEqual(t, res.ReturnedCount, 2)
	assert.Equal(t, 3, res.TotalCount)
}
