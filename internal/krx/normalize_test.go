package krx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNum(t *testing.T) {
	assert.Equal(t, 12345678.0, *parseNum("12,345,678"))
	assert.Equal(t, -3.5, *parseNum("-3.5"))
	assert.Nil(t, parseNum("-"))
	assert.Nil(t, parseNum(""))
	assert.Nil(t, parseNum("  "))
	assert.Nil(t, parseNum("n/a"))
}

func TestParseMarketCap_KRWToEokKRW(t *testing.T) {
	// 480조 KRW → 4,800,000 억 KRW.
	got := parseMarketCap("480,000,000,000,000")
	require.NotNil(t, got)
	assert.Equal(t, 4800000.0, *got)
	assert.Nil(t, parseMarketCap("-"))
}

func TestParseChangeRate_DirectionCode(t *testing.T) {
	up := parseChangeRate("1.25", "1")
	require.NotNil(t, up)
	assert.Equal(t, 1.25, *up)

	down := parseChangeRate("1.25", "2")
	require.NotNil(t, down)
	assert.Equal(t, -1.25, *down)

	flat := parseChangeRate("0.00", "3")
	require.NotNil(t, flat)
	assert.Equal(t, 0.0, *flat)

	// Missing direction code means no sign flip.
	missing := parseChangeRate("2.10", "")
	require.NotNil(t, missing)
	assert.Equal(t, 2.1, *missing)

	assert.Nil(t, parseChangeRate("-", "2"))
}

func TestParseRatio_ZeroIsNull(t *testing.T) {
	assert.Nil(t, parseRatio("0"))
	assert.Nil(t, parseRatio("0.00"))
	assert.Nil(t, parseRatio("-"))
	got := parseRatio("13.42")
	require.NotNil(t, got)
	assert.Equal(t, 13.42, *got)
}

func TestParseYield_PercentToDecimal(t *testing.T) {
	got := parseYield("2.56")
	require.NotNil(t, got)
	assert.Equal(t, 0.0256, *got)
	assert.Nil(t, parseYield(""))
}

func TestNormalizeStock(t *testing.T) {
	s := normalizeStock(rawRow{
		"ISU_SRT_CD": "005930",
		"ISU_ABBRV":  "삼성전자",
		"MKT_NM":     "KOSPI",
		"TDD_CLSPRC": "71,500",
		"FLUC_RT":    "0.84",
		"FLUC_TP_CD": "2",
		"ACC_TRDVOL": "12,345,678",
		"MKTCAP":     "426,916,000,000,000",
	})
	assert.Equal(t, "005930", s.Code)
	assert.Equal(t, 71500.0, *s.Close)
	assert.Equal(t, -0.84, *s.ChangeRate)
	assert.InDelta(t, 4269160.0, *s.MarketCap, 0.01)
}

func TestNormalizeValuation(t *testing.T) {
	v := normalizeValuation(rawRow{
		"ISU_SRT_CD": "005930",
		"PER":        "13.42",
		"PBR":        "0",
		"DVD_YLD":    "2.56",
		"EPS":        "5,324",
	})
	assert.Equal(t, "005930", v.Code)
	assert.Equal(t, 13.42, *v.PER)
	assert.Nil(t, v.PBR, "zero PBR means not computed")
	assert.Equal(t, 0.0256, *v.DividendYield)
	assert.Equal(t, 5324.0, *v.EPS)
}
