package krx

import (
	"strconv"
	"strings"
)

// rawRow is one portal record: every field a display string.
type rawRow map[string]string

// parseNum strips comma grouping; "-" and blank are null.
func parseNum(s string) *float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseMarketCap converts the portal's raw KRW to 억 KRW. Null propagates.
func parseMarketCap(s string) *float64 {
	v := parseNum(s)
	if v == nil {
		return nil
	}
	eok := *v / 1e8
	return &eok
}

// parseChangeRate applies the direction code to the unsigned magnitude:
// "2" means down, anything else (including a missing field) keeps the sign.
func parseChangeRate(magnitude, direction string) *float64 {
	v := parseNum(magnitude)
	if v == nil {
		return nil
	}
	if direction == "2" {
		neg := -*v
		return &neg
	}
	return v
}

// parseRatio treats the portal's 0 as null: a zero PER/PBR means "not
// computed", never "free".
func parseRatio(s string) *float64 {
	v := parseNum(s)
	if v == nil || *v == 0 {
		return nil
	}
	return v
}

// parseYield converts the portal's percentage (2.56) to decimal (0.0256).
func parseYield(s string) *float64 {
	v := parseNum(s)
	if v == nil {
		return nil
	}
	d := *v / 100
	return &d
}

func normalizeStock(row rawRow) Stock {
	return Stock{
		Code:       row["ISU_SRT_CD"],
		Name:       row["ISU_ABBRV"],
		Market:     row["MKT_NM"],
		Close:      parseNum(row["TDD_CLSPRC"]),
		ChangeRate: parseChangeRate(row["FLUC_RT"], row["FLUC_TP_CD"]),
		Volume:     parseNum(row["ACC_TRDVOL"]),
		TradeValue: parseNum(row["ACC_TRDVAL"]),
		MarketCap:  parseMarketCap(row["MKTCAP"]),
	}
}

func normalizeETF(row rawRow) ETF {
	return ETF{
		Code:       row["ISU_SRT_CD"],
		Name:       row["ISU_ABBRV"],
		IndexName:  row["IDX_IND_NM"],
		Close:      parseNum(row["TDD_CLSPRC"]),
		ChangeRate: parseChangeRate(row["FLUC_RT"], row["FLUC_TP_CD"]),
		Volume:     parseNum(row["ACC_TRDVOL"]),
		MarketCap:  parseMarketCap(row["MKTCAP"]),
		NAV:        parseNum(row["NAV"]),
	}
}

func normalizeValuation(row rawRow) Valuation {
	return Valuation{
		Code:          row["ISU_SRT_CD"],
		PER:           parseRatio(row["PER"]),
		PBR:           parseRatio(row["PBR"]),
		EPS:           parseNum(row["EPS"]),
		BPS:           parseNum(row["BPS"]),
		DPS:           parseNum(row["DPS"]),
		DividendYield: parseYield(row["DVD_YLD"]),
	}
}
