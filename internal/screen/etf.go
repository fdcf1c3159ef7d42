package screen

import (
	"strings"
)

// etfCategories is the closed label set; 기타 catches everything else.
var etfCategories = []string{
	"미국주식", "인도", "일본", "중국", "반도체", "AI", "배당", "채권",
	"2차전지", "방산", "금", "원유", "코스피200", "코스닥150", "기타",
}

// etfKeywords maps each category to the name/index keywords that imply it.
// Classification is multi-label; an unmatched fund falls into 기타.
var etfKeywords = map[string][]string{
	"미국주식":   {"미국", "S&P", "SNP", "나스닥", "NASDAQ", "다우"},
	"인도":     {"인도", "NIFTY"},
	"일본":     {"일본", "닛케이", "NIKKEI", "TOPIX"},
	"중국":     {"중국", "차이나", "CSI", "항셍", "HSCEI"},
	"반도체":    {"반도체", "SEMICON"},
	"AI":     {"AI", "인공지능", "로봇"},
	"배당":     {"배당", "고배당", "배당성장"},
	"채권":     {"채권", "국채", "회사채", "단기채", "금리"},
	"2차전지":   {"2차전지", "배터리", "리튬"},
	"방산":     {"방산", "우주항공"},
	"금":      {"골드", "금현물", "금선물"},
	"원유":     {"원유", "WTI", "에너지"},
	"코스피200": {"코스피200", "KOSPI200", "200"},
	"코스닥150": {"코스닥150", "KOSDAQ150", "150"},
}

// classifyETF assigns every matching category label to a fund name plus
// its tracked-index name.
func classifyETF(name, indexName string) []string {
	hay := strings.ToUpper(name + " " + indexName)
	var labels []string
	for _, cat := range etfCategories {
		if cat == "기타" {
			continue
		}
		for _, kw := range etfKeywords[cat] {
			if strings.Contains(hay, strings.ToUpper(kw)) {
				labels = append(labels, cat)
				break
			}
		}
	}
	if len(labels) == 0 {
		labels = []string{"기타"}
	}
	return labels
}

func hasCategory(labels []string, category string) bool {
	for _, l := range labels {
		if l == category {
			return true
		}
	}
	return false
}

// isETFCategory reports whether a requested category implies the ETF
// universe rather than single stocks.
func isETFCategory(category string) bool {
	for _, cat := range etfCategories {
		if cat == category {
			return true
		}
	}
	return false
}
