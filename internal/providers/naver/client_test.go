package naver

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finscope/finscope/internal/providers"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, RPS: 1000})
}

func TestNews(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/item/news.naver", r.URL.Path)
		assert.Equal(t, "005930", r.URL.Query().Get("code"))
		fmt.Fprint(w, `<table>`+
			`<a href="/item/news_read.naver?article_id=1" class="tit">반도체 업황 회복 기대</a>`+
			`<a href="/item/news_read.naver?article_id=2">실적 발표 일정</a>`+
			`</table>`)
	}))

	items, err := c.News(context.Background(), "005930")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "반도체 업황 회복 기대", items[0].Title)
	assert.Contains(t, items[0].Link, "/item/news_read.naver?article_id=1")
}

func TestNewsPageDriftIsSchemaError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>redesigned page</body></html>`)
	}))
	_, err := c.News(context.Background(), "005930")
	require.Error(t, err)
	assert.Equal(t, providers.KindSchema, providers.KindOf(err))
}

func TestCompanyProfile(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>삼성전자 : 네이버 금융</title></head>`+
			`<body>업종명</span><a>반도체와반도체장비</a></body></html>`)
	}))

	p, err := c.CompanyProfile(context.Background(), "005930")
	require.NoError(t, err)
	assert.Equal(t, "005930", p.Code)
	assert.Equal(t, "삼성전자", p.Name)
}

func TestSectorPeersDeduplicatesAndSkipsSelf(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div>`+
			`<a href="/item/main.naver?code=005930">삼성전자</a>`+
			`<a href="/item/main.naver?code=000660">SK하이닉스</a>`+
			`<a href="/item/main.naver?code=000660">SK하이닉스</a>`+
			`<a href="/item/main.naver?code=042700">한미반도체</a>`+
			`</div>`)
	}))

	peers, err := c.SectorPeers(context.Background(), "005930")
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, "000660", peers[0].Code)
	assert.Equal(t, "042700", peers[1].Code)
}

func TestShortInterestHistory(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<table>`+
			`<tr><th>날짜</th><th>공매도</th><th>거래량</th><th>비중</th></tr>`+
			`<tr><td>2025.08.25</td><td>1,234,567</td><td>12,000,000</td><td>10.29</td></tr>`+
			`<tr><td>2025.08.22</td><td>987,654</td><td>11,500,000</td><td>8.59</td></tr>`+
			`</table>`)
	}))

	rows, err := c.ShortInterestHistory(context.Background(), "005930")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025.08.25", rows[0].Date)
	assert.Equal(t, 1234567.0, rows[0].ShortVolume)
	assert.Equal(t, 10.29, rows[0].ShortRatio)
}

func TestParseStatementRows(t *testing.T) {
	body := `<table>` +
		`<tr><td>매출액</td><td>3,022,314</td><td>2,589,355</td></tr>` +
		`<tr><td>영업이익</td><td>516,339</td><td>-</td></tr>` +
		`<tr><td>헤더</td><td>2023</td><td>연도별</td></tr>` +
		`</table>`

	rows := parseStatementRows(body)
	require.Len(t, rows, 2, "non-numeric rows skipped")
	assert.Equal(t, "매출액", rows[0].Metric)
	assert.Equal(t, []float64{3022314, 2589355}, rows[0].Values)
	assert.Equal(t, []float64{516339, 0}, rows[1].Values)
}

func TestFetchUnknownResource(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	_, err := c.Fetch(context.Background(), "horoscope", map[string]string{"code": "005930"})
	require.Error(t, err)
	assert.Equal(t, providers.KindValidation, providers.KindOf(err))
}
