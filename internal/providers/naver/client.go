// Package naver scrapes the Korean finance portal pages that have no API:
// news, company profile, financial statements, investor trends, analyst
// opinions, short interest, and sector peers. Scraping is best-effort and
// politeness-limited; page drift surfaces as schema errors.
package naver

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/finscope/finscope/internal/providers"
)

const providerName = "naver"

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// RPS bounds page fetches; a token bucket is plenty for politeness.
	RPS float64
}

// Client scrapes the finance portal.
type Client struct {
	cfg       Config
	transport *providers.Transport
	polite    *rate.Limiter
}

// New creates the scraping client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://finance.naver.com"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RPS == 0 {
		cfg.RPS = 2
	}
	return &Client{
		cfg:       cfg,
		transport: providers.NewTransport(providerName, providers.TransportConfig{Timeout: cfg.Timeout, MaxRetries: 2}),
		polite:    rate.NewLimiter(rate.Limit(cfg.RPS), 1),
	}
}

// NewsItem is one headline row.
type NewsItem struct {
	Title string `json:"title"`
	Link  string `json:"link"`
	Date  string `json:"date"`
}

// Profile is the company overview block.
type Profile struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Summary  string `json:"summary"`
}

// StatementRow is one line of the annual financial statement table.
type StatementRow struct {
	Metric string    `json:"metric"`
	Values []float64 `json:"values"`
}

// InvestorTrend is one day of investor-type net buying.
type InvestorTrend struct {
	Date        string  `json:"date"`
	Individual  float64 `json:"individual"`
	Foreign     float64 `json:"foreign"`
	Institution float64 `json:"institution"`
}

// Opinion is one analyst opinion row.
type Opinion struct {
	Date        string  `json:"date"`
	Firm        string  `json:"firm"`
	Rating      string  `json:"rating"`
	TargetPrice float64 `json:"target_price"`
}

// ShortInterest is one day of short-selling volume.
type ShortInterest struct {
	Date        string  `json:"date"`
	ShortVolume float64 `json:"short_volume"`
	ShortRatio  float64 `json:"short_ratio"`
}

// Peer is one sector peer reference.
type Peer struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (c *Client) page(ctx context.Context, path string) (string, error) {
	if err := c.polite.Wait(ctx); err != nil {
		return "", providers.E(providerName, providers.KindTimeout, "politeness wait cancelled", err)
	}
	resp, err := c.transport.Do(ctx, http.MethodGet, c.cfg.BaseURL+path, nil, nil)
	if err != nil {
		return "", err
	}
	if resp.Status != http.StatusOK {
		return "", providers.E(providerName, providers.KindUpstream, fmt.Sprintf("page status %d", resp.Status), nil)
	}
	return string(resp.Body), nil
}

var (
	newsRe     = regexp.MustCompile(`<a[^>]+href="(/item/news_read[^"]+)"[^>]*>([^<]+)</a>`)
	titleRe    = regexp.MustCompile(`<title>([^<:]+)`)
	industryRe = regexp.MustCompile(`업종[^>]*>([^<]+)<`)
	rowRe      = regexp.MustCompile(`<tr[^>]*>(.*?)</tr>`)
	cellRe     = regexp.MustCompile(`<t[dh][^>]*>(.*?)</t[dh]>`)
	tagRe      = regexp.MustCompile(`<[^>]+>`)
	peerRe     = regexp.MustCompile(`code=(\d{6})"[^>]*>([^<]+)<`)
)

// News returns recent headlines for a stock.
func (c *Client) News(ctx context.Context, code string) ([]NewsItem, error) {
	body, err := c.page(ctx, "/item/news.naver?code="+code)
	if err != nil {
		return nil, err
	}
	matches := newsRe.FindAllStringSubmatch(body, 20)
	out := make([]NewsItem, 0, len(matches))
	for _, m := range matches {
		out = append(out, NewsItem{Title: strings.TrimSpace(m[2]), Link: c.cfg.BaseURL + m[1]})
	}
	if len(out) == 0 {
		return nil, providers.E(providerName, providers.KindSchema, "no news rows recognised", nil)
	}
	return out, nil
}

// CompanyProfile scrapes the overview page.
func (c *Client) CompanyProfile(ctx context.Context, code string) (*Profile, error) {
	body, err := c.page(ctx, "/item/main.naver?code="+code)
	if err != nil {
		return nil, err
	}
	p := &Profile{Code: code}
	if m := titleRe.FindStringSubmatch(body); m != nil {
		p.Name = strings.TrimSpace(m[1])
	}
	if m := industryRe.FindStringSubmatch(body); m != nil {
		p.Industry = strings.TrimSpace(m[1])
	}
	if p.Name == "" {
		return nil, providers.E(providerName, providers.KindSchema, "profile page not recognised", nil)
	}
	return p, nil
}

// FinancialStatements scrapes the annual statement table.
func (c *Client) FinancialStatements(ctx context.Context, code string) ([]StatementRow, error) {
	body, err := c.page(ctx, "/item/coinfo.naver?code="+code)
	if err != nil {
		return nil, err
	}
	return parseStatementRows(body), nil
}

// InvestorTrends scrapes daily investor-type net buying.
func (c *Client) InvestorTrends(ctx context.Context, code string) ([]InvestorTrend, error) {
	body, err := c.page(ctx, "/item/frgn.naver?code="+code)
	if err != nil {
		return nil, err
	}
	var out []InvestorTrend
	for _, row := range rowRe.FindAllStringSubmatch(body, -1) {
		cells := cellText(row[1])
		if len(cells) < 7 || !strings.Contains(cells[0], ".") {
			continue
		}
		out = append(out, InvestorTrend{
			Date:        cells[0],
			Institution: parseNum(cells[5]),
			Foreign:     parseNum(cells[6]),
		})
	}
	return out, nil
}

// Opinions scrapes analyst opinion rows.
func (c *Client) Opinions(ctx context.Context, code string) ([]Opinion, error) {
	body, err := c.page(ctx, "/research/company_list.naver?searchType=itemCode&itemCode="+code)
	if err != nil {
		return nil, err
	}
	var out []Opinion
	for _, row := range rowRe.FindAllStringSubmatch(body, -1) {
		cells := cellText(row[1])
		if len(cells) < 5 || !strings.Contains(cells[len(cells)-1], ".") {
			continue
		}
		out = append(out, Opinion{
			Firm:        cells[2],
			TargetPrice: parseNum(cells[3]),
			Date:        cells[len(cells)-1],
		})
	}
	return out, nil
}

// ShortInterestHistory scrapes daily short-selling volume.
func (c *Client) ShortInterestHistory(ctx context.Context, code string) ([]ShortInterest, error) {
	body, err := c.page(ctx, "/item/short_sell.naver?code="+code)
	if err != nil {
		return nil, err
	}
	var out []ShortInterest
	for _, row := range rowRe.FindAllStringSubmatch(body, -1) {
		cells := cellText(row[1])
		if len(cells) < 4 || !strings.Contains(cells[0], ".") {
			continue
		}
		out = append(out, ShortInterest{
			Date:        cells[0],
			ShortVolume: parseNum(cells[1]),
			ShortRatio:  parseNum(cells[3]),
		})
	}
	return out, nil
}

// SectorPeers scrapes same-industry peer links.
func (c *Client) SectorPeers(ctx context.Context, code string) ([]Peer, error) {
	body, err := c.page(ctx, "/item/main.naver?code="+code)
	if err != nil {
		return nil, err
	}
	var out []Peer
	seen := map[string]bool{code: true}
	for _, m := range peerRe.FindAllStringSubmatch(body, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, Peer{Code: m[1], Name: strings.TrimSpace(m[2])})
	}
	return out, nil
}

// Fetch implements providers.Adapter.
func (c *Client) Fetch(ctx context.Context, resource string, params map[string]string) (any, error) {
	code := params["code"]
	switch resource {
	case "news":
		return c.News(ctx, code)
	case "profile":
		return c.CompanyProfile(ctx, code)
	case "financials":
		return c.FinancialStatements(ctx, code)
	case "investor_trends":
		return c.InvestorTrends(ctx, code)
	case "opinions":
		return c.Opinions(ctx, code)
	case "short_interest":
		return c.ShortInterestHistory(ctx, code)
	case "sector_peers":
		return c.SectorPeers(ctx, code)
	default:
		return nil, providers.E(providerName, providers.KindValidation, "unknown resource "+resource, nil)
	}
}

// InvalidateCredentials is a no-op: the portal pages need no credentials.
func (c *Client) InvalidateCredentials(context.Context) {}

func parseStatementRows(body string) []StatementRow {
	var out []StatementRow
	for _, row := range rowRe.FindAllStringSubmatch(body, -1) {
		cells := cellText(row[1])
		if len(cells) < 2 {
			continue
		}
		values := make([]float64, 0, len(cells)-1)
		numeric := true
		for _, cell := range cells[1:] {
			if cell == "" || cell == "-" {
				values = append(values, 0)
				continue
			}
			f, err := strconv.ParseFloat(strings.ReplaceAll(cell, ",", ""), 64)
			if err != nil {
				numeric = false
				break
			}
			values = append(values, f)
		}
		if numeric && len(values) > 0 {
			out = append(out, StatementRow{Metric: cells[0], Values: values})
		}
	}
	return out
}

func cellText(row string) []string {
	var out []string
	for _, m := range cellRe.FindAllStringSubmatch(row, -1) {
		out = append(out, strings.TrimSpace(tagRe.ReplaceAllString(m[1], "")))
	}
	return out
}

func parseNum(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return 0
	}
	f, _ := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	return f
}
