package marketdata

import (
	"context"
	"net/url"
	"strconv"
)

// StockQuote is a real-time price snapshot for one listed security.
type StockQuote struct {
	Code          string  `json:"code"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PrevClose     float64 `json:"prev_close"`
	Volume        float64 `json:"volume"`
	Turnover      float64 `json:"turnover"`
	UpdatedAt     string  `json:"updated_at"`
}

// StockIndicators carries the valuation ratios for one listed security.
type StockIndicators struct {
	Code           string  `json:"code"`
	PE             float64 `json:"pe"`
	PB             float64 `json:"pb"`
	PS             float64 `json:"ps"`
	MarketCap      float64 `json:"market_cap"`
	CirculatingCap float64 `json:"circulating_cap"`
	Week52High     float64 `json:"week52_high"`
	Week52Low      float64 `json:"week52_low"`
	DividendYield  float64 `json:"dividend_yield"`
}

// NewsItem is one article returned by the news endpoints.
type NewsItem struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	URL         string `json:"url"`
	Summary     string `json:"summary"`
}

// StockQuote fetches the real-time quote for code.
func (c *Client) StockQuote(ctx context.Context, code string) (*StockQuote, error) {
	params := url.Values{"symbol": {code}}
	var quote StockQuote
	if err := c.get(ctx, "/api/stock/quote", params, &quote, false); err != nil {
		return nil, err
	}
	return &quote, nil
}

// StockIndicators fetches the valuation indicators for code.
func (c *Client) StockIndicators(ctx context.Context, code string) (*StockIndicators, error) {
	params := url.Values{"symbol": {code}}
	var ind StockIndicators
	if err := c.get(ctx, "/api/stock/indicators", params, &ind, false); err != nil {
		return nil, err
	}
	return &ind, nil
}

// StockNews fetches recent articles mentioning code, newest first.
func (c *Client) StockNews(ctx context.Context, code string, limit int) ([]NewsItem, error) {
	params := url.Values{"symbol": {code}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var items []NewsItem
	if err := c.get(ctx, "/api/stock/news", params, &items, true); err != nil {
		return nil, err
	}
	return items, nil
}

// SearchNews runs a free-text news search.
func (c *Client) SearchNews(ctx context.Context, query string, limit int) ([]NewsItem, error) {
	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var items []NewsItem
	if err := c.get(ctx, "/api/news/search", params, &items, true); err != nil {
		return nil, err
	}
	return items, nil
}
