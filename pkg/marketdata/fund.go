package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Labels for the nine fund datasets, in fetch order. The same strings
// appear as section markers in the bundle digest.
const (
	LabelBasicInfo          = "Basic Info"
	LabelFundRating         = "Fund Rating"
	LabelPerformance        = "Performance"
	LabelValueEstimate      = "NAV Estimate"
	LabelAnalysis           = "Data Analysis"
	LabelProfitProbability  = "Profit Probability"
	LabelAssetAllocation    = "Asset Allocation"
	LabelIndustryAllocation = "Industry Allocation"
	LabelHoldings           = "Portfolio Holdings"
)

func (c *Client) fundRows(ctx context.Context, path, code string) (Rows, error) {
	params := url.Values{"symbol": {code}}
	var rows Rows
	if err := c.get(ctx, path, params, &rows, false); err != nil {
		return nil, err
	}
	return rows, nil
}

// FundBasicInfo fetches the profile sheet for one fund (name, type,
// manager, inception date, scale).
func (c *Client) FundBasicInfo(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/basic_info", code)
}

// FundRating fetches the agency ratings for one fund.
func (c *Client) FundRating(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/rating", code)
}

// FundPerformance fetches the stage returns for one fund.
func (c *Client) FundPerformance(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/performance", code)
}

// FundValueEstimate fetches the intraday NAV estimate for one fund.
func (c *Client) FundValueEstimate(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/value_estimate", code)
}

// FundAnalysis fetches the risk and volatility analysis for one fund.
func (c *Client) FundAnalysis(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/analysis", code)
}

// FundProfitProbability fetches the holding-period win rates for one fund.
func (c *Client) FundProfitProbability(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/profit_probability", code)
}

// FundAssetAllocation fetches the asset class mix for one fund.
func (c *Client) FundAssetAllocation(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/asset_allocation", code)
}

// FundIndustryAllocation fetches the sector weights for one fund.
func (c *Client) FundIndustryAllocation(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/industry_allocation", code)
}

// FundHoldings fetches the top portfolio positions for one fund.
func (c *Client) FundHoldings(ctx context.Context, code string) (Rows, error) {
	return c.fundRows(ctx, "/api/fund/holdings", code)
}

// FundSection is one dataset inside a fund bundle. Exactly one of Rows
// and Err is meaningful.
type FundSection struct {
	Label string
	Rows  Rows
	Err   error
}

// FundBundle aggregates the nine fund datasets for one fund code.
type FundBundle struct {
	Code     string
	Sections []FundSection
}

// FetchFundBundle fetches all nine fund datasets for code in a fixed
// order. Each dataset is isolated: a failed fetch is recorded in its
// section and the remaining datasets are still attempted, so the bundle
// itself never fails.
func (c *Client) FetchFundBundle(ctx context.Context, code string) *FundBundle {
	fetches := []struct {
		label string
		fetch func(context.Context, string) (Rows, error)
	}{
		{LabelBasicInfo, c.FundBasicInfo},
		{LabelFundRating, c.FundRating},
		{LabelPerformance, c.FundPerformance},
		{LabelValueEstimate, c.FundValueEstimate},
		{LabelAnalysis, c.FundAnalysis},
		{LabelProfitProbability, c.FundProfitProbability},
		{LabelAssetAllocation, c.FundAssetAllocation},
		{LabelIndustryAllocation, c.FundIndustryAllocation},
		{LabelHoldings, c.FundHoldings},
	}

	bundle := &FundBundle{Code: code, Sections: make([]FundSection, 0, len(fetches))}
	for _, f := range fetches {
		rows, err := f.fetch(ctx, code)
		bundle.Sections = append(bundle.Sections, FundSection{Label: f.label, Rows: rows, Err: err})
	}
	return bundle
}

// FailedCount returns how many datasets in the bundle failed to fetch.
func (b *FundBundle) FailedCount() int {
	n := 0
	for _, s := range b.Sections {
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Digest renders the bundle as the labeled text block fed to the analysis
// prompt. Failed datasets appear inline so the model knows what is
// missing.
func (b *FundBundle) Digest() string {
	parts := make([]string, 0, len(b.Sections)+1)
	parts = append(parts, fmt.Sprintf("[Fund Code]: %s", b.Code))

	for _, s := range b.Sections {
		if s.Err != nil {
			parts = append(parts, fmt.Sprintf("[%s] fetch failed: %v", s.Label, s.Err))
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]:\n%s", s.Label, s.Rows.Render()))
	}
	return strings.Join(parts, "\n\n")
}
