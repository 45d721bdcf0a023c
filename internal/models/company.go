package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompanyRecord is one company as handed over by the scrape source.
// Numeric fields are nullable: an invalid NullDecimal means the field was
// not scraped, which is different from a scraped zero.
type CompanyRecord struct {
	Ticker              string              `json:"ticker"`
	Name                string              `json:"name,omitempty"`
	Price               decimal.NullDecimal `json:"price"`
	MarketCap           decimal.NullDecimal `json:"market_cap"`
	PriceChange         decimal.NullDecimal `json:"price_change"`
	Ratios              Ratios              `json:"ratios"`
	Financials          FinancialProfile    `json:"financials"`
	HistoricalPrices    []PricePoint        `json:"historical_prices"`
	HistoricalDividends []DividendPoint     `json:"historical_dividends,omitempty"`
	Profile             map[string]string   `json:"profile,omitempty"`
	Directors           map[string]string   `json:"directors,omitempty"`
}

// Ratios holds the summary page ratios
type Ratios struct {
	PriceEarnings decimal.NullDecimal `json:"price_earnings"`
	EPS           decimal.NullDecimal `json:"eps"`
	NTA           decimal.NullDecimal `json:"nta"`
	NetDPS        decimal.NullDecimal `json:"net_dps"`
	GrossDPS      decimal.NullDecimal `json:"gross_dps"`
	BetaValue     decimal.NullDecimal `json:"beta_value"`
	PriceNTA      decimal.NullDecimal `json:"price_nta"`
	NetYield      decimal.NullDecimal `json:"net_yield"`
	GrossYield    decimal.NullDecimal `json:"gross_yield"`
	SharpeRatio   decimal.NullDecimal `json:"sharpe_ratio"`
}

// FinancialProfile holds the statement figures used for scoring plus the raw
// income, balance and cash flow line items as scraped.
type FinancialProfile struct {
	Year              string              `json:"year,omitempty"`
	NetIncome         decimal.NullDecimal `json:"net_income"`
	ShareholderEquity decimal.NullDecimal `json:"shareholder_equity"`
	TotalLiabilities  decimal.NullDecimal `json:"total_liabilities"`
	TotalEquity       decimal.NullDecimal `json:"total_equity"`
	Income            map[string]string   `json:"income,omitempty"`
	Balance           map[string]string   `json:"balance,omitempty"`
	Cash              map[string]string   `json:"cash,omitempty"`
}

// PricePoint is one row of the historical prices export
type PricePoint struct {
	Date        time.Time           `json:"date"`
	Last        decimal.NullDecimal `json:"last"`
	High        decimal.NullDecimal `json:"high"`
	Low         decimal.NullDecimal `json:"low"`
	Volume      int64               `json:"volume,omitempty"`
	ValueTraded decimal.NullDecimal `json:"value_traded"`
}

// DividendPoint is one paid dividend
type DividendPoint struct {
	Date   time.Time           `json:"date"`
	Amount decimal.NullDecimal `json:"amount"`
}

// ScrapeBatch is the full output of one scrape run
type ScrapeBatch struct {
	ID         string          `json:"id"`
	ScrapeDate time.Time       `json:"scrape_date"`
	Success    bool            `json:"success"`
	Companies  []CompanyRecord `json:"companies"`
	Reports    []string        `json:"reports,omitempty"`
}

// Closes returns the closing prices in series order. ok is false when any
// point is missing its close.
func (c *CompanyRecord) Closes() (closes []float64, ok bool) {
	closes = make([]float64, len(c.HistoricalPrices))
	for i, p := range c.HistoricalPrices {
		if !p.Last.Valid {
			return nil, false
		}
		closes[i] = p.Last.Decimal.InexactFloat64()
	}
	return closes, true
}

// Clone returns a deep copy of the record
func (c CompanyRecord) Clone() CompanyRecord {
	out := c
	out.HistoricalPrices = append([]PricePoint(nil), c.HistoricalPrices...)
	out.HistoricalDividends = append([]DividendPoint(nil), c.HistoricalDividends...)
	out.Profile = cloneMap(c.Profile)
	out.Directors = cloneMap(c.Directors)
	out.Financials.Income = cloneMap(c.Financials.Income)
	out.Financials.Balance = cloneMap(c.Financials.Balance)
	out.Financials.Cash = cloneMap(c.Financials.Cash)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
