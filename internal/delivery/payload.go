package delivery

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

// Date formats used by the receiving endpoint
const (
	BatchDateFormat = "2006/01/02"
	PointDateFormat = "2006-01-02"
)

// Section is one named block of a company entry
type Section map[string]any

// BuildPayload lays out a scored batch the way the update endpoint expects it:
// one top-level key per scrape date holding "Date" and an entry per ticker.
func BuildPayload(batch *models.ScoredBatch) map[string]map[string]any {
	date := batch.ScrapeDate.Format(BatchDateFormat)
	entry := map[string]any{"Date": date}
	for i := range batch.Companies {
		c := &batch.Companies[i]
		entry[c.Ticker] = companyEntry(c)
	}
	return map[string]map[string]any{date: entry}
}

// FailurePayload is sent when a scrape or scoring pass did not produce a batch
func FailurePayload(date time.Time) map[string]map[string]any {
	return map[string]map[string]any{date.Format(BatchDateFormat): {}}
}

func companyEntry(c *models.ScoredCompany) map[string]Section {
	return map[string]Section{
		"Summary":             summarySection(c),
		"Ratio":               ratioSection(c),
		"HistoricalPrices":    pricesSection(c.HistoricalPrices),
		"HistoricalDividends": dividendsSection(c.HistoricalDividends),
		"FinancialProfile":    financialSection(c.Financials),
		"Profile":             stringSection(c.Profile),
		"Directors":           stringSection(c.Directors),
	}
}

func summarySection(c *models.ScoredCompany) Section {
	return Section{
		"Name":                     c.Name,
		"Price":                    number(c.Price),
		"Market Cap":               number(c.MarketCap),
		"Price Change":             number(c.PriceChange),
		"Ticker":                   c.Ticker,
		"Net Dividend Yield Index": c.DividendYieldIndex,
		"Return on Equity Index":   c.ReturnOnEquityIndex,
		"Sharpe Ratio Index":       c.SharpeRatioIndex,
		"Debt Equity Index":        c.DebtEquityIndex,
		"Score":                    c.Score,
		"Risk":                     c.Risk,
	}
}

func ratioSection(c *models.ScoredCompany) Section {
	r := c.Ratios
	return Section{
		"Price Earnings Ratio": number(r.PriceEarnings),
		"EPS":                  number(r.EPS),
		"NTA":                  number(r.NTA),
		"Net DPS":              number(r.NetDPS),
		"Gross DPS":            number(r.GrossDPS),
		"Beta Value":           number(r.BetaValue),
		"Price/NTA":            number(r.PriceNTA),
		"Net Yield":            number(r.NetYield),
		"Gross Yield":          number(r.GrossYield),
		"Sharpe Ratio":         number(r.SharpeRatio),
		"Return on Equity":     c.ReturnOnEquity,
		"Debt Equity":          c.DebtEquity,
	}
}

func pricesSection(points []models.PricePoint) Section {
	s := make(Section, len(points))
	for _, p := range points {
		s[p.Date.Format(PointDateFormat)] = map[string]any{
			"Last":                number(p.Last),
			"High":                number(p.High),
			"Low":                 number(p.Low),
			"Volume":              p.Volume,
			"Dollar Value Traded": number(p.ValueTraded),
		}
	}
	return s
}

func dividendsSection(points []models.DividendPoint) Section {
	s := make(Section, len(points))
	for _, d := range points {
		s[d.Date.Format(PointDateFormat)] = number(d.Amount)
	}
	return s
}

func financialSection(f models.FinancialProfile) Section {
	income := stringSection(f.Income)
	balance := stringSection(f.Balance)
	if f.NetIncome.Valid {
		income["Net Income"] = f.NetIncome.Decimal.InexactFloat64()
	}
	if f.TotalEquity.Valid {
		balance["Total Equity"] = f.TotalEquity.Decimal.InexactFloat64()
	}
	if f.ShareholderEquity.Valid {
		balance["Shareholder Equity"] = f.ShareholderEquity.Decimal.InexactFloat64()
	}
	if f.TotalLiabilities.Valid {
		balance["Total Liabilities"] = f.TotalLiabilities.Decimal.InexactFloat64()
	}
	return Section{
		"Year": f.Year,
		"Data": map[string]Section{
			"Income":  income,
			"Balance": balance,
			"Cash":    stringSection(f.Cash),
		},
	}
}

func stringSection(m map[string]string) Section {
	s := make(Section, len(m))
	for k, v := range m {
		s[k] = v
	}
	return s
}

// number renders a nullable decimal as a JSON number, or null when absent
func number(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.InexactFloat64()
}
