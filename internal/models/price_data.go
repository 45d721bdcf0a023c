package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistoryRow is a stored daily close for a ticker
type PriceHistoryRow struct {
	ID          int                 `json:"id"`
	Ticker      string              `json:"ticker"`
	Date        time.Time           `json:"date"`
	Last        decimal.Decimal     `json:"last"`
	High        decimal.NullDecimal `json:"high"`
	Low         decimal.NullDecimal `json:"low"`
	Volume      int64               `json:"volume"`
	ValueTraded decimal.NullDecimal `json:"value_traded"`
	CreatedAt   time.Time           `json:"created_at"`
}

// ScoreHistoryRow is one stored score of a ticker in a given run
type ScoreHistoryRow struct {
	RunID               string    `json:"run_id"`
	Ticker              string    `json:"ticker"`
	Name                string    `json:"name,omitempty"`
	ScrapeDate          time.Time `json:"scrape_date"`
	NetYield            *float64  `json:"net_yield,omitempty"`
	SharpeRatio         *float64  `json:"sharpe_ratio,omitempty"`
	ReturnOnEquity      float64   `json:"return_on_equity"`
	DebtEquity          float64   `json:"debt_equity"`
	DividendYieldIndex  float64   `json:"dividend_yield_index"`
	ReturnOnEquityIndex float64   `json:"return_on_equity_index"`
	SharpeRatioIndex    float64   `json:"sharpe_ratio_index"`
	DebtEquityIndex     float64   `json:"debt_equity_index"`
	Score               float64   `json:"score"`
	Risk                float64   `json:"risk"`
	CreatedAt           time.Time `json:"created_at"`
}

// RunSummary is a stored scoring run without its companies
type RunSummary struct {
	RunID        string              `json:"run_id"`
	BatchID      string              `json:"batch_id,omitempty"`
	ScrapeDate   time.Time           `json:"scrape_date"`
	Status       string              `json:"status"`
	CompanyCount int                 `json:"company_count"`
	FailureCount int                 `json:"failure_count"`
	Ranges       NormalisationRanges `json:"ranges"`
	ScoredAt     time.Time           `json:"scored_at"`
}
