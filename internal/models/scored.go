package models

import (
	"time"
)

// Run status constants
const (
	StatusScored  = "SCORED"
	StatusPartial = "PARTIAL"
	StatusFailed  = "FAILED"
)

// Failure kind constants
const (
	FailureArithmetic       = "ARITHMETIC"
	FailureInsufficientData = "INSUFFICIENT_DATA"
	FailureMissingField     = "MISSING_FIELD"
	FailureDuplicate        = "DUPLICATE_TICKER"
)

// Range is the buffered max/min of one metric across a batch
type Range struct {
	Max float64 `json:"max"`
	Min float64 `json:"min"`
}

// NormalisationRanges holds the batch-wide range of every scored metric
type NormalisationRanges struct {
	DividendYield  Range `json:"dividend_yield"`
	ReturnOnEquity Range `json:"return_on_equity"`
	SharpeRatio    Range `json:"sharpe_ratio"`
	DebtEquity     Range `json:"debt_equity"`
}

// ScoredCompany is a company record with its derived ratios, indices, score and risk
type ScoredCompany struct {
	CompanyRecord
	ReturnOnEquity      float64 `json:"return_on_equity"`
	DebtEquity          float64 `json:"debt_equity"`
	DividendYieldIndex  float64 `json:"dividend_yield_index"`
	ReturnOnEquityIndex float64 `json:"return_on_equity_index"`
	SharpeRatioIndex    float64 `json:"sharpe_ratio_index"`
	DebtEquityIndex     float64 `json:"debt_equity_index"`
	Score               float64 `json:"score"`
	Risk                float64 `json:"risk"`
}

// CompanyFailure explains why a company could not be scored
type CompanyFailure struct {
	Ticker string `json:"ticker"`
	Kind   string `json:"kind"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// ScoredBatch is the result of scoring one scrape batch
type ScoredBatch struct {
	RunID      string              `json:"run_id"`
	BatchID    string              `json:"batch_id,omitempty"`
	ScrapeDate time.Time           `json:"scrape_date"`
	Status     string              `json:"status"`
	Ranges     NormalisationRanges `json:"ranges"`
	Companies  []ScoredCompany     `json:"companies"`
	Failures   []CompanyFailure    `json:"failures,omitempty"`
	ScoredAt   time.Time           `json:"scored_at"`
}

// Tickers returns the tickers of the scored companies in batch order
func (b *ScoredBatch) Tickers() []string {
	tickers := make([]string, len(b.Companies))
	for i, c := range b.Companies {
		tickers[i] = c.Ticker
	}
	return tickers
}
