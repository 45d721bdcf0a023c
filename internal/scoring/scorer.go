package scoring

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

// Field names reported in failures
const (
	FieldNetYield          = "net_yield"
	FieldNetIncome         = "net_income"
	FieldShareholderEquity = "shareholder_equity"
	FieldSharpeRatio       = "sharpe_ratio"
	FieldTotalLiabilities  = "total_liabilities"
	FieldTotalEquity       = "total_equity"
	FieldHistoricalPrices  = "historical_prices"
	FieldReturnOnEquity    = "return_on_equity"
	FieldDebtEquity        = "debt_equity"
	FieldScore             = "score"
	FieldTicker            = "ticker"
)

// Options controls a scoring pass
type Options struct {
	Policy RangePolicy
	// IsolateFailures drops failing companies and scores the rest instead of
	// failing the whole batch.
	IsolateFailures bool
}

// Scorer ranks a batch of companies against each other
type Scorer struct {
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

// NewScorer creates a new Scorer
func NewScorer(opts Options, log zerolog.Logger) *Scorer {
	if opts.Policy == "" {
		opts.Policy = RangeObserved
	}
	return &Scorer{
		opts: opts,
		log:  log.With().Str("module", "scoring").Logger(),
		now:  time.Now,
	}
}

// metrics are the raw values a company is ranked on
type metrics struct {
	ticker         string
	dividendYield  float64
	returnOnEquity float64
	sharpeRatio    float64
	debtEquity     float64
}

// Score ranks every company in the batch and returns new scored records in
// input order; the batch itself is not modified.
//
// In strict mode any company failure fails the batch: the returned
// ScoredBatch has status FAILED, no companies, every failure listed, and the
// error is a *BatchError. With IsolateFailures the failing companies are left
// out of range discovery and the result, and status is PARTIAL. A ticker
// already seen earlier in the batch fails as a duplicate.
func (s *Scorer) Score(batch models.ScrapeBatch) (*models.ScoredBatch, error) {
	result := &models.ScoredBatch{
		BatchID:    batch.ID,
		ScrapeDate: batch.ScrapeDate,
		Companies:  []models.ScoredCompany{},
		ScoredAt:   s.now(),
	}

	if len(batch.Companies) == 0 {
		result.Status = models.StatusFailed
		return result, ErrEmptyBatch
	}
	if s.opts.Policy == RangeZeroSeeded {
		s.log.Warn().Msg("using zero-seeded ranges; metrics that never cross 0 keep a bound at 0±1")
	}

	var failed []*CompanyError
	valid := make([]int, 0, len(batch.Companies))
	ms := make([]metrics, len(batch.Companies))
	risks := make([]float64, len(batch.Companies))
	seen := make(map[string]bool, len(batch.Companies))
	for i := range batch.Companies {
		c := &batch.Companies[i]
		var m metrics
		var err error
		if seen[c.Ticker] {
			err = &CompanyError{Ticker: c.Ticker, Field: FieldTicker, Err: ErrDuplicateTicker}
		} else {
			seen[c.Ticker] = true
			m, err = ratiosOf(c)
		}
		if err == nil {
			risks[i], err = riskOf(c)
		}
		if err != nil {
			var ce *CompanyError
			errors.As(err, &ce)
			failed = append(failed, ce)
			s.log.Warn().Str("ticker", c.Ticker).Err(err).Msg("company cannot be scored")
			continue
		}
		ms[i] = m
		valid = append(valid, i)
	}

	if err := s.abort(result, failed, len(valid)); err != nil {
		return result, err
	}

	inRange := make([]metrics, len(valid))
	for j, i := range valid {
		inRange[j] = ms[i]
	}
	ranges, err := findRanges(inRange, s.opts.Policy)
	if err != nil {
		result.Status = models.StatusFailed
		return result, err
	}
	result.Ranges = ranges
	s.log.Info().
		Interface("ranges", ranges).
		Str("policy", string(s.opts.Policy)).
		Int("companies", len(valid)).
		Msg("normalisation ranges found")

	scored := make([]models.ScoredCompany, 0, len(valid))
	for _, i := range valid {
		sc, err := s.scoreCompany(batch.Companies[i], ms[i], risks[i], ranges)
		if err != nil {
			var ce *CompanyError
			errors.As(err, &ce)
			failed = append(failed, ce)
			s.log.Warn().Str("ticker", ms[i].ticker).Err(err).Msg("company cannot be scored")
			continue
		}
		scored = append(scored, sc)
	}

	if err := s.abort(result, failed, len(scored)); err != nil {
		return result, err
	}

	result.Companies = scored
	result.Failures = failuresOf(failed)
	result.Status = models.StatusScored
	if len(failed) > 0 {
		result.Status = models.StatusPartial
	}
	return result, nil
}

// abort marks the batch failed when strict mode sees a failure or nothing is left to score
func (s *Scorer) abort(result *models.ScoredBatch, failed []*CompanyError, remaining int) error {
	if len(failed) == 0 {
		return nil
	}
	if s.opts.IsolateFailures && remaining > 0 {
		return nil
	}
	result.Status = models.StatusFailed
	result.Failures = failuresOf(failed)
	return &BatchError{Failures: failed}
}

func (s *Scorer) scoreCompany(c models.CompanyRecord, m metrics, risk float64, r models.NormalisationRanges) (models.ScoredCompany, error) {
	dyIdx, err := Index(m.dividendYield, r.DividendYield)
	if err != nil {
		return models.ScoredCompany{}, &CompanyError{Ticker: m.ticker, Field: FieldNetYield, Err: err}
	}
	roeIdx, err := Index(m.returnOnEquity, r.ReturnOnEquity)
	if err != nil {
		return models.ScoredCompany{}, &CompanyError{Ticker: m.ticker, Field: FieldReturnOnEquity, Err: err}
	}
	sharpeIdx, err := Index(m.sharpeRatio, r.SharpeRatio)
	if err != nil {
		return models.ScoredCompany{}, &CompanyError{Ticker: m.ticker, Field: FieldSharpeRatio, Err: err}
	}
	deIdx, err := InvertedIndex(m.debtEquity, r.DebtEquity)
	if err != nil {
		return models.ScoredCompany{}, &CompanyError{Ticker: m.ticker, Field: FieldDebtEquity, Err: err}
	}

	score, err := Composite(dyIdx, roeIdx, sharpeIdx, deIdx)
	if err != nil {
		return models.ScoredCompany{}, &CompanyError{Ticker: m.ticker, Field: FieldScore, Err: err}
	}

	s.log.Debug().
		Str("ticker", m.ticker).
		Float64("yield_index", dyIdx).
		Float64("roe_index", roeIdx).
		Float64("sharpe_index", sharpeIdx).
		Float64("debt_equity_index", deIdx).
		Float64("risk", risk).
		Msg("indices")
	s.log.Info().Str("ticker", m.ticker).Float64("score", score).Msg("company scored")

	return models.ScoredCompany{
		CompanyRecord:       c.Clone(),
		ReturnOnEquity:      m.returnOnEquity,
		DebtEquity:          m.debtEquity,
		DividendYieldIndex:  dyIdx,
		ReturnOnEquityIndex: roeIdx,
		SharpeRatioIndex:    sharpeIdx,
		DebtEquityIndex:     deIdx,
		Score:               score,
		Risk:                risk,
	}, nil
}

// Composite is the geometric mean of the four indices
func Composite(dividendYield, returnOnEquity, sharpeRatio, debtEquity float64) (float64, error) {
	product := debtEquity * sharpeRatio * returnOnEquity * dividendYield
	if product < 0 {
		return 0, ErrNegativeComposite
	}
	return math.Pow(product, 0.25), nil
}

// ratiosOf derives the ranked metrics of a company
func ratiosOf(c *models.CompanyRecord) (metrics, error) {
	m := metrics{ticker: c.Ticker}

	required := []struct {
		field string
		value decimal.NullDecimal
	}{
		{FieldNetYield, c.Ratios.NetYield},
		{FieldSharpeRatio, c.Ratios.SharpeRatio},
		{FieldNetIncome, c.Financials.NetIncome},
		{FieldShareholderEquity, c.Financials.ShareholderEquity},
		{FieldTotalLiabilities, c.Financials.TotalLiabilities},
		{FieldTotalEquity, c.Financials.TotalEquity},
	}
	for _, r := range required {
		if !r.value.Valid {
			return m, &CompanyError{Ticker: c.Ticker, Field: r.field, Err: ErrMissingField}
		}
	}

	if c.Financials.ShareholderEquity.Decimal.IsZero() {
		return m, &CompanyError{Ticker: c.Ticker, Field: FieldReturnOnEquity, Err: ErrDivideByZero}
	}
	if c.Financials.TotalEquity.Decimal.IsZero() {
		return m, &CompanyError{Ticker: c.Ticker, Field: FieldDebtEquity, Err: ErrDivideByZero}
	}

	m.dividendYield = c.Ratios.NetYield.Decimal.InexactFloat64()
	m.sharpeRatio = c.Ratios.SharpeRatio.Decimal.InexactFloat64()
	m.returnOnEquity = c.Financials.NetIncome.Decimal.InexactFloat64() /
		c.Financials.ShareholderEquity.Decimal.InexactFloat64() * 100
	m.debtEquity = c.Financials.TotalLiabilities.Decimal.InexactFloat64() /
		c.Financials.TotalEquity.Decimal.InexactFloat64()

	// decimals outside float64 range end up here as 0 or ±Inf
	derived := []struct {
		field string
		value float64
	}{
		{FieldNetYield, m.dividendYield},
		{FieldSharpeRatio, m.sharpeRatio},
		{FieldReturnOnEquity, m.returnOnEquity},
		{FieldDebtEquity, m.debtEquity},
	}
	for _, d := range derived {
		if !finite(d.value) {
			return m, &CompanyError{Ticker: c.Ticker, Field: d.field, Err: ErrDivideByZero}
		}
	}
	return m, nil
}

func riskOf(c *models.CompanyRecord) (float64, error) {
	closes, ok := c.Closes()
	if !ok {
		return 0, &CompanyError{Ticker: c.Ticker, Field: FieldHistoricalPrices, Err: ErrMissingField}
	}
	risk, err := Risk(closes)
	if err == nil && !finite(risk) {
		err = ErrDivideByZero
	}
	if err != nil {
		return 0, &CompanyError{Ticker: c.Ticker, Field: FieldHistoricalPrices, Err: err}
	}
	return risk, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
