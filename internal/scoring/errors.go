package scoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/trogers1052/nzx-scorer/internal/models"
)

var (
	// ErrEmptyBatch is returned when there are no companies to range over
	ErrEmptyBatch = errors.New("empty batch")
	// ErrDivideByZero is returned when a ratio or index has a zero denominator
	ErrDivideByZero = errors.New("division by zero")
	// ErrNegativeComposite is returned when the product of the indices is negative
	// and has no real fourth root
	ErrNegativeComposite = errors.New("fractional power of negative composite")
	// ErrInsufficientPrices is returned when fewer than two closes are available
	ErrInsufficientPrices = errors.New("at least two historical prices are required")
	// ErrMissingField is returned when a scored field was not scraped
	ErrMissingField = errors.New("field not scraped")
	// ErrDuplicateTicker is returned for every repeat of a ticker already in the batch
	ErrDuplicateTicker = errors.New("duplicate ticker")
)

// CompanyError ties a scoring failure to a company and the field that caused it
type CompanyError struct {
	Ticker string
	Field  string
	Err    error
}

func (e *CompanyError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Ticker, e.Field, e.Err)
}

func (e *CompanyError) Unwrap() error {
	return e.Err
}

// Kind classifies the failure
func (e *CompanyError) Kind() string {
	switch {
	case errors.Is(e.Err, ErrMissingField):
		return models.FailureMissingField
	case errors.Is(e.Err, ErrDuplicateTicker):
		return models.FailureDuplicate
	case errors.Is(e.Err, ErrInsufficientPrices), errors.Is(e.Err, ErrEmptyBatch):
		return models.FailureInsufficientData
	default:
		return models.FailureArithmetic
	}
}

// Failure converts the error into its serialisable form
func (e *CompanyError) Failure() models.CompanyFailure {
	return models.CompanyFailure{
		Ticker: e.Ticker,
		Kind:   e.Kind(),
		Field:  e.Field,
		Reason: e.Err.Error(),
	}
}

// BatchError reports every company that failed in a batch
type BatchError struct {
	Failures []*CompanyError
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("failed to score batch: %d companies failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Tickers returns the failing tickers in batch order
func (e *BatchError) Tickers() []string {
	tickers := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		tickers[i] = f.Ticker
	}
	return tickers
}

func failuresOf(errs []*CompanyError) []models.CompanyFailure {
	if len(errs) == 0 {
		return nil
	}
	out := make([]models.CompanyFailure, len(errs))
	for i, e := range errs {
		out[i] = e.Failure()
	}
	return out
}
