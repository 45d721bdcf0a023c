package scoring

import (
	"fmt"
	"math"

	"github.com/trogers1052/nzx-scorer/internal/models"
)

// RangePolicy selects how batch ranges are discovered
type RangePolicy string

const (
	// RangeObserved buffers the observed max and min of each metric by 1
	RangeObserved RangePolicy = "observed"
	// RangeZeroSeeded starts every bound at 0 and moves it to value±1 whenever a
	// value reaches the current bound. Metrics that never cross 0 keep 0±1 on one side.
	RangeZeroSeeded RangePolicy = "zero_seeded"
)

// rangeBuffer keeps a single company off the 0 and 1 rails
const rangeBuffer = 1.0

// ParseRangePolicy validates a policy name
func ParseRangePolicy(s string) (RangePolicy, error) {
	switch RangePolicy(s) {
	case RangeObserved, "":
		return RangeObserved, nil
	case RangeZeroSeeded:
		return RangeZeroSeeded, nil
	}
	return "", fmt.Errorf("unknown range policy %q", s)
}

type accumulator struct {
	policy   RangePolicy
	max, min float64
	seeded   bool
}

func (a *accumulator) add(v float64) {
	if a.policy == RangeZeroSeeded {
		if v >= a.max {
			a.max = v + rangeBuffer
		}
		if v <= a.min {
			a.min = v - rangeBuffer
		}
		return
	}
	if !a.seeded {
		a.max, a.min, a.seeded = v, v, true
		return
	}
	a.max = math.Max(a.max, v)
	a.min = math.Min(a.min, v)
}

func (a *accumulator) result() models.Range {
	if a.policy == RangeZeroSeeded {
		return models.Range{Max: a.max, Min: a.min}
	}
	return models.Range{Max: a.max + rangeBuffer, Min: a.min - rangeBuffer}
}

// FindRanges computes the buffered range of every scored metric across the
// companies. Any company whose metrics cannot be derived fails the whole call.
func FindRanges(companies []models.CompanyRecord, policy RangePolicy) (models.NormalisationRanges, error) {
	ms := make([]metrics, 0, len(companies))
	for i := range companies {
		m, err := ratiosOf(&companies[i])
		if err != nil {
			return models.NormalisationRanges{}, err
		}
		ms = append(ms, m)
	}
	return findRanges(ms, policy)
}

func findRanges(ms []metrics, policy RangePolicy) (models.NormalisationRanges, error) {
	if len(ms) == 0 {
		return models.NormalisationRanges{}, ErrEmptyBatch
	}

	dy := accumulator{policy: policy}
	roe := accumulator{policy: policy}
	sharpe := accumulator{policy: policy}
	de := accumulator{policy: policy}
	for _, m := range ms {
		dy.add(m.dividendYield)
		roe.add(m.returnOnEquity)
		sharpe.add(m.sharpeRatio)
		de.add(m.debtEquity)
	}

	return models.NormalisationRanges{
		DividendYield:  dy.result(),
		ReturnOnEquity: roe.result(),
		SharpeRatio:    sharpe.result(),
		DebtEquity:     de.result(),
	}, nil
}

// Index rescales value into the range. Values strictly inside the range map
// strictly inside (0,1).
func Index(value float64, r models.Range) (float64, error) {
	width := r.Max - r.Min
	if width == 0 {
		return 0, ErrDivideByZero
	}
	idx := (value - r.Min) / width
	if !finite(idx) {
		return 0, ErrDivideByZero
	}
	return idx, nil
}

// InvertedIndex is 1 - Index, so lower values score higher
func InvertedIndex(value float64, r models.Range) (float64, error) {
	idx, err := Index(value, r)
	if err != nil {
		return 0, err
	}
	return 1 - idx, nil
}
