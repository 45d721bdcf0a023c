package scoring

import "math"

// Risk returns the sample standard deviation of closes.
// Deviations are taken from the first close so a constant series is exactly 0.
func Risk(closes []float64) (float64, error) {
	n := len(closes)
	if n < 2 {
		return 0, ErrInsufficientPrices
	}

	shift := closes[0]
	var sum float64
	for _, c := range closes {
		sum += c - shift
	}
	mean := sum / float64(n)

	var ss float64
	for _, c := range closes {
		d := c - shift - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1)), nil
}
