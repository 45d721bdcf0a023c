package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRisk(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   float64
	}{
		{"sample standard deviation", []float64{10, 11, 12, 13}, 1.2909944487358056},
		{"two points", []float64{2.5, 3.5}, 0.7071067811865476},
		{"small prices", []float64{1.5, 1.7, 1.6}, 0.1},
		{"constant series", []float64{1.1, 1.1, 1.1, 1.1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Risk(tt.closes)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}

	t.Run("constant series is exactly zero", func(t *testing.T) {
		got, err := Risk([]float64{4.37, 4.37, 4.37})
		require.NoError(t, err)
		assert.Equal(t, 0.0, got)
	})

	t.Run("fewer than two points", func(t *testing.T) {
		_, err := Risk([]float64{1})
		assert.ErrorIs(t, err, ErrInsufficientPrices)

		_, err = Risk(nil)
		assert.ErrorIs(t, err, ErrInsufficientPrices)
	})
}
