package database

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestPriceHistoryRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("SavePriceHistory inserts closes", func(t *testing.T) {
		testDB.TruncateAll(t)

		prices := []models.PricePoint{
			{Date: day(15), Last: decimal.NewNullDecimal(decimal.NewFromFloat(3.41)), High: decimal.NewNullDecimal(decimal.NewFromFloat(3.45)), Volume: 120000},
			{Date: day(16), Last: decimal.NewNullDecimal(decimal.NewFromFloat(3.38)), Volume: 98000},
			{Date: day(17), Last: decimal.NewNullDecimal(decimal.NewFromFloat(3.50)), ValueTraded: decimal.NewNullDecimal(decimal.NewFromInt(412000))},
		}
		require.NoError(t, testDB.SavePriceHistory("AIR", prices))

		retrieved, err := testDB.GetPriceHistory("AIR", day(1), day(31))
		require.NoError(t, err)
		require.Len(t, retrieved, 3)

		assert.True(t, decimal.NewFromFloat(3.41).Equal(retrieved[0].Last))
		assert.True(t, retrieved[0].High.Valid)
		assert.False(t, retrieved[1].High.Valid)
		assert.True(t, decimal.NewFromInt(412000).Equal(retrieved[2].ValueTraded.Decimal))
	})

	t.Run("SavePriceHistory upserts on conflict", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.SavePriceHistory("FPH", []models.PricePoint{
			{Date: day(15), Last: decimal.NewNullDecimal(decimal.NewFromFloat(24.10)), Volume: 1000},
		}))
		require.NoError(t, testDB.SavePriceHistory("FPH", []models.PricePoint{
			{Date: day(15), Last: decimal.NewNullDecimal(decimal.NewFromFloat(24.55)), Volume: 2000},
		}))

		latest, err := testDB.GetLatestPrice("FPH")
		require.NoError(t, err)
		assert.True(t, decimal.NewFromFloat(24.55).Equal(latest.Last))
		assert.Equal(t, int64(2000), latest.Volume)
	})

	t.Run("GetPriceHistory filters by date range", func(t *testing.T) {
		testDB.TruncateAll(t)

		var prices []models.PricePoint
		for i := 0; i < 10; i++ {
			prices = append(prices, models.PricePoint{Date: day(10 + i), Last: decimal.NewNullDecimal(decimal.NewFromFloat(5.00 + float64(i)/10))})
		}
		require.NoError(t, testDB.SavePriceHistory("SPK", prices))

		retrieved, err := testDB.GetPriceHistory("SPK", day(12), day(16))
		require.NoError(t, err)
		assert.Len(t, retrieved, 5) // Jan 12, 13, 14, 15, 16
		assert.Equal(t, 12, retrieved[0].Date.Day())
	})

	t.Run("GetLatestPrice returns error for unknown ticker", func(t *testing.T) {
		testDB.TruncateAll(t)

		_, err := testDB.GetLatestPrice("NONE")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no price data found")
	})

	t.Run("SavePriceHistory skips points without a close", func(t *testing.T) {
		testDB.TruncateAll(t)

		require.NoError(t, testDB.SavePriceHistory("AIR", []models.PricePoint{
			{Date: day(15), Last: decimal.NewNullDecimal(decimal.NewFromFloat(3.41))},
			{Date: day(16), Volume: 500},
		}))

		retrieved, err := testDB.GetPriceHistory("AIR", day(1), day(31))
		require.NoError(t, err)
		require.Len(t, retrieved, 1)
		assert.True(t, decimal.NewFromFloat(3.41).Equal(retrieved[0].Last))
	})

	t.Run("DeletePricesOlderThan removes old closes", func(t *testing.T) {
		testDB.TruncateAll(t)

		var prices []models.PricePoint
		for i := 0; i < 10; i++ {
			prices = append(prices, models.PricePoint{Date: day(10 + i), Last: decimal.NewNullDecimal(decimal.NewFromInt(1))})
		}
		require.NoError(t, testDB.SavePriceHistory("MEL", prices))

		deleted, err := testDB.DeletePricesOlderThan(day(15))
		require.NoError(t, err)
		assert.Equal(t, int64(5), deleted)
	})
}
