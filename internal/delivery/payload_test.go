package delivery

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

func TestBuildPayload(t *testing.T) {
	payload := BuildPayload(testBatch())

	require.Contains(t, payload, "2019/03/07")
	entry := payload["2019/03/07"]
	assert.Equal(t, "2019/03/07", entry["Date"])

	air, ok := entry["AIR"].(map[string]Section)
	require.True(t, ok)

	for _, section := range []string{"Summary", "Ratio", "HistoricalPrices", "HistoricalDividends", "FinancialProfile", "Profile", "Directors"} {
		assert.Contains(t, air, section)
	}

	assert.Equal(t, 0.8, air["Summary"]["Net Dividend Yield Index"])
	assert.Equal(t, 5.0, air["Ratio"]["Net Yield"])
	assert.Nil(t, air["Ratio"]["EPS"])

	prices := air["HistoricalPrices"]
	require.Len(t, prices, 2)
	day := prices["2019-03-06"].(map[string]any)
	assert.Equal(t, 2.8, day["Last"])
	assert.Equal(t, int64(1000), day["Volume"])
	assert.Equal(t, 0.11, air["HistoricalDividends"]["2018-09-14"])

	data := air["FinancialProfile"]["Data"].(map[string]Section)
	assert.Equal(t, 10.0, data["Income"]["Net Income"])
	assert.Equal(t, "30/06/2018", data["Balance"]["Period Ending"])
	assert.NotContains(t, data["Balance"], "Total Equity")
}

func TestBuildPayload_MissingValuesAreNull(t *testing.T) {
	batch := testBatch()
	air := &batch.Companies[0]
	air.HistoricalPrices[1].Last = decimal.NullDecimal{}
	air.HistoricalDividends[0].Amount = decimal.NullDecimal{}

	entry := BuildPayload(batch)["2019/03/07"]["AIR"].(map[string]Section)

	day := entry["HistoricalPrices"]["2019-03-07"].(map[string]any)
	assert.Nil(t, day["Last"])
	assert.Nil(t, entry["HistoricalDividends"]["2018-09-14"])
}

func TestBuildPayload_EmptyBatch(t *testing.T) {
	batch := &models.ScoredBatch{ScrapeDate: time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)}

	payload := BuildPayload(batch)

	assert.Equal(t, map[string]map[string]any{"2020/01/02": {"Date": "2020/01/02"}}, payload)
}

func TestFailurePayload(t *testing.T) {
	payload := FailurePayload(time.Date(2020, 11, 30, 15, 4, 5, 0, time.UTC))

	assert.Equal(t, map[string]map[string]any{"2020/11/30": {}}, payload)
}
