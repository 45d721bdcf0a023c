package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("all tables exist", func(t *testing.T) {
		expectedTables := []string{
			"scoring_runs",
			"company_scores",
			"company_failures",
			"company_prices",
		}

		for _, tableName := range expectedTables {
			var exists bool
			err := testDB.GetRawConn().QueryRow(`
				SELECT EXISTS (
					SELECT FROM information_schema.tables
					WHERE table_schema = 'public'
					AND table_name = $1
				)
			`, tableName).Scan(&exists)

			require.NoError(t, err, "failed to check table existence for %s", tableName)
			assert.True(t, exists, "table %s should exist", tableName)
		}
	})

	t.Run("company_scores table has correct columns", func(t *testing.T) {
		expectedColumns := map[string]string{
			"run_id":                 "uuid",
			"ticker":                 "character varying",
			"net_yield":              "numeric",
			"sharpe_ratio":           "numeric",
			"return_on_equity":       "double precision",
			"debt_equity":            "double precision",
			"dividend_yield_index":   "double precision",
			"return_on_equity_index": "double precision",
			"sharpe_ratio_index":     "double precision",
			"debt_equity_index":      "double precision",
			"score":                  "double precision",
			"risk":                   "double precision",
			"record":                 "jsonb",
		}

		for colName, expectedType := range expectedColumns {
			var actualType string
			err := testDB.GetRawConn().QueryRow(`
				SELECT data_type
				FROM information_schema.columns
				WHERE table_name = 'company_scores' AND column_name = $1
			`, colName).Scan(&actualType)

			require.NoError(t, err, "column %s should exist in company_scores table", colName)
			assert.Equal(t, expectedType, actualType, "column %s should have type %s", colName, expectedType)
		}
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, testDB.Migrate(migrationsPath()))
	})
}
