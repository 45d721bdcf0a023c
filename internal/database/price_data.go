package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/nzx-scorer/internal/models"
)

const priceColumns = `id, ticker, date, last, high, low, volume, value_traded, created_at`

// SavePriceHistory upserts the historical closes of a ticker. Points without
// a close are skipped.
func (db *DB) SavePriceHistory(ticker string, prices []models.PricePoint) error {
	if len(prices) == 0 {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO company_prices (ticker, date, last, high, low, volume, value_traded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, date) DO UPDATE SET
			last = EXCLUDED.last,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			volume = EXCLUDED.volume,
			value_traded = EXCLUDED.value_traded
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range prices {
		if !p.Last.Valid {
			continue
		}
		_, err := stmt.Exec(ticker, p.Date, p.Last.Decimal, p.High, p.Low, p.Volume, p.ValueTraded, now)
		if err != nil {
			return fmt.Errorf("failed to insert price for %s on %s: %w", ticker, p.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPriceHistory retrieves closes for a ticker within a date range, oldest first
func (db *DB) GetPriceHistory(ticker string, from, to time.Time) ([]*models.PriceHistoryRow, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM company_prices
		WHERE ticker = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC
	`
	rows, err := db.conn.Query(query, ticker, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get price history: %w", err)
	}
	defer rows.Close()

	var prices []*models.PriceHistoryRow
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price history: %w", err)
	}

	return prices, nil
}

// GetLatestPrice retrieves the most recent close for a ticker
func (db *DB) GetLatestPrice(ticker string) (*models.PriceHistoryRow, error) {
	query := `
		SELECT ` + priceColumns + `
		FROM company_prices
		WHERE ticker = $1
		ORDER BY date DESC
		LIMIT 1
	`
	p, err := scanPrice(db.conn.QueryRow(query, ticker))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no price data found for %s: %w", ticker, ErrNotFound)
	}
	return p, err
}

// DeletePricesOlderThan removes closes dated before date
func (db *DB) DeletePricesOlderThan(date time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM company_prices WHERE date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old prices: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPrice(row rowScanner) (*models.PriceHistoryRow, error) {
	var p models.PriceHistoryRow
	var high, low, valueTraded sql.NullString

	err := row.Scan(&p.ID, &p.Ticker, &p.Date, &p.Last, &high, &low, &p.Volume, &valueTraded, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan price: %w", err)
	}

	p.High = nullDecimal(high)
	p.Low = nullDecimal(low)
	p.ValueTraded = nullDecimal(valueTraded)
	return &p, nil
}

func nullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
