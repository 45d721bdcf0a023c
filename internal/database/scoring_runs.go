package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trogers1052/nzx-scorer/internal/models"
)

const runColumns = `id, batch_id, scrape_date, status, company_count, failure_count, ranges, scored_at`

// SaveScoredBatch stores a run with its scored companies and failures in one transaction
func (db *DB) SaveScoredBatch(b *models.ScoredBatch) error {
	ranges, err := json.Marshal(b.Ranges)
	if err != nil {
		return fmt.Errorf("failed to marshal ranges: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO scoring_runs (`+runColumns+`, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		b.RunID, nullString(b.BatchID), b.ScrapeDate, b.Status, len(b.Companies), len(b.Failures), string(ranges), b.ScoredAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create scoring run: %w", err)
	}

	if len(b.Companies) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO company_scores (
				run_id, ticker, name, net_yield, sharpe_ratio, return_on_equity, debt_equity,
				dividend_yield_index, return_on_equity_index, sharpe_ratio_index, debt_equity_index,
				score, risk, position, record
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range b.Companies {
			c := &b.Companies[i]
			record, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("failed to marshal record for %s: %w", c.Ticker, err)
			}
			_, err = stmt.Exec(
				b.RunID, c.Ticker, c.Name, c.Ratios.NetYield, c.Ratios.SharpeRatio, c.ReturnOnEquity, c.DebtEquity,
				c.DividendYieldIndex, c.ReturnOnEquityIndex, c.SharpeRatioIndex, c.DebtEquityIndex,
				c.Score, c.Risk, i, string(record),
			)
			if err != nil {
				return fmt.Errorf("failed to insert score for %s: %w", c.Ticker, err)
			}
		}
	}

	for _, f := range b.Failures {
		_, err := tx.Exec(`
			INSERT INTO company_failures (run_id, ticker, kind, field, reason)
			VALUES ($1, $2, $3, $4, $5)
		`, b.RunID, f.Ticker, f.Kind, nullString(f.Field), f.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert failure for %s: %w", f.Ticker, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RunExistsForBatch checks whether a scrape batch was already scored
func (db *DB) RunExistsForBatch(batchID string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(`SELECT EXISTS(SELECT 1 FROM scoring_runs WHERE batch_id = $1)`, batchID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check scoring run existence: %w", err)
	}
	return exists, nil
}

// GetRun retrieves a run with its companies and failures
func (db *DB) GetRun(runID string) (*models.ScoredBatch, error) {
	query := `SELECT ` + runColumns + ` FROM scoring_runs WHERE id = $1`
	summary, err := scanRun(db.conn.QueryRow(query, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scoring run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return db.loadRun(summary)
}

// GetLatestRun retrieves the most recently scored run
func (db *DB) GetLatestRun() (*models.ScoredBatch, error) {
	query := `SELECT ` + runColumns + ` FROM scoring_runs ORDER BY scored_at DESC LIMIT 1`
	summary, err := scanRun(db.conn.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no scoring runs found: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return db.loadRun(summary)
}

// GetRunByDate retrieves the latest run for a scrape date
func (db *DB) GetRunByDate(date time.Time) (*models.ScoredBatch, error) {
	query := `
		SELECT ` + runColumns + `
		FROM scoring_runs
		WHERE scrape_date = $1
		ORDER BY scored_at DESC
		LIMIT 1
	`
	summary, err := scanRun(db.conn.QueryRow(query, date))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no scoring run found for %s: %w", date.Format("2006-01-02"), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return db.loadRun(summary)
}

// ListRuns retrieves run summaries, newest first
func (db *DB) ListRuns(limit int) ([]*models.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM scoring_runs ORDER BY scored_at DESC LIMIT $1`
	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list scoring runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scoring runs: %w", err)
	}
	return runs, nil
}

// GetRunFailures retrieves the company failures of a run
func (db *DB) GetRunFailures(runID string) ([]models.CompanyFailure, error) {
	rows, err := db.conn.Query(`
		SELECT ticker, kind, field, reason
		FROM company_failures
		WHERE run_id = $1
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run failures: %w", err)
	}
	defer rows.Close()

	failures := []models.CompanyFailure{}
	for rows.Next() {
		var f models.CompanyFailure
		var field sql.NullString
		if err := rows.Scan(&f.Ticker, &f.Kind, &field, &f.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan run failure: %w", err)
		}
		f.Field = field.String
		failures = append(failures, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run failures: %w", err)
	}
	return failures, nil
}

// GetCompanyScores retrieves the score history of a ticker, newest first
func (db *DB) GetCompanyScores(ticker string, limit int) ([]*models.ScoreHistoryRow, error) {
	query := `
		SELECT s.run_id, s.ticker, s.name, r.scrape_date, s.net_yield, s.sharpe_ratio,
		       s.return_on_equity, s.debt_equity, s.dividend_yield_index, s.return_on_equity_index,
		       s.sharpe_ratio_index, s.debt_equity_index, s.score, s.risk, s.created_at
		FROM company_scores s
		JOIN scoring_runs r ON r.id = s.run_id
		WHERE s.ticker = $1
		ORDER BY r.scored_at DESC
		LIMIT $2
	`
	rows, err := db.conn.Query(query, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get company scores: %w", err)
	}
	defer rows.Close()

	var scores []*models.ScoreHistoryRow
	for rows.Next() {
		var s models.ScoreHistoryRow
		var name sql.NullString
		var netYield, sharpe sql.NullFloat64

		err := rows.Scan(
			&s.RunID, &s.Ticker, &name, &s.ScrapeDate, &netYield, &sharpe,
			&s.ReturnOnEquity, &s.DebtEquity, &s.DividendYieldIndex, &s.ReturnOnEquityIndex,
			&s.SharpeRatioIndex, &s.DebtEquityIndex, &s.Score, &s.Risk, &s.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company score: %w", err)
		}

		s.Name = name.String
		if netYield.Valid {
			s.NetYield = &netYield.Float64
		}
		if sharpe.Valid {
			s.SharpeRatio = &sharpe.Float64
		}
		scores = append(scores, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate company scores: %w", err)
	}
	return scores, nil
}

// DeleteRunsOlderThan removes runs, with their scores and failures, scraped before date
func (db *DB) DeleteRunsOlderThan(date time.Time) (int64, error) {
	result, err := db.conn.Exec(`DELETE FROM scoring_runs WHERE scrape_date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old scoring runs: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) loadRun(summary *models.RunSummary) (*models.ScoredBatch, error) {
	rows, err := db.conn.Query(`
		SELECT record
		FROM company_scores
		WHERE run_id = $1
		ORDER BY position ASC
	`, summary.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to get company scores: %w", err)
	}
	defer rows.Close()

	companies := []models.ScoredCompany{}
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan company score: %w", err)
		}
		var c models.ScoredCompany
		if err := json.Unmarshal(record, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal company score: %w", err)
		}
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate company scores: %w", err)
	}

	failures, err := db.GetRunFailures(summary.RunID)
	if err != nil {
		return nil, err
	}
	if len(failures) == 0 {
		failures = nil
	}

	return &models.ScoredBatch{
		RunID:      summary.RunID,
		BatchID:    summary.BatchID,
		ScrapeDate: summary.ScrapeDate,
		Status:     summary.Status,
		Ranges:     summary.Ranges,
		Companies:  companies,
		Failures:   failures,
		ScoredAt:   summary.ScoredAt,
	}, nil
}

func scanRun(row rowScanner) (*models.RunSummary, error) {
	var r models.RunSummary
	var batchID sql.NullString
	var ranges []byte

	err := row.Scan(&r.RunID, &batchID, &r.ScrapeDate, &r.Status, &r.CompanyCount, &r.FailureCount, &ranges, &r.ScoredAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scoring run: %w", err)
	}

	r.BatchID = batchID.String
	if err := json.Unmarshal(ranges, &r.Ranges); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ranges: %w", err)
	}
	return &r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
