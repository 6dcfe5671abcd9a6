package database

import (
	"context"
	"fmt"

	"github.com/trogers1052/stocks-daily/internal/models"
)

// CreateForecastRun stores the summary of a completed forecast
func (db *DB) CreateForecastRun(ctx context.Context, run *models.ForecastRun) error {
	query := `
		INSERT INTO forecast_runs (symbol, years, horizon_days, points, last_date, last_yhat, last_lower, last_upper)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := db.conn.QueryRowContext(ctx, query,
		run.Symbol, run.Years, run.HorizonDays, run.Points, run.LastDate, run.LastYhat, run.LastLower, run.LastUpper,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create forecast run: %w", err)
	}
	return nil
}

// ListForecastRuns returns the most recent forecast runs for a symbol, newest first
func (db *DB) ListForecastRuns(ctx context.Context, symbol string, limit int) ([]*models.ForecastRun, error) {
	query := `
		SELECT id, symbol, years, horizon_days, points, last_date, last_yhat, last_lower, last_upper, created_at
		FROM forecast_runs
		WHERE symbol = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list forecast runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.ForecastRun{}
	for rows.Next() {
		var r models.ForecastRun
		if err := rows.Scan(
			&r.ID, &r.Symbol, &r.Years, &r.HorizonDays, &r.Points, &r.LastDate,
			&r.LastYhat, &r.LastLower, &r.LastUpper, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan forecast run: %w", err)
		}
		r.LastDate = r.LastDate.UTC()
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
