package database

import (
	"context"
	"fmt"
	"time"

	"github.com/trogers1052/stocks-daily/internal/models"
)

const priceDataColumns = `id, symbol, date, open, high, low, close, adj_close, volume, created_at`

const upsertPriceData = `
	INSERT INTO price_data_daily (symbol, date, open, high, low, close, adj_close, volume, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (symbol, date) DO UPDATE SET
		open = EXCLUDED.open,
		high = EXCLUDED.high,
		low = EXCLUDED.low,
		close = EXCLUDED.close,
		adj_close = EXCLUDED.adj_close,
		volume = EXCLUDED.volume
`

// SavePriceHistory upserts every row of a symbol's history in one transaction
func (db *DB) SavePriceHistory(ctx context.Context, symbol string, rows []models.PriceDataDaily) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertPriceData)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, p := range rows {
		_, err := stmt.ExecContext(ctx, symbol, p.Date, p.Open, p.High, p.Low, p.Close, p.AdjClose, p.Volume, now)
		if err != nil {
			return fmt.Errorf("failed to insert price data for %s on %s: %w", symbol, p.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadPriceHistory retrieves a symbol's rows within [start, end], ordered by date ascending
func (db *DB) LoadPriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceDataDaily, error) {
	query := `SELECT ` + priceDataColumns + `
		FROM price_data_daily
		WHERE symbol = $1 AND date >= $2 AND date <= $3
		ORDER BY date ASC`
	rows, err := db.conn.QueryContext(ctx, query, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get price data range: %w", err)
	}
	defer rows.Close()

	prices := []models.PriceDataDaily{}
	for rows.Next() {
		p, err := scanPriceData(rows)
		if err != nil {
			return nil, err
		}
		prices = append(prices, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price data: %w", err)
	}
	return prices, nil
}

// DeletePriceDataBySymbol removes all price data for a symbol
func (db *DB) DeletePriceDataBySymbol(ctx context.Context, symbol string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM price_data_daily WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete price data for %s: %w", symbol, err)
	}
	return nil
}

// DeletePriceDataOlderThan removes price data older than a specified date
func (db *DB) DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM price_data_daily WHERE date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price data: %w", err)
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPriceData(s scanner) (*models.PriceDataDaily, error) {
	var p models.PriceDataDaily
	err := s.Scan(
		&p.ID, &p.Symbol, &p.Date, &p.Open, &p.High, &p.Low, &p.Close, &p.AdjClose, &p.Volume, &p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan price data: %w", err)
	}
	p.Date = p.Date.UTC()
	return &p, nil
}
