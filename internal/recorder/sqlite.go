package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stocks-daily/internal/models"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists conversions to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite recorder opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			from_code    TEXT NOT NULL,
			to_code      TEXT NOT NULL,
			pair         TEXT NOT NULL,
			amount       TEXT NOT NULL,
			rate         TEXT NOT NULL,
			converted    TEXT NOT NULL,
			summary      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_ts ON conversions(timestamp)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordConversion(ctx context.Context, c *models.Conversion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := c.ConvertedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO conversions
		(timestamp, from_code, to_code, pair, amount, rate, converted, summary)
		VALUES (?,?,?,?,?,?,?,?)`,
		ts.UnixMilli(), c.From, c.To, c.Pair,
		c.Amount.String(), c.Rate.String(), c.Converted.String(), c.Summary,
	)
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	return nil
}

// RecentConversions returns up to limit conversions, newest first
func (r *SQLiteRecorder) RecentConversions(ctx context.Context, limit int) ([]models.Conversion, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT timestamp, from_code, to_code, pair, amount, rate, converted, summary
		FROM conversions ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversions: %w", err)
	}
	defer rows.Close()

	out := []models.Conversion{}
	for rows.Next() {
		var c models.Conversion
		var ts int64
		var amount, rate, converted string
		var summary sql.NullString
		if err := rows.Scan(&ts, &c.From, &c.To, &c.Pair, &amount, &rate, &converted, &summary); err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		c.ConvertedAt = time.UnixMilli(ts).UTC()
		c.Summary = summary.String
		if c.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		if c.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("parse rate: %w", err)
		}
		if c.Converted, err = decimal.NewFromString(converted); err != nil {
			return nil, fmt.Errorf("parse converted: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("closing sqlite recorder")
	return r.db.Close()
}
