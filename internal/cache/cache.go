// Package cache holds the symbol-keyed history cache backends.
package cache

import (
	"context"
	"time"

	"github.com/trogers1052/stocks-daily/internal/models"
)

// HistoryCache stores one price history per symbol for ttl. A non-positive ttl
// stores nothing. Cached histories are shared between callers and must be
// treated as read-only.
type HistoryCache interface {
	Get(ctx context.Context, symbol string) (*models.PriceHistory, bool, error)
	Set(ctx context.Context, history *models.PriceHistory, ttl time.Duration) error
	Delete(ctx context.Context, symbol string) error
	Purge(ctx context.Context) error
}

// UntilMidnight returns how long is left of t's day
func UntilMidnight(t time.Time) time.Duration {
	return NextMidnight(t).Sub(t)
}

// NextMidnight returns the start of the day after t, in t's location
func NextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}
