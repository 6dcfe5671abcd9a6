// Package history loads and memoizes daily price histories per ticker.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/stocks-daily/internal/cache"
	"github.com/trogers1052/stocks-daily/internal/marketdata"
	"github.com/trogers1052/stocks-daily/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUnknownTicker    = errors.New("unknown ticker")
	ErrNoData           = errors.New("no price data returned")
	ErrFeedUnavailable  = errors.New("market data feed unavailable")
	errStoreUnavailable = errors.New("no persisted history")
)

// Store persists fetched histories so they can be served when the feed is down
type Store interface {
	SavePriceHistory(ctx context.Context, symbol string, rows []models.PriceDataDaily) error
	LoadPriceHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceDataDaily, error)
	DeletePriceDataBySymbol(ctx context.Context, symbol string) error
	DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error)
}

// Publisher announces loaded and invalidated histories
type Publisher interface {
	PublishHistoryLoaded(ctx context.Context, h *models.PriceHistory) error
	PublishHistoryInvalidated(ctx context.Context, symbol string) error
}

// Loader fetches daily history from a feed and memoizes it by symbol until the
// next midnight.
type Loader struct {
	fetcher   marketdata.Fetcher
	cache     cache.HistoryCache
	store     Store
	publisher Publisher
	logger    *zap.Logger

	start   time.Time
	tickers []string
	allowed map[string]bool
	now     func() time.Time

	group singleflight.Group
}

// Option configures a Loader
type Option func(*Loader)

// WithStore enables persistence and stale fallback through s
func WithStore(s Store) Option {
	return func(l *Loader) { l.store = s }
}

// WithPublisher enables HISTORY_LOADED and HISTORY_INVALIDATED events
func WithPublisher(p Publisher) Option {
	return func(l *Loader) { l.publisher = p }
}

// WithClock overrides the clock used to determine "today" and the time left
// until midnight. An in-memory cache needs the same clock to expire entries.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// NewLoader creates a loader for the given ticker set, fetching from start to today
func NewLoader(fetcher marketdata.Fetcher, c cache.HistoryCache, start time.Time, tickers []string, logger *zap.Logger, opts ...Option) *Loader {
	l := &Loader{
		fetcher: fetcher,
		cache:   c,
		logger:  logger,
		start:   marketdata.Day(start),
		tickers: append([]string(nil), tickers...),
		allowed: make(map[string]bool, len(tickers)),
		now:     time.Now,
	}
	for _, t := range tickers {
		l.allowed[t] = true
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Tickers returns the selectable symbols in configured order
func (l *Loader) Tickers() []string {
	return append([]string(nil), l.tickers...)
}

// Supports reports whether symbol is one of the configured tickers
func (l *Loader) Supports(symbol string) bool {
	return l.allowed[symbol]
}

// Load returns the history of symbol from the start date to today.
// Repeated calls for the same symbol before midnight are served from the cache,
// and concurrent misses share a single upstream request. The shared request is
// not tied to any one caller: a caller whose ctx ends stops waiting, the others
// still get the result.
func (l *Loader) Load(ctx context.Context, symbol string) (*models.PriceHistory, error) {
	if !l.allowed[symbol] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTicker, symbol)
	}

	if h, ok, err := l.cache.Get(ctx, symbol); err != nil {
		l.logger.Warn("history cache read failed", zap.String("symbol", symbol), zap.Error(err))
	} else if ok {
		return h, nil
	}

	// bounded by the fetcher's client timeout
	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(symbol, func() (interface{}, error) {
		return l.fetch(fetchCtx, symbol)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.PriceHistory), nil
	}
}

func (l *Loader) fetch(ctx context.Context, symbol string) (*models.PriceHistory, error) {
	now := l.now()
	end := marketdata.Day(now)

	rows, err := l.fetcher.FetchDailyHistory(ctx, symbol, l.start, end)
	if err != nil {
		l.logger.Warn("market data fetch failed",
			zap.String("symbol", symbol),
			zap.String("source", l.fetcher.Name()),
			zap.Error(err))
		if h, storeErr := l.fromStore(ctx, symbol, end, now); storeErr == nil {
			return h, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFeedUnavailable, symbol, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w for %s between %s and %s", ErrNoData, symbol,
			l.start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	h := &models.PriceHistory{
		Symbol:    symbol,
		Start:     l.start,
		End:       end,
		Rows:      rows,
		FetchedAt: now,
		Source:    l.fetcher.Name(),
	}

	if err := l.cache.Set(ctx, h, cache.UntilMidnight(now)); err != nil {
		l.logger.Warn("history cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	if l.store != nil {
		if err := l.store.SavePriceHistory(ctx, symbol, rows); err != nil {
			l.logger.Warn("failed to persist history", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	if l.publisher != nil {
		if err := l.publisher.PublishHistoryLoaded(ctx, h); err != nil {
			l.logger.Warn("failed to publish history loaded event", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	l.logger.Info("loaded history",
		zap.String("symbol", symbol),
		zap.Int("rows", len(rows)),
		zap.String("source", h.Source))
	return h, nil
}

// fromStore serves the persisted history when the feed fails. The result is
// not cached so the next request retries the feed.
func (l *Loader) fromStore(ctx context.Context, symbol string, end, now time.Time) (*models.PriceHistory, error) {
	if l.store == nil {
		return nil, errStoreUnavailable
	}
	rows, err := l.store.LoadPriceHistory(ctx, symbol, l.start, end)
	if err != nil {
		l.logger.Warn("persisted history unavailable", zap.String("symbol", symbol), zap.Error(err))
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errStoreUnavailable
	}

	l.logger.Info("serving persisted history", zap.String("symbol", symbol), zap.Int("rows", len(rows)))
	return &models.PriceHistory{
		Symbol:    symbol,
		Start:     l.start,
		End:       end,
		Rows:      rows,
		FetchedAt: now,
		Source:    "postgres",
		Stale:     true,
	}, nil
}

// Invalidate drops the cached and persisted history of symbol on this instance
func (l *Loader) Invalidate(ctx context.Context, symbol string) error {
	if err := l.cache.Delete(ctx, symbol); err != nil {
		return err
	}
	if l.store != nil {
		if err := l.store.DeletePriceDataBySymbol(ctx, symbol); err != nil {
			return err
		}
	}
	return nil
}

// Discard invalidates symbol and announces it so that every other instance
// drops its cached copy too. The next Load refetches from the feed.
func (l *Loader) Discard(ctx context.Context, symbol string) error {
	if !l.allowed[symbol] {
		return fmt.Errorf("%w: %s", ErrUnknownTicker, symbol)
	}
	if err := l.Invalidate(ctx, symbol); err != nil {
		return err
	}
	if l.publisher != nil {
		if err := l.publisher.PublishHistoryInvalidated(ctx, symbol); err != nil {
			l.logger.Warn("failed to publish history invalidated event", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	l.logger.Info("discarded history", zap.String("symbol", symbol))
	return nil
}

// Prune deletes persisted rows dated before the configured start, which no
// Load can return.
func (l *Loader) Prune(ctx context.Context) (int64, error) {
	if l.store == nil {
		return 0, nil
	}
	return l.store.DeletePriceDataOlderThan(ctx, l.start)
}

// Purge drops every cached history
func (l *Loader) Purge(ctx context.Context) error {
	return l.cache.Purge(ctx)
}

// Prewarm loads every configured ticker, logging failures
func (l *Loader) Prewarm(ctx context.Context) int {
	loaded := 0
	for _, symbol := range l.tickers {
		if _, err := l.Load(ctx, symbol); err != nil {
			l.logger.Warn("prewarm failed", zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded
}
