package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stocks-daily/internal/cache"
	"github.com/trogers1052/stocks-daily/internal/marketdata"
	"github.com/trogers1052/stocks-daily/internal/models"
	"go.uber.org/zap"
)

var tickers = []string{"FB", "AMZN", "AAPL", "MSFT", "GOOG"}

var startDate = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// countingFetcher wraps a MockFetcher and counts upstream calls
type countingFetcher struct {
	marketdata.MockFetcher
	calls atomic.Int32
	delay time.Duration
}

func (f *countingFetcher) FetchDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceDataDaily, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.MockFetcher.FetchDailyHistory(ctx, symbol, start, end)
}

// MockStore is an in-memory Store
type MockStore struct {
	mu        sync.Mutex
	rows      map[string][]models.PriceDataDaily
	SaveCalls int
}

func NewMockStore() *MockStore {
	return &MockStore{rows: make(map[string][]models.PriceDataDaily)}
}

func (s *MockStore) SavePriceHistory(_ context.Context, symbol string, rows []models.PriceDataDaily) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SaveCalls++
	s.rows[symbol] = rows
	return nil
}

func (s *MockStore) LoadPriceHistory(_ context.Context, symbol string, _, _ time.Time) ([]models.PriceDataDaily, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[symbol], nil
}

func (s *MockStore) DeletePriceDataBySymbol(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, symbol)
	return nil
}

func (s *MockStore) DeletePriceDataOlderThan(_ context.Context, date time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for symbol, rows := range s.rows {
		kept := rows[:0]
		for _, r := range rows {
			if r.Date.Before(date) {
				n++
				continue
			}
			kept = append(kept, r)
		}
		s.rows[symbol] = kept
	}
	return n, nil
}

type MockPublisher struct {
	mu          sync.Mutex
	Events      []*models.PriceHistory
	Invalidated []string
}

func (p *MockPublisher) PublishHistoryLoaded(_ context.Context, h *models.PriceHistory) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, h)
	return nil
}

func (p *MockPublisher) PublishHistoryInvalidated(_ context.Context, symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Invalidated = append(p.Invalidated, symbol)
	return nil
}

// blockingFetcher holds every fetch until release is closed and fails if its
// context ends first
type blockingFetcher struct {
	marketdata.MockFetcher
	calls   atomic.Int32
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{started: make(chan struct{}), release: make(chan struct{})}
}

func (f *blockingFetcher) FetchDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceDataDaily, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return f.MockFetcher.FetchDailyHistory(ctx, symbol, start, end)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestLoader(t *testing.T, f marketdata.Fetcher, clk *clock, opts ...Option) *Loader {
	t.Helper()
	c, err := cache.NewMemoryCache(8, cache.WithClock(clk.Now))
	require.NoError(t, err)
	opts = append(opts, WithClock(clk.Now))
	return NewLoader(f, c, startDate, tickers, zap.NewNop(), opts...)
}

func TestLoad_ReturnsHistoryFromStartToToday(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}
	l := newTestLoader(t, &marketdata.MockFetcher{}, clk)

	h, err := l.Load(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, "AAPL", h.Symbol)
	assert.Equal(t, startDate, h.Start)
	assert.Equal(t, time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), h.End)
	assert.Equal(t, "mock", h.Source)
	require.NotEmpty(t, h.Rows)
	assert.Equal(t, time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC), h.Rows[0].Date)
	assert.Equal(t, h.End, h.Last().Date)

	for i := 1; i < len(h.Rows); i++ {
		require.True(t, h.Rows[i].Date.After(h.Rows[i-1].Date), "dates must be strictly increasing at %d", i)
	}
}

func TestLoad_DeterministicRowCount(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}

	a, err := newTestLoader(t, &marketdata.MockFetcher{}, clk).Load(context.Background(), "MSFT")
	require.NoError(t, err)
	b, err := newTestLoader(t, &marketdata.MockFetcher{}, clk).Load(context.Background(), "MSFT")
	require.NoError(t, err)

	assert.Equal(t, a.Len(), b.Len())
	assert.Equal(t, a.Rows, b.Rows)
}

func TestLoad_MemoizesBySymbol(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}
	f := &countingFetcher{}
	l := newTestLoader(t, f, clk)
	ctx := context.Background()

	first, err := l.Load(ctx, "AAPL")
	require.NoError(t, err)
	second, err := l.Load(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Same(t, first, second)

	_, err = l.Load(ctx, "GOOG")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())
}

func TestLoad_ConcurrentMissesShareOneFetch(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}
	f := &countingFetcher{delay: 50 * time.Millisecond}
	l := newTestLoader(t, f, clk)

	var wg sync.WaitGroup
	results := make([]*models.PriceHistory, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := l.Load(context.Background(), "AMZN")
			assert.NoError(t, err)
			results[i] = h
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for _, h := range results {
		assert.Same(t, results[0], h)
	}
}

func TestLoad_ExpiresAtMidnight(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 23, 58, 0, 0, time.UTC)}
	f := &countingFetcher{}
	l := newTestLoader(t, f, clk)
	ctx := context.Background()

	first, err := l.Load(ctx, "AAPL")
	require.NoError(t, err)

	clk.Set(time.Date(2024, 6, 14, 23, 59, 59, 0, time.UTC))
	beforeMidnight, err := l.Load(ctx, "AAPL")
	require.NoError(t, err)
	assert.Same(t, first, beforeMidnight)
	require.Equal(t, int32(1), f.calls.Load())

	clk.Set(time.Date(2024, 6, 15, 0, 0, 1, 0, time.UTC))
	second, err := l.Load(ctx, "AAPL")
	require.NoError(t, err)

	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), second.End)
	assert.True(t, second.End.After(first.End))
}

func TestLoad_CancelledCallerDoesNotFailOthers(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}
	f := newBlockingFetcher()
	l := newTestLoader(t, f, clk)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := l.Load(ctxA, "AAPL")
		errA <- err
	}()
	<-f.started

	type result struct {
		h   *models.PriceHistory
		err error
	}
	resB := make(chan result, 1)
	go func() {
		h, err := l.Load(context.Background(), "AAPL")
		resB <- result{h, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(f.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, "AAPL", b.h.Symbol)
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLoad_UnknownTicker(t *testing.T) {
	clk := &clock{now: time.Now()}
	f := &countingFetcher{}
	l := newTestLoader(t, f, clk)

	_, err := l.Load(context.Background(), "TSLA")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTicker)
	assert.Equal(t, int32(0), f.calls.Load())
}

func TestLoad_EmptyFeed(t *testing.T) {
	clk := &clock{now: time.Now()}
	l := newTestLoader(t, &marketdata.MockFetcher{Rows: []models.PriceDataDaily{}}, clk)

	_, err := l.Load(context.Background(), "AAPL")
	assert.ErrorIs(t, err, ErrNoData)
}

func TestLoad_FeedFailure(t *testing.T) {
	now := time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)
	clk := &clock{now: now}
	feedErr := errors.New("connection refused")

	t.Run("without store reports feed unavailable", func(t *testing.T) {
		l := newTestLoader(t, &marketdata.MockFetcher{Err: feedErr}, clk)

		_, err := l.Load(context.Background(), "AAPL")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFeedUnavailable)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("falls back to persisted rows", func(t *testing.T) {
		store := NewMockStore()
		store.rows["AAPL"] = []models.PriceDataDaily{
			{Symbol: "AAPL", Date: time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), Close: decimal.NewFromInt(212)},
			{Symbol: "AAPL", Date: time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC), Close: decimal.NewFromInt(214)},
		}
		f := &countingFetcher{MockFetcher: marketdata.MockFetcher{Err: feedErr}}
		l := newTestLoader(t, f, clk, WithStore(store))

		h, err := l.Load(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.True(t, h.Stale)
		assert.Equal(t, "postgres", h.Source)
		assert.Len(t, h.Rows, 2)

		// stale results are not cached
		_, err = l.Load(context.Background(), "AAPL")
		require.NoError(t, err)
		assert.Equal(t, int32(2), f.calls.Load())
	})

	t.Run("empty store still reports feed unavailable", func(t *testing.T) {
		l := newTestLoader(t, &marketdata.MockFetcher{Err: feedErr}, clk, WithStore(NewMockStore()))
		_, err := l.Load(context.Background(), "MSFT")
		assert.ErrorIs(t, err, ErrFeedUnavailable)
	})
}

func TestLoad_PersistsAndPublishes(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}
	store := NewMockStore()
	pub := &MockPublisher{}
	l := newTestLoader(t, &marketdata.MockFetcher{}, clk, WithStore(store), WithPublisher(pub))

	h, err := l.Load(context.Background(), "GOOG")
	require.NoError(t, err)
	_, err = l.Load(context.Background(), "GOOG")
	require.NoError(t, err)

	assert.Equal(t, 1, store.SaveCalls)
	assert.Len(t, store.rows["GOOG"], h.Len())
	require.Len(t, pub.Events, 1)
	assert.Equal(t, "GOOG", pub.Events[0].Symbol)
}

func TestInvalidatePurgeAndPrewarm(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}
	f := &countingFetcher{}
	l := newTestLoader(t, f, clk)
	ctx := context.Background()

	assert.Equal(t, len(tickers), l.Prewarm(ctx))
	assert.Equal(t, int32(len(tickers)), f.calls.Load())

	require.NoError(t, l.Invalidate(ctx, "AAPL"))
	_, err := l.Load(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int32(len(tickers)+1), f.calls.Load())

	require.NoError(t, l.Purge(ctx))
	_, err = l.Load(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, int32(len(tickers)+2), f.calls.Load())
}

func TestInvalidateDropsPersistedRows(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}
	store := NewMockStore()
	l := newTestLoader(t, &marketdata.MockFetcher{}, clk, WithStore(store))
	ctx := context.Background()

	_, err := l.Load(ctx, "AAPL")
	require.NoError(t, err)
	require.NotEmpty(t, store.rows["AAPL"])

	require.NoError(t, l.Invalidate(ctx, "AAPL"))
	assert.NotContains(t, store.rows, "AAPL")
}

func TestDiscard(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}
	f := &countingFetcher{}
	pub := &MockPublisher{}
	l := newTestLoader(t, f, clk, WithPublisher(pub))
	ctx := context.Background()

	_, err := l.Load(ctx, "MSFT")
	require.NoError(t, err)

	require.NoError(t, l.Discard(ctx, "MSFT"))
	assert.Equal(t, []string{"MSFT"}, pub.Invalidated)

	_, err = l.Load(ctx, "MSFT")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.calls.Load())

	err = l.Discard(ctx, "TSLA")
	assert.ErrorIs(t, err, ErrUnknownTicker)
	assert.Equal(t, []string{"MSFT"}, pub.Invalidated)
}

func TestPrune(t *testing.T) {
	clk := &clock{now: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC)}

	t.Run("without store", func(t *testing.T) {
		n, err := newTestLoader(t, &marketdata.MockFetcher{}, clk).Prune(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("deletes rows before the start date", func(t *testing.T) {
		store := NewMockStore()
		store.rows["AAPL"] = []models.PriceDataDaily{
			{Symbol: "AAPL", Date: time.Date(2014, 12, 30, 0, 0, 0, 0, time.UTC)},
			{Symbol: "AAPL", Date: time.Date(2014, 12, 31, 0, 0, 0, 0, time.UTC)},
			{Symbol: "AAPL", Date: startDate},
		}
		l := newTestLoader(t, &marketdata.MockFetcher{}, clk, WithStore(store))

		n, err := l.Prune(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		require.Len(t, store.rows["AAPL"], 1)
		assert.Equal(t, startDate, store.rows["AAPL"][0].Date)
	})
}

func TestTickers(t *testing.T) {
	l := newTestLoader(t, &marketdata.MockFetcher{}, &clock{now: time.Now()})
	assert.Equal(t, tickers, l.Tickers())
	assert.True(t, l.Supports("FB"))
	assert.False(t, l.Supports("fb"))
}
