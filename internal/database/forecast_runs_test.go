package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stocks-daily/internal/models"
)

func TestForecastRunRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	t.Run("CreateForecastRun assigns id and timestamp", func(t *testing.T) {
		testDB.TruncateAll(t)

		run := &models.ForecastRun{
			Symbol: "AAPL", Years: 1, HorizonDays: 365, Points: 3900,
			LastDate: time.Date(2025, 10, 14, 0, 0, 0, 0, time.UTC),
			LastYhat: 210.5, LastLower: 180.1, LastUpper: 240.9,
		}
		require.NoError(t, testDB.CreateForecastRun(ctx, run))
		assert.NotZero(t, run.ID)
		assert.False(t, run.CreatedAt.IsZero())
	})

	t.Run("ListForecastRuns returns newest first with limit", func(t *testing.T) {
		testDB.TruncateAll(t)

		for years := 1; years <= 3; years++ {
			run := &models.ForecastRun{
				Symbol: "MSFT", Years: years, HorizonDays: years * 365, Points: 100,
				LastDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			}
			require.NoError(t, testDB.CreateForecastRun(ctx, run))
		}
		require.NoError(t, testDB.CreateForecastRun(ctx, &models.ForecastRun{
			Symbol: "GOOG", Years: 1, HorizonDays: 365, LastDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		}))

		runs, err := testDB.ListForecastRuns(ctx, "MSFT", 2)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, 3, runs[0].Years)
		assert.Equal(t, 2, runs[1].Years)
		assert.Equal(t, 2025, runs[0].LastDate.Year())
	})
}
