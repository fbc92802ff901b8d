package stats

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDatabase(t *testing.T) {
	logger := zap.NewNop()

	t.Run("Record Updates Aggregates", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "statistics.json")
		db, err := NewDatabase(path, logger)
		require.NoError(t, err)

		require.NoError(t, db.RecordRun(&RunRecord{
			ID:              "run-1",
			InputFile:       "in.csv",
			Provider:        "marian",
			StartTime:       time.Now(),
			Duration:        2 * time.Second,
			TotalRows:       100,
			TotalBatches:    7,
			FallbackBatches: 1,
			Status:          "completed",
		}))

		stats := db.GetStats()
		assert.Equal(t, 1, stats.TotalRuns)
		assert.Equal(t, 100, stats.TotalRows)
		assert.Equal(t, 7, stats.TotalBatches)
		assert.Equal(t, 1, stats.TotalFallbacks)
		require.Len(t, stats.RecentRuns, 1)
	})

	t.Run("Persists Across Instances", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "statistics.json")

		db, err := NewDatabase(path, logger)
		require.NoError(t, err)
		require.NoError(t, db.RecordRun(&RunRecord{ID: "run-1", TotalRows: 10, TotalBatches: 1}))

		reopened, err := NewDatabase(path, logger)
		require.NoError(t, err)
		stats := reopened.GetStats()
		assert.Equal(t, 1, stats.TotalRuns)
		assert.Equal(t, 10, stats.TotalRows)
	})

	t.Run("Recent Runs Bounded And Newest First", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "statistics.json")
		db, err := NewDatabase(path, logger)
		require.NoError(t, err)

		for i := 0; i < MaxRecentRecords+10; i++ {
			require.NoError(t, db.RecordRun(&RunRecord{ID: fmt.Sprintf("run-%d", i)}))
		}

		stats := db.GetStats()
		assert.Len(t, stats.RecentRuns, MaxRecentRecords)
		assert.Equal(t, fmt.Sprintf("run-%d", MaxRecentRecords+9), stats.RecentRuns[0].ID)
	})
}
