package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTracker(t *testing.T) {
	tmpDir := t.TempDir()
	logger := zap.NewNop()

	t.Run("Start And Record Batches", func(t *testing.T) {
		tracker := NewTracker(logger, tmpDir)

		tracker.StartSession("run-1", "/data/in.csv", "/data/out.csv", "marian", 100, 7)

		session := tracker.GetSession("run-1")
		require.NotNil(t, session)
		assert.Equal(t, StatusRunning, session.Status)
		assert.Equal(t, 7, session.TotalBatches)

		tracker.RecordBatch("run-1", BatchRecord{Lo: 0, Hi: 16, Status: BatchTranslated, Duration: time.Second})
		tracker.RecordBatch("run-1", BatchRecord{Lo: 16, Hi: 32, Status: BatchSkipped})
		tracker.RecordBatch("run-1", BatchRecord{Lo: 32, Hi: 48, Status: BatchFallback, Error: "model unavailable"})

		session = tracker.GetSession("run-1")
		assert.Equal(t, 1, session.TranslatedBatches)
		assert.Equal(t, 1, session.SkippedBatches)
		assert.Equal(t, 1, session.FallbackBatches)
		require.Len(t, session.Batches, 3)
		assert.Equal(t, "model unavailable", session.Batches[2].Error)
	})

	t.Run("Stop Marks Status", func(t *testing.T) {
		tracker := NewTracker(logger, tmpDir)

		tracker.StartSession("run-2", "/data/in.csv", "/data/out.csv", "marian", 10, 1)
		tracker.StopSession("run-2", false)
		assert.Equal(t, StatusCompleted, tracker.GetSession("run-2").Status)

		tracker.StartSession("run-3", "/data/in.csv", "/data/out.csv", "marian", 10, 1)
		tracker.StopSession("run-3", true)
		assert.Equal(t, StatusFailed, tracker.GetSession("run-3").Status)
	})

	t.Run("Sessions Persist To Disk", func(t *testing.T) {
		dir := t.TempDir()
		tracker := NewTracker(logger, dir)

		tracker.StartSession("run-4", "/data/in.csv", "/data/out.csv", "openai", 10, 1)
		tracker.RecordBatch("run-4", BatchRecord{Lo: 0, Hi: 10, Status: BatchTranslated})
		tracker.StopSession("run-4", false)

		// 新的跟踪器可以读回已保存的会话
		reloaded := NewTracker(logger, dir)
		sessions, err := reloaded.ListSessions()
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		assert.Equal(t, "run-4", sessions[0].ID)
		assert.Equal(t, StatusCompleted, sessions[0].Status)
		require.Len(t, sessions[0].Batches, 1)
	})

	t.Run("Record For Unknown Session Ignored", func(t *testing.T) {
		tracker := NewTracker(logger, tmpDir)
		tracker.RecordBatch("missing", BatchRecord{Lo: 0, Hi: 1, Status: BatchTranslated})
		assert.Nil(t, tracker.GetSession("missing"))
	})
}
