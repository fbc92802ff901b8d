package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	StatsDBVersion   = "1.0.0"
	MaxRecentRecords = 50
)

// RunRecord 单次运行的统计记录
type RunRecord struct {
	ID                 string        `json:"id"`
	InputFile          string        `json:"input_file"`
	OutputFile         string        `json:"output_file"`
	Provider           string        `json:"provider"`
	StartTime          time.Time     `json:"start_time"`
	Duration           time.Duration `json:"duration"`
	TotalRows          int           `json:"total_rows"`
	TotalBatches       int           `json:"total_batches"`
	SkippedBatches     int           `json:"skipped_batches"`
	TranslatedBatches  int           `json:"translated_batches"`
	PassthroughBatches int           `json:"passthrough_batches"`
	FallbackBatches    int           `json:"fallback_batches"`
	Status             string        `json:"status"`
}

// StatisticsDB 统计数据
type StatisticsDB struct {
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	LastUpdated time.Time `json:"last_updated"`

	TotalRuns      int           `json:"total_runs"`
	TotalRows      int           `json:"total_rows"`
	TotalBatches   int           `json:"total_batches"`
	TotalFallbacks int           `json:"total_fallbacks"`
	TotalDuration  time.Duration `json:"total_duration"`

	RecentRuns []*RunRecord `json:"recent_runs"`
}

// Database 统计数据库
type Database struct {
	filePath string
	data     *StatisticsDB
	mutex    sync.RWMutex
	logger   *zap.Logger
}

// NewDatabase 创建统计数据库
func NewDatabase(filePath string, logger *zap.Logger) (*Database, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db := &Database{
		filePath: filePath,
		logger:   logger,
	}

	// 确保目录存在
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create stats directory: %w", err)
	}

	if err := db.load(); err != nil {
		return nil, fmt.Errorf("failed to load stats database: %w", err)
	}

	return db, nil
}

// load 加载统计数据
func (db *Database) load() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	if _, err := os.Stat(db.filePath); os.IsNotExist(err) {
		db.data = &StatisticsDB{
			Version:     StatsDBVersion,
			CreatedAt:   time.Now(),
			LastUpdated: time.Now(),
			RecentRuns:  make([]*RunRecord, 0),
		}
		return db.saveUnsafe()
	}

	data, err := os.ReadFile(db.filePath)
	if err != nil {
		return fmt.Errorf("failed to read stats file: %w", err)
	}

	var statsDB StatisticsDB
	if err := json.Unmarshal(data, &statsDB); err != nil {
		return fmt.Errorf("failed to parse stats file: %w", err)
	}
	if statsDB.RecentRuns == nil {
		statsDB.RecentRuns = make([]*RunRecord, 0)
	}

	db.data = &statsDB
	return nil
}

// RecordRun 记录一次运行并保存
func (db *Database) RecordRun(record *RunRecord) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	db.data.TotalRuns++
	db.data.TotalRows += record.TotalRows
	db.data.TotalBatches += record.TotalBatches
	db.data.TotalFallbacks += record.FallbackBatches
	db.data.TotalDuration += record.Duration
	db.data.LastUpdated = time.Now()

	// 最近的记录排在最前，数量有上限
	db.data.RecentRuns = append([]*RunRecord{record}, db.data.RecentRuns...)
	if len(db.data.RecentRuns) > MaxRecentRecords {
		db.data.RecentRuns = db.data.RecentRuns[:MaxRecentRecords]
	}

	return db.saveUnsafe()
}

// GetStats 返回统计数据的副本
func (db *Database) GetStats() StatisticsDB {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return *db.data
}

// saveUnsafe 保存数据（调用方必须已持有锁）
func (db *Database) saveUnsafe() error {
	data, err := json.MarshalIndent(db.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}
	return os.WriteFile(db.filePath, data, 0o644)
}
