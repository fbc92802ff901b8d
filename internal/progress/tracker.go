package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionStatus 会话状态
type SessionStatus string

const (
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// 批次结果状态
const (
	BatchSkipped     = "skipped"     // 批次内所有行都已在检查点中
	BatchTranslated  = "translated"  // 翻译调用成功并合并
	BatchPassthrough = "passthrough" // 没有可翻译的行，原样通过
	BatchFallback    = "fallback"    // 翻译调用失败，回退为原文
)

// BatchRecord 单个批次的结构化处理结果
// 回退批次必须把被恢复的错误记录在这里，而不是只打一条控制台日志
type BatchRecord struct {
	Lo       int           `json:"lo"`
	Hi       int           `json:"hi"`
	Status   string        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Session 翻译会话
type Session struct {
	ID             string        `json:"id"`
	InputFile      string        `json:"input_file"`
	OutputFile     string        `json:"output_file"`
	Provider       string        `json:"provider"`
	StartTime      time.Time     `json:"start_time"`
	LastUpdateTime time.Time     `json:"last_update_time"`
	Status         SessionStatus `json:"status"`

	// 统计信息
	TotalRows          int `json:"total_rows"`
	TotalBatches       int `json:"total_batches"`
	SkippedBatches     int `json:"skipped_batches"`
	TranslatedBatches  int `json:"translated_batches"`
	PassthroughBatches int `json:"passthrough_batches"`
	FallbackBatches    int `json:"fallback_batches"`

	Batches []BatchRecord `json:"batches"`

	mu sync.RWMutex `json:"-"`
}

// Backend 存储后端接口
type Backend interface {
	Save(session *Session) error
	Load(sessionID string) (*Session, error)
	List() ([]*Session, error)
}

// Tracker 进度跟踪器
type Tracker struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	logger   *zap.Logger
	backend  Backend
}

// NewTracker 创建进度跟踪器
func NewTracker(logger *zap.Logger, savePath string) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		sessions: make(map[string]*Session),
		logger:   logger,
		backend:  NewFileBackend(savePath),
	}
}

// StartSession 开始跟踪一次运行
func (t *Tracker) StartSession(id, inputFile, outputFile, provider string, totalRows, totalBatches int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session := &Session{
		ID:             id,
		InputFile:      inputFile,
		OutputFile:     outputFile,
		Provider:       provider,
		StartTime:      time.Now(),
		LastUpdateTime: time.Now(),
		Status:         StatusRunning,
		TotalRows:      totalRows,
		TotalBatches:   totalBatches,
		Batches:        []BatchRecord{},
	}
	t.sessions[id] = session

	t.logger.Info("started tracking",
		zap.String("sessionID", id),
		zap.String("inputFile", inputFile),
		zap.Int("totalBatches", totalBatches))
}

// RecordBatch 记录一个批次的处理结果并保存会话
func (t *Tracker) RecordBatch(id string, record BatchRecord) {
	t.mu.RLock()
	session, exists := t.sessions[id]
	t.mu.RUnlock()
	if !exists {
		return
	}

	session.mu.Lock()
	session.Batches = append(session.Batches, record)
	session.LastUpdateTime = time.Now()
	switch record.Status {
	case BatchSkipped:
		session.SkippedBatches++
	case BatchTranslated:
		session.TranslatedBatches++
	case BatchPassthrough:
		session.PassthroughBatches++
	case BatchFallback:
		session.FallbackBatches++
	}
	session.mu.Unlock()

	if err := t.backend.Save(session); err != nil {
		t.logger.Warn("failed to save session", zap.String("sessionID", id), zap.Error(err))
	}
}

// StopSession 结束会话
func (t *Tracker) StopSession(id string, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, exists := t.sessions[id]
	if !exists {
		return
	}

	session.mu.Lock()
	if failed {
		session.Status = StatusFailed
	} else {
		session.Status = StatusCompleted
	}
	session.LastUpdateTime = time.Now()
	session.mu.Unlock()

	if err := t.backend.Save(session); err != nil {
		t.logger.Warn("failed to save session", zap.String("sessionID", id), zap.Error(err))
	}

	t.logger.Info("stopped tracking",
		zap.String("sessionID", id),
		zap.String("status", string(session.Status)))
}

// GetSession 获取会话
func (t *Tracker) GetSession(id string) *Session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// ListSessions 列出已保存的会话，按开始时间倒序
func (t *Tracker) ListSessions() ([]*Session, error) {
	sessions, err := t.backend.List()
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

// FileBackend 基于文件的会话存储
type FileBackend struct {
	basePath string
}

// NewFileBackend 创建文件后端
func NewFileBackend(basePath string) *FileBackend {
	_ = os.MkdirAll(basePath, 0o755)
	return &FileBackend{basePath: basePath}
}

// Save 保存会话
func (fb *FileBackend) Save(session *Session) error {
	filePath := filepath.Join(fb.basePath, session.ID+".json")

	session.mu.RLock()
	data, err := json.MarshalIndent(session, "", "  ")
	session.mu.RUnlock()
	if err != nil {
		return err
	}

	return os.WriteFile(filePath, data, 0o644)
}

// Load 加载会话
func (fb *FileBackend) Load(sessionID string) (*Session, error) {
	filePath := filepath.Join(fb.basePath, sessionID+".json")

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	return &session, nil
}

// List 列出所有已保存的会话
func (fb *FileBackend) List() ([]*Session, error) {
	entries, err := os.ReadDir(fb.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var sessions []*Session
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		session, err := fb.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
