package checkpoint

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/zap"
)

// CommitError 检查点写入失败
// 写入失败意味着恢复状态不再可信，调用方必须中止运行而不是继续
type CommitError struct {
	Path  string
	Cause error
}

// Error 实现error接口
func (e *CommitError) Error() string {
	return fmt.Sprintf("failed to commit checkpoint %s: %v", e.Path, e.Cause)
}

// Unwrap 返回原因错误
func (e *CommitError) Unwrap() error {
	return e.Cause
}

// CompletionSet 已处理过的行索引集合
type CompletionSet map[int]struct{}

// NewCompletionSet 创建空的完成集合
func NewCompletionSet() CompletionSet {
	return make(CompletionSet)
}

// Add 记录一个已处理的索引
func (s CompletionSet) Add(index int) {
	s[index] = struct{}{}
}

// Contains 判断索引是否已处理
func (s CompletionSet) Contains(index int) bool {
	_, ok := s[index]
	return ok
}

// ContainsAll 判断区间 [lo, hi) 内的索引是否全部已处理
// 只要有一个缺失，整个批次就需要重新处理
func (s CompletionSet) ContainsAll(lo, hi int) bool {
	for i := lo; i < hi; i++ {
		if !s.Contains(i) {
			return false
		}
	}
	return true
}

// Len 返回已处理的索引数
func (s CompletionSet) Len() int {
	return len(s)
}

// Store 基于文件的检查点存储，按行索引记录当前文本值
// 单进程单写入者使用，每个批次同步追加一次
type Store struct {
	path   string
	logger *zap.Logger
}

// NewStore 创建检查点存储
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}
}

// Path 返回检查点文件路径
func (s *Store) Path() string {
	return s.path
}

// Restore 读取已有的检查点
// 文件不存在时返回空集合；同一索引出现多次时以最后一次写入为准
func (s *Store) Restore() (CompletionSet, map[int]string, error) {
	completed := NewCompletionSet()
	values := make(map[int]string)

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return completed, values, nil
		}
		return nil, nil, fmt.Errorf("failed to open checkpoint %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			s.logger.Warn("skipping unreadable checkpoint record", zap.Error(err))
			continue
		}
		if first {
			first = false
			// 跳过表头
			if len(record) > 0 && record[0] == "index" {
				continue
			}
		}
		if len(record) < 2 {
			continue
		}
		index, err := strconv.Atoi(record[0])
		if err != nil {
			s.logger.Warn("skipping checkpoint record with bad index", zap.String("index", record[0]))
			continue
		}
		completed.Add(index)
		values[index] = record[1]
	}

	s.logger.Info("checkpoint restored",
		zap.String("file", s.path),
		zap.Int("rows", completed.Len()))
	return completed, values, nil
}

// Commit 将一个批次的行文本按索引同步追加到检查点文件
// 必须在推进到下一个批次之前调用，这是崩溃后的恢复粒度
func (s *Store) Commit(indices []int, texts []string) error {
	if len(indices) != len(texts) {
		return &CommitError{Path: s.path, Cause: fmt.Errorf("indices/texts length mismatch: %d != %d", len(indices), len(texts))}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &CommitError{Path: s.path, Cause: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &CommitError{Path: s.path, Cause: err}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write([]string{"index", "text"}); err != nil {
			return &CommitError{Path: s.path, Cause: err}
		}
	}
	for i, index := range indices {
		if err := w.Write([]string{strconv.Itoa(index), texts[i]}); err != nil {
			return &CommitError{Path: s.path, Cause: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &CommitError{Path: s.path, Cause: err}
	}

	// 同步落盘后批次才算真正完成
	if err := f.Sync(); err != nil {
		return &CommitError{Path: s.path, Cause: err}
	}

	s.logger.Debug("checkpoint committed", zap.Int("rows", len(indices)))
	return nil
}
