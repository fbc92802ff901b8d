package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-csv-translator/internal/checkpoint"
	"github.com/nerdneilsfield/go-csv-translator/internal/dataset"
	"github.com/nerdneilsfield/go-csv-translator/internal/progress"
)

// funcGate 用显式函数做门控，测试不依赖真实的语言识别模型
type funcGate func(string) bool

func (g funcGate) Mask(texts []string) []bool {
	mask := make([]bool, len(texts))
	for i, text := range texts {
		mask[i] = g(text)
	}
	return mask
}

// asciiGate 把纯 ASCII 且非空的文本当作英文
var asciiGate = funcGate(func(text string) bool {
	if text == "" {
		return false
	}
	for _, r := range text {
		if r > 127 {
			return false
		}
	}
	return true
})

// fakeTranslator 记录调用次数，按 fn 生成译文
type fakeTranslator struct {
	calls int
	fn    func(texts []string) ([]string, error)
}

func (f *fakeTranslator) Translate(_ context.Context, texts []string) ([]string, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(texts)
	}
	out := make([]string, len(texts))
	for i, text := range texts {
		out[i] = "译:" + text
	}
	return out, nil
}

// memStore 内存检查点存储
type memStore struct {
	indices [][]int
	texts   [][]string
	err     error
}

func (m *memStore) Commit(indices []int, texts []string) error {
	if m.err != nil {
		return m.err
	}
	m.indices = append(m.indices, append([]int(nil), indices...))
	m.texts = append(m.texts, append([]string(nil), texts...))
	return nil
}

func newDataset(t *testing.T, texts ...string) *dataset.Dataset {
	t.Helper()
	records := make([][]string, len(texts))
	for i, text := range texts {
		records[i] = []string{text}
	}
	ds, err := dataset.New([]string{"text"}, "text", records)
	require.NoError(t, err)
	return ds
}

func TestOrchestrator(t *testing.T) {
	ctx := context.Background()

	t.Run("Order Preserving Merge", func(t *testing.T) {
		ds := newDataset(t, "hello", "你好", "world")
		tr := &fakeTranslator{fn: func(texts []string) ([]string, error) {
			assert.Equal(t, []string{"hello", "world"}, texts)
			return []string{"你好(new)", "世界"}, nil
		}}
		store := &memStore{}

		o := NewOrchestrator(3, asciiGate, tr, store)
		result, err := o.Run(ctx, NewState(ds, nil))
		require.NoError(t, err)

		assert.Equal(t, "你好(new)", ds.Text(0))
		assert.Equal(t, "你好", ds.Text(1))
		assert.Equal(t, "世界", ds.Text(2))
		assert.Equal(t, 1, result.TranslatedBatches)
		assert.Equal(t, [][]int{{0, 1, 2}}, store.indices)
	})

	t.Run("Fail Open On Translation Error", func(t *testing.T) {
		ds := newDataset(t, "cat", "dog")
		tr := &fakeTranslator{fn: func([]string) ([]string, error) {
			return nil, errors.New("model unavailable")
		}}
		store := &memStore{}

		state := NewState(ds, nil)
		o := NewOrchestrator(2, asciiGate, tr, store, WithLogger(zap.NewNop()))
		result, err := o.Run(ctx, state)
		require.NoError(t, err)

		// 批次回退为原文，但仍然算作已完成并写入检查点
		assert.Equal(t, "cat", ds.Text(0))
		assert.Equal(t, "dog", ds.Text(1))
		assert.True(t, state.Completed.Contains(0))
		assert.True(t, state.Completed.Contains(1))
		assert.Equal(t, 1, result.FallbackBatches)
		require.Len(t, result.Outcomes, 1)
		assert.Equal(t, progress.BatchFallback, result.Outcomes[0].Status)
		assert.Contains(t, result.Outcomes[0].Err, "model unavailable")
		assert.Equal(t, [][]int{{0, 1}}, store.indices)
	})

	t.Run("Fully Completed Batch Skipped", func(t *testing.T) {
		ds := newDataset(t, "one", "two", "three", "four")
		completed := checkpoint.NewCompletionSet()
		completed.Add(0)
		completed.Add(1)

		tr := &fakeTranslator{}
		store := &memStore{}

		o := NewOrchestrator(2, asciiGate, tr, store)
		result, err := o.Run(ctx, NewState(ds, completed))
		require.NoError(t, err)

		// 第一批被跳过：不翻译也不写检查点
		assert.Equal(t, 1, result.SkippedBatches)
		assert.Equal(t, 1, result.TranslatedBatches)
		assert.Equal(t, 1, tr.calls)
		assert.Equal(t, [][]int{{2, 3}}, store.indices)
		assert.Equal(t, "one", ds.Text(0))
		assert.Equal(t, "译:three", ds.Text(2))
	})

	t.Run("Partially Completed Batch Reprocessed", func(t *testing.T) {
		ds := newDataset(t, "one", "two")
		completed := checkpoint.NewCompletionSet()
		completed.Add(0) // 缺 1

		tr := &fakeTranslator{}
		o := NewOrchestrator(2, asciiGate, tr, &memStore{})
		result, err := o.Run(ctx, NewState(ds, completed))
		require.NoError(t, err)

		assert.Equal(t, 0, result.SkippedBatches)
		assert.Equal(t, 1, tr.calls)
		assert.Equal(t, "译:one", ds.Text(0))
	})

	t.Run("No Translatable Rows Pass Through", func(t *testing.T) {
		ds := newDataset(t, "你好", "", "世界")
		tr := &fakeTranslator{}
		store := &memStore{}

		o := NewOrchestrator(3, asciiGate, tr, store)
		result, err := o.Run(ctx, NewState(ds, nil))
		require.NoError(t, err)

		assert.Equal(t, 0, tr.calls)
		assert.Equal(t, 1, result.PassthroughBatches)
		assert.Equal(t, "你好", ds.Text(0))
		assert.Equal(t, "", ds.Text(1))
		// 原样通过的批次也写入检查点
		assert.Equal(t, [][]int{{0, 1, 2}}, store.indices)
	})

	t.Run("Commit Failure Aborts Run", func(t *testing.T) {
		ds := newDataset(t, "one", "two", "three", "four")
		store := &memStore{err: errors.New("disk full")}

		o := NewOrchestrator(2, asciiGate, &fakeTranslator{}, store, WithLogger(zap.NewNop()))
		result, err := o.Run(ctx, NewState(ds, nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
		// 第一次提交失败后立即停止
		assert.Equal(t, 1, result.TotalBatches)
	})

	t.Run("Cancelled Context Stops Loop", func(t *testing.T) {
		ds := newDataset(t, "one", "two")
		cancelled, cancel := context.WithCancel(context.Background())
		cancel()

		o := NewOrchestrator(1, asciiGate, &fakeTranslator{}, &memStore{})
		_, err := o.Run(cancelled, NewState(ds, nil))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIdempotentResume(t *testing.T) {
	ctx := context.Background()
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.csv")

	build := func(t *testing.T) *dataset.Dataset {
		return newDataset(t, "hello", "你好", "world", "again", "更多")
	}

	// 第一次完整运行
	ds1 := build(t)
	store1 := checkpoint.NewStore(checkpointPath, zap.NewNop())
	tr1 := &fakeTranslator{}
	o1 := NewOrchestrator(2, asciiGate, tr1, store1)
	_, err := o1.Run(ctx, NewState(ds1, nil))
	require.NoError(t, err)
	assert.Greater(t, tr1.calls, 0)

	// 第二次运行：恢复检查点后不应产生任何翻译调用，结果完全一致
	ds2 := build(t)
	store2 := checkpoint.NewStore(checkpointPath, zap.NewNop())
	completed, values, err := store2.Restore()
	require.NoError(t, err)
	ds2.ApplyCheckpoint(values)

	tr2 := &fakeTranslator{}
	o2 := NewOrchestrator(2, asciiGate, tr2, store2)
	result, err := o2.Run(ctx, NewState(ds2, completed))
	require.NoError(t, err)

	assert.Equal(t, 0, tr2.calls)
	assert.Equal(t, result.TotalBatches, result.SkippedBatches)
	for i := 0; i < ds1.Len(); i++ {
		assert.Equal(t, ds1.Text(i), ds2.Text(i))
	}
}
