package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-csv-translator/internal/progress"
)

// Gate 语言门控接口
type Gate interface {
	Mask(texts []string) []bool
}

// Translator 批量翻译接口，译文与原文等长且位置对齐
type Translator interface {
	Translate(ctx context.Context, texts []string) ([]string, error)
}

// Store 检查点存储接口
type Store interface {
	Commit(indices []int, texts []string) error
}

// ProgressBar 进度显示接口
type ProgressBar interface {
	Advance(preview string)
}

// Outcome 单个批次的处理结果
type Outcome struct {
	Lo       int
	Hi       int
	Status   string
	Err      string
	Duration time.Duration
}

// Result 整次运行的结果
type Result struct {
	TotalBatches       int
	SkippedBatches     int
	TranslatedBatches  int
	PassthroughBatches int
	FallbackBatches    int
	Outcomes           []Outcome
}

// Orchestrator 批次编排器
// 按索引顺序驱动数据集的批次迭代：跳过已完成的批次，对其余批次做门控、
// 翻译、合并，并在推进到下一个批次之前同步写入检查点
type Orchestrator struct {
	batchSize  int
	gate       Gate
	translator Translator
	store      Store

	tracker   *progress.Tracker
	sessionID string
	bar       ProgressBar
	logger    *zap.Logger
}

// Option 编排器选项
type Option func(*Orchestrator)

// WithTracker 将批次结果转发给进度跟踪器
func WithTracker(tracker *progress.Tracker, sessionID string) Option {
	return func(o *Orchestrator) {
		o.tracker = tracker
		o.sessionID = sessionID
	}
}

// WithProgressBar 启用进度条显示
func WithProgressBar(bar ProgressBar) Option {
	return func(o *Orchestrator) {
		o.bar = bar
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator 创建编排器
func NewOrchestrator(batchSize int, gate Gate, translator Translator, store Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		batchSize:  batchSize,
		gate:       gate,
		translator: translator,
		store:      store,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run 执行整个批次循环
// 翻译失败的批次回退为原文并继续（fail-open）；检查点写入失败则中止，
// 否则运行结束后无法相信恢复状态
func (o *Orchestrator) Run(ctx context.Context, state *State) (*Result, error) {
	ds := state.Dataset
	result := &Result{}

	for start := 0; start < ds.Len(); start += o.batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		lo, hi := ds.BatchRange(start, o.batchSize)
		batchStart := time.Now()
		result.TotalBatches++

		// 只有批次内所有索引都已完成时才跳过，部分重叠仍然整批重做
		if state.Completed.ContainsAll(lo, hi) {
			result.SkippedBatches++
			o.record(result, Outcome{Lo: lo, Hi: hi, Status: progress.BatchSkipped, Duration: time.Since(batchStart)})
			o.advance("")
			continue
		}

		texts := make([]string, hi-lo)
		for i := lo; i < hi; i++ {
			texts[i-lo] = ds.Text(i)
		}

		mask := o.gate.Mask(texts)
		translatable := 0
		for _, m := range mask {
			if m {
				translatable++
			}
		}

		status := progress.BatchPassthrough
		errMsg := ""
		if translatable > 0 {
			inputs := make([]string, 0, translatable)
			for i, m := range mask {
				if m {
					inputs = append(inputs, texts[i])
				}
			}

			translated, err := o.translator.Translate(ctx, inputs)
			if err != nil {
				// fail-open：这一批保留原文，循环继续向前推进
				o.logger.Warn("batch translation failed, keeping original text",
					zap.Int("lo", lo),
					zap.Int("hi", hi),
					zap.Error(err))
				status = progress.BatchFallback
				errMsg = err.Error()
			} else {
				j := 0
				for i, m := range mask {
					if m {
						texts[i] = translated[j]
						j++
					}
				}
				status = progress.BatchTranslated
			}
		}

		// 合并回数据集；"完成"的含义是"已访问"，与翻译是否成功无关
		indices := make([]int, 0, hi-lo)
		for i := lo; i < hi; i++ {
			ds.SetText(i, texts[i-lo])
			state.Completed.Add(i)
			indices = append(indices, i)
		}

		if err := o.store.Commit(indices, texts); err != nil {
			o.record(result, Outcome{Lo: lo, Hi: hi, Status: status, Err: err.Error(), Duration: time.Since(batchStart)})
			return result, err
		}

		switch status {
		case progress.BatchTranslated:
			result.TranslatedBatches++
		case progress.BatchPassthrough:
			result.PassthroughBatches++
		case progress.BatchFallback:
			result.FallbackBatches++
		}

		o.record(result, Outcome{Lo: lo, Hi: hi, Status: status, Err: errMsg, Duration: time.Since(batchStart)})
		o.advance(texts[0])

		o.logger.Debug("batch processed",
			zap.Int("lo", lo),
			zap.Int("hi", hi),
			zap.String("status", status),
			zap.Int("translatable", translatable))
	}

	return result, nil
}

// record 记录批次结果并转发给跟踪器
func (o *Orchestrator) record(result *Result, outcome Outcome) {
	result.Outcomes = append(result.Outcomes, outcome)

	if o.tracker != nil {
		o.tracker.RecordBatch(o.sessionID, progress.BatchRecord{
			Lo:       outcome.Lo,
			Hi:       outcome.Hi,
			Status:   outcome.Status,
			Error:    outcome.Err,
			Duration: outcome.Duration,
		})
	}
}

// advance 推进进度条
func (o *Orchestrator) advance(preview string) {
	if o.bar != nil {
		o.bar.Advance(preview)
	}
}
