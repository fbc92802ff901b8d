package translator

import (
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/schollz/progressbar/v3"
)

// previewWidth 进度条描述中批次预览文本的显示宽度
const previewWidth = 32

// ProgressBar 翻译进度条，以批次为单位推进
type ProgressBar struct {
	bar              *progressbar.ProgressBar
	totalBatches     int
	processedBatches int
	startTime        time.Time
	mu               sync.Mutex
}

// NewProgressBar 创建新的进度条
func NewProgressBar(totalBatches int, description string) *ProgressBar {
	bar := progressbar.NewOptions(
		totalBatches,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	return &ProgressBar{
		bar:          bar,
		totalBatches: totalBatches,
		startTime:    time.Now(),
	}
}

// Advance 推进一个批次，preview 为该批次首行文本的预览
func (pb *ProgressBar) Advance(preview string) {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	pb.processedBatches++
	if preview != "" {
		pb.bar.Describe(runewidth.Truncate(preview, previewWidth, "…"))
	}
	_ = pb.bar.Add(1)
}

// Finish 完成进度条并显示统计
func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()

	_ = pb.bar.Finish()

	duration := time.Since(pb.startTime)
	if pb.processedBatches > 0 {
		fmt.Printf("\nprocessed %d batches in %s (%.2f batches/sec)\n",
			pb.processedBatches, duration.Round(time.Second), float64(pb.processedBatches)/duration.Seconds())
	}
}
