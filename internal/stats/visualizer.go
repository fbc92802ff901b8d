package stats

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Visualizer 统计数据可视化器
type Visualizer struct {
	db *Database
}

// NewVisualizer 创建可视化器
func NewVisualizer(db *Database) *Visualizer {
	return &Visualizer{db: db}
}

// ShowOverview 显示总览
func (v *Visualizer) ShowOverview() {
	stats := v.db.GetStats()

	title := color.New(color.FgCyan, color.Bold)
	title.Println("📊 Translation Statistics Overview")
	title.Println(strings.Repeat("=", 50))

	fmt.Println()
	v.printSection("🎯 Overall Statistics", [][]string{
		{"Total Runs", fmt.Sprintf("%d", stats.TotalRuns)},
		{"Total Rows", fmt.Sprintf("%d", stats.TotalRows)},
		{"Total Batches", fmt.Sprintf("%d", stats.TotalBatches)},
		{"Fallback Batches", fmt.Sprintf("%d", stats.TotalFallbacks)},
		{"Total Duration", formatDuration(stats.TotalDuration)},
		{"Database Created", stats.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Last Updated", stats.LastUpdated.Format("2006-01-02 15:04:05")},
	})

	fmt.Println()
	v.ShowRecentRuns()
}

// ShowRecentRuns 显示最近的运行记录
func (v *Visualizer) ShowRecentRuns() {
	stats := v.db.GetStats()
	if len(stats.RecentRuns) == 0 {
		color.Yellow("no runs recorded yet")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Started", "Input", "Provider", "Rows", "Translated", "Skipped", "Fallback", "Duration", "Status"})

	for _, run := range stats.RecentRuns {
		t.AppendRow(table.Row{
			run.StartTime.Format("01-02 15:04"),
			filepath.Base(run.InputFile),
			run.Provider,
			run.TotalRows,
			run.TranslatedBatches,
			run.SkippedBatches,
			run.FallbackBatches,
			formatDuration(run.Duration),
			run.Status,
		})
	}

	t.SetStyle(table.StyleLight)
	t.Render()
}

// printSection 打印一个带标题的键值区块
func (v *Visualizer) printSection(title string, rows [][]string) {
	header := color.New(color.FgGreen, color.Bold)
	header.Println(title)

	for _, row := range rows {
		fmt.Printf("  %-20s %s\n", row[0]+":", row[1])
	}
}

// formatDuration 格式化时长
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}
