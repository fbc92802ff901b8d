package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-csv-translator/internal/checkpoint"
	"github.com/nerdneilsfield/go-csv-translator/internal/config"
	"github.com/nerdneilsfield/go-csv-translator/internal/dataset"
	"github.com/nerdneilsfield/go-csv-translator/internal/langdetect"
	"github.com/nerdneilsfield/go-csv-translator/internal/logger"
	"github.com/nerdneilsfield/go-csv-translator/internal/pipeline"
	"github.com/nerdneilsfield/go-csv-translator/internal/progress"
	"github.com/nerdneilsfield/go-csv-translator/internal/stats"
	"github.com/nerdneilsfield/go-csv-translator/internal/translator"
	"github.com/nerdneilsfield/go-csv-translator/pkg/providers"
	"github.com/nerdneilsfield/go-csv-translator/pkg/providers/marian"
	"github.com/nerdneilsfield/go-csv-translator/pkg/providers/openai"
)

var (
	// 命令行标志变量
	cfgFile        string
	batchSize      int
	textColumn     string
	checkpointPath string
	noResume       bool // 忽略已有检查点，从头开始
	providerName   string
	dryRun         bool // 预演模式，只统计将要翻译的行数
	showConfig     bool
	listProviders  bool
	showStats      bool
	debugMode      bool
	verboseMode    bool // 显示逐批处理细节
)

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "csv-translator [flags] input.csv output.csv",
		Short: "批量翻译 CSV 数据集中文本列的离线工具",
		Long: `csv-translator 将 CSV 数据集中的英文文本列批量翻译为中文。
处理过程按批次推进，每个批次落盘一个检查点，中断后重新运行时
会跳过已完成的批次，最多只丢失一个进行中批次的翻译结果。

支持的翻译提供商:
  - marian: opus-mt 风格的序列到序列推理服务（本地部署）
  - openai: OpenAI 兼容的聊天补全接口`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		Args: func(cmd *cobra.Command, args []string) error {
			// 列表类命令不需要参数
			if listProviders || showConfig || showStats {
				return nil
			}
			// 预演模式只需要输入文件
			if dryRun {
				if len(args) < 1 {
					return fmt.Errorf("dry-run mode requires at least 1 file argument")
				}
				return nil
			}
			if len(args) != 2 {
				return fmt.Errorf("accepts 2 arg(s), received %d", len(args))
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			log := logger.NewLoggerWithVerbose(debugMode, verboseMode)
			defer func() {
				_ = log.Sync()
			}()

			if listProviders {
				fmt.Println("支持的翻译提供商:")
				for _, p := range []string{"marian", "openai"} {
					fmt.Printf("  - %s\n", p)
				}
				return
			}

			// 加载配置
			cfg, err := config.LoadConfig(cfgFile)
			if err != nil {
				log.Error("加载配置失败", zap.Error(err))
				os.Exit(1)
			}
			updateConfigFromFlags(cmd, cfg)

			if showConfig {
				handleShowConfig(cfg, log)
				return
			}

			if showStats {
				handleShowStats(cfg, log)
				return
			}

			inputPath := args[0]
			outputPath := ""
			if len(args) > 1 {
				outputPath = args[1]
			}

			if err := runTranslation(cmd, cfg, log, inputPath, outputPath); err != nil {
				log.Error("翻译文件失败", zap.Error(err))
				os.Exit(1)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "配置文件路径 (默认搜索 ~/.csv-translator.yaml)")
	rootCmd.PersistentFlags().IntVarP(&batchSize, "batch-size", "b", 0, "每批处理的行数，也是检查点粒度")
	rootCmd.PersistentFlags().StringVar(&textColumn, "text-column", "", "数据集中待翻译的列名")
	rootCmd.PersistentFlags().StringVar(&checkpointPath, "checkpoint", "", "检查点文件路径 (默认 <output>.checkpoint.csv)")
	rootCmd.PersistentFlags().BoolVar(&noResume, "no-resume", false, "忽略已有检查点，从头开始处理")
	rootCmd.PersistentFlags().StringVar(&providerName, "provider", "", "指定翻译提供商 (marian, openai)")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "只统计将要翻译的行数，不执行翻译")
	rootCmd.PersistentFlags().BoolVar(&showConfig, "show-config", false, "显示当前配置信息")
	rootCmd.PersistentFlags().BoolVar(&listProviders, "list-providers", false, "列出支持的翻译提供商")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "显示历史运行统计")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "启用调试日志")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "显示逐批处理细节")

	return rootCmd
}

// runTranslation 执行完整的翻译流程
func runTranslation(cmd *cobra.Command, cfg *config.Config, log *zap.Logger, inputPath, outputPath string) error {
	startTime := time.Now()

	// 加载数据集
	ds, err := dataset.Load(inputPath, dataset.LoadOptions{
		TextColumn: cfg.TextColumn,
		Encodings:  cfg.InputEncodings,
		Logger:     log,
	})
	if err != nil {
		return err
	}

	gate := langdetect.NewGate(log)

	if dryRun {
		handleDryRun(ds, gate, log)
		return nil
	}

	// 创建翻译提供商
	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	batchTranslator := translator.NewBatchTranslator(
		provider, cfg.SourceLang, cfg.TargetLang, cfg.MaxSourceLength, log)

	// 恢复检查点
	store := checkpoint.NewStore(cfg.CheckpointFor(outputPath), log)
	completed := checkpoint.NewCompletionSet()
	if cfg.UseCheckpoint {
		restored, values, err := store.Restore()
		if err != nil {
			return err
		}
		completed = restored
		ds.ApplyCheckpoint(values)
	}

	// 进度跟踪
	totalBatches := (ds.Len() + cfg.BatchSize - 1) / cfg.BatchSize
	tracker := progress.NewTracker(log, cfg.ProgressDir)
	sessionID := uuid.NewString()
	tracker.StartSession(sessionID, inputPath, outputPath, provider.GetName(), ds.Len(), totalBatches)

	bar := translator.NewProgressBar(totalBatches, "translating")

	orchestrator := pipeline.NewOrchestrator(
		cfg.BatchSize, gate, batchTranslator, store,
		pipeline.WithTracker(tracker, sessionID),
		pipeline.WithProgressBar(bar),
		pipeline.WithLogger(log),
	)

	result, runErr := orchestrator.Run(cmd.Context(), pipeline.NewState(ds, completed))
	bar.Finish()
	tracker.StopSession(sessionID, runErr != nil)

	recordRunStats(cfg, log, &stats.RunRecord{
		ID:                 sessionID,
		InputFile:          inputPath,
		OutputFile:         outputPath,
		Provider:           provider.GetName(),
		StartTime:          startTime,
		Duration:           time.Since(startTime),
		TotalRows:          ds.Len(),
		TotalBatches:       result.TotalBatches,
		SkippedBatches:     result.SkippedBatches,
		TranslatedBatches:  result.TranslatedBatches,
		PassthroughBatches: result.PassthroughBatches,
		FallbackBatches:    result.FallbackBatches,
		Status:             runStatus(runErr),
	})

	if runErr != nil {
		return runErr
	}

	// 导出最终结果
	if err := ds.Export(outputPath); err != nil {
		return err
	}

	printSummary(outputPath, ds.Len(), result, time.Since(startTime))
	return nil
}

// buildProvider 根据配置创建翻译提供商
func buildProvider(cfg *config.Config) (providers.Provider, error) {
	settings := cfg.ProviderSettings()
	timeout := time.Duration(settings.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	registry := providers.NewRegistry()

	marianCfg := marian.DefaultConfig()
	marianCfg.APIEndpoint = settings.Endpoint
	marianCfg.Timeout = timeout
	if err := registry.Register("marian", marian.New(marianCfg)); err != nil {
		return nil, err
	}

	openaiCfg := openai.DefaultConfig()
	openaiCfg.APIEndpoint = settings.Endpoint
	openaiCfg.APIKey = settings.APIKey
	openaiCfg.Timeout = timeout
	if settings.Model != "" {
		openaiCfg.Model = settings.Model
	}
	if settings.Temperature > 0 {
		openaiCfg.Temperature = float32(settings.Temperature)
	}
	if err := registry.Register("openai", openai.New(openaiCfg)); err != nil {
		return nil, err
	}

	return registry.Get(cfg.Provider)
}

// handleDryRun 预演模式：统计将要翻译的行数
func handleDryRun(ds *dataset.Dataset, gate *langdetect.Gate, log *zap.Logger) {
	translatable := 0
	for i := 0; i < ds.Len(); i++ {
		if gate.Translatable(ds.Text(i)) {
			translatable++
		}
	}

	fmt.Printf("共 %d 行，其中 %d 行将被翻译，%d 行原样保留\n",
		ds.Len(), translatable, ds.Len()-translatable)
}

// handleShowConfig 显示当前配置
func handleShowConfig(cfg *config.Config, log *zap.Logger) {
	// 不在终端上泄露密钥；复制 map，避免掩码写回实际配置
	shown := *cfg
	shown.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			p.APIKey = "****"
		}
		shown.Providers[name] = p
	}

	data, err := json.MarshalIndent(shown, "", "  ")
	if err != nil {
		log.Error("序列化配置失败", zap.Error(err))
		os.Exit(1)
	}
	fmt.Println(string(data))
}

// handleShowStats 显示历史运行统计
func handleShowStats(cfg *config.Config, log *zap.Logger) {
	db, err := stats.NewDatabase(filepath.Join(cfg.ProgressDir, "statistics.json"), log)
	if err != nil {
		log.Error("打开统计数据库失败", zap.Error(err))
		os.Exit(1)
	}
	stats.NewVisualizer(db).ShowOverview()
}

// recordRunStats 记录本次运行的统计
func recordRunStats(cfg *config.Config, log *zap.Logger, record *stats.RunRecord) {
	db, err := stats.NewDatabase(filepath.Join(cfg.ProgressDir, "statistics.json"), log)
	if err != nil {
		log.Warn("打开统计数据库失败", zap.Error(err))
		return
	}
	if err := db.RecordRun(record); err != nil {
		log.Warn("记录运行统计失败", zap.Error(err))
	}
}

// printSummary 打印最终摘要
func printSummary(outputPath string, rows int, result *pipeline.Result, duration time.Duration) {
	green := color.New(color.FgGreen, color.Bold)
	green.Println("✓ translation complete")
	fmt.Printf("  output:       %s\n", outputPath)
	fmt.Printf("  rows:         %d\n", rows)
	fmt.Printf("  batches:      %d (translated %d, skipped %d, passthrough %d, fallback %d)\n",
		result.TotalBatches, result.TranslatedBatches, result.SkippedBatches,
		result.PassthroughBatches, result.FallbackBatches)
	fmt.Printf("  duration:     %s\n", duration.Round(time.Second))

	if result.FallbackBatches > 0 {
		color.Yellow("  %d batch(es) fell back to original text, see session log for causes", result.FallbackBatches)
	}
}

// updateConfigFromFlags 使用命令行参数覆盖配置
func updateConfigFromFlags(cmd *cobra.Command, cfg *config.Config) {
	if batchSize > 0 {
		cfg.BatchSize = batchSize
	}
	if textColumn != "" {
		cfg.TextColumn = textColumn
	}
	if checkpointPath != "" {
		cfg.CheckpointPath = checkpointPath
	}
	if noResume {
		cfg.UseCheckpoint = false
	}
	if providerName != "" {
		cfg.Provider = providerName
		if _, ok := cfg.Providers[providerName]; !ok {
			cfg.Providers[providerName] = config.ProviderConfig{}
		}
	}
	if debugMode {
		cfg.Debug = true
	}
	if verboseMode {
		cfg.Verbose = true
	}
}

// runStatus 将运行错误映射为统计状态
func runStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "completed"
}
