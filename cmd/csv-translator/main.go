package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-csv-translator/internal/cli"
	"github.com/nerdneilsfield/go-csv-translator/internal/logger"
)

// Version information
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// 初始化日志
	log := logger.NewLogger(false)
	defer func() {
		_ = log.Sync()
	}()

	// 创建根命令
	rootCmd := cli.NewRootCommand(Version, Commit, BuildDate)

	// 执行命令
	if err := rootCmd.Execute(); err != nil {
		log.Error("执行命令失败", zap.Error(err))
		os.Exit(1)
	}
}
