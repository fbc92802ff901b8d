package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ProviderConfig 保存单个翻译提供商的配置
type ProviderConfig struct {
	Endpoint       string  `mapstructure:"endpoint"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"` // 单次翻译调用的超时时间（秒）
}

// Config 保存翻译任务的所有配置
type Config struct {
	SourceLang string `mapstructure:"source_lang"` // 源语言（被翻译的语言）
	TargetLang string `mapstructure:"target_lang"` // 目标语言

	TextColumn      string   `mapstructure:"text_column"`       // 数据集中待翻译的列名
	BatchSize       int      `mapstructure:"batch_size"`        // 每批处理的行数，也是检查点粒度
	MaxSourceLength int      `mapstructure:"max_source_length"` // 单条文本送入模型前的截断长度
	InputEncodings  []string `mapstructure:"input_encodings"`   // 输入文件编码候选，按顺序尝试

	CheckpointPath string `mapstructure:"checkpoint_path"` // 检查点文件路径，空则由输出路径派生
	UseCheckpoint  bool   `mapstructure:"use_checkpoint"`  // 是否恢复已有检查点
	ProgressDir    string `mapstructure:"progress_dir"`    // 进度会话与统计数据的保存目录

	Provider  string                    `mapstructure:"provider"` // 使用的翻译提供商名称
	Providers map[string]ProviderConfig `mapstructure:"providers"`

	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"` // 详细模式，显示逐批翻译片段
}

// NewDefaultConfig 创建默认配置
func NewDefaultConfig() *Config {
	return &Config{
		SourceLang:      "English",
		TargetLang:      "Chinese",
		TextColumn:      "text",
		BatchSize:       16,
		MaxSourceLength: 512,
		InputEncodings:  []string{"utf-8", "gb18030", "latin-1"},
		UseCheckpoint:   true,
		ProgressDir:     defaultProgressDir(),
		Provider:        "marian",
		Providers: map[string]ProviderConfig{
			"marian": {
				Endpoint:       "http://localhost:8000",
				TimeoutSeconds: 300,
			},
			"openai": {
				Endpoint:       "https://api.openai.com/v1",
				Model:          "gpt-4o-mini",
				Temperature:    0.3,
				TimeoutSeconds: 300,
			},
		},
	}
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		// 搜索配置文件
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(".csv-translator")
		v.SetConfigType("yaml")
	}

	// 读取配置
	if err := v.ReadInConfig(); err != nil {
		// 没有配置文件时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.TextColumn == "" {
		return fmt.Errorf("text_column cannot be empty")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.MaxSourceLength <= 0 {
		return fmt.Errorf("max_source_length must be positive, got %d", c.MaxSourceLength)
	}
	if len(c.InputEncodings) == 0 {
		return fmt.Errorf("input_encodings cannot be empty")
	}
	if c.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}
	if _, ok := c.Providers[c.Provider]; !ok {
		return fmt.Errorf("provider %q has no configuration", c.Provider)
	}
	return nil
}

// ProviderSettings 返回当前激活提供商的配置
func (c *Config) ProviderSettings() ProviderConfig {
	return c.Providers[c.Provider]
}

// CheckpointFor 返回指定输出文件对应的检查点路径
func (c *Config) CheckpointFor(outputPath string) string {
	if c.CheckpointPath != "" {
		return c.CheckpointPath
	}
	return outputPath + ".checkpoint.csv"
}

// setDefaults 填补未配置的字段
func setDefaults(cfg *Config) {
	def := NewDefaultConfig()

	if cfg.SourceLang == "" {
		cfg.SourceLang = def.SourceLang
	}
	if cfg.TargetLang == "" {
		cfg.TargetLang = def.TargetLang
	}
	if cfg.TextColumn == "" {
		cfg.TextColumn = def.TextColumn
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxSourceLength == 0 {
		cfg.MaxSourceLength = def.MaxSourceLength
	}
	if len(cfg.InputEncodings) == 0 {
		cfg.InputEncodings = def.InputEncodings
	}
	if cfg.ProgressDir == "" {
		cfg.ProgressDir = def.ProgressDir
	}
	if cfg.Provider == "" {
		cfg.Provider = def.Provider
	}
	if cfg.Providers == nil {
		cfg.Providers = def.Providers
	}
	for name, p := range def.Providers {
		if _, ok := cfg.Providers[name]; !ok {
			cfg.Providers[name] = p
		}
	}
}

// defaultProgressDir 返回默认的进度保存目录
func defaultProgressDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".csv-translator-progress"
	}
	return filepath.Join(home, ".csv-translator-progress")
}
