package langdetect

import (
	"errors"
	"strings"

	"github.com/pemistahl/lingua-go"
	"go.uber.org/zap"
)

// 检测文本长度上限，lingua 的准确率在几百字符后不再提升
const maxDetectionLength = 256

// ErrUndetectable 语言无法识别（过短、纯数字、乱码等）
var ErrUndetectable = errors.New("language could not be detected")

// DetectionError 单行语言识别失败
type DetectionError struct {
	Text  string
	Cause error
}

// Error 实现error接口
func (e *DetectionError) Error() string {
	return "language detection failed: " + e.Cause.Error()
}

// Unwrap 返回原因错误
func (e *DetectionError) Unwrap() error {
	return e.Cause
}

// Gate 语言门控，决定一行文本是否需要送去翻译
type Gate struct {
	detector lingua.LanguageDetector
	logger   *zap.Logger
}

// NewGate 创建语言门控
// 候选语言集固定，包含源语言、目标语言和常见的干扰语言
func NewGate(logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}

	languages := []lingua.Language{
		lingua.English,
		lingua.Chinese,
		lingua.Japanese,
		lingua.Korean,
		lingua.French,
		lingua.German,
		lingua.Spanish,
		lingua.Russian,
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(languages...).
		Build()

	return &Gate{detector: detector, logger: logger}
}

// Translatable 判断文本是否应被翻译
// 识别失败在这里、且只在这里收敛为 false：无法确定语言的行保持原样通过
func (g *Gate) Translatable(text string) bool {
	lang, err := g.detect(text)
	if err != nil {
		g.logger.Debug("treating row as not translatable", zap.Error(err))
		return false
	}
	return lang == lingua.English
}

// Mask 对一个批次的所有文本做门控，返回与输入等长的布尔掩码
func (g *Gate) Mask(texts []string) []bool {
	mask := make([]bool, len(texts))
	for i, text := range texts {
		mask[i] = g.Translatable(text)
	}
	return mask
}

// detect 识别文本语言，失败时返回 DetectionError
func (g *Gate) detect(text string) (lingua.Language, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return lingua.Unknown, &DetectionError{Text: text, Cause: ErrUndetectable}
	}

	if runes := []rune(clean); len(runes) > maxDetectionLength {
		clean = string(runes[:maxDetectionLength])
	}

	lang, ok := g.detector.DetectLanguageOf(clean)
	if !ok {
		return lingua.Unknown, &DetectionError{Text: text, Cause: ErrUndetectable}
	}
	return lang, nil
}
