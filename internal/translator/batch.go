package translator

import (
	"context"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/go-csv-translator/pkg/providers"
)

// BatchTranslator 批量翻译适配器
// 包装提供商调用：送入前截断到最大长度，调用一次（不重试），校验译文与原文位置对齐
type BatchTranslator struct {
	provider        providers.Provider
	sourceLang      string
	targetLang      string
	maxSourceLength int
	logger          *zap.Logger
}

// NewBatchTranslator 创建批量翻译适配器
func NewBatchTranslator(provider providers.Provider, sourceLang, targetLang string, maxSourceLength int, logger *zap.Logger) *BatchTranslator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchTranslator{
		provider:        provider,
		sourceLang:      sourceLang,
		targetLang:      targetLang,
		maxSourceLength: maxSourceLength,
		logger:          logger,
	}
}

// ProviderName 返回底层提供商名称
func (bt *BatchTranslator) ProviderName() string {
	return bt.provider.GetName()
}

// Translate 翻译一个有序批次，返回与输入等长、位置对齐的译文序列
func (bt *BatchTranslator) Translate(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, WrapError(ErrEmptyBatch, ErrCodeValidation, "nothing to translate")
	}

	truncated := make([]string, len(texts))
	for i, text := range texts {
		truncated[i] = truncate(text, bt.maxSourceLength)
		if len(truncated[i]) < len(text) {
			bt.logger.Debug("truncated source text",
				zap.Int("position", i),
				zap.Int("limit", bt.maxSourceLength))
		}
	}

	resp, err := bt.provider.Translate(ctx, &providers.ProviderRequest{
		Texts:          truncated,
		SourceLanguage: bt.sourceLang,
		TargetLanguage: bt.targetLang,
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeProvider, "translation call failed")
	}

	if len(resp.Texts) != len(texts) {
		return nil, WrapError(ErrLengthMismatch, ErrCodeProvider, "provider returned misaligned batch")
	}

	return resp.Texts, nil
}

// truncate 按符文数截断文本
func truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
