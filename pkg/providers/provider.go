package providers

import (
	"context"
	"time"
)

// BaseConfig 基础配置
type BaseConfig struct {
	// API配置
	APIKey      string `json:"api_key,omitempty"`
	APIEndpoint string `json:"api_endpoint,omitempty"`

	// 超时
	Timeout time.Duration `json:"timeout"`

	// 自定义头部
	Headers map[string]string `json:"headers,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() BaseConfig {
	return BaseConfig{
		Timeout: 5 * time.Minute, // 序列到序列模型的批量生成可能很慢
		Headers: make(map[string]string),
	}
}

// Provider 翻译提供商接口
// 请求和响应都是有序批次，response.Texts[i] 是 request.Texts[i] 的译文
type Provider interface {
	// Translate 翻译一个批次
	Translate(ctx context.Context, req *ProviderRequest) (*ProviderResponse, error)

	// GetName 获取提供商名称
	GetName() string

	// GetCapabilities 获取提供商能力
	GetCapabilities() Capabilities

	// HealthCheck 健康检查
	HealthCheck(ctx context.Context) error
}

// Capabilities 提供商能力
type Capabilities struct {
	// 单条文本的最大长度
	MaxTextLength int `json:"max_text_length"`

	// 是否原生支持批量翻译
	SupportsBatch bool `json:"supports_batch"`

	// 是否需要API密钥
	RequiresAPIKey bool `json:"requires_api_key"`
}

// Error 提供商错误
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// NewError 创建提供商错误
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// ProviderRequest 提供商请求
type ProviderRequest struct {
	Texts          []string               `json:"texts"`
	SourceLanguage string                 `json:"source_language,omitempty"`
	TargetLanguage string                 `json:"target_language,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// ProviderResponse 提供商响应
type ProviderResponse struct {
	Texts    []string          `json:"texts"`
	Model    string            `json:"model,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
