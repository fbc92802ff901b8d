package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/nerdneilsfield/go-csv-translator/pkg/providers"
)

// Config OpenAI配置
type Config struct {
	providers.BaseConfig
	Model       string  `json:"model"`
	Temperature float32 `json:"temperature"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		BaseConfig:  providers.DefaultConfig(),
		Model:       "gpt-4o-mini",
		Temperature: 0.3,
	}
}

// Provider OpenAI兼容的聊天补全提供商
// 没有原生批量接口，批次内逐条调用，顺序与输入保持一致
type Provider struct {
	config Config
	client *openai.Client
}

// 确保 Provider 实现 providers.Provider 接口
var _ providers.Provider = (*Provider)(nil)

// New 创建新的OpenAI提供商
func New(config Config) *Provider {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.APIEndpoint != "" {
		clientConfig.BaseURL = strings.TrimSuffix(config.APIEndpoint, "/")
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &Provider{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Translate 执行批量翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	if len(req.Texts) == 0 {
		return nil, providers.NewError("empty_batch", "no texts to translate")
	}

	source := req.SourceLanguage
	if source == "" {
		source = "English"
	}
	target := req.TargetLanguage
	if target == "" {
		target = "Chinese"
	}

	system := fmt.Sprintf(
		"You are a professional translator. Translate the user's text from %s to %s. "+
			"Output only the translation, without explanations or quotes.", source, target)

	texts := make([]string, len(req.Texts))
	for i, text := range req.Texts {
		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       p.config.Model,
			Temperature: p.config.Temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
		})
		if err != nil {
			return nil, providers.NewError("llm_error",
				fmt.Sprintf("chat completion failed at batch position %d: %v", i, err))
		}
		if len(resp.Choices) == 0 {
			return nil, providers.NewError("bad_response",
				fmt.Sprintf("no choices returned at batch position %d", i))
		}
		texts[i] = strings.TrimSpace(resp.Choices[0].Message.Content)
	}

	return &providers.ProviderResponse{
		Texts: texts,
		Model: p.config.Model,
	}, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "openai"
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength:  4096,
		SupportsBatch:  false,
		RequiresAPIKey: true,
	}
}

// HealthCheck 健康检查
func (p *Provider) HealthCheck(ctx context.Context) error {
	_, err := p.client.ListModels(ctx)
	return err
}
