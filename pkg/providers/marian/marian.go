// Package marian 对接 opus-mt 风格的序列到序列推理服务
// 服务将整个批次作为一次生成请求处理，推理端的分词与解码对调用方不可见
package marian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/nerdneilsfield/go-csv-translator/pkg/providers"
)

// Config Marian配置
type Config struct {
	providers.BaseConfig
	SourceLang string `json:"source_lang"` // ISO 639-1 源语言代码
	TargetLang string `json:"target_lang"` // ISO 639-1 目标语言代码
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	config := Config{
		BaseConfig: providers.DefaultConfig(),
		SourceLang: "en",
		TargetLang: "zh",
	}
	config.APIEndpoint = "http://localhost:8000"
	return config
}

// Provider Marian提供商
type Provider struct {
	config     Config
	httpClient *http.Client
}

// 确保 Provider 实现 providers.Provider 接口
var _ providers.Provider = (*Provider)(nil)

// 解码输出中可能残留的模型控制标记
var controlTokens = regexp.MustCompile(`</?s>|<pad>|<unk>|^\s*>>[a-z_]+<<\s*`)

// New 创建新的Marian提供商
func New(config Config) *Provider {
	if config.APIEndpoint == "" {
		config.APIEndpoint = "http://localhost:8000"
	}

	return &Provider{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// TranslateRequest 推理服务的请求体
type TranslateRequest struct {
	Texts  []string `json:"texts"`
	Source string   `json:"source"`
	Target string   `json:"target"`
}

// TranslateResponse 推理服务的响应体
type TranslateResponse struct {
	Translations []string `json:"translations"`
	Model        string   `json:"model,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Translate 执行批量翻译
func (p *Provider) Translate(ctx context.Context, req *providers.ProviderRequest) (*providers.ProviderResponse, error) {
	if len(req.Texts) == 0 {
		return nil, providers.NewError("empty_batch", "no texts to translate")
	}

	source := req.SourceLanguage
	if source == "" {
		source = p.config.SourceLang
	}
	target := req.TargetLanguage
	if target == "" {
		target = p.config.TargetLang
	}

	body, err := json.Marshal(TranslateRequest{
		Texts:  req.Texts,
		Source: normalizeLanguageCode(source),
		Target: normalizeLanguageCode(target),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := strings.TrimSuffix(p.config.APIEndpoint, "/") + "/translate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.config.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.NewError("network_error", err.Error())
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, providers.NewError("network_error", err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providers.NewError("server_error",
			fmt.Sprintf("inference server returned %d: %s", resp.StatusCode, truncateBody(data)))
	}

	var result TranslateResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, providers.NewError("bad_response", fmt.Sprintf("cannot parse response: %v", err))
	}
	if result.Error != "" {
		return nil, providers.NewError("model_error", result.Error)
	}
	if len(result.Translations) != len(req.Texts) {
		return nil, providers.NewError("bad_response",
			fmt.Sprintf("expected %d translations, got %d", len(req.Texts), len(result.Translations)))
	}

	texts := make([]string, len(result.Translations))
	for i, t := range result.Translations {
		texts[i] = stripControlTokens(t)
	}

	return &providers.ProviderResponse{
		Texts: texts,
		Model: result.Model,
	}, nil
}

// GetName 获取提供商名称
func (p *Provider) GetName() string {
	return "marian"
}

// GetCapabilities 获取提供商能力
func (p *Provider) GetCapabilities() providers.Capabilities {
	return providers.Capabilities{
		MaxTextLength:  512,
		SupportsBatch:  true,
		RequiresAPIKey: false,
	}
}

// HealthCheck 健康检查
func (p *Provider) HealthCheck(ctx context.Context) error {
	url := strings.TrimSuffix(p.config.APIEndpoint, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference server unhealthy: %d", resp.StatusCode)
	}
	return nil
}

// stripControlTokens 去掉解码输出中的控制标记
func stripControlTokens(text string) string {
	return strings.TrimSpace(controlTokens.ReplaceAllString(text, ""))
}

// normalizeLanguageCode 将语言名称归一化为 ISO 639-1 代码
func normalizeLanguageCode(lang string) string {
	switch strings.ToLower(lang) {
	case "english", "en":
		return "en"
	case "chinese", "zh", "zh-cn", "simplified chinese":
		return "zh"
	default:
		return strings.ToLower(lang)
	}
}

// truncateBody 截断错误响应体用于日志
func truncateBody(data []byte) string {
	const max = 200
	s := string(data)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
