package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerdneilsfield/go-csv-translator/pkg/providers"
)

// newMockServer 返回一个按固定表翻译的 OpenAI 兼容服务
func newMockServer(t *testing.T, translations map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req gopenai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)

		user := req.Messages[1].Content
		resp := gopenai.ChatCompletionResponse{
			Model: req.Model,
			Choices: []gopenai.ChatCompletionChoice{
				{Message: gopenai.ChatCompletionMessage{
					Role:    gopenai.ChatMessageRoleAssistant,
					Content: translations[user],
				}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestProvider(server *httptest.Server) *Provider {
	cfg := DefaultConfig()
	cfg.APIEndpoint = server.URL + "/v1"
	cfg.APIKey = "test-key"
	return New(cfg)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	assert.Greater(t, cfg.Timeout, time.Duration(0))
}

func TestTranslate(t *testing.T) {
	t.Run("Batch Translated In Order", func(t *testing.T) {
		server := newMockServer(t, map[string]string{
			"hello": "你好",
			"world": "世界",
		})
		defer server.Close()

		p := newTestProvider(server)
		resp, err := p.Translate(context.Background(), &providers.ProviderRequest{
			Texts:          []string{"hello", "world"},
			SourceLanguage: "English",
			TargetLanguage: "Chinese",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"你好", "世界"}, resp.Texts)
	})

	t.Run("Empty Batch Rejected", func(t *testing.T) {
		p := New(DefaultConfig())
		_, err := p.Translate(context.Background(), &providers.ProviderRequest{})
		require.Error(t, err)
	})

	t.Run("Timeout Applied To Client", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(500 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		cfg := DefaultConfig()
		cfg.APIEndpoint = server.URL + "/v1"
		cfg.APIKey = "test-key"
		cfg.Timeout = 50 * time.Millisecond
		p := New(cfg)

		_, err := p.Translate(context.Background(), &providers.ProviderRequest{
			Texts: []string{"hello"},
		})
		require.Error(t, err)
	})

	t.Run("Server Failure Reported With Position", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
		}))
		defer server.Close()

		p := newTestProvider(server)
		_, err := p.Translate(context.Background(), &providers.ProviderRequest{
			Texts: []string{"hello"},
		})
		require.Error(t, err)

		var provErr *providers.Error
		require.ErrorAs(t, err, &provErr)
		assert.Equal(t, "llm_error", provErr.Code)
	})
}
