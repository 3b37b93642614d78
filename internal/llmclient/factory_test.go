package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/internal/config"
)

func TestNewClient(t *testing.T) {
	logger, _ := setupTestLogger(t)
	ctx := context.Background()

	t.Run("ollama", func(t *testing.T) {
		client, err := NewClient(ctx, getValidLLMConfig(config.ProviderOllama, ""), logger)
		require.NoError(t, err)
		defer client.Close()
		assert.IsType(t, &OllamaClient{}, client)
	})

	t.Run("gemini", func(t *testing.T) {
		client, err := NewClient(ctx, getValidLLMConfig(config.ProviderGemini, ""), logger)
		require.NoError(t, err)
		defer client.Close()
		assert.IsType(t, &GeminiClient{}, client)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := NewClient(ctx, getValidLLMConfig("openai", ""), logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})
}
