// internal/llmclient/ollama.go
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxLineSize bounds a single NDJSON line. Reasoning models occasionally emit
// long chunks, so the default bufio limit is too small.
const maxLineSize = 4 << 20

// OllamaClient streams chat responses from an Ollama server's /api/chat
// endpoint, including the reasoning channel of thinking models.
type OllamaClient struct {
	endpoint   string
	model      string
	defaults   schemas.GenerationOptions
	httpClient *http.Client
	logger     *zap.Logger
}

// -- Ollama API Request/Response Structures (Internal to this file) --
type ollamaMessage struct {
	Role     string   `json:"role"`
	Content  string   `json:"content"`
	Thinking string   `json:"thinking,omitempty"`
	Images   []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Think    bool            `json:"think"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatChunk struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
	Error   string        `json:"error,omitempty"`
}

// NewOllamaClient initializes the client.
func NewOllamaClient(cfg config.LLMConfig, logger *zap.Logger) (*OllamaClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model name is required")
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = config.DefaultOllamaEndpoint
	}

	return &OllamaClient{
		endpoint: endpoint,
		model:    cfg.Model,
		defaults: schemas.GenerationOptions{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
			MaxTokens:   cfg.MaxTokens,
		},
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		logger: logger.Named("llm_client.ollama"),
	}, nil
}

// StreamChat posts the conversation and feeds every decoded line of the
// NDJSON response to onChunk until a chunk flagged done arrives.
func (c *OllamaClient) StreamChat(ctx context.Context, req schemas.ChatRequest, onChunk func(schemas.StreamChunk) error) error {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.handleAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	chunks := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk ollamaChatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.logger.Debug("Skipping malformed stream line.", zap.ByteString("line", line), zap.Error(err))
			continue
		}
		if chunk.Error != "" {
			return fmt.Errorf("ollama stream error: %s", chunk.Error)
		}

		chunks++
		out := schemas.StreamChunk{
			Thinking: chunk.Message.Thinking,
			Content:  chunk.Message.Content,
			Done:     chunk.Done,
		}
		if err := onChunk(out); err != nil {
			return err
		}
		if chunk.Done {
			c.logger.Debug("LLM stream complete (Ollama)",
				zap.Duration("duration", time.Since(startTime)),
				zap.Int("chunks", chunks),
			)
			return nil
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return fmt.Errorf("ollama stream ended without a done marker: %w", io.ErrUnexpectedEOF)
}

// Close releases idle connections held by the HTTP transport.
func (c *OllamaClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *OllamaClient) buildRequest(req schemas.ChatRequest) ollamaChatRequest {
	opts := mergeOptions(c.defaults, req.Options)

	messages := make([]ollamaMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := ollamaMessage{Role: string(m.Role), Content: m.Content}
		for _, img := range m.Images {
			msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(img))
		}
		messages = append(messages, msg)
	}

	return ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		Think:    req.Think,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			TopK:        opts.TopK,
			NumPredict:  opts.MaxTokens,
		},
	}
}

func (c *OllamaClient) handleAPIError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	c.logger.Error("Ollama API returned error status", zap.Int("status", resp.StatusCode), zap.ByteString("response", respBody))

	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("ollama API error [%d]: %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("ollama API error [%d]: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
}

// mergeOptions fills the zero fields of override from defaults.
func mergeOptions(defaults, override schemas.GenerationOptions) schemas.GenerationOptions {
	out := override
	if out.Temperature == 0 {
		out.Temperature = defaults.Temperature
	}
	if out.TopP == 0 {
		out.TopP = defaults.TopP
	}
	if out.TopK == 0 {
		out.TopK = defaults.TopK
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaults.MaxTokens
	}
	return out
}
