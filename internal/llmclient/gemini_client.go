// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// screenshotMIME is the encoding produced by the browser surface.
const screenshotMIME = "image/jpeg"

// GeminiClient streams chat responses from the Gemini API. Thought parts are
// surfaced on the reasoning channel.
type GeminiClient struct {
	client   *genai.Client
	model    string
	defaults schemas.GenerationOptions
	http     *http.Client
	logger   *zap.Logger
}

// NewGeminiClient initializes the client. A non-default cfg.Endpoint replaces
// the API base URL.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	httpClient := &http.Client{Timeout: cfg.APITimeout}
	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if cfg.Endpoint != "" && cfg.Endpoint != config.DefaultOllamaEndpoint {
		clientCfg.HTTPOptions.BaseURL = cfg.Endpoint
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		defaults: schemas.GenerationOptions{
			Temperature: cfg.Temperature,
			TopP:        cfg.TopP,
			TopK:        cfg.TopK,
			MaxTokens:   cfg.MaxTokens,
		},
		http:   httpClient,
		logger: logger.Named("llm_client.gemini"),
	}, nil
}

// StreamChat sends the conversation with GenerateContentStream and reports
// every response as one chunk. A final chunk flagged done follows the last
// response.
func (c *GeminiClient) StreamChat(ctx context.Context, req schemas.ChatRequest, onChunk func(schemas.StreamChunk) error) error {
	contents, genCfg := c.buildRequest(req)

	startTime := time.Now()
	responses := 0
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model, contents, genCfg) {
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			c.logger.Error("Gemini stream failed", zap.Error(err))
			return fmt.Errorf("gemini API error: %w", err)
		}
		responses++
		if err := onChunk(chunkFromResponse(resp)); err != nil {
			return err
		}
	}

	c.logger.Debug("LLM stream complete (Gemini)",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("chunks", responses),
	)
	return onChunk(schemas.StreamChunk{Done: true})
}

// Close releases idle connections held by the HTTP transport.
func (c *GeminiClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *GeminiClient) buildRequest(req schemas.ChatRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	opts := mergeOptions(c.defaults, req.Options)

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(opts.MaxTokens),
	}
	if opts.Temperature != 0 {
		genCfg.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.TopP != 0 {
		genCfg.TopP = genai.Ptr(opts.TopP)
	}
	if opts.TopK != 0 {
		genCfg.TopK = genai.Ptr(float32(opts.TopK))
	}
	if req.Think {
		genCfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}

	var system []*genai.Part
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == schemas.RoleSystem {
			system = append(system, genai.NewPartFromText(m.Content))
			continue
		}

		parts := make([]*genai.Part, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, genai.NewPartFromBytes(img, screenshotMIME))
		}
		if m.Content != "" {
			parts = append(parts, genai.NewPartFromText(m.Content))
		}
		if len(parts) == 0 {
			continue
		}

		role := genai.Role(genai.RoleUser)
		if m.Role == schemas.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	if len(system) > 0 {
		genCfg.SystemInstruction = genai.NewContentFromParts(system, genai.RoleUser)
	}
	return contents, genCfg
}

// chunkFromResponse splits the first candidate's parts into the reasoning and
// answer channels.
func chunkFromResponse(resp *genai.GenerateContentResponse) schemas.StreamChunk {
	var chunk schemas.StreamChunk
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return chunk
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Text == "" {
			continue
		}
		if part.Thought {
			chunk.Thinking += part.Text
		} else {
			chunk.Content += part.Text
		}
	}
	return chunk
}
