package schemas

import (
	"context"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"    // Fixed instructions for the model.
	RoleUser      Role = "user"      // Operator instructions and browser observations.
	RoleAssistant Role = "assistant" // Actions previously chosen by the model.
)

// Message is a single role-tagged turn in a conversation with a vision model.
// Images carry raw encoded screenshots (JPEG); providers are responsible for
// any transport encoding such as base64.
type Message struct {
	Role    Role     `json:"role"`
	Content string   `json:"content"`
	Images  [][]byte `json:"images,omitempty"`
}

// Clone returns a copy of the message that does not share the Images slice.
func (m Message) Clone() Message {
	out := m
	if len(m.Images) > 0 {
		out.Images = make([][]byte, len(m.Images))
		copy(out.Images, m.Images)
	}
	return out
}

// GenerationOptions controls sampling on the provider side. Zero values are
// omitted from the request so the provider defaults apply.
type GenerationOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	TopP        float32 `json:"top_p,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// ChatRequest is one streaming request carrying the full message history.
type ChatRequest struct {
	Messages []Message         `json:"messages"`
	Think    bool              `json:"think"` // Ask the provider to stream its reasoning channel.
	Options  GenerationOptions `json:"options"`
}

// StreamChunk is one decoded unit of a streaming response. A chunk may carry
// reasoning text, answer text, both, or neither (a keep-alive or the final
// done marker).
type StreamChunk struct {
	Thinking string `json:"thinking,omitempty"`
	Content  string `json:"content,omitempty"`
	Done     bool   `json:"done"`
}

// StreamingLLMClient abstracts a chat model that streams its response.
// StreamChat blocks until the stream ends, invoking onChunk for every chunk in
// arrival order. Returning an error from onChunk aborts the stream and that
// error is returned. Transport failures (connection errors, non-success
// status) are returned as errors; the caller decides whether to retry.
type StreamingLLMClient interface {
	StreamChat(ctx context.Context, req ChatRequest, onChunk func(StreamChunk) error) error
	// Close releases any resources held by the client.
	Close() error
}
