// internal/agent/generator.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/llmutil"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// ActionGenerator turns a conversation into a stream of model events ending
// in at most one action.
type ActionGenerator interface {
	Generate(ctx context.Context, messages []schemas.Message) <-chan ModelEvent
}

// Generator streams one model response per call and extracts the action from
// it. It is safe for concurrent use.
type Generator struct {
	client  schemas.StreamingLLMClient
	logger  *zap.Logger
	think   bool
	options schemas.GenerationOptions
	metrics *observability.Metrics
}

var _ ActionGenerator = (*Generator)(nil)

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithThink enables or disables the provider's reasoning channel. Enabled by default.
func WithThink(enabled bool) GeneratorOption {
	return func(g *Generator) { g.think = enabled }
}

// WithGenerationOptions sets the sampling options sent with every request.
func WithGenerationOptions(opts schemas.GenerationOptions) GeneratorOption {
	return func(g *Generator) { g.options = opts }
}

// WithGeneratorMetrics records round durations and parse failures.
func WithGeneratorMetrics(m *observability.Metrics) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator returns a generator backed by client.
func NewGenerator(client schemas.StreamingLLMClient, logger *zap.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client: client,
		logger: logger.Named("agent.generator"),
		think:  true,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate issues one streaming request carrying messages and returns the
// resulting events. Reasoning and answer fragments are forwarded as they
// arrive. When the stream ends, the answer is parsed for an action, falling
// back to the reasoning followed by the answer; the result is one action
// event or one diagnostic event. A transport failure produces a single error
// event instead. The channel is closed when the sequence ends or ctx is done.
//
// A system prompt is prepended unless messages already start with one.
func (g *Generator) Generate(ctx context.Context, messages []schemas.Message) <-chan ModelEvent {
	out := make(chan ModelEvent)
	go g.generate(ctx, withSystemPrompt(messages), out)
	return out
}

func (g *Generator) generate(ctx context.Context, messages []schemas.Message, out chan<- ModelEvent) {
	defer close(out)

	send := func(ev ModelEvent) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var answer, reasoning strings.Builder
	onChunk := func(chunk schemas.StreamChunk) error {
		if chunk.Thinking != "" {
			reasoning.WriteString(chunk.Thinking)
			if !send(ModelEvent{Kind: EventReasoning, Text: chunk.Thinking}) {
				return ctx.Err()
			}
		}
		if chunk.Content != "" {
			answer.WriteString(chunk.Content)
			if !send(ModelEvent{Kind: EventAnswer, Text: chunk.Content}) {
				return ctx.Err()
			}
		}
		return nil
	}

	req := schemas.ChatRequest{Messages: messages, Think: g.think, Options: g.options}
	start := time.Now()
	err := g.client.StreamChat(ctx, req, onChunk)
	g.metrics.ObserveModelRound(time.Since(start))

	if ctx.Err() != nil {
		// Cancellation is not a transport failure.
		return
	}
	if err != nil {
		g.logger.Warn("Model request failed.", zap.Error(err))
		wrapped := fmt.Errorf("%w: %w", ErrTransport, err)
		send(ModelEvent{Kind: EventError, Text: wrapped.Error(), Err: wrapped})
		return
	}

	text := answer.String()
	a, ok := action.Parse(text)
	if !ok && reasoning.Len() > 0 {
		g.logger.Debug("No action in the answer channel; retrying with reasoning included.")
		a, ok = action.Parse(reasoning.String() + "\n" + text)
	}
	if ok {
		g.logger.Debug("Action extracted.", zap.String("action", string(a.Kind())))
		send(ModelEvent{Kind: EventAction, Text: text, Action: a})
		return
	}

	g.metrics.RecordParseFailure()
	g.logger.Debug("No tool call found.",
		zap.String("answer", llmutil.Truncate(text, 2000)),
		zap.String("reasoning", llmutil.Truncate(reasoning.String(), 2000)),
	)
	send(ModelEvent{
		Kind: EventDiagnostic,
		Text: fmt.Sprintf("no tool call found in the model response (answer: %q, reasoning: %d chars)",
			llmutil.Truncate(text, 200), reasoning.Len()),
	})
}

// withSystemPrompt returns messages led by the system prompt.
func withSystemPrompt(messages []schemas.Message) []schemas.Message {
	if len(messages) > 0 && messages[0].Role == schemas.RoleSystem {
		return messages
	}
	out := make([]schemas.Message, 0, len(messages)+1)
	out = append(out, schemas.Message{Role: schemas.RoleSystem, Content: SystemPrompt()})
	return append(out, messages...)
}
