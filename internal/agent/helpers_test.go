package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/browser"
)

func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

// -- Scripted model client --

// round is one scripted model response.
type round struct {
	chunks []schemas.StreamChunk
	err    error
	hang   bool // Block after the chunks until the request context ends.
}

// answerRound streams text on the answer channel in three fragments.
func answerRound(text string) round {
	return thinkingRound("", text)
}

// thinkingRound streams reasoning, then the answer split into fragments.
func thinkingRound(reasoning, answer string) round {
	var chunks []schemas.StreamChunk
	if reasoning != "" {
		chunks = append(chunks, schemas.StreamChunk{Thinking: reasoning})
	}
	for _, part := range split3(answer) {
		chunks = append(chunks, schemas.StreamChunk{Content: part})
	}
	chunks = append(chunks, schemas.StreamChunk{Done: true})
	return round{chunks: chunks}
}

func split3(s string) []string {
	if len(s) < 3 {
		return []string{s}
	}
	a, b := len(s)/3, 2*len(s)/3
	return []string{s[:a], s[a:b], s[b:]}
}

// scriptedClient replays one round per StreamChat call. The last round is
// repeated once the script is exhausted.
type scriptedClient struct {
	mu       sync.Mutex
	rounds   []round
	requests []schemas.ChatRequest
}

var _ schemas.StreamingLLMClient = (*scriptedClient)(nil)

func newScriptedClient(rounds ...round) *scriptedClient {
	return &scriptedClient{rounds: rounds}
}

func (c *scriptedClient) StreamChat(ctx context.Context, req schemas.ChatRequest, onChunk func(schemas.StreamChunk) error) error {
	c.mu.Lock()
	i := len(c.requests)
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	r := c.rounds[min(i, len(c.rounds)-1)]
	for _, chunk := range r.chunks {
		if err := onChunk(chunk); err != nil {
			return err
		}
	}
	if r.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return r.err
}

func (c *scriptedClient) Close() error { return nil }

func (c *scriptedClient) Requests() []schemas.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]schemas.ChatRequest(nil), c.requests...)
}

// toolCall renders arguments the way a model would.
func toolCall(arguments string) string {
	return fmt.Sprintf("<tool_call>\n{\"name\": \"computer_use\", \"arguments\": %s}\n</tool_call>", arguments)
}

// -- Executor mock --

type mockExecutor struct {
	mock.Mock
}

var _ Executor = (*mockExecutor)(nil)

func (m *mockExecutor) Start(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockExecutor) Stop(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockExecutor) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockExecutor) Execute(ctx context.Context, a action.Action) error {
	return m.Called(ctx, a).Error(0)
}

// newSessionMock expects a session that starts, stops and returns a
// screenshot for every step.
func newSessionMock() *mockExecutor {
	m := new(mockExecutor)
	m.On("Start", mock.Anything).Return(nil).Once()
	m.On("Stop", mock.Anything).Return(nil).Once()
	m.On("Screenshot", mock.Anything).Return([]byte("jpeg"), nil)
	return m
}

// -- Recording surface for end-to-end runs through browser.Executor --

type recordingSurface struct {
	mu          sync.Mutex
	calls       []string
	gotoErr     error
	unknownKeys map[string]bool // Keys reported as having no encoding.
}

var _ browser.Surface = (*recordingSurface)(nil)

func (s *recordingSurface) record(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *recordingSurface) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingSurface) Start(context.Context) error { s.record("start"); return nil }
func (s *recordingSurface) Stop(context.Context) error  { s.record("stop"); return nil }

func (s *recordingSurface) Screenshot(context.Context) ([]byte, error) {
	return []byte("jpeg"), nil
}

func (s *recordingSurface) MoveTo(_ context.Context, x, y float64) error {
	s.record("move %.0f,%.0f", x, y)
	return nil
}

func (s *recordingSurface) ClickAt(_ context.Context, x, y float64, button action.Button, count int) error {
	s.record("click %.0f,%.0f %s x%d", x, y, button, count)
	return nil
}

func (s *recordingSurface) DragTo(_ context.Context, x, y float64, steps int) error {
	s.record("drag %.0f,%.0f", x, y)
	return nil
}

func (s *recordingSurface) TypeText(_ context.Context, text string) error {
	s.record("type %s", text)
	return nil
}

func (s *recordingSurface) PressKey(_ context.Context, key string) error {
	if s.unknownKeys[key] {
		return fmt.Errorf("%w: %q", browser.ErrUnknownKey, key)
	}
	s.record("key %s", key)
	return nil
}

func (s *recordingSurface) WheelScroll(_ context.Context, dx, dy float64) error {
	s.record("wheel %.0f,%.0f", dx, dy)
	return nil
}

func (s *recordingSurface) GotoURL(_ context.Context, url string) error {
	s.record("goto %s", url)
	return s.gotoErr
}

// -- Observer and recorder fakes --

type recordingObserver struct {
	mu      sync.Mutex
	events  []ModelEvent
	steps   []schemas.StepRecord
	onEvent func(ev ModelEvent)
}

func (o *recordingObserver) OnModelEvent(_ int, ev ModelEvent) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	hook := o.onEvent
	o.mu.Unlock()
	if hook != nil {
		hook(ev)
	}
}

func (o *recordingObserver) OnStep(rec schemas.StepRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.steps = append(o.steps, rec)
}

func (o *recordingObserver) kinds() []EventKind {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []EventKind
	for _, ev := range o.events {
		out = append(out, ev.Kind)
	}
	return out
}

type memoryRecorder struct {
	mu    sync.Mutex
	runs  []schemas.RunRecord
	steps []schemas.StepRecord
	err   error
}

func (r *memoryRecorder) RecordRun(_ context.Context, run schemas.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return r.err
}

func (r *memoryRecorder) RecordStep(_ context.Context, step schemas.StepRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, step)
	return r.err
}
