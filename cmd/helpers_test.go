// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// isolateEnv points every filesystem setting at a temporary directory and
// clears provider secrets inherited from the developer's shell.
func isolateEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("WEBPILOT_TRACE_DIR", filepath.Join(dir, "traces"))
	t.Setenv("WEBPILOT_LOGGER_LOG_FILE", filepath.Join(dir, "webpilot.log"))
	t.Setenv("WEBPILOT_LLM_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("WEBPILOT_DATABASE_URL", "")
	return dir
}

// createTempConfig writes content to a config file in a temporary directory.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// executeCommand runs a fresh command tree built from the given fakes.
func executeCommand(t *testing.T, factory runFactory, provider storeProvider, args ...string) (string, error) {
	t.Helper()
	if factory == nil {
		factory = func(context.Context, *config.Config, agent.Observer, *zap.Logger) (*runComponents, error) {
			t.Fatal("run factory must not be called")
			return nil, nil
		}
	}
	if provider == nil {
		provider = &fakeStoreProvider{}
	}

	root := newRootCommand(factory, provider)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// -- Fake runner --

type fakeRunner struct {
	mu           sync.Mutex
	instructions []string
	run          func(ctx context.Context, instruction string) (agent.Result, error)
}

func (r *fakeRunner) Run(ctx context.Context, instruction string) (agent.Result, error) {
	r.mu.Lock()
	r.instructions = append(r.instructions, instruction)
	r.mu.Unlock()
	return r.run(ctx, instruction)
}

func (r *fakeRunner) Instructions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.instructions...)
}

// completes returns a runner whose runs complete with status.
func completes(status action.Status) *fakeRunner {
	return &fakeRunner{run: func(context.Context, string) (agent.Result, error) {
		return agent.Result{RunID: "run-1", State: schemas.RunCompleted, Status: status, Steps: 2}, nil
	}}
}

// -- Fake history store --

type fakeStore struct {
	runs      []schemas.RunRecord
	steps     map[string][]schemas.StepRecord
	err       error
	lastLimit int
}

func (s *fakeStore) ListRuns(_ context.Context, limit int) ([]schemas.RunRecord, error) {
	s.lastLimit = limit
	return s.runs, s.err
}

func (s *fakeStore) ListSteps(_ context.Context, runID string) ([]schemas.StepRecord, error) {
	return s.steps[runID], s.err
}

type fakeStoreProvider struct {
	store     *fakeStore
	err       error
	cleanedUp bool
}

func (p *fakeStoreProvider) Create(context.Context, config.Interface) (historyStore, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	if p.store == nil {
		p.store = &fakeStore{}
	}
	return p.store, func() { p.cleanedUp = true }, nil
}
