package cmd

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/trace"
)

// writeTrace records a finished two step run under dir.
func writeTrace(t *testing.T, dir string) string {
	t.Helper()
	w, err := trace.NewWriter(dir, "run-7", zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	run := schemas.RunRecord{ID: "run-7", Instruction: "find the weather", Model: "qwen3-vl:4b", State: schemas.RunRunning}
	require.NoError(t, w.RecordRun(ctx, run))
	require.NoError(t, w.RecordStep(ctx, schemas.StepRecord{RunID: "run-7", Step: 1, Action: "navigate", Outcome: schemas.OutcomeExecuted, Duration: 2 * time.Second}))
	require.NoError(t, w.RecordStep(ctx, schemas.StepRecord{RunID: "run-7", Step: 2, Action: "terminate", Outcome: schemas.OutcomeTerminated}))
	run.State, run.Status, run.Steps = schemas.RunCompleted, "success", 2
	require.NoError(t, w.RecordRun(ctx, run))
	require.NoError(t, w.Close())
	return w.Path()
}

func TestTraceShow(t *testing.T) {
	t.Run("by run id from the trace directory", func(t *testing.T) {
		dir := isolateEnv(t)
		writeTrace(t, filepath.Join(dir, "traces"))

		out, err := executeCommand(t, nil, nil, "trace", "show", "run-7")
		require.NoError(t, err)
		assert.Contains(t, out, "Instruction: find the weather")
		assert.Contains(t, out, "State:       completed")
		assert.Contains(t, out, "Status:      success")
		assert.Regexp(t, `1\s+navigate\s+executed\s+2s`, out)
		assert.Regexp(t, `2\s+terminate\s+terminated`, out)
	})

	t.Run("by path as JSON lines", func(t *testing.T) {
		isolateEnv(t)
		path := writeTrace(t, t.TempDir())

		out, err := executeCommand(t, nil, nil, "trace", "show", "--json", path)
		require.NoError(t, err)

		var lines []string
		scanner := bufio.NewScanner(strings.NewReader(out))
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		require.Len(t, lines, 4)
		assert.Contains(t, lines[0], `"type":"run"`)
		assert.Contains(t, lines[1], `"type":"step"`)
	})

	t.Run("missing trace", func(t *testing.T) {
		isolateEnv(t)
		_, err := executeCommand(t, nil, nil, "trace", "show", "absent")
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestResolveTracePath(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "custom.bin")
	require.NoError(t, os.WriteFile(existing, nil, 0o644))

	assert.Equal(t, existing, resolveTracePath(existing, "/traces"))
	assert.Equal(t, "run.jsonl.br", resolveTracePath("run.jsonl.br", "/traces"))
	assert.Equal(t, filepath.Join("other", "x"), resolveTracePath(filepath.Join("other", "x"), "/traces"))
	assert.Equal(t, filepath.Join("/traces", "abc"+trace.FileExt), resolveTracePath("abc", "/traces"))
}
