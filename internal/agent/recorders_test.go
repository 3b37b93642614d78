package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

func TestMultiRecorder(t *testing.T) {
	ok := &memoryRecorder{}
	failing := &memoryRecorder{err: errors.New("disk full")}
	multi := MultiRecorder{failing, ok}

	err := multi.RecordRun(context.Background(), schemas.RunRecord{ID: "run-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, ok.runs, 1, "later recorders still receive the record")

	err = multi.RecordStep(context.Background(), schemas.StepRecord{RunID: "run-1", Step: 1})
	require.Error(t, err)
	assert.Len(t, ok.steps, 1)
	assert.Len(t, failing.steps, 1)

	assert.NoError(t, MultiRecorder(nil).RecordRun(context.Background(), schemas.RunRecord{}))
}
