package trace

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// Recorder opens one Writer per run on the first record it sees for that
// run and closes it once the run reaches a terminal state.
type Recorder struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	writers map[string]*Writer
	last    string
}

var _ schemas.RunRecorder = (*Recorder)(nil)

// NewRecorder writes traces under dir.
func NewRecorder(dir string, logger *zap.Logger) *Recorder {
	return &Recorder{dir: dir, logger: logger, writers: make(map[string]*Writer)}
}

// RecordRun implements schemas.RunRecorder.
func (r *Recorder) RecordRun(ctx context.Context, run schemas.RunRecord) error {
	w, err := r.writer(run.ID)
	if err != nil {
		return err
	}
	if err := w.RecordRun(ctx, run); err != nil {
		return err
	}
	if !run.State.Terminal() {
		return nil
	}

	r.mu.Lock()
	delete(r.writers, run.ID)
	r.mu.Unlock()
	return w.Close()
}

// RecordStep implements schemas.RunRecorder.
func (r *Recorder) RecordStep(ctx context.Context, step schemas.StepRecord) error {
	w, err := r.writer(step.RunID)
	if err != nil {
		return err
	}
	return w.RecordStep(ctx, step)
}

// LastPath returns the trace file of the most recently opened run.
func (r *Recorder) LastPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == "" {
		return ""
	}
	return Path(r.dir, r.last)
}

// Close closes the writers of runs that never reached a terminal state.
func (r *Recorder) Close() error {
	r.mu.Lock()
	writers := r.writers
	r.writers = make(map[string]*Writer)
	r.mu.Unlock()

	var errs []error
	for _, w := range writers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}

func (r *Recorder) writer(runID string) (*Writer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.writers[runID]; ok {
		return w, nil
	}
	w, err := NewWriter(r.dir, runID, r.logger)
	if err != nil {
		return nil, err
	}
	r.writers[runID] = w
	r.last = runID
	return w, nil
}
