// internal/agent/recorders.go
package agent

import (
	"context"
	"errors"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// MultiRecorder forwards every record to each recorder in order. All
// recorders are called even when one fails; the failures are joined.
type MultiRecorder []schemas.RunRecorder

var _ schemas.RunRecorder = MultiRecorder(nil)

func (m MultiRecorder) RecordRun(ctx context.Context, run schemas.RunRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordRun(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiRecorder) RecordStep(ctx context.Context, step schemas.StepRecord) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordStep(ctx, step); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
