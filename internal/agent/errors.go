// internal/agent/errors.go
package agent

import "errors"

var (
	// ErrStepLimit ends a run that used agent.max_steps iterations without a
	// terminate action.
	ErrStepLimit = errors.New("step limit reached without terminate")
	// ErrTransport wraps a failure to obtain a model response: connection
	// errors, non-success status codes and broken streams.
	ErrTransport = errors.New("model transport failed")
	// ErrAlreadyRunning is returned by Run while another run is in progress on
	// the same loop.
	ErrAlreadyRunning = errors.New("agent loop is already running")
)
