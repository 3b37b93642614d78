package schemas

import (
	"context"
	"time"
)

// RunState is the lifecycle state of one agent run.
type RunState string

const (
	RunIdle      RunState = "idle"
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunCancelled RunState = "cancelled"
	RunFailed    RunState = "failed"
)

// Terminal reports whether no further transitions are possible from s.
func (s RunState) Terminal() bool {
	return s == RunCompleted || s == RunCancelled || s == RunFailed
}

// StepOutcome summarizes what happened in a single loop iteration.
type StepOutcome string

const (
	OutcomeExecuted   StepOutcome = "executed"   // An action was dispatched to the browser.
	OutcomeNoAction   StepOutcome = "no_action"  // The model output contained no usable action.
	OutcomeRecovered  StepOutcome = "recovered"  // Dispatch failed in a way the model can react to.
	OutcomeTerminated StepOutcome = "terminated" // The model asked to stop.
	OutcomeFailed     StepOutcome = "failed"     // Dispatch or transport failed and the run ended.
	OutcomeCancelled  StepOutcome = "cancelled"  // The operator cancelled before the action ran.
)

// RunRecord is the persisted summary of an agent run.
type RunRecord struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	Model       string    `json:"model"`
	State       RunState  `json:"state"`
	Status      string    `json:"status,omitempty"` // Terminate status reported by the model.
	Steps       int       `json:"steps"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// StepRecord is the persisted trace of one loop iteration.
type StepRecord struct {
	RunID        string         `json:"run_id"`
	Step         int            `json:"step"`
	Answer       string         `json:"answer"`
	ReasoningLen int            `json:"reasoning_len"`
	Action       string         `json:"action,omitempty"`
	Arguments    map[string]any `json:"arguments,omitempty"`
	Outcome      StepOutcome    `json:"outcome"`
	Error        string         `json:"error,omitempty"`
	Duration     time.Duration  `json:"duration"`
	At           time.Time      `json:"at"`
}

// RunRecorder receives run and step records as an agent run progresses.
// Implementations must be safe to call from the goroutine driving the run.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
	RecordStep(ctx context.Context, step StepRecord) error
}
