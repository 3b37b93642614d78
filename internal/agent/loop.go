// internal/agent/loop.go
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

// Allows for mocking in tests.
var uuidNewString = uuid.NewString

// Executor is the browser capability driven by the loop. *browser.Executor
// implements it.
type Executor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Screenshot(ctx context.Context) ([]byte, error)
	Execute(ctx context.Context, a action.Action) error
}

var _ Executor = (*browser.Executor)(nil)

// Result describes how a run ended.
type Result struct {
	RunID  string
	State  schemas.RunState
	Status action.Status // Reported by the terminate action; set when State is completed.
	Steps  int
	Err    error // Set when State is failed.
}

// Loop is the perception-action loop: screenshot, model round, action,
// repeated until the model terminates, the operator cancels or a step fails.
// One loop drives one browser session and runs one instruction at a time.
type Loop struct {
	executor  Executor
	generator ActionGenerator
	cfg       config.AgentConfig
	logger    *zap.Logger
	observer  Observer
	recorder  schemas.RunRecorder
	metrics   *observability.Metrics
	limiter   *rate.Limiter
	model     string

	mu    sync.Mutex
	state schemas.RunState
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithObserver streams model events and step records to o.
func WithObserver(o Observer) LoopOption {
	return func(l *Loop) { l.observer = o }
}

// WithRecorders persists run and step records. Recorder failures are logged
// and never end a run.
func WithRecorders(recorders ...schemas.RunRecorder) LoopOption {
	return func(l *Loop) { l.recorder = MultiRecorder(recorders) }
}

// WithLoopMetrics counts finished runs by state.
func WithLoopMetrics(m *observability.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

// WithModelName labels run records with the model in use.
func WithModelName(name string) LoopOption {
	return func(l *Loop) { l.model = name }
}

// NewLoop returns an idle loop. A positive cfg.StepInterval spaces the start
// of consecutive iterations at least that far apart.
func NewLoop(executor Executor, generator ActionGenerator, cfg config.AgentConfig, logger *zap.Logger, opts ...LoopOption) *Loop {
	l := &Loop{
		executor:  executor,
		generator: generator,
		cfg:       cfg,
		logger:    logger.Named("agent.loop"),
		observer:  NopObserver{},
		recorder:  MultiRecorder(nil),
		state:     schemas.RunIdle,
	}
	if cfg.StepInterval > 0 {
		l.limiter = rate.NewLimiter(rate.Every(cfg.StepInterval), 1)
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the state of the current or most recent run.
func (l *Loop) State() schemas.RunState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Run carries out instruction in a fresh browser session and returns when
// the run reaches a terminal state. The session is stopped on every exit
// path.
//
// Cancelling ctx is checked between model events and before each action; an
// action already dispatched always completes. Cancellation yields a result in
// the cancelled state and a nil error. A failed run returns its cause as the
// error as well as in Result.Err.
func (l *Loop) Run(ctx context.Context, instruction string) (Result, error) {
	if !l.begin() {
		return Result{State: schemas.RunRunning}, ErrAlreadyRunning
	}

	run := schemas.RunRecord{
		ID:          uuidNewString(),
		Instruction: instruction,
		Model:       l.model,
		State:       schemas.RunRunning,
		StartedAt:   time.Now().UTC(),
	}
	logger := l.logger.With(zap.String("run_id", run.ID))
	logger.Info("Run started.", zap.String("instruction", instruction))
	l.recordRun(ctx, logger, run)

	res := l.run(ctx, logger, run.ID, instruction)

	run.State = res.State
	run.Steps = res.Steps
	run.Status = string(res.Status)
	run.FinishedAt = time.Now().UTC()
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	l.recordRun(ctx, logger, run)
	l.metrics.RecordRun(string(res.State))
	l.setState(res.State)

	switch res.State {
	case schemas.RunFailed:
		logger.Error("Run failed.", zap.Int("steps", res.Steps), zap.Error(res.Err))
		return res, res.Err
	case schemas.RunCancelled:
		logger.Info("Run cancelled.", zap.Int("steps", res.Steps))
	default:
		logger.Info("Run completed.", zap.Int("steps", res.Steps), zap.String("status", string(res.Status)))
	}
	return res, nil
}

func (l *Loop) run(ctx context.Context, logger *zap.Logger, runID, instruction string) Result {
	res := Result{RunID: runID}
	if ctx.Err() != nil {
		res.State = schemas.RunCancelled
		return res
	}

	if err := l.executor.Start(ctx); err != nil {
		if ctx.Err() != nil {
			res.State = schemas.RunCancelled
			return res
		}
		res.State = schemas.RunFailed
		res.Err = fmt.Errorf("failed to start browser session: %w", err)
		return res
	}
	defer func() {
		if err := l.executor.Stop(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("Failed to stop browser session cleanly.", zap.Error(err))
		}
	}()

	conv := NewConversation(instruction, l.cfg)
	for step := 1; ; step++ {
		if ctx.Err() != nil {
			res.State = schemas.RunCancelled
			return res
		}
		if step > l.cfg.MaxSteps {
			res.State = schemas.RunFailed
			res.Err = fmt.Errorf("%w (%d steps)", ErrStepLimit, l.cfg.MaxSteps)
			return res
		}
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				// Either cancelled, or the deadline falls before the next slot.
				res.State = schemas.RunCancelled
				return res
			}
		}

		res.Steps = step
		state, status, err := l.step(ctx, logger.With(zap.Int("step", step)), runID, step, conv)
		switch state {
		case schemas.RunRunning:
			continue
		case schemas.RunCompleted:
			res.Status = status
		case schemas.RunFailed:
			res.Err = err
		}
		res.State = state
		return res
	}
}

// step runs one iteration. It returns RunRunning when the loop should
// continue, otherwise the terminal state the run ends in.
func (l *Loop) step(ctx context.Context, logger *zap.Logger, runID string, step int, conv *Conversation) (schemas.RunState, action.Status, error) {
	started := time.Now()
	rec := schemas.StepRecord{RunID: runID, Step: step, At: started.UTC()}
	finish := func(outcome schemas.StepOutcome, err error) {
		rec.Outcome = outcome
		if err != nil {
			rec.Error = err.Error()
		}
		rec.Duration = time.Since(started)
		l.observer.OnStep(rec)
		l.recordStep(ctx, logger, rec)
	}

	shot, err := l.executor.Screenshot(ctx)
	if err != nil {
		err = fmt.Errorf("failed to capture screenshot: %w", err)
		finish(schemas.OutcomeFailed, err)
		return schemas.RunFailed, "", err
	}
	conv.AddObservation(shot)

	var (
		answer       strings.Builder
		reasoningLen int
		picked       action.Action
		streamErr    error
	)
	events := l.generator.Generate(ctx, conv.Messages())
consume:
	for {
		select {
		case <-ctx.Done():
			break consume
		case ev, ok := <-events:
			if !ok {
				break consume
			}
			l.observer.OnModelEvent(step, ev)
			switch ev.Kind {
			case EventReasoning:
				reasoningLen += len(ev.Text)
			case EventAnswer:
				answer.WriteString(ev.Text)
			case EventAction:
				picked = ev.Action
			case EventDiagnostic:
				logger.Warn("Model response contained no action.", zap.String("diagnostic", ev.Text))
			case EventError:
				streamErr = ev.Err
				if streamErr == nil {
					streamErr = fmt.Errorf("%w: %s", ErrTransport, ev.Text)
				}
			}
		}
	}
	rec.Answer = answer.String()
	rec.ReasoningLen = reasoningLen

	if ctx.Err() != nil {
		finish(schemas.OutcomeCancelled, nil)
		return schemas.RunCancelled, "", nil
	}
	if streamErr != nil {
		finish(schemas.OutcomeFailed, streamErr)
		return schemas.RunFailed, "", streamErr
	}
	if picked == nil {
		conv.AddResponse(rec.Answer)
		finish(schemas.OutcomeNoAction, nil)
		return schemas.RunRunning, "", nil
	}

	rec.Action = string(picked.Kind())
	rec.Arguments = action.Arguments(picked)
	conv.AddAction(picked)

	if t, ok := picked.(action.Terminate); ok {
		logger.Info("Model requested termination.", zap.String("status", string(t.Status)))
		finish(schemas.OutcomeTerminated, nil)
		return schemas.RunCompleted, t.Status, nil
	}

	logger.Info("Executing action.", zap.String("action", rec.Action))
	if err := l.executor.Execute(ctx, picked); err != nil {
		if errors.Is(err, browser.ErrNavigation) {
			logger.Warn("Navigation failed; reporting to the model.", zap.Error(err))
			conv.AddNote(fmt.Sprintf("The last action failed: %v. Choose another action.", err))
			finish(schemas.OutcomeRecovered, err)
			return schemas.RunRunning, "", nil
		}
		err = fmt.Errorf("failed to execute %s: %w", picked.Kind(), err)
		finish(schemas.OutcomeFailed, err)
		return schemas.RunFailed, "", err
	}
	finish(schemas.OutcomeExecuted, nil)
	return schemas.RunRunning, "", nil
}

func (l *Loop) begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == schemas.RunRunning {
		return false
	}
	l.state = schemas.RunRunning
	return true
}

func (l *Loop) setState(s schemas.RunState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
}

// Records are written even after cancellation so the final state is kept.
func (l *Loop) recordRun(ctx context.Context, logger *zap.Logger, run schemas.RunRecord) {
	if err := l.recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("Failed to record run.", zap.Error(err))
	}
}

func (l *Loop) recordStep(ctx context.Context, logger *zap.Logger, rec schemas.StepRecord) {
	if err := l.recorder.RecordStep(context.WithoutCancel(ctx), rec); err != nil {
		logger.Warn("Failed to record step.", zap.Error(err))
	}
}
