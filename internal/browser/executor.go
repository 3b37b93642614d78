// internal/browser/executor.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/observability"
)

var (
	// ErrNotStarted is returned when an action is dispatched outside an active session.
	ErrNotStarted = errors.New("browser session not started")
	// ErrNavigation marks a failed page load. The session stays usable.
	ErrNavigation = errors.New("navigation failed")
)

// SessionState is the lifecycle state of the executor's browser session.
type SessionState string

const (
	SessionUnstarted SessionState = "unstarted"
	SessionActive    SessionState = "active"
	SessionStopped   SessionState = "stopped"
)

// Executor owns one browser session and turns actions into surface calls.
// All methods are safe for concurrent use; surface calls never overlap.
type Executor struct {
	mu      sync.Mutex
	surface Surface
	cfg     config.BrowserConfig
	maxWait time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
	sleep   func(time.Duration)
	state   SessionState
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics records every dispatched action.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithMaxWait bounds the duration of a wait action. Zero disables the bound.
func WithMaxWait(d time.Duration) Option {
	return func(e *Executor) { e.maxWait = d }
}

// WithSleep replaces the function used to serve wait actions.
func WithSleep(fn func(time.Duration)) Option {
	return func(e *Executor) { e.sleep = fn }
}

// NewExecutor returns an executor in the unstarted state.
func NewExecutor(surface Surface, cfg config.BrowserConfig, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		surface: surface,
		cfg:     cfg,
		logger:  logger.Named("browser.executor"),
		sleep:   time.Sleep,
		state:   SessionUnstarted,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current session state.
func (e *Executor) State() SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start launches the session and opens the landing page. It is a no-op on an
// active session; a stopped session can be started again. Failing to reach
// the landing page is logged and otherwise ignored.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == SessionActive {
		return nil
	}
	if err := e.surface.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser session: %w", err)
	}
	e.state = SessionActive

	if e.cfg.LandingURL != "" {
		opCtx, cancel := e.opContext(ctx)
		defer cancel()
		if err := e.surface.GotoURL(opCtx, e.cfg.LandingURL); err != nil {
			e.logger.Warn("Landing page unreachable; continuing.", zap.String("url", e.cfg.LandingURL), zap.Error(err))
		}
	}
	e.logger.Info("Browser session started.")
	return nil
}

// Stop tears the session down. Calling it on an unstarted or stopped session
// is a no-op.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != SessionActive {
		return nil
	}
	e.state = SessionStopped
	if err := e.surface.Stop(Detach(ctx)); err != nil {
		return fmt.Errorf("failed to stop browser session: %w", err)
	}
	e.logger.Info("Browser session stopped.")
	return nil
}

// Screenshot returns the current page as JPEG, or nil without error when no
// session is active.
func (e *Executor) Screenshot(ctx context.Context) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != SessionActive {
		return nil, nil
	}
	opCtx, cancel := e.opContext(ctx)
	defer cancel()
	return e.surface.Screenshot(opCtx)
}

// Execute dispatches a on the active session. Terminate never touches the
// session. Actions with missing fields and keys with no key event encoding
// are skipped without error. Navigation failures wrap ErrNavigation.
//
// The dispatch runs under a context detached from ctx so that cancelling a
// run never interrupts an input sequence midway.
func (e *Executor) Execute(ctx context.Context, a action.Action) error {
	if _, ok := a.(action.Terminate); ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != SessionActive {
		return fmt.Errorf("cannot execute %s: %w", a.Kind(), ErrNotStarted)
	}
	if action.IsNoop(a) {
		e.logger.Debug("Skipping action with missing fields.", zap.String("action", string(a.Kind())))
		e.metrics.RecordAction(string(a.Kind()), "noop")
		return nil
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	err := e.dispatch(opCtx, a)
	result := "ok"
	switch {
	case errors.Is(err, ErrUnknownKey):
		e.logger.Warn("Skipping keys with no key event encoding.", zap.Error(err))
		result, err = "noop", nil
	case err != nil:
		result = "error"
	}
	e.metrics.RecordAction(string(a.Kind()), result)
	return err
}

func (e *Executor) dispatch(ctx context.Context, a action.Action) error {
	switch v := a.(type) {
	case action.Move:
		x, y := e.toDevice(v.Point)
		return e.surface.MoveTo(ctx, x, y)

	case action.Click:
		x, y := e.toDevice(v.Point)
		return e.surface.ClickAt(ctx, x, y, v.Button, v.Count)

	case action.Drag:
		x, y := e.toDevice(v.To)
		return e.surface.DragTo(ctx, x, y, e.cfg.DragSteps)

	case action.TypeText:
		return e.surface.TypeText(ctx, v.Text)

	case action.KeyPress:
		// Unknown keys are skipped; the rest of the sequence still runs.
		var skipped []error
		for _, k := range v.Keys {
			err := e.surface.PressKey(ctx, CanonicalKey(k))
			if errors.Is(err, ErrUnknownKey) {
				skipped = append(skipped, err)
				continue
			}
			if err != nil {
				return err
			}
		}
		return errors.Join(skipped...)

	case action.Scroll:
		// Positive pixels scroll the content down, a negative wheel delta.
		return e.surface.WheelScroll(ctx, 0, -float64(v.Pixels))

	case action.HScroll:
		// Same convention on the horizontal axis.
		return e.surface.WheelScroll(ctx, -float64(v.Pixels), 0)

	case action.Navigate:
		target := NormalizeURL(v.URL)
		if err := e.surface.GotoURL(ctx, target); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrNavigation, target, err)
		}
		return nil

	case action.Wait:
		d := v.Duration
		if e.maxWait > 0 && d > e.maxWait {
			d = e.maxWait
		}
		e.sleep(d)
		return nil

	case action.Terminate, action.Unknown:
		return nil

	default:
		return fmt.Errorf("unsupported action %T", a)
	}
}

func (e *Executor) toDevice(p *action.Point) (float64, float64) {
	return ToDevice(p.X, p.Y, e.cfg.ViewportWidth, e.cfg.ViewportHeight)
}

// opContext bounds a surface call by the configured action timeout without
// inheriting cancellation from ctx.
func (e *Executor) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.ActionTimeout <= 0 {
		return context.WithCancel(Detach(ctx))
	}
	return context.WithTimeout(Detach(ctx), e.cfg.ActionTimeout)
}
