// internal/browser/chrome.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/browser/stealth"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// errNoTab is returned by ChromeSurface operations issued before Start.
var errNoTab = errors.New("chrome surface has no open tab")

var modifierBits = map[string]input.Modifier{
	"Alt":     input.ModifierAlt,
	"Control": input.ModifierCtrl,
	"Meta":    input.ModifierMeta,
	"Shift":   input.ModifierShift,
}

// ChromeSurface implements Surface on a local Chrome instance driven over the
// DevTools protocol.
type ChromeSurface struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu sync.Mutex

	// allocCtx owns the browser process; tabCtx carries the CDP target of the
	// single page every operation runs against.
	allocCtx    context.Context
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	// Last dispatched pointer position, in device pixels.
	pointerX, pointerY float64
}

var _ Surface = (*ChromeSurface)(nil)

// NewChromeSurface returns an unstarted surface.
func NewChromeSurface(cfg config.BrowserConfig, logger *zap.Logger) *ChromeSurface {
	return &ChromeSurface{
		cfg:    cfg,
		logger: logger.Named("chrome"),
	}
}

// buildAllocatorOptions assembles launch flags: chromedp defaults with the
// automation banner removed, the configured identity and window size, and any
// extra flags from configuration.
func (s *ChromeSurface) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", s.cfg.Headless),
		chromedp.WindowSize(s.cfg.ViewportWidth, s.cfg.ViewportHeight),
		chromedp.UserAgent(s.cfg.UserAgent),
	)

	for _, arg := range s.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(name, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}

	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

// persona describes the identity presented to pages.
func (s *ChromeSurface) persona() stealth.Persona {
	p := stealth.DefaultPersona
	p.UserAgent = s.cfg.UserAgent
	if len(s.cfg.Languages) > 0 {
		p.Languages = s.cfg.Languages
	}
	p.Timezone = s.cfg.Timezone
	return p
}

// Start launches Chrome and sizes the page viewport.
func (s *ChromeSurface) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tabCtx != nil {
		return nil
	}

	// The browser must outlive ctx; it is torn down by Stop.
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), s.buildAllocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(s.logger.Sugar().Debugf),
		chromedp.WithErrorf(s.logger.Sugar().Warnf),
	)

	// The first Run on a fresh context launches the browser process.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	s.allocCtx, s.allocCancel = allocCtx, allocCancel
	s.tabCtx, s.tabCancel = tabCtx, tabCancel

	viewport := chromedp.EmulateViewport(int64(s.cfg.ViewportWidth), int64(s.cfg.ViewportHeight))
	if err := s.runLocked(ctx, viewport); err != nil {
		s.stopLocked()
		return fmt.Errorf("failed to set viewport: %w", err)
	}

	if s.cfg.Stealth {
		if err := s.runLocked(ctx, stealth.Apply(s.persona(), s.logger)); err != nil {
			s.stopLocked()
			return fmt.Errorf("failed to apply stealth persona: %w", err)
		}
	}

	s.logger.Info("Browser launched.",
		zap.Bool("headless", s.cfg.Headless),
		zap.Int("viewport_width", s.cfg.ViewportWidth),
		zap.Int("viewport_height", s.cfg.ViewportHeight))
	return nil
}

// Stop closes the page, then the browser, then the allocator.
func (s *ChromeSurface) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *ChromeSurface) stopLocked() error {
	if s.tabCtx == nil {
		return nil
	}

	// Cancel closes the target and, for the first tab, the browser itself.
	err := chromedp.Cancel(s.tabCtx)
	s.tabCancel()
	s.allocCancel()

	s.tabCtx, s.tabCancel = nil, nil
	s.allocCtx, s.allocCancel = nil, nil
	s.pointerX, s.pointerY = 0, 0

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	return nil
}

// run executes chromedp actions against the tab, bounded by ctx.
func (s *ChromeSurface) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLocked(ctx, actions...)
}

func (s *ChromeSurface) runLocked(ctx context.Context, actions ...chromedp.Action) error {
	if s.tabCtx == nil {
		return errNoTab
	}
	runCtx, cancel := CombineContext(s.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Screenshot captures the viewport as JPEG at the configured quality.
func (s *ChromeSurface) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(s.cfg.ScreenshotQuality)).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *ChromeSurface) MoveTo(ctx context.Context, x, y float64) error {
	if err := s.run(ctx, chromedp.MouseEvent(input.MouseMoved, x, y)); err != nil {
		return fmt.Errorf("failed to move pointer: %w", err)
	}
	s.setPointer(x, y)
	return nil
}

// ClickAt moves to (x, y) and issues count press/release pairs.
func (s *ChromeSurface) ClickAt(ctx context.Context, x, y float64, button action.Button, count int) error {
	if err := s.run(ctx, mouseActions(clickEvents(x, y, button, count))...); err != nil {
		return fmt.Errorf("failed to click %s: %w", button, err)
	}
	s.setPointer(x, y)
	return nil
}

// DragTo holds the left button from the current pointer position to (x, y).
func (s *ChromeSurface) DragTo(ctx context.Context, x, y float64, steps int) error {
	fromX, fromY := s.pointer()
	if err := s.run(ctx, mouseActions(dragEvents(fromX, fromY, x, y, steps))...); err != nil {
		return fmt.Errorf("failed to drag: %w", err)
	}
	s.setPointer(x, y)
	return nil
}

// TypeText synthesizes key events for every rune of text.
func (s *ChromeSurface) TypeText(ctx context.Context, text string) error {
	if err := s.run(ctx, chromedp.KeyEvent(text)); err != nil {
		return fmt.Errorf("failed to type text: %w", err)
	}
	return nil
}

// PressKey presses a canonical key or chord. A name with no key event
// encoding wraps ErrUnknownKey and dispatches nothing.
func (s *ChromeSurface) PressKey(ctx context.Context, key string) error {
	events, err := keyEvents(key)
	if err != nil {
		return err
	}
	actions := make([]chromedp.Action, len(events))
	for i, ev := range events {
		actions[i] = ev
	}
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to press %q: %w", key, err)
	}
	return nil
}

// WheelScroll dispatches a wheel event at the last pointer position.
func (s *ChromeSurface) WheelScroll(ctx context.Context, dx, dy float64) error {
	x, y := s.pointer()
	if err := s.run(ctx, wheelEvent(x, y, dx, dy)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

// buttonMask is the pressed-buttons bitfield CDP expects alongside button.
func buttonMask(b input.MouseButton) int64 {
	switch b {
	case input.Left:
		return 1
	case input.Right:
		return 2
	case input.Middle:
		return 4
	}
	return 0
}

// clickEvents moves to (x, y), then presses and releases count times with
// an increasing click count, as a real double or triple click does.
func clickEvents(x, y float64, button action.Button, count int) []*input.DispatchMouseEventParams {
	btn := input.MouseButton(button)
	events := []*input.DispatchMouseEventParams{input.DispatchMouseEvent(input.MouseMoved, x, y)}
	for i := 1; i <= count; i++ {
		events = append(events,
			input.DispatchMouseEvent(input.MousePressed, x, y).
				WithButton(btn).WithButtons(buttonMask(btn)).WithClickCount(int64(i)),
			input.DispatchMouseEvent(input.MouseReleased, x, y).
				WithButton(btn).WithClickCount(int64(i)),
		)
	}
	return events
}

// dragEvents presses the left button at the start point, moves through steps
// evenly spaced points ending on the target and releases there.
func dragEvents(fromX, fromY, toX, toY float64, steps int) []*input.DispatchMouseEventParams {
	if steps < 1 {
		steps = 1
	}
	events := []*input.DispatchMouseEventParams{
		input.DispatchMouseEvent(input.MousePressed, fromX, fromY).
			WithButton(input.Left).WithButtons(1).WithClickCount(1),
	}
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		events = append(events,
			input.DispatchMouseEvent(input.MouseMoved, fromX+(toX-fromX)*t, fromY+(toY-fromY)*t).
				WithButton(input.Left).WithButtons(1))
	}
	return append(events,
		input.DispatchMouseEvent(input.MouseReleased, toX, toY).
			WithButton(input.Left).WithClickCount(1))
}

func wheelEvent(x, y, dx, dy float64) *input.DispatchMouseEventParams {
	return input.DispatchMouseEvent(input.MouseWheel, x, y).WithDeltaX(dx).WithDeltaY(dy)
}

func mouseActions(events []*input.DispatchMouseEventParams) []chromedp.Action {
	actions := make([]chromedp.Action, len(events))
	for i, ev := range events {
		actions[i] = ev
	}
	return actions
}

// keyEvents encodes a key or chord. Modifiers are pressed in order, set on
// the final key's events and released in reverse. A chord with Control, Alt
// or Meta is a shortcut, so its final key inserts no text.
func keyEvents(key string) ([]*input.DispatchKeyEventParams, error) {
	parts := SplitChord(key)
	if len(parts) == 0 {
		return nil, fmt.Errorf("%w: empty key %q", ErrUnknownKey, key)
	}

	var (
		mods    input.Modifier
		holdMod []rune
	)
	for _, p := range parts[:len(parts)-1] {
		bit, ok := modifierBits[p]
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a modifier in %q", ErrUnknownKey, p, key)
		}
		r, _ := resolveKey(p)
		mods |= bit
		holdMod = append(holdMod, r)
	}

	final, ok := resolveKey(parts[len(parts)-1])
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, parts[len(parts)-1])
	}

	var events []*input.DispatchKeyEventParams
	for _, r := range holdMod {
		events = append(events, kb.Encode(r)[0])
	}
	for _, ev := range kb.Encode(final) {
		if ev.Type == input.KeyChar && mods&^input.ModifierShift != 0 {
			continue
		}
		ev.Modifiers |= mods
		events = append(events, ev)
	}
	for i := len(holdMod) - 1; i >= 0; i-- {
		up := kb.Encode(holdMod[i])
		events = append(events, up[len(up)-1])
	}
	return events, nil
}

// GotoURL navigates the tab and waits for the load event.
func (s *ChromeSurface) GotoURL(ctx context.Context, url string) error {
	return s.run(ctx, chromedp.Navigate(url))
}

func (s *ChromeSurface) setPointer(x, y float64) {
	s.mu.Lock()
	s.pointerX, s.pointerY = x, y
	s.mu.Unlock()
}

func (s *ChromeSurface) pointer() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pointerX, s.pointerY
}
