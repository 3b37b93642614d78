// internal/browser/surface.go
package browser

import (
	"context"

	"github.com/xkilldash9x/webpilot/internal/action"
)

// Surface is the automation capability the executor drives. Coordinates are
// device pixels in the page viewport. Implementations are not required to be
// safe for concurrent use; the Executor serializes every call.
type Surface interface {
	// Start launches the browser and opens a page sized to the configured viewport.
	Start(ctx context.Context) error
	// Stop releases the page, the browser and the engine handle, in that order.
	Stop(ctx context.Context) error
	// Screenshot returns the current page encoded as JPEG.
	Screenshot(ctx context.Context) ([]byte, error)

	MoveTo(ctx context.Context, x, y float64) error
	ClickAt(ctx context.Context, x, y float64, button action.Button, count int) error
	// DragTo presses at the current pointer position, moves to (x, y) over
	// steps intermediate events and releases.
	DragTo(ctx context.Context, x, y float64, steps int) error
	// TypeText delivers text to whichever element holds focus.
	TypeText(ctx context.Context, text string) error
	// PressKey presses one canonical key name or "+" joined chord.
	PressKey(ctx context.Context, key string) error
	// WheelScroll dispatches a wheel event at the current pointer position.
	WheelScroll(ctx context.Context, dx, dy float64) error
	GotoURL(ctx context.Context, url string) error
}
