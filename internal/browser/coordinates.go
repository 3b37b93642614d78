// internal/browser/coordinates.go
package browser

import "github.com/xkilldash9x/webpilot/internal/action"

// ToDevice maps a point in the normalized grid onto viewport pixels. Inputs
// outside [0, 1000] are mapped linearly rather than clamped, so an off-screen
// request from the model stays off-screen.
func ToDevice(x, y, viewportWidth, viewportHeight int) (float64, float64) {
	const space = float64(action.CoordinateSpace)
	return float64(x) / space * float64(viewportWidth), float64(y) / space * float64(viewportHeight)
}
