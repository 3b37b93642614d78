// internal/action/decode.go
package action

import (
	"math"
	"strconv"
	"strings"
	"time"

	json "github.com/json-iterator/go"
)

// aliases maps alternative action names emitted by some models onto the
// canonical vocabulary.
var aliases = map[string]Kind{
	"mouse_move": KindMove,
	"type":       KindTypeText,
	"key":        KindKeyPress,
}

// Decode converts an action payload (the "arguments" object of a tool call)
// into an Action. It never fails: missing or malformed fields produce a
// variant that executes as a no-op, and unrecognized names produce Unknown.
func Decode(payload map[string]any) Action {
	name := strings.ToLower(strings.TrimSpace(stringField(payload, "action")))
	kind := Kind(name)
	if alias, ok := aliases[name]; ok {
		kind = alias
	}

	switch kind {
	case KindMove:
		return Move{Point: pointField(payload, "coordinate")}
	case KindLeftClick:
		return Click{Point: pointField(payload, "coordinate"), Button: ButtonLeft, Count: 1}
	case KindDoubleClick:
		return Click{Point: pointField(payload, "coordinate"), Button: ButtonLeft, Count: 2}
	case KindTripleClick:
		return Click{Point: pointField(payload, "coordinate"), Button: ButtonLeft, Count: 3}
	case KindRightClick:
		return Click{Point: pointField(payload, "coordinate"), Button: ButtonRight, Count: 1}
	case KindMiddleClick:
		return Click{Point: pointField(payload, "coordinate"), Button: ButtonMiddle, Count: 1}
	case KindLeftClickDrag:
		return Drag{To: pointField(payload, "coordinate")}
	case KindTypeText:
		return TypeText{Text: stringField(payload, "text")}
	case KindKeyPress:
		return KeyPress{Keys: keysField(payload, "keys")}
	case KindScroll:
		pixels, _ := intField(payload, "pixels")
		return Scroll{Pixels: pixels}
	case KindHScroll:
		pixels, _ := intField(payload, "pixels")
		return HScroll{Pixels: pixels}
	case KindNavigate:
		return Navigate{URL: strings.TrimSpace(stringField(payload, "url"))}
	case KindWait:
		return Wait{Duration: waitField(payload, "time")}
	case KindTerminate:
		status := StatusSuccess
		if strings.EqualFold(strings.TrimSpace(stringField(payload, "status")), string(StatusFailure)) {
			status = StatusFailure
		}
		return Terminate{Status: status}
	default:
		return Unknown{Name: name}
	}
}

func stringField(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// number accepts JSON numbers and numeric strings.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func intField(payload map[string]any, key string) (int, bool) {
	f, ok := number(payload[key])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Round(f)), true
}

// pointField reads an [x, y] pair. Anything shorter, or with non-numeric
// members, yields nil.
func pointField(payload map[string]any, key string) *Point {
	raw, ok := payload[key].([]any)
	if !ok || len(raw) < 2 {
		return nil
	}
	x, okX := number(raw[0])
	y, okY := number(raw[1])
	if !okX || !okY || math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return nil
	}
	return &Point{X: int(math.Round(x)), Y: int(math.Round(y))}
}

// keysField accepts a single key name or a list of key names.
func keysField(payload map[string]any, key string) []string {
	switch v := payload[key].(type) {
	case string:
		if k := strings.TrimSpace(v); k != "" {
			return []string{k}
		}
	case []any:
		var keys []string
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				keys = append(keys, strings.TrimSpace(s))
			}
		}
		return keys
	}
	return nil
}

// waitField reads a duration in seconds. Missing or malformed values use
// DefaultWait and negative values become zero.
func waitField(payload map[string]any, key string) time.Duration {
	f, ok := number(payload[key])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return DefaultWait
	}
	if f < 0 {
		return 0
	}
	if f > math.MaxInt64/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f * float64(time.Second))
}
