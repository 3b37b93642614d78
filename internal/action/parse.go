// internal/action/parse.go
package action

import (
	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/internal/llmutil"
)

// ParsePayload recovers the action payload from raw model output. Candidates
// are tried in priority order (see llmutil.Candidates) and the first one that
// decodes to an accepted shape wins:
//
//   - {"name": ..., "arguments": {...}} yields the arguments object.
//   - any object with an "action" field yields the object itself.
//
// Candidates that fail to decode or have another shape are skipped.
func ParsePayload(text string) (map[string]any, bool) {
	for _, candidate := range llmutil.Candidates(text) {
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err != nil || obj == nil {
			continue
		}

		_, hasName := obj["name"]
		if args, hasArgs := obj["arguments"]; hasName && hasArgs {
			if m, ok := args.(map[string]any); ok {
				return m, true
			}
			// Some models double-encode arguments as a JSON string.
			if s, ok := args.(string); ok {
				var inner map[string]any
				if err := json.Unmarshal([]byte(s), &inner); err == nil && inner != nil {
					return inner, true
				}
			}
			continue
		}

		if _, ok := obj["action"]; ok {
			return obj, true
		}
	}
	return nil, false
}

// Parse recovers a single Action from raw model output.
func Parse(text string) (Action, bool) {
	payload, ok := ParsePayload(text)
	if !ok {
		return nil, false
	}
	return Decode(payload), true
}
