// internal/action/encode.go
package action

import (
	jsoniter "github.com/json-iterator/go"
)

// ToolName is the single function advertised to the model.
const ToolName = "computer_use"

// Sorted map keys keep the serialized history stable across runs. URLs and
// typed text are written without HTML escaping.
var canonicalJSON = jsoniter.Config{SortMapKeys: true, EscapeHTML: false}.Froze()

// Arguments returns the canonical payload for a, the inverse of Decode for
// well-formed actions.
func Arguments(a Action) map[string]any {
	args := map[string]any{"action": string(a.Kind())}
	switch v := a.(type) {
	case Move:
		putPoint(args, v.Point)
	case Click:
		putPoint(args, v.Point)
	case Drag:
		putPoint(args, v.To)
	case TypeText:
		args["text"] = v.Text
	case KeyPress:
		keys := make([]any, len(v.Keys))
		for i, k := range v.Keys {
			keys[i] = k
		}
		args["keys"] = keys
	case Scroll:
		args["pixels"] = v.Pixels
	case HScroll:
		args["pixels"] = v.Pixels
	case Navigate:
		args["url"] = v.URL
	case Wait:
		args["time"] = v.Duration.Seconds()
	case Terminate:
		args["status"] = string(v.Status)
	case Unknown:
		args["action"] = v.Name
	}
	return args
}

func putPoint(args map[string]any, p *Point) {
	if p != nil {
		args["coordinate"] = []any{p.X, p.Y}
	}
}

// ToolCall renders a as the tagged block the model is instructed to emit, for
// replaying the model's own choice back into the conversation.
func ToolCall(a Action) string {
	call := struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}{Name: ToolName, Arguments: Arguments(a)}

	body, err := canonicalJSON.Marshal(call)
	if err != nil {
		// Arguments only holds strings, numbers and slices of them.
		body = []byte(`{"name":"` + ToolName + `","arguments":{}}`)
	}
	return "<tool_call>\n" + string(body) + "\n</tool_call>"
}
