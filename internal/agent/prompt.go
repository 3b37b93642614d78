// internal/agent/prompt.go
package agent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/webpilot/internal/action"
)

// The pixels description must follow Executor's wheel mapping: positive becomes
// a negative wheel delta on both axes. The horizontal sign has no settled
// meaning for models and is a compatibility risk if their habits differ.
const systemPromptTemplate = `You are a helpful assistant that operates a web browser on behalf of the user.

# Tools

You may call one function to assist with the user query.

You are provided with the function signature within <tools></tools> XML tags:
<tools>
{
  "type": "function",
  "function": {
    "name": "%[1]s",
    "description": "Interact with a browser by moving the mouse, clicking, typing, pressing keys, scrolling, navigating or waiting.",
    "parameters": {
      "properties": {
        "action": {
          "description": "The action to perform.",
          "enum": [%[2]s],
          "type": "string"
        },
        "coordinate": {
          "description": "The (x, y) point to act on. Required for move, the click actions and left_click_drag (the drag target). IMPORTANT: Use the %[3]dx%[3]d coordinate system: (0, 0) is the top-left corner and (%[3]d, %[3]d) the bottom-right corner of the screenshot, whatever its real size.",
          "type": "array",
          "items": {"type": "integer"}
        },
        "text": {
          "description": "The text to type into the focused element. Required for action=type_text.",
          "type": "string"
        },
        "keys": {
          "description": "Key names to press in order, for example [\"Enter\"] or [\"Control+A\", \"Delete\"]. Required for action=key_press.",
          "type": "array",
          "items": {"type": "string"}
        },
        "pixels": {
          "description": "Amount to scroll. Positive moves the content down, toward the top of the page; hscroll applies the same sign horizontally. Required for action=scroll and action=hscroll.",
          "type": "integer"
        },
        "url": {
          "description": "The URL to navigate to. Required for action=navigate.",
          "type": "string"
        },
        "time": {
          "description": "Seconds to wait. Used by action=wait.",
          "type": "number"
        },
        "status": {
          "description": "The completion status. Required for action=terminate.",
          "enum": ["success", "failure"],
          "type": "string"
        }
      },
      "required": ["action"],
      "type": "object"
    }
  }
}
</tools>

For each function call, return a json object with function name and arguments within <tool_call></tool_call> XML tags:
<tool_call>
{"name": <function-name>, "arguments": <args-json-object>}
</tool_call>

CRITICAL: You MUST ALWAYS end your response with exactly one <tool_call> block.
- If the task is finished, call %[1]s with action=terminate and status=success.
- If the task cannot be completed, call %[1]s with action=terminate and status=failure.
- NEVER provide a text-only response.

# Example
User: Go to google.com
Assistant: %[4]s
`

var (
	systemPromptOnce sync.Once
	systemPrompt     string
)

// SystemPrompt returns the fixed instruction that advertises the computer_use
// tool, its action vocabulary and the normalized coordinate system.
func SystemPrompt() string {
	systemPromptOnce.Do(func() {
		kinds := action.Kinds()
		quoted := make([]string, len(kinds))
		for i, k := range kinds {
			quoted[i] = fmt.Sprintf("%q", k)
		}
		example := action.ToolCall(action.Navigate{URL: "https://google.com"})
		systemPrompt = fmt.Sprintf(systemPromptTemplate,
			action.ToolName, strings.Join(quoted, ", "), action.CoordinateSpace, example)
	})
	return systemPrompt
}
