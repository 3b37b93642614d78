// internal/agent/conversation.go
package agent

import (
	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// pinned is the number of leading messages that are never trimmed: the system
// prompt and the operator's instruction.
const pinned = 2

const (
	observationText   = "Here is the current screenshot of the browser. Decide the next action."
	noScreenshotText  = "No screenshot is available. Decide the next action."
	missingActionNote = "Your last response did not contain a <tool_call> block. Respond with exactly one <tool_call> block."
)

// Conversation is the role-tagged history of one run. It only grows; the
// view returned by Messages is bounded by the configured history and
// screenshot limits. A Conversation is not safe for concurrent use.
type Conversation struct {
	messages        []schemas.Message
	maxHistory      int
	keepScreenshots int
}

// NewConversation starts a history with the system prompt and instruction.
func NewConversation(instruction string, cfg config.AgentConfig) *Conversation {
	maxHistory := cfg.MaxHistory
	if maxHistory < pinned {
		maxHistory = pinned
	}
	return &Conversation{
		messages: []schemas.Message{
			{Role: schemas.RoleSystem, Content: SystemPrompt()},
			{Role: schemas.RoleUser, Content: instruction},
		},
		maxHistory:      maxHistory,
		keepScreenshots: cfg.KeepScreenshots,
	}
}

// AddObservation appends a user turn carrying the screenshot. A nil
// screenshot produces a text-only turn.
func (c *Conversation) AddObservation(screenshot []byte) {
	if screenshot == nil {
		c.append(schemas.RoleUser, noScreenshotText, nil)
		return
	}
	c.append(schemas.RoleUser, observationText, [][]byte{screenshot})
}

// AddAction appends the model's chosen action in its canonical tool call form.
func (c *Conversation) AddAction(a action.Action) {
	c.append(schemas.RoleAssistant, action.ToolCall(a), nil)
}

// AddResponse appends raw model output that yielded no action, followed by a
// reminder of the required format.
func (c *Conversation) AddResponse(text string) {
	if text != "" {
		c.append(schemas.RoleAssistant, text, nil)
	}
	c.append(schemas.RoleUser, missingActionNote, nil)
}

// AddNote appends an informational user turn, such as a failed navigation.
func (c *Conversation) AddNote(text string) {
	c.append(schemas.RoleUser, text, nil)
}

// Len returns the number of messages recorded so far.
func (c *Conversation) Len() int { return len(c.messages) }

// Messages returns the history to send to the model: the pinned messages
// followed by the newest turns, at most maxHistory messages in total. Only
// the newest keepScreenshots turns with images keep them. The returned
// messages do not alias the conversation's storage.
func (c *Conversation) Messages() []schemas.Message {
	tail := c.messages[pinned:]
	if room := c.maxHistory - pinned; len(tail) > room {
		tail = tail[len(tail)-room:]
	}

	out := make([]schemas.Message, 0, pinned+len(tail))
	for _, m := range c.messages[:pinned] {
		out = append(out, m.Clone())
	}
	for _, m := range tail {
		out = append(out, m.Clone())
	}

	kept := 0
	for i := len(out) - 1; i >= 0; i-- {
		if len(out[i].Images) == 0 {
			continue
		}
		if kept < c.keepScreenshots {
			kept++
			continue
		}
		out[i].Images = nil
	}
	return out
}

func (c *Conversation) append(role schemas.Role, content string, images [][]byte) {
	c.messages = append(c.messages, schemas.Message{Role: role, Content: content, Images: images})
}
