package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/agent"
)

func TestPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newPrinter(&out)

	p.OnModelEvent(1, agent.ModelEvent{Kind: agent.EventReasoning, Text: "The user wants "})
	p.OnModelEvent(1, agent.ModelEvent{Kind: agent.EventReasoning, Text: "example.com."})
	p.OnModelEvent(1, agent.ModelEvent{Kind: agent.EventAnswer, Text: "Opening it."})
	p.OnModelEvent(1, agent.ModelEvent{Kind: agent.EventAction, Action: action.Navigate{URL: "https://example.com"}})
	p.OnStep(schemas.StepRecord{Step: 1, Outcome: schemas.OutcomeExecuted, Duration: 1234567 * time.Microsecond})
	p.OnModelEvent(2, agent.ModelEvent{Kind: agent.EventAnswer, Text: "Hmm."})
	p.OnModelEvent(2, agent.ModelEvent{Kind: agent.EventDiagnostic, Text: "no tool call found"})
	p.OnStep(schemas.StepRecord{Step: 2, Outcome: schemas.OutcomeNoAction})
	p.OnModelEvent(3, agent.ModelEvent{Kind: agent.EventError, Text: "connection refused"})
	p.OnStep(schemas.StepRecord{Step: 3, Outcome: schemas.OutcomeFailed, Error: "connection refused"})

	want := "" +
		"[step 1] thinking: The user wants example.com.\n" +
		"[step 1] answer: Opening it.\n" +
		"[step 1] action: navigate {\"url\":\"https://example.com\"}\n" +
		"[step 1] executed in 1.235s\n" +
		"[step 2] answer: Hmm.\n" +
		"[step 2] no action: no tool call found\n" +
		"[step 2] no_action in 0s\n" +
		"[step 3] error: connection refused\n" +
		"[step 3] failed in 0s: connection refused\n"
	assert.Equal(t, want, out.String())
}

func TestDescribeAction(t *testing.T) {
	tests := []struct {
		in   action.Action
		want string
	}{
		{nil, "none"},
		{action.Click{Point: &action.Point{X: 10, Y: 20}, Button: action.ButtonLeft, Count: 2}, `double_click {"coordinate":[10,20]}`},
		{action.TypeText{Text: "hello"}, `type_text {"text":"hello"}`},
		{action.Terminate{Status: action.StatusSuccess}, `terminate {"status":"success"}`},
		{action.Unknown{Name: "fly"}, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, describeAction(tt.in))
	}
}
