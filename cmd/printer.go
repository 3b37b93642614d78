package cmd

import (
	"fmt"
	"io"
	"sync"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/action"
	"github.com/xkilldash9x/webpilot/internal/agent"
)

// printer renders a run on the terminal as it streams: reasoning and answer
// text as it arrives, then one line per action and per finished step.
type printer struct {
	mu      sync.Mutex
	out     io.Writer
	current agent.EventKind
}

var _ agent.Observer = (*printer)(nil)

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) OnModelEvent(step int, ev agent.ModelEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case agent.EventReasoning, agent.EventAnswer:
		if p.current != ev.Kind {
			p.endLine()
			label := "answer"
			if ev.Kind == agent.EventReasoning {
				label = "thinking"
			}
			fmt.Fprintf(p.out, "[step %d] %s: ", step, label)
			p.current = ev.Kind
		}
		fmt.Fprint(p.out, ev.Text)
	case agent.EventAction:
		p.endLine()
		fmt.Fprintf(p.out, "[step %d] action: %s\n", step, describeAction(ev.Action))
	case agent.EventDiagnostic:
		p.endLine()
		fmt.Fprintf(p.out, "[step %d] no action: %s\n", step, ev.Text)
	case agent.EventError:
		p.endLine()
		fmt.Fprintf(p.out, "[step %d] error: %s\n", step, ev.Text)
	}
}

func (p *printer) OnStep(rec schemas.StepRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	line := fmt.Sprintf("[step %d] %s in %s", rec.Step, rec.Outcome, rec.Duration.Round(1e6))
	if rec.Error != "" {
		line += ": " + rec.Error
	}
	fmt.Fprintln(p.out, line)
}

// endLine terminates a streamed text line.
func (p *printer) endLine() {
	if p.current != "" {
		fmt.Fprintln(p.out)
		p.current = ""
	}
}

func describeAction(a action.Action) string {
	if a == nil {
		return "none"
	}
	args := action.Arguments(a)
	delete(args, "action")
	if len(args) == 0 {
		return string(a.Kind())
	}
	encoded, err := json.ConfigCompatibleWithStandardLibrary.Marshal(args)
	if err != nil {
		return string(a.Kind())
	}
	return fmt.Sprintf("%s %s", a.Kind(), encoded)
}
