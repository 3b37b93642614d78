// internal/action/action_test.go
package action

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func pt(x, y int) *Point { return &Point{X: x, Y: y} }

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		want    Action
	}{
		{"move", map[string]any{"action": "move", "coordinate": []any{500.0, 250.0}}, Move{Point: pt(500, 250)}},
		{"mouse_move alias", map[string]any{"action": "mouse_move", "coordinate": []any{1.0, 2.0}}, Move{Point: pt(1, 2)}},
		{"left click", map[string]any{"action": "left_click", "coordinate": []any{10.0, 20.0}}, Click{Point: pt(10, 20), Button: ButtonLeft, Count: 1}},
		{"double click", map[string]any{"action": "double_click", "coordinate": []any{10.0, 20.0}}, Click{Point: pt(10, 20), Button: ButtonLeft, Count: 2}},
		{"triple click", map[string]any{"action": "triple_click", "coordinate": []any{10.0, 20.0}}, Click{Point: pt(10, 20), Button: ButtonLeft, Count: 3}},
		{"right click", map[string]any{"action": "right_click", "coordinate": []any{10.0, 20.0}}, Click{Point: pt(10, 20), Button: ButtonRight, Count: 1}},
		{"middle click", map[string]any{"action": "middle_click", "coordinate": []any{10.0, 20.0}}, Click{Point: pt(10, 20), Button: ButtonMiddle, Count: 1}},
		{"click without coordinate", map[string]any{"action": "left_click"}, Click{Button: ButtonLeft, Count: 1}},
		{"short coordinate", map[string]any{"action": "left_click", "coordinate": []any{10.0}}, Click{Button: ButtonLeft, Count: 1}},
		{"string coordinate members", map[string]any{"action": "move", "coordinate": []any{"12", " 34 "}}, Move{Point: pt(12, 34)}},
		{"fractional coordinate rounds", map[string]any{"action": "move", "coordinate": []any{12.6, 33.4}}, Move{Point: pt(13, 33)}},
		{"out of range coordinate kept", map[string]any{"action": "move", "coordinate": []any{1500.0, -20.0}}, Move{Point: pt(1500, -20)}},
		{"drag", map[string]any{"action": "left_click_drag", "coordinate": []any{700.0, 800.0}}, Drag{To: pt(700, 800)}},
		{"type_text", map[string]any{"action": "type_text", "text": "hello"}, TypeText{Text: "hello"}},
		{"type alias", map[string]any{"action": "type", "text": "hello"}, TypeText{Text: "hello"}},
		{"key_press list", map[string]any{"action": "key_press", "keys": []any{"Control", "a"}}, KeyPress{Keys: []string{"Control", "a"}}},
		{"key alias single string", map[string]any{"action": "key", "keys": "Return"}, KeyPress{Keys: []string{"Return"}}},
		{"key list skips non strings", map[string]any{"action": "key_press", "keys": []any{"Tab", 5.0, ""}}, KeyPress{Keys: []string{"Tab"}}},
		{"scroll", map[string]any{"action": "scroll", "pixels": 300.0}, Scroll{Pixels: 300}},
		{"scroll negative", map[string]any{"action": "scroll", "pixels": -300.0}, Scroll{Pixels: -300}},
		{"scroll missing pixels", map[string]any{"action": "scroll"}, Scroll{}},
		{"hscroll", map[string]any{"action": "hscroll", "pixels": "120"}, HScroll{Pixels: 120}},
		{"navigate", map[string]any{"action": "navigate", "url": " example.com "}, Navigate{URL: "example.com"}},
		{"navigate missing url", map[string]any{"action": "navigate"}, Navigate{}},
		{"wait", map[string]any{"action": "wait", "time": 2.5}, Wait{Duration: 2500 * time.Millisecond}},
		{"wait default", map[string]any{"action": "wait"}, Wait{Duration: DefaultWait}},
		{"wait negative", map[string]any{"action": "wait", "time": -3.0}, Wait{Duration: 0}},
		{"terminate success", map[string]any{"action": "terminate", "status": "success"}, Terminate{Status: StatusSuccess}},
		{"terminate failure", map[string]any{"action": "terminate", "status": "FAILURE"}, Terminate{Status: StatusFailure}},
		{"terminate missing status", map[string]any{"action": "terminate"}, Terminate{Status: StatusSuccess}},
		{"case insensitive name", map[string]any{"action": " Left_Click ", "coordinate": []any{1.0, 1.0}}, Click{Point: pt(1, 1), Button: ButtonLeft, Count: 1}},
		{"unknown name", map[string]any{"action": "fly"}, Unknown{Name: "fly"}},
		{"missing name", map[string]any{}, Unknown{Name: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.payload)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClickKind(t *testing.T) {
	assert.Equal(t, KindLeftClick, Click{Button: ButtonLeft, Count: 1}.Kind())
	assert.Equal(t, KindDoubleClick, Click{Button: ButtonLeft, Count: 2}.Kind())
	assert.Equal(t, KindTripleClick, Click{Button: ButtonLeft, Count: 3}.Kind())
	assert.Equal(t, KindRightClick, Click{Button: ButtonRight, Count: 1}.Kind())
	assert.Equal(t, KindMiddleClick, Click{Button: ButtonMiddle, Count: 1}.Kind())
}

func TestIsNoop(t *testing.T) {
	assert.True(t, IsNoop(Move{}))
	assert.True(t, IsNoop(Click{Button: ButtonLeft, Count: 1}))
	assert.True(t, IsNoop(Drag{}))
	assert.True(t, IsNoop(TypeText{}))
	assert.True(t, IsNoop(KeyPress{}))
	assert.True(t, IsNoop(Scroll{}))
	assert.True(t, IsNoop(HScroll{}))
	assert.True(t, IsNoop(Navigate{}))
	assert.True(t, IsNoop(Unknown{Name: "fly"}))

	assert.False(t, IsNoop(Move{Point: pt(1, 1)}))
	assert.False(t, IsNoop(Wait{}))
	assert.False(t, IsNoop(Terminate{Status: StatusSuccess}))
}

func TestToolCall(t *testing.T) {
	t.Run("canonical form", func(t *testing.T) {
		got := ToolCall(Click{Point: pt(500, 300), Button: ButtonLeft, Count: 1})
		assert.Equal(t,
			"<tool_call>\n"+`{"name":"computer_use","arguments":{"action":"left_click","coordinate":[500,300]}}`+"\n</tool_call>",
			got)
	})

	t.Run("urls are not html escaped", func(t *testing.T) {
		got := ToolCall(Navigate{URL: "https://example.com/?a=1&b=<2>"})
		assert.Contains(t, got, `"url":"https://example.com/?a=1&b=<2>"`)
	})

	t.Run("every kind survives a round trip", func(t *testing.T) {
		actions := []Action{
			Move{Point: pt(1, 2)},
			Click{Point: pt(3, 4), Button: ButtonLeft, Count: 1},
			Click{Point: pt(3, 4), Button: ButtonLeft, Count: 2},
			Click{Point: pt(3, 4), Button: ButtonLeft, Count: 3},
			Click{Point: pt(3, 4), Button: ButtonRight, Count: 1},
			Click{Point: pt(3, 4), Button: ButtonMiddle, Count: 1},
			Drag{To: pt(9, 9)},
			TypeText{Text: `quote " and {brace}`},
			KeyPress{Keys: []string{"Control+C", "Enter"}},
			Scroll{Pixels: -200},
			HScroll{Pixels: 50},
			Navigate{URL: "https://example.com"},
			Wait{Duration: 1500 * time.Millisecond},
			Terminate{Status: StatusFailure},
		}
		for _, a := range actions {
			got, ok := Parse(ToolCall(a))
			if assert.True(t, ok, "kind %s", a.Kind()) {
				if diff := cmp.Diff(a, got); diff != "" {
					t.Errorf("round trip of %s mismatch (-want +got):\n%s", a.Kind(), diff)
				}
			}
		}
	})
}
