// internal/action/action.go
package action

import "time"

// Kind is the wire name of an action in the computer_use tool vocabulary.
type Kind string

const (
	KindMove          Kind = "move"
	KindLeftClick     Kind = "left_click"
	KindLeftClickDrag Kind = "left_click_drag"
	KindRightClick    Kind = "right_click"
	KindMiddleClick   Kind = "middle_click"
	KindDoubleClick   Kind = "double_click"
	KindTripleClick   Kind = "triple_click"
	KindTypeText      Kind = "type_text"
	KindKeyPress      Kind = "key_press"
	KindScroll        Kind = "scroll"
	KindHScroll       Kind = "hscroll"
	KindNavigate      Kind = "navigate"
	KindWait          Kind = "wait"
	KindTerminate     Kind = "terminate"
	KindUnknown       Kind = "unknown" // Unrecognized action name; executes as a no-op.
)

// Kinds lists the known action vocabulary in the order it is advertised to the model.
func Kinds() []Kind {
	return []Kind{
		KindMove, KindLeftClick, KindLeftClickDrag, KindRightClick, KindMiddleClick,
		KindDoubleClick, KindTripleClick, KindTypeText, KindKeyPress, KindScroll,
		KindHScroll, KindNavigate, KindWait, KindTerminate,
	}
}

// CoordinateSpace is the width and height of the normalized grid the model
// reasons in, independent of the real viewport.
const CoordinateSpace = 1000

// DefaultWait is used when a wait action carries no duration.
const DefaultWait = time.Second

// Point is a coordinate pair in the normalized grid. Values are not range
// checked.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Button identifies a mouse button.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Status is the completion status reported by a terminate action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Action is one structured browser instruction. The set of implementations is
// closed; switch on the concrete type to dispatch.
type Action interface {
	Kind() Kind
	isAction()
}

// Move moves the pointer. A nil Point makes it a no-op.
type Move struct {
	Point *Point
}

// Click presses and releases Button Count times at Point. A nil Point makes it
// a no-op.
type Click struct {
	Point  *Point
	Button Button
	Count  int
}

// Drag presses at the current pointer position, moves to To and releases.
type Drag struct {
	To *Point
}

// TypeText sends text to the focused element.
type TypeText struct {
	Text string
}

// KeyPress presses each key in order. A key may be a chord such as "Control+C".
type KeyPress struct {
	Keys []string
}

// Scroll is vertical wheel motion. Positive Pixels moves the content down.
type Scroll struct {
	Pixels int
}

// HScroll is horizontal wheel motion with the same sign convention as Scroll.
type HScroll struct {
	Pixels int
}

type Navigate struct {
	URL string
}

type Wait struct {
	Duration time.Duration
}

// Terminate ends the run with the reported status.
type Terminate struct {
	Status Status
}

// Unknown is an action name outside the vocabulary.
type Unknown struct {
	Name string
}

func (Move) Kind() Kind      { return KindMove }
func (Drag) Kind() Kind      { return KindLeftClickDrag }
func (TypeText) Kind() Kind  { return KindTypeText }
func (KeyPress) Kind() Kind  { return KindKeyPress }
func (Scroll) Kind() Kind    { return KindScroll }
func (HScroll) Kind() Kind   { return KindHScroll }
func (Navigate) Kind() Kind  { return KindNavigate }
func (Wait) Kind() Kind      { return KindWait }
func (Terminate) Kind() Kind { return KindTerminate }
func (Unknown) Kind() Kind   { return KindUnknown }

// Kind derives the wire name from the button and click count.
func (c Click) Kind() Kind {
	switch c.Button {
	case ButtonRight:
		return KindRightClick
	case ButtonMiddle:
		return KindMiddleClick
	}
	switch c.Count {
	case 2:
		return KindDoubleClick
	case 3:
		return KindTripleClick
	default:
		return KindLeftClick
	}
}

func (Move) isAction()      {}
func (Click) isAction()     {}
func (Drag) isAction()      {}
func (TypeText) isAction()  {}
func (KeyPress) isAction()  {}
func (Scroll) isAction()    {}
func (HScroll) isAction()   {}
func (Navigate) isAction()  {}
func (Wait) isAction()      {}
func (Terminate) isAction() {}
func (Unknown) isAction()   {}

// IsNoop reports whether executing a would have no side effect because a
// required field is missing, or because the action is unknown.
func IsNoop(a Action) bool {
	switch v := a.(type) {
	case Move:
		return v.Point == nil
	case Click:
		return v.Point == nil
	case Drag:
		return v.To == nil
	case TypeText:
		return v.Text == ""
	case KeyPress:
		return len(v.Keys) == 0
	case Scroll:
		return v.Pixels == 0
	case HScroll:
		return v.Pixels == 0
	case Navigate:
		return v.URL == ""
	case Unknown:
		return true
	default:
		return false
	}
}
