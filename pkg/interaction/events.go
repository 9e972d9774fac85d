package interaction

import (
	"fmt"

	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/model"
)

// Button is a pointer button number as reported by the browser.
type Button int

const (
	ButtonPrimary   Button = 0
	ButtonMiddle    Button = 1
	ButtonSecondary Button = 2
)

// TargetKind is the part of the editor a pointer-down landed on.
type TargetKind string

const (
	TargetCanvas       TargetKind = "canvas"
	TargetNodeHeader   TargetKind = "node-header"
	TargetOutputHandle TargetKind = "output-handle"
	TargetNodeBody     TargetKind = "node-body" // Controls and previews; never starts a gesture
)

// Target identifies what the browser hit on pointer-down.
type Target struct {
	Kind TargetKind   `json:"kind"`
	Node model.NodeID `json:"node,omitempty"`
}

// Canvas is the empty background.
func Canvas() Target { return Target{Kind: TargetCanvas} }

// NodeHeader is the drag handle of a node.
func NodeHeader(id model.NodeID) Target { return Target{Kind: TargetNodeHeader, Node: id} }

// OutputHandle is the connection affordance of a node.
func OutputHandle(id model.NodeID) Target { return Target{Kind: TargetOutputHandle, Node: id} }

// ParseTargetKind validates a target kind name.
func ParseTargetKind(s string) (TargetKind, error) {
	k := TargetKind(s)
	switch k {
	case TargetCanvas, TargetNodeHeader, TargetOutputHandle, TargetNodeBody:
		return k, nil
	}
	return "", fmt.Errorf("interaction: unknown target %q", s)
}

// Event is a raw pointer or wheel event in screen coordinates.
type Event interface {
	event()
}

// PointerDown starts a gesture.
type PointerDown struct {
	Screen geom.Point
	Button Button
	Target Target
}

// PointerMove reports the pointer position and the movement since the last move.
type PointerMove struct {
	Screen   geom.Point
	Movement geom.Point // Screen pixels
}

// PointerUp ends any gesture.
type PointerUp struct {
	Screen geom.Point
}

// Wheel is one wheel tick over the canvas.
type Wheel struct {
	Screen geom.Point
	DeltaY float64
}

func (PointerDown) event() {}
func (PointerMove) event() {}
func (PointerUp) event()   {}
func (Wheel) event()       {}
