package interaction

import (
	"errors"
	"fmt"

	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/graph"
	"github.com/ritzau/node-composer/pkg/logging"
	"github.com/ritzau/node-composer/pkg/model"
	"github.com/ritzau/node-composer/pkg/render"
)

// Mode is the active gesture. Exactly one mode is active at a time.
type Mode int

const (
	Idle Mode = iota
	DraggingNode
	DrawingConnection
	Panning
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case DraggingNode:
		return "dragging-node"
	case DrawingConnection:
		return "drawing-connection"
	case Panning:
		return "panning"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Graph is the part of the graph store the machine mutates.
type Graph interface {
	Node(id model.NodeID) (model.Node, bool)
	Nodes() []model.Node
	MoveNode(id model.NodeID, delta geom.Point) bool
	AddConnection(from, to model.NodeID) (model.Connection, error)
}

// Outcome reports what an event changed.
type Outcome struct {
	ModeChanged    bool
	ViewChanged    bool
	PointerMoved   bool
	NodeMoved      model.NodeID // Zero if no node moved
	ConnectionMade *model.Connection
	Notice         *model.Notice
}

// Changed returns true if the scene must be rebuilt.
func (o Outcome) Changed() bool {
	return o.ModeChanged || o.ViewChanged || o.PointerMoved ||
		o.NodeMoved != 0 || o.ConnectionMade != nil
}

// Machine interprets pointer events against the current mode and applies the
// resulting node moves, connections and view changes. It is not safe for
// concurrent use; the editor serialises access.
type Machine struct {
	graph  Graph
	layout render.Layout
	limits geom.Limits
	hook   CaptureHook

	view    geom.ViewTransform
	mode    Mode
	node    model.NodeID    // Dragged node, or the source of the connection
	drawing *render.Drawing // Set while DrawingConnection
	pointer geom.Point      // Last pointer position, world coordinates
	capture *Capture
}

// Option configures a Machine.
type Option func(*Machine)

// WithLayout sets the geometry used for anchors and hit testing.
func WithLayout(l render.Layout) Option {
	return func(m *Machine) { m.layout = l }
}

// WithLimits sets the zoom limits.
func WithLimits(l geom.Limits) Option {
	return func(m *Machine) { m.limits = l }
}

// WithCaptureHook is called whenever a gesture starts.
func WithCaptureHook(h CaptureHook) Option {
	return func(m *Machine) { m.hook = h }
}

// NewMachine returns an idle machine with the identity view.
func NewMachine(g Graph, opts ...Option) *Machine {
	m := &Machine{
		graph:  g,
		layout: render.DefaultLayout,
		limits: geom.DefaultLimits,
		view:   geom.Identity,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mode returns the active mode.
func (m *Machine) Mode() Mode { return m.mode }

// View returns the current view transform.
func (m *Machine) View() geom.ViewTransform { return m.view }

// SetView replaces the view transform, clamping its scale.
func (m *Machine) SetView(t geom.ViewTransform) {
	t.Scale = m.limits.Clamp(t.Scale)
	m.view = t
}

// Pointer returns the last known pointer position in world coordinates.
func (m *Machine) Pointer() geom.Point { return m.pointer }

// Dragging returns the node being dragged, if any.
func (m *Machine) Dragging() (model.NodeID, bool) {
	return m.node, m.mode == DraggingNode
}

// Drawing returns the in-progress connection, or nil.
func (m *Machine) Drawing() *render.Drawing {
	if m.drawing == nil {
		return nil
	}
	d := *m.drawing
	return &d
}

// Captured returns true while a gesture holds the capture.
func (m *Machine) Captured() bool { return m.capture != nil }

// Handle applies one event.
func (m *Machine) Handle(ev Event) Outcome {
	switch e := ev.(type) {
	case PointerDown:
		return m.down(e)
	case PointerMove:
		return m.move(e)
	case PointerUp:
		return m.up(e)
	case Wheel:
		return m.wheel(e)
	}
	panic(fmt.Sprintf("interaction: unhandled event %T", ev))
}

// Cancel abandons the active gesture without committing anything.
func (m *Machine) Cancel() Outcome {
	if m.mode == Idle {
		return Outcome{}
	}
	logging.Debug("Gesture cancelled", "mode", m.mode)
	m.reset()
	return Outcome{ModeChanged: true}
}

func (m *Machine) down(e PointerDown) Outcome {
	if m.mode != Idle {
		return Outcome{}
	}
	m.pointer = geom.ToWorld(e.Screen, m.view)

	switch e.Target.Kind {
	case TargetNodeHeader:
		if e.Button != ButtonPrimary {
			return Outcome{}
		}
		if _, ok := m.graph.Node(e.Target.Node); !ok {
			return Outcome{}
		}
		m.node = e.Target.Node
		m.enter(DraggingNode)

	case TargetOutputHandle:
		if e.Button != ButtonPrimary {
			return Outcome{}
		}
		n, ok := m.graph.Node(e.Target.Node)
		if !ok || !n.Kind.HasOutput() {
			return Outcome{}
		}
		m.node = n.ID
		m.drawing = &render.Drawing{From: n.ID, Start: m.layout.OutputAnchor(n.Position)}
		m.enter(DrawingConnection)

	case TargetCanvas:
		if e.Button != ButtonMiddle && e.Button != ButtonSecondary {
			return Outcome{}
		}
		m.enter(Panning)

	default:
		return Outcome{}
	}

	return Outcome{ModeChanged: true}
}

func (m *Machine) move(e PointerMove) Outcome {
	m.pointer = geom.ToWorld(e.Screen, m.view)
	if m.mode == Idle {
		// Hovering changes nothing on screen
		return Outcome{}
	}

	out := Outcome{PointerMoved: true}
	switch m.mode {
	case DraggingNode:
		delta := e.Movement.Scale(1 / m.view.Scale)
		if m.graph.MoveNode(m.node, delta) {
			out.NodeMoved = m.node
		}
	case Panning:
		m.view = geom.Pan(m.view, e.Movement)
		out.ViewChanged = true
	case DrawingConnection:
	}

	return out
}

func (m *Machine) up(e PointerUp) Outcome {
	if m.mode == Idle {
		return Outcome{}
	}

	out := Outcome{ModeChanged: true}
	m.pointer = geom.ToWorld(e.Screen, m.view)

	if m.mode == DrawingConnection {
		out = m.connect(out)
	}

	m.reset()
	return out
}

// connect attempts the connection for a release at the current pointer.
func (m *Machine) connect(out Outcome) Outcome {
	target, ok := HitTest(m.graph.Nodes(), m.pointer, m.layout)
	if !ok || target.ID == m.node {
		return out
	}
	if !target.Kind.HasInput() {
		logging.Debug("Connection dropped on node without input", "from", m.node, "to", target.ID)
		return out
	}

	conn, err := m.graph.AddConnection(m.node, target.ID)
	switch {
	case err == nil:
		logging.Debug("Connection added", "id", conn.ID)
		out.ConnectionMade = &conn
	case errors.Is(err, graph.ErrDuplicateConnection):
		n := model.ErrorNotice("Connection already exists.", "")
		out.Notice = &n
	default:
		// The source may have been deleted mid-gesture
		logging.Debug("Connection rejected", "from", m.node, "to", target.ID, "error", err)
	}
	return out
}

func (m *Machine) wheel(e Wheel) Outcome {
	if m.mode == DraggingNode || m.mode == DrawingConnection {
		return Outcome{}
	}

	next := geom.ZoomAt(e.Screen, e.DeltaY, m.view, m.limits)
	if next == m.view {
		return Outcome{}
	}
	m.view = next
	m.pointer = geom.ToWorld(e.Screen, m.view)
	return Outcome{ViewChanged: true}
}

func (m *Machine) enter(mode Mode) {
	m.mode = mode
	var release func()
	if m.hook != nil {
		release = m.hook(mode)
	}
	m.capture = newCapture(release)
	logging.Trace("Gesture started", "mode", mode)
}

func (m *Machine) reset() {
	if m.capture != nil {
		m.capture.Release()
		m.capture = nil
	}
	m.mode = Idle
	m.node = 0
	m.drawing = nil
}
