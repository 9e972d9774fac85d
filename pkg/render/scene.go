package render

import (
	"fmt"

	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/imageuri"
	"github.com/ritzau/node-composer/pkg/model"
)

// ControlKind identifies an interactive control inside a node widget.
type ControlKind string

const (
	ControlPrompt       ControlKind = "prompt"       // Prompt text area
	ControlContext      ControlKind = "context"      // Optional context text area
	ControlInstructions ControlKind = "instructions" // Blending instructions text area
	ControlGenerate     ControlKind = "generate"
	ControlEdit         ControlKind = "edit"
	ControlRefine       ControlKind = "refine"
	ControlBlend        ControlKind = "blend"
	ControlRandomize    ControlKind = "randomize"
	ControlChooseFile   ControlKind = "choose-file"
	ControlDownload     ControlKind = "download"
	ControlModify       ControlKind = "modify" // Reopens the editing controls
	ControlDelete       ControlKind = "delete"
)

// Control is one button or field in a node widget.
type Control struct {
	Kind    ControlKind `json:"kind"`
	Label   string      `json:"label"`
	Enabled bool        `json:"enabled"`
}

// NodeView is the render model of a single node widget.
type NodeView struct {
	ID           model.NodeID   `json:"id"`
	Kind         model.Kind     `json:"kind"`
	Title        string         `json:"title"`
	Icon         string         `json:"icon"`
	Position     geom.Point     `json:"position"`
	Bounds       geom.Rect      `json:"bounds"`
	HasInput     bool           `json:"hasInput"`
	HasOutput    bool           `json:"hasOutput"`
	InputAnchor  *geom.Point    `json:"inputAnchor,omitempty"`
	OutputAnchor *geom.Point    `json:"outputAnchor,omitempty"`
	Processing   bool           `json:"processing"`
	Stale        bool           `json:"stale"`
	Warning      string         `json:"warning,omitempty"`
	Data         model.NodeData `json:"data"`               // Text fields only; images travel by URL
	ImageURL     string         `json:"imageUrl,omitempty"` // Set when the node holds an image
	Controls     []Control      `json:"controls"`
}

// ImageURL is where the browser fetches a node's image. The version query
// changes with the content, so the URL can be cached forever.
func ImageURL(id model.NodeID, version string) string {
	return fmt.Sprintf("/api/nodes/%d/image?v=%s", id, version)
}

// ConnectionView is the render model of a committed connection.
type ConnectionView struct {
	ID   string       `json:"id"`
	From model.NodeID `json:"from"`
	To   model.NodeID `json:"to"`
	Path string       `json:"path"`
}

// RubberBandView is the dashed line that follows the pointer while a
// connection is being drawn.
type RubberBandView struct {
	From model.NodeID `json:"from"`
	Path string       `json:"path"`
}

// Scene is everything the browser needs to draw the editor.
type Scene struct {
	View        geom.ViewTransform `json:"view"`
	Mode        string             `json:"mode"`
	Pointer     geom.Point         `json:"pointer"` // World coordinates
	Nodes       []NodeView         `json:"nodes"`
	Connections []ConnectionView   `json:"connections"`
	RubberBand  *RubberBandView    `json:"rubberBand,omitempty"`
}

// Drawing describes an in-progress connection.
type Drawing struct {
	From  model.NodeID
	Start geom.Point // World-space output anchor captured on pointer-down
}

// Input is the editor state a scene is derived from.
type Input struct {
	View    geom.ViewTransform
	Layout  Layout
	Mode    string
	Pointer geom.Point
	Drawing *Drawing
	Stale   map[model.NodeID]bool
}

// Build derives the scene from the graph and the editor state.
func Build(nodes []model.Node, conns []model.Connection, in Input) Scene {
	scene := Scene{
		View:        in.View,
		Mode:        in.Mode,
		Pointer:     in.Pointer,
		Nodes:       make([]NodeView, 0, len(nodes)),
		Connections: make([]ConnectionView, 0, len(conns)),
	}

	positions := make(map[model.NodeID]geom.Point, len(nodes))
	for _, n := range nodes {
		positions[n.ID] = n.Position
		scene.Nodes = append(scene.Nodes, ViewNode(n, in.Layout, in.Stale[n.ID]))
	}

	for _, c := range conns {
		from, okFrom := positions[c.From]
		to, okTo := positions[c.To]
		if !okFrom || !okTo {
			continue
		}
		scene.Connections = append(scene.Connections, ConnectionView{
			ID:   c.ID,
			From: c.From,
			To:   c.To,
			Path: in.Layout.ConnectionPath(in.Layout.OutputAnchor(from), in.Layout.InputAnchor(to)),
		})
	}

	if in.Drawing != nil {
		scene.RubberBand = &RubberBandView{
			From: in.Drawing.From,
			Path: RubberBandPath(in.Drawing.Start, in.Pointer),
		}
	}

	return scene
}

// ViewNode builds the widget for a node by dispatching on its kind.
func ViewNode(n model.Node, l Layout, stale bool) NodeView {
	v := NodeView{
		ID:         n.ID,
		Kind:       n.Kind,
		Position:   n.Position,
		Bounds:     l.Bounds(n.Position),
		HasInput:   n.Kind.HasInput(),
		HasOutput:  n.Kind.HasOutput(),
		Processing: n.Data.Processing(),
		Data:       textData(n.Data),
	}
	if n.Data.HasImage() {
		version := n.ImageVersion
		if version == "" {
			version = imageuri.Version(n.Data.ImageURI())
		}
		v.ImageURL = ImageURL(n.ID, version)
	}
	if v.HasInput {
		a := l.InputAnchor(n.Position)
		v.InputAnchor = &a
	}
	if v.HasOutput {
		a := l.OutputAnchor(n.Position)
		v.OutputAnchor = &a
	}

	idle := !v.Processing
	switch n.Kind {
	case model.KindGenerate:
		v.Title, v.Icon = "Generate Image", "image"
		v.Controls = imageControls(n.Data, idle,
			Control{Kind: ControlGenerate, Label: "Generate", Enabled: idle},
			Control{Kind: ControlRandomize, Label: "Randomize prompt", Enabled: true},
		)
	case model.KindUpload:
		v.Title, v.Icon = "Upload Image", "upload"
		v.Controls = []Control{{Kind: ControlChooseFile, Label: "Choose an image", Enabled: idle}}
		if n.Data.HasImage() {
			v.Controls = append(v.Controls,
				Control{Kind: ControlPrompt, Label: "Edit instructions", Enabled: idle},
				Control{Kind: ControlEdit, Label: "Edit", Enabled: idle},
			)
		}
	case model.KindPrompt:
		v.Title, v.Icon = "AI Prompt Tool", "message-square"
		v.Controls = []Control{
			{Kind: ControlPrompt, Label: "Initial prompt", Enabled: true},
			{Kind: ControlContext, Label: "Context (optional)", Enabled: true},
			{Kind: ControlRefine, Label: "Refine Prompt", Enabled: idle},
		}
	case model.KindOutput:
		v.Title, v.Icon = "Output", "combine"
		v.Stale = stale
		v.Controls = outputControls(n.Data, idle, stale)
		if stale {
			v.Warning = "Inputs have changed."
		}
	default:
		panic(fmt.Sprintf("render: unhandled node kind %q", n.Kind))
	}

	v.Controls = append(v.Controls, Control{Kind: ControlDelete, Label: "Delete", Enabled: true})
	return v
}

// textData drops the image payloads, which are large and fetched separately.
func textData(d model.NodeData) model.NodeData {
	c := d.Clone()
	c.Image = nil
	c.InputStates = nil
	return c
}

// imageControls are the controls of an image-producing node: the prompt editor
// while it has no image, otherwise Modify and Edit.
func imageControls(d model.NodeData, idle bool, create ...Control) []Control {
	if !d.HasImage() {
		return append([]Control{{Kind: ControlPrompt, Label: "Prompt", Enabled: true}}, create...)
	}
	return []Control{
		{Kind: ControlModify, Label: "Modify", Enabled: true},
		{Kind: ControlEdit, Label: "Edit", Enabled: idle},
	}
}

func outputControls(d model.NodeData, idle, stale bool) []Control {
	if !d.HasImage() {
		return []Control{
			{Kind: ControlInstructions, Label: "Blending instructions", Enabled: true},
			{Kind: ControlBlend, Label: "Blend Inputs", Enabled: idle},
			{Kind: ControlRandomize, Label: "Randomize instructions", Enabled: true},
		}
	}

	controls := []Control{{Kind: ControlDownload, Label: "Download image", Enabled: !stale}}
	if stale {
		return append(controls, Control{Kind: ControlBlend, Label: "Regenerate", Enabled: idle})
	}
	return append(controls,
		Control{Kind: ControlModify, Label: "Modify", Enabled: true},
		Control{Kind: ControlEdit, Label: "Edit", Enabled: idle},
	)
}

// Find returns the control of the given kind, if the widget has one.
func (v NodeView) Find(kind ControlKind) (Control, bool) {
	for _, c := range v.Controls {
		if c.Kind == kind {
			return c, true
		}
	}
	return Control{}, false
}
