// Package snapshot diffs successive render models so that only changed
// widgets travel to the browser.
package snapshot

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/model"
	"github.com/ritzau/node-composer/pkg/render"
)

// SceneDiff represents the difference between two scenes.
// View, mode, pointer and rubber band are small and always sent whole.
type SceneDiff struct {
	View       geom.ViewTransform     `json:"view"`
	Mode       string                 `json:"mode"`
	Pointer    geom.Point             `json:"pointer"`
	RubberBand *render.RubberBandView `json:"rubberBand,omitempty"`

	AddedNodes          []render.NodeView       `json:"addedNodes"`
	RemovedNodes        []model.NodeID          `json:"removedNodes"`
	ModifiedNodes       []render.NodeView       `json:"modifiedNodes"`
	MovedNodes          []NodeMove              `json:"movedNodes"` // Nodes whose geometry is all that changed
	AddedConnections    []render.ConnectionView `json:"addedConnections"`
	RemovedConnections  []string                `json:"removedConnections"` // Connection display ids
	ModifiedConnections []render.ConnectionView `json:"modifiedConnections"`

	Hash string `json:"hash"` // Hash of the resulting scene
}

// NodeMove is the geometry of a widget, sent alone while it is dragged.
type NodeMove struct {
	ID           model.NodeID `json:"id"`
	Position     geom.Point   `json:"position"`
	Bounds       geom.Rect    `json:"bounds"`
	InputAnchor  *geom.Point  `json:"inputAnchor,omitempty"`
	OutputAnchor *geom.Point  `json:"outputAnchor,omitempty"`
}

// nodeState splits a widget into its geometry and a fingerprint of the rest.
type nodeState struct {
	ID   model.NodeID `json:"id"`
	Body string       `json:"body"`
	Move NodeMove     `json:"move"`
}

// Snapshot represents a cached scene for diffing.
type Snapshot struct {
	Hash        string
	nodes       map[model.NodeID]nodeState
	connections map[model.ConnectionKey]render.ConnectionView
}

// Create creates a snapshot from a scene. Every widget is fingerprinted once.
func Create(scene render.Scene) *Snapshot {
	s := &Snapshot{
		nodes:       make(map[model.NodeID]nodeState, len(scene.Nodes)),
		connections: make(map[model.ConnectionKey]render.ConnectionView, len(scene.Connections)),
	}

	states := make([]nodeState, 0, len(scene.Nodes))
	for _, n := range scene.Nodes {
		st := stateOf(n)
		s.nodes[n.ID] = st
		states = append(states, st)
	}
	for _, c := range scene.Connections {
		s.connections[model.ConnectionKey{From: c.From, To: c.To}] = c
	}

	s.Hash = fingerprint(struct {
		View        geom.ViewTransform
		Mode        string
		Pointer     geom.Point
		RubberBand  *render.RubberBandView
		Nodes       []nodeState
		Connections []render.ConnectionView
	}{scene.View, scene.Mode, scene.Pointer, scene.RubberBand, states, scene.Connections})
	return s
}

// Hash fingerprints a whole scene.
func Hash(scene render.Scene) string {
	return Create(scene).Hash
}

// ComputeDiff computes the difference between a snapshot and a newer scene,
// and returns the snapshot of the newer scene for the next round. Ordering of
// the added, modified and moved slices follows the scene.
func ComputeDiff(old *Snapshot, scene render.Scene) (*SceneDiff, *Snapshot) {
	next := Create(scene)
	diff := &SceneDiff{
		View:                scene.View,
		Mode:                scene.Mode,
		Pointer:             scene.Pointer,
		RubberBand:          scene.RubberBand,
		AddedNodes:          make([]render.NodeView, 0),
		RemovedNodes:        make([]model.NodeID, 0),
		ModifiedNodes:       make([]render.NodeView, 0),
		MovedNodes:          make([]NodeMove, 0),
		AddedConnections:    make([]render.ConnectionView, 0),
		RemovedConnections:  make([]string, 0),
		ModifiedConnections: make([]render.ConnectionView, 0),
		Hash:                next.Hash,
	}

	for _, n := range scene.Nodes {
		prev, exists := old.nodes[n.ID]
		cur := next.nodes[n.ID]
		switch {
		case !exists:
			diff.AddedNodes = append(diff.AddedNodes, n)
		case prev.Body != cur.Body:
			diff.ModifiedNodes = append(diff.ModifiedNodes, n)
		case !sameGeometry(prev.Move, cur.Move):
			diff.MovedNodes = append(diff.MovedNodes, cur.Move)
		}
	}
	for id := range old.nodes {
		if _, live := next.nodes[id]; !live {
			diff.RemovedNodes = append(diff.RemovedNodes, id)
		}
	}

	for _, c := range scene.Connections {
		prev, exists := old.connections[model.ConnectionKey{From: c.From, To: c.To}]
		switch {
		case !exists:
			diff.AddedConnections = append(diff.AddedConnections, c)
		case prev.Path != c.Path:
			diff.ModifiedConnections = append(diff.ModifiedConnections, c)
		}
	}
	for key, c := range old.connections {
		if _, live := next.connections[key]; !live {
			diff.RemovedConnections = append(diff.RemovedConnections, c.ID)
		}
	}

	return diff, next
}

func stateOf(n render.NodeView) nodeState {
	move := NodeMove{
		ID:           n.ID,
		Position:     n.Position,
		Bounds:       n.Bounds,
		InputAnchor:  n.InputAnchor,
		OutputAnchor: n.OutputAnchor,
	}

	body := n
	body.Position = geom.Point{}
	body.Bounds = geom.Rect{}
	body.InputAnchor = nil
	body.OutputAnchor = nil

	return nodeState{ID: n.ID, Body: fingerprint(body), Move: move}
}

// sameGeometry compares the anchors by value.
func sameGeometry(a, b NodeMove) bool {
	return a.Position == b.Position && a.Bounds == b.Bounds &&
		samePoint(a.InputAnchor, b.InputAnchor) && samePoint(a.OutputAnchor, b.OutputAnchor)
}

func samePoint(a, b *geom.Point) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fingerprint(v any) string {
	jsonData, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(jsonData)
	return fmt.Sprintf("%x", hash)
}
