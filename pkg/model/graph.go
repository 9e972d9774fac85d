package model

import (
	"fmt"

	"github.com/ritzau/node-composer/pkg/geom"
)

// NodeID identifies a node for its whole lifetime. IDs are issued by the
// graph store from a monotonically increasing counter and never reused.
type NodeID int64

// Node represents a vertex in the composer graph.
type Node struct {
	ID       NodeID     `json:"id"`
	Kind     Kind       `json:"kind"`
	Position geom.Point `json:"position"` // World coordinates, centre of the node
	Data     NodeData   `json:"data"`

	// ImageVersion is a content hash of Data.Image, kept by the store so the
	// payload is hashed once per change.
	ImageVersion string `json:"imageVersion,omitempty"`
}

// Clone returns a copy of n that shares no mutable state with it.
func (n Node) Clone() Node {
	n.Data = n.Data.Clone()
	return n
}

// ConnectionKey is the structural identity of a connection: the ordered pair
// of endpoints. Two connections are the same iff their keys are equal.
type ConnectionKey struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// String returns the display form "<from>-<to>". It is not used for identity.
func (k ConnectionKey) String() string {
	return fmt.Sprintf("%d-%d", k.From, k.To)
}

// Involves returns true if id is either endpoint.
func (k ConnectionKey) Involves(id NodeID) bool {
	return k.From == id || k.To == id
}

// Connection represents a directed edge from one node's output to another's input.
// Connections are informational: the graph is never executed as a pipeline.
type Connection struct {
	ConnectionKey
	ID string `json:"id"` // Display id, derived from the key
}

// NewConnection builds a connection for the ordered pair (from, to).
func NewConnection(from, to NodeID) Connection {
	key := ConnectionKey{From: from, To: to}
	return Connection{ConnectionKey: key, ID: key.String()}
}
