package graph

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/imageuri"
	"github.com/ritzau/node-composer/pkg/model"
	"gonum.org/v1/gonum/graph/simple"
)

var (
	ErrNodeNotFound        = errors.New("graph: node not found")
	ErrSelfLoop            = errors.New("graph: connection from a node to itself")
	ErrDuplicateConnection = errors.New("graph: connection already exists")
	ErrNoOutput            = errors.New("graph: node has no output handle")
	ErrNoInput             = errors.New("graph: node has no input handle")
)

// Store is the in-memory collection of nodes and connections.
// It is safe for concurrent use; every accessor returns copies.
type Store struct {
	mu     sync.RWMutex
	graph  *simple.DirectedGraph
	nodes  map[model.NodeID]*model.Node
	conns  []model.ConnectionKey // Insertion order, for stable rendering and blend order
	nextID int64
	pick   func(n int) int
}

// Option configures a Store.
type Option func(*Store)

// WithPicker replaces the random source used to choose default prompts.
func WithPicker(pick func(n int) int) Option {
	return func(s *Store) {
		s.pick = pick
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		graph:  simple.NewDirectedGraph(),
		nodes:  make(map[model.NodeID]*model.Node),
		conns:  make([]model.ConnectionKey, 0),
		nextID: 1,
		pick:   RandomPick,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddNode creates a node of the given kind at a world position.
// initialData is merged over the kind's defaults.
func (s *Store) AddNode(kind model.Kind, position geom.Point, initialData model.NodeData) (model.NodeID, error) {
	if _, err := model.ParseKind(string(kind)); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.NodeID(s.nextID)
	s.nextID++

	data := DefaultData(kind, s.pick)
	data.Merge(initialData)

	s.nodes[id] = &model.Node{
		ID:           id,
		Kind:         kind,
		Position:     position,
		Data:         data,
		ImageVersion: imageVersion(data),
	}
	s.graph.AddNode(simple.Node(id))

	return id, nil
}

// UpdateNodeData merges patch into the node's data.
// Returns false without error if the node no longer exists.
func (s *Store) UpdateNodeData(id model.NodeID, patch model.NodeData) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[id]
	if !exists {
		return false
	}
	node.Data.Merge(patch)
	if patch.Image != nil {
		node.ImageVersion = imageVersion(node.Data)
	}
	return true
}

func imageVersion(d model.NodeData) string {
	if !d.HasImage() {
		return ""
	}
	return imageuri.Version(d.ImageURI())
}

// MoveNode translates a node by a world-space delta.
func (s *Store) MoveNode(id model.NodeID, delta geom.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, exists := s.nodes[id]
	if !exists {
		return false
	}
	node.Position = node.Position.Add(delta)
	return true
}

// DeleteNode removes a node and every connection that touches it.
func (s *Store) DeleteNode(id model.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; !exists {
		return false
	}
	delete(s.nodes, id)
	s.removeConnectionsInvolving(id)
	s.graph.RemoveNode(int64(id))
	return true
}

// AddConnection connects from's output to to's input.
func (s *Store) AddConnection(from, to model.NodeID) (model.Connection, error) {
	if from == to {
		return model.Connection{}, fmt.Errorf("%w: %d", ErrSelfLoop, from)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fromNode, exists := s.nodes[from]
	if !exists {
		return model.Connection{}, fmt.Errorf("%w: %d", ErrNodeNotFound, from)
	}
	toNode, exists := s.nodes[to]
	if !exists {
		return model.Connection{}, fmt.Errorf("%w: %d", ErrNodeNotFound, to)
	}
	if !fromNode.Kind.HasOutput() {
		return model.Connection{}, fmt.Errorf("%w: %s node %d", ErrNoOutput, fromNode.Kind, from)
	}
	if !toNode.Kind.HasInput() {
		return model.Connection{}, fmt.Errorf("%w: %s node %d", ErrNoInput, toNode.Kind, to)
	}

	if s.graph.HasEdgeFromTo(int64(from), int64(to)) {
		return model.Connection{}, fmt.Errorf("%w: %d -> %d", ErrDuplicateConnection, from, to)
	}

	s.graph.SetEdge(s.graph.NewEdge(s.graph.Node(int64(from)), s.graph.Node(int64(to))))
	conn := model.NewConnection(from, to)
	s.conns = append(s.conns, conn.ConnectionKey)

	return conn, nil
}

// RemoveConnection deletes a single connection.
func (s *Store) RemoveConnection(from, to model.NodeID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.graph.HasEdgeFromTo(int64(from), int64(to)) {
		return false
	}
	s.graph.RemoveEdge(int64(from), int64(to))

	key := model.ConnectionKey{From: from, To: to}
	s.conns = slices.DeleteFunc(s.conns, func(k model.ConnectionKey) bool {
		return k == key
	})
	return true
}

// RemoveConnectionsInvolving deletes every connection with id as an endpoint
// and returns how many were removed.
func (s *Store) RemoveConnectionsInvolving(id model.NodeID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeConnectionsInvolving(id)
}

func (s *Store) removeConnectionsInvolving(id model.NodeID) int {
	before := len(s.conns)
	s.conns = slices.DeleteFunc(s.conns, func(k model.ConnectionKey) bool {
		if !k.Involves(id) {
			return false
		}
		s.graph.RemoveEdge(int64(k.From), int64(k.To))
		return true
	})
	return before - len(s.conns)
}

// Node returns a copy of a node.
func (s *Store) Node(id model.NodeID) (model.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, exists := s.nodes[id]
	if !exists {
		return model.Node{}, false
	}
	return node.Clone(), true
}

// Nodes returns copies of all nodes ordered by id.
func (s *Store) Nodes() []model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedNodes()
}

func (s *Store) sortedNodes() []model.Node {
	nodes := make([]model.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		nodes = append(nodes, node.Clone())
	}
	slices.SortFunc(nodes, func(a, b model.Node) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return nodes
}

// Connections returns all connections in the order they were made.
func (s *Store) Connections() []model.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.connections()
}

func (s *Store) connections() []model.Connection {
	conns := make([]model.Connection, 0, len(s.conns))
	for _, k := range s.conns {
		conns = append(conns, model.NewConnection(k.From, k.To))
	}
	return conns
}

// Snapshot returns nodes and connections read under a single lock.
func (s *Store) Snapshot() ([]model.Node, []model.Connection) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedNodes(), s.connections()
}

// Inputs returns the nodes currently connected into id, in connection order.
// The result reflects the live graph at call time.
func (s *Store) Inputs(id model.NodeID) []model.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.graph.Node(int64(id)) == nil {
		return nil
	}

	var inputs []model.Node
	for _, k := range s.conns {
		if k.To != id {
			continue
		}
		if node, exists := s.nodes[k.From]; exists {
			inputs = append(inputs, node.Clone())
		}
	}
	return inputs
}

// HasConnection returns true if the ordered pair is connected.
func (s *Store) HasConnection(from, to model.NodeID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.graph.HasEdgeFromTo(int64(from), int64(to))
}
