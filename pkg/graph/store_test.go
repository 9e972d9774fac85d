package graph

import (
	"errors"
	"testing"

	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/model"
)

func firstPick(int) int { return 0 }

func mustAdd(t *testing.T, s *Store, kind model.Kind) model.NodeID {
	t.Helper()
	id, err := s.AddNode(kind, geom.Point{}, model.NodeData{})
	if err != nil {
		t.Fatalf("AddNode(%s) failed: %v", kind, err)
	}
	return id
}

func TestNewStore(t *testing.T) {
	s := NewStore()
	if s == nil {
		t.Fatal("NewStore() returned nil")
	}

	if len(s.Nodes()) != 0 {
		t.Errorf("New store should have 0 nodes, got %d", len(s.Nodes()))
	}
	if len(s.Connections()) != 0 {
		t.Errorf("New store should have 0 connections, got %d", len(s.Connections()))
	}
}

func TestAddNodeIDsAreUnique(t *testing.T) {
	s := NewStore()
	seen := make(map[model.NodeID]bool)

	for i := 0; i < 500; i++ {
		kind := model.Kinds[i%len(model.Kinds)]
		id := mustAdd(t, s, kind)
		if seen[id] {
			t.Fatalf("Duplicate id %d after %d inserts", id, i)
		}
		seen[id] = true

		// Deleting must not free ids for reuse
		if i%3 == 0 {
			s.DeleteNode(id)
		}
	}
}

func TestAddNodeDefaults(t *testing.T) {
	s := NewStore(WithPicker(firstPick))

	gen := mustAdd(t, s, model.KindGenerate)
	out := mustAdd(t, s, model.KindOutput)
	up := mustAdd(t, s, model.KindUpload)

	node, _ := s.Node(gen)
	if node.Data.PromptText() != SamplePrompts[0] {
		t.Errorf("Expected default prompt %q, got %q", SamplePrompts[0], node.Data.PromptText())
	}

	node, _ = s.Node(out)
	if node.Data.InstructionsText() != SeedInstructions[0] {
		t.Errorf("Expected default instructions %q, got %q", SeedInstructions[0], node.Data.InstructionsText())
	}

	node, _ = s.Node(up)
	if node.Data.Prompt != nil || node.Data.Image != nil {
		t.Errorf("Expected empty upload data, got %+v", node.Data)
	}
}

func TestSampleLists(t *testing.T) {
	if len(SamplePrompts) != 5 || len(SeedInstructions) != 5 || len(SampleInstructions) != 20 {
		t.Fatalf("Unexpected list sizes: %d prompts, %d seed and %d sample instructions",
			len(SamplePrompts), len(SeedInstructions), len(SampleInstructions))
	}
	if SeedInstructions[0] != "Blend the two images seamlessly." {
		t.Errorf("Unexpected first seed %q", SeedInstructions[0])
	}
	if last := SampleInstructions[19]; last != "Create a whimsical and magical scene by merging the two inputs." {
		t.Errorf("Unexpected last sample %q", last)
	}

	// The initial output seeds from its own list, whatever the pick
	for i := range SeedInstructions {
		s := NewStore(WithPicker(func(int) int { return i }))
		ids, err := Populate(s, InitialLayout)
		if err != nil {
			t.Fatalf("Populate failed: %v", err)
		}
		out, _ := s.Node(ids[2])
		if got := out.Data.InstructionsText(); got != SeedInstructions[i] {
			t.Errorf("Pick %d: expected %q, got %q", i, SeedInstructions[i], got)
		}
	}
}

func TestAddNodeInitialDataOverridesDefaults(t *testing.T) {
	s := NewStore(WithPicker(firstPick))

	id, err := s.AddNode(model.KindGenerate, geom.Point{X: 5, Y: 6}, model.NodeData{Prompt: model.String("a red cube")})
	if err != nil {
		t.Fatalf("AddNode failed: %v", err)
	}

	node, _ := s.Node(id)
	if node.Data.PromptText() != "a red cube" {
		t.Errorf("Expected prompt override, got %q", node.Data.PromptText())
	}
	if node.Position != (geom.Point{X: 5, Y: 6}) {
		t.Errorf("Expected position (5,6), got %v", node.Position)
	}
}

func TestAddNodeRejectsUnknownKind(t *testing.T) {
	s := NewStore()
	if _, err := s.AddNode("sculpt", geom.Point{}, model.NodeData{}); !errors.Is(err, model.ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestUpdateNodeDataMerges(t *testing.T) {
	s := NewStore()
	id := mustAdd(t, s, model.KindPrompt)

	s.UpdateNodeData(id, model.NodeData{Prompt: model.String("cat")})
	s.UpdateNodeData(id, model.NodeData{Context: model.String("watercolor")})

	node, _ := s.Node(id)
	if node.Data.PromptText() != "cat" || node.Data.ContextText() != "watercolor" {
		t.Errorf("Expected merged data, got %+v", node.Data)
	}
}

func TestUpdateMissingNodeIsNoop(t *testing.T) {
	s := NewStore()
	id := mustAdd(t, s, model.KindGenerate)
	s.DeleteNode(id)

	if s.UpdateNodeData(id, model.NodeData{IsProcessing: model.Bool(false)}) {
		t.Error("Expected update of deleted node to report false")
	}
	if s.MoveNode(id, geom.Point{X: 1}) {
		t.Error("Expected move of deleted node to report false")
	}
	if len(s.Nodes()) != 0 {
		t.Errorf("Update must not resurrect node, store has %d nodes", len(s.Nodes()))
	}
}

func TestNodeReturnsCopy(t *testing.T) {
	s := NewStore()
	id := mustAdd(t, s, model.KindGenerate)

	node, _ := s.Node(id)
	*node.Data.Prompt = "mutated"
	node.Position.X = 999

	again, _ := s.Node(id)
	if again.Data.PromptText() == "mutated" || again.Position.X == 999 {
		t.Error("Mutating a returned node leaked into the store")
	}
}

func TestMoveNode(t *testing.T) {
	s := NewStore()
	id, _ := s.AddNode(model.KindUpload, geom.Point{X: 10, Y: 10}, model.NodeData{})

	s.MoveNode(id, geom.Point{X: 5, Y: -2.5})
	s.MoveNode(id, geom.Point{X: 5, Y: -2.5})

	node, _ := s.Node(id)
	if node.Position != (geom.Point{X: 20, Y: 5}) {
		t.Errorf("Expected (20,5), got %v", node.Position)
	}
}

func TestAddConnectionRejectsSelfLoop(t *testing.T) {
	s := NewStore()
	id := mustAdd(t, s, model.KindUpload)

	_, err := s.AddConnection(id, id)
	if !errors.Is(err, ErrSelfLoop) {
		t.Fatalf("Expected ErrSelfLoop, got %v", err)
	}
	if len(s.Connections()) != 0 {
		t.Error("Self loop attempt changed the connection set")
	}
}

func TestAddConnectionRejectsDuplicate(t *testing.T) {
	s := NewStore()
	a := mustAdd(t, s, model.KindGenerate)
	b := mustAdd(t, s, model.KindOutput)

	if _, err := s.AddConnection(a, b); err != nil {
		t.Fatalf("First connection failed: %v", err)
	}
	_, err := s.AddConnection(a, b)
	if !errors.Is(err, ErrDuplicateConnection) {
		t.Fatalf("Expected ErrDuplicateConnection, got %v", err)
	}

	conns := s.Connections()
	if len(conns) != 1 {
		t.Fatalf("Expected exactly 1 connection, got %d", len(conns))
	}
	if conns[0].From != a || conns[0].To != b {
		t.Errorf("Expected %d->%d, got %s", a, b, conns[0].ID)
	}
}

func TestAddConnectionAllowsReverseAndFanIn(t *testing.T) {
	s := NewStore()
	up := mustAdd(t, s, model.KindUpload)
	prompt := mustAdd(t, s, model.KindPrompt)
	gen := mustAdd(t, s, model.KindGenerate)
	out := mustAdd(t, s, model.KindOutput)

	pairs := [][2]model.NodeID{{up, prompt}, {prompt, up}, {up, out}, {gen, out}, {prompt, out}}
	for _, p := range pairs {
		if _, err := s.AddConnection(p[0], p[1]); err != nil {
			t.Fatalf("AddConnection(%d,%d) failed: %v", p[0], p[1], err)
		}
	}

	inputs := s.Inputs(out)
	if len(inputs) != 3 {
		t.Fatalf("Expected 3 inputs into output, got %d", len(inputs))
	}
	if inputs[0].ID != up || inputs[1].ID != gen || inputs[2].ID != prompt {
		t.Errorf("Inputs not in connection order: %d %d %d", inputs[0].ID, inputs[1].ID, inputs[2].ID)
	}

	if !s.HasConnection(up, prompt) || !s.HasConnection(up, out) || s.HasConnection(out, up) {
		t.Error("Expected upload to feed the prompt and the output, and nothing back")
	}
}

func TestAddConnectionChecksHandles(t *testing.T) {
	s := NewStore()
	gen := mustAdd(t, s, model.KindGenerate)
	out := mustAdd(t, s, model.KindOutput)
	up := mustAdd(t, s, model.KindUpload)

	if _, err := s.AddConnection(out, up); !errors.Is(err, ErrNoOutput) {
		t.Errorf("Expected ErrNoOutput from output node, got %v", err)
	}
	if _, err := s.AddConnection(up, gen); !errors.Is(err, ErrNoInput) {
		t.Errorf("Expected ErrNoInput into generate node, got %v", err)
	}
	if _, err := s.AddConnection(up, 999); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound, got %v", err)
	}
}

func TestDeleteNodeCascades(t *testing.T) {
	s := NewStore()
	gen := mustAdd(t, s, model.KindGenerate)
	up := mustAdd(t, s, model.KindUpload)
	prompt := mustAdd(t, s, model.KindPrompt)
	out := mustAdd(t, s, model.KindOutput)

	for _, p := range [][2]model.NodeID{{gen, up}, {up, prompt}, {prompt, up}, {up, out}, {gen, out}} {
		if _, err := s.AddConnection(p[0], p[1]); err != nil {
			t.Fatalf("AddConnection failed: %v", err)
		}
	}

	if !s.DeleteNode(up) {
		t.Fatal("DeleteNode reported missing node")
	}

	for _, c := range s.Connections() {
		if c.Involves(up) {
			t.Errorf("Dangling connection %s after delete", c.ID)
		}
	}
	if len(s.Connections()) != 1 {
		t.Errorf("Expected only gen->out to survive, got %d connections", len(s.Connections()))
	}
	if s.HasConnection(gen, up) || s.HasConnection(up, out) {
		t.Error("Graph still reports edges to deleted node")
	}

	// The id cannot be reconnected once gone
	if _, err := s.AddConnection(gen, up); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("Expected ErrNodeNotFound for deleted node, got %v", err)
	}
}

func TestRemoveConnection(t *testing.T) {
	s := NewStore()
	a := mustAdd(t, s, model.KindUpload)
	b := mustAdd(t, s, model.KindOutput)

	if s.RemoveConnection(a, b) {
		t.Error("Removing a missing connection should report false")
	}

	s.AddConnection(a, b)
	if !s.RemoveConnection(a, b) {
		t.Fatal("RemoveConnection reported false for existing connection")
	}
	if s.HasConnection(a, b) || len(s.Connections()) != 0 {
		t.Error("Connection still present after removal")
	}

	// Can be made again afterwards
	if _, err := s.AddConnection(a, b); err != nil {
		t.Errorf("Reconnect failed: %v", err)
	}
}

func TestRemoveConnectionsInvolving(t *testing.T) {
	s := NewStore()
	a := mustAdd(t, s, model.KindUpload)
	b := mustAdd(t, s, model.KindPrompt)
	c := mustAdd(t, s, model.KindOutput)

	s.AddConnection(a, b)
	s.AddConnection(b, c)
	s.AddConnection(a, c)

	if n := s.RemoveConnectionsInvolving(b); n != 2 {
		t.Errorf("Expected 2 removed, got %d", n)
	}
	if len(s.Nodes()) != 3 {
		t.Error("RemoveConnectionsInvolving must not delete nodes")
	}
}

func TestPopulateInitialLayout(t *testing.T) {
	s := NewStore(WithPicker(firstPick))

	ids, err := Populate(s, InitialLayout)
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("Expected 3 nodes, got %d", len(ids))
	}

	out, _ := s.Node(ids[2])
	if out.Kind != model.KindOutput || out.Position != (geom.Point{X: 800, Y: 375}) {
		t.Errorf("Unexpected output seed: %+v", out)
	}
}
