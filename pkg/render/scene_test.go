package render

import (
	"strings"
	"testing"

	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/imageuri"
	"github.com/ritzau/node-composer/pkg/model"
)

func TestAnchors(t *testing.T) {
	pos := geom.Point{X: 300, Y: 250}

	if got := DefaultLayout.OutputAnchor(pos); got != (geom.Point{X: 460, Y: 250}) {
		t.Errorf("Expected output anchor (460,250), got %v", got)
	}
	if got := DefaultLayout.InputAnchor(pos); got != (geom.Point{X: 140, Y: 250}) {
		t.Errorf("Expected input anchor (140,250), got %v", got)
	}
}

func TestConnectionPath(t *testing.T) {
	got := DefaultLayout.ConnectionPath(geom.Point{X: 460, Y: 250}, geom.Point{X: 640, Y: 375.5})
	want := "M460,250 C510,250 590,375.5 640,375.5"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestRubberBandPath(t *testing.T) {
	got := RubberBandPath(geom.Point{X: 1, Y: 2}, geom.Point{X: -3.25, Y: 4})
	if got != "M1,2 L-3.25,4" {
		t.Errorf("Unexpected rubber band path %q", got)
	}
}

func TestBuildScene(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, Kind: model.KindGenerate, Position: geom.Point{X: 300, Y: 250}},
		{ID: 3, Kind: model.KindOutput, Position: geom.Point{X: 800, Y: 375}},
	}
	conns := []model.Connection{
		model.NewConnection(1, 3),
		model.NewConnection(1, 7), // Endpoint not in the node list
	}

	scene := Build(nodes, conns, Input{
		View:    geom.ViewTransform{Scale: 1.5, X: 10, Y: 20},
		Layout:  DefaultLayout,
		Mode:    "drawing-connection",
		Pointer: geom.Point{X: 700, Y: 300},
		Drawing: &Drawing{From: 1, Start: geom.Point{X: 460, Y: 250}},
	})

	if len(scene.Nodes) != 2 {
		t.Fatalf("Expected 2 node views, got %d", len(scene.Nodes))
	}
	if len(scene.Connections) != 1 {
		t.Fatalf("Expected the dangling connection to be skipped, got %d", len(scene.Connections))
	}
	if scene.Connections[0].Path != "M460,250 C510,250 590,375 640,375" {
		t.Errorf("Unexpected connection path %q", scene.Connections[0].Path)
	}
	if scene.RubberBand == nil || scene.RubberBand.Path != "M460,250 L700,300" {
		t.Errorf("Unexpected rubber band %+v", scene.RubberBand)
	}
	if scene.View.Scale != 1.5 {
		t.Errorf("Expected view to be carried through, got %+v", scene.View)
	}
}

func TestViewNodeHandles(t *testing.T) {
	gen := ViewNode(model.Node{ID: 1, Kind: model.KindGenerate}, DefaultLayout, false)
	if gen.HasInput || gen.InputAnchor != nil {
		t.Error("Generate widget must not expose an input handle")
	}
	if !gen.HasOutput || gen.OutputAnchor == nil {
		t.Error("Generate widget must expose an output handle")
	}

	out := ViewNode(model.Node{ID: 2, Kind: model.KindOutput}, DefaultLayout, false)
	if out.HasOutput || out.OutputAnchor != nil {
		t.Error("Output widget must not expose an output handle")
	}
}

func TestViewNodeProcessingDisablesTrigger(t *testing.T) {
	n := model.Node{ID: 1, Kind: model.KindGenerate, Data: model.NodeData{IsProcessing: model.Bool(true)}}
	v := ViewNode(n, DefaultLayout, false)

	c, ok := v.Find(ControlGenerate)
	if !ok {
		t.Fatal("Generate widget without image should offer Generate")
	}
	if c.Enabled {
		t.Error("Generate control must be disabled while processing")
	}
	if !v.Processing {
		t.Error("Expected spinner flag while processing")
	}
}

func TestViewNodeStaleOutput(t *testing.T) {
	n := model.Node{ID: 3, Kind: model.KindOutput, Data: model.NodeData{Image: model.String("data:image/png;base64,AA==")}}

	fresh := ViewNode(n, DefaultLayout, false)
	if d, _ := fresh.Find(ControlDownload); !d.Enabled {
		t.Error("Download should be enabled for a fresh output")
	}

	stale := ViewNode(n, DefaultLayout, true)
	if d, _ := stale.Find(ControlDownload); d.Enabled {
		t.Error("Download must be gated while stale")
	}
	if b, ok := stale.Find(ControlBlend); !ok || b.Label != "Regenerate" {
		t.Errorf("Expected Regenerate control on stale output, got %+v", b)
	}
	if stale.Warning == "" {
		t.Error("Expected a visible warning on stale output")
	}
}

func TestViewNodeSendsImageByURL(t *testing.T) {
	uri := "data:image/png;base64," + strings.Repeat("A", 4096)
	n := model.Node{
		ID:           7,
		Kind:         model.KindOutput,
		Data:         model.NodeData{Image: model.String(uri), InputStates: map[model.NodeID]string{1: uri}},
		ImageVersion: "0123456789abcdef",
	}

	v := ViewNode(n, DefaultLayout, false)
	if v.Data.Image != nil || v.Data.InputStates != nil {
		t.Error("Expected image payloads to be left out of the widget")
	}
	if v.ImageURL != "/api/nodes/7/image?v=0123456789abcdef" {
		t.Errorf("Unexpected image URL %q", v.ImageURL)
	}
	if n.Data.Image == nil {
		t.Error("ViewNode must not modify the node")
	}

	n.ImageVersion = ""
	if v := ViewNode(n, DefaultLayout, false); v.ImageURL != ImageURL(7, imageuri.Version(uri)) {
		t.Errorf("Expected a computed version, got %q", v.ImageURL)
	}
}

func TestViewNodeUnknownKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for unhandled kind")
		}
	}()
	ViewNode(model.Node{ID: 1, Kind: "sculpt"}, DefaultLayout, false)
}
