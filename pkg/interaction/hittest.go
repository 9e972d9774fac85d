package interaction

import (
	"github.com/ritzau/node-composer/pkg/geom"
	"github.com/ritzau/node-composer/pkg/model"
	"github.com/ritzau/node-composer/pkg/render"
)

// HitTest returns the topmost node whose bounds contain the world point.
// Nodes are drawn in id order, so the highest id is on top.
func HitTest(nodes []model.Node, world geom.Point, l render.Layout) (model.Node, bool) {
	var (
		hit   model.Node
		found bool
	)
	for _, n := range nodes {
		if !l.Bounds(n.Position).Contains(world) {
			continue
		}
		if !found || n.ID > hit.ID {
			hit, found = n, true
		}
	}
	return hit, found
}
