package actions

import "github.com/ritzau/node-composer/pkg/model"

// IsStale reports whether an output node's composite no longer reflects its
// inputs. inputs are the nodes currently connected into it. The node is stale
// when it holds an image and a snapshot, and either a connected input's image
// differs from its snapshot or a snapshotted input is no longer connected.
func IsStale(out model.Node, inputs []model.Node) bool {
	if !out.Data.HasImage() || out.Data.InputStates == nil {
		return false
	}

	connected := make(map[model.NodeID]bool, len(inputs))
	for _, in := range inputs {
		connected[in.ID] = true
		if out.Data.InputStates[in.ID] != in.Data.ImageURI() {
			return true
		}
	}
	for id := range out.Data.InputStates {
		if !connected[id] {
			return true
		}
	}
	return false
}

// StaleSet evaluates IsStale for every output node against one consistent
// view of the graph.
func StaleSet(nodes []model.Node, conns []model.Connection) map[model.NodeID]bool {
	byID := make(map[model.NodeID]model.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	inputs := make(map[model.NodeID][]model.Node)
	for _, c := range conns {
		if from, ok := byID[c.From]; ok {
			inputs[c.To] = append(inputs[c.To], from)
		}
	}

	stale := make(map[model.NodeID]bool)
	for _, n := range nodes {
		if n.Kind == model.KindOutput && IsStale(n, inputs[n.ID]) {
			stale[n.ID] = true
		}
	}
	return stale
}
