package prim

import (
	"github.com/Faultbox/daeprim/pkg/collada"
	"github.com/Faultbox/daeprim/pkg/math"
)

// ResolvedNode is a top-level scene node reduced to what geometry
// extraction needs.
type ResolvedNode struct {
	ID        string
	Transform math.Mat4
	MeshID    string // Bound geometry id, empty if none

	// MaterialBindings maps polygon list material symbols to material ids.
	MaterialBindings map[string]string
}

// ResolveNodes walks the top-level nodes of the first visual scene. Further
// scenes and child nodes are ignored.
func ResolveNodes(doc *collada.Document) []ResolvedNode {
	if doc == nil || len(doc.VisualScenes) == 0 {
		return nil
	}

	scene := doc.VisualScenes[0]
	nodes := make([]ResolvedNode, 0, len(scene.Nodes))
	for _, node := range scene.Nodes {
		n := ResolvedNode{
			ID:        node.ID,
			Transform: math.Identity(),
		}

		// The document matrix is row-major; it is stored as
		// m[col*4+row] = source[row*4+col].
		if node.Matrix != nil {
			n.Transform = math.FromRowMajor(*node.Matrix)
		}

		if inst := node.Geometry; inst != nil && inst.URL != "" {
			n.MeshID = refID(inst.URL)
			if len(inst.Materials) > 0 {
				n.MaterialBindings = make(map[string]string, len(inst.Materials))
				for _, b := range inst.Materials {
					n.MaterialBindings[b.Symbol] = refID(b.Target)
				}
			}
		}

		nodes = append(nodes, n)
	}
	return nodes
}

// findNode returns the first node bound to the geometry, or nil.
func findNode(nodes []ResolvedNode, meshID string) *ResolvedNode {
	for i := range nodes {
		if nodes[i].MeshID == meshID {
			return &nodes[i]
		}
	}
	return nil
}
