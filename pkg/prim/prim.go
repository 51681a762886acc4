// Package prim turns decoded COLLADA documents into renderer-ready mesh
// primitives: flat materials, triangulated faces and positions normalized
// into a unit cube.
package prim

import (
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/Faultbox/daeprim/pkg/math"
)

// Load errors. ErrStructural covers malformed documents and dangling
// references; Loader recovers it into an empty result. ErrUnsupportedFormat
// means the asset has to be re-exported triangulated and is never recovered.
var (
	ErrStructural        = errors.New("malformed COLLADA document")
	ErrUnsupportedFormat = errors.New("unsupported format: only triangulated meshes are supported")
)

// Material is a flattened material/effect/image chain.
type Material struct {
	ID           string     // Material id, not effect id
	DiffuseColor [4]float32 // RGBA, opaque white when the effect uses a texture
	Texture      string     // Image filename when resolved, raw reference otherwise

	// TextureResolved reports whether Texture names an image file.
	TextureResolved bool
}

// TextureFile returns the diffuse texture filename. Unresolved references
// count as no texture.
func (m *Material) TextureFile() (string, bool) {
	if m == nil || m.Texture == "" || !m.TextureResolved {
		return "", false
	}
	return m.Texture, true
}

// Vertex is one triangle corner.
type Vertex struct {
	Position math.Vec3 // Normalized space
	Normal   math.Vec3 // Zero if the list has no normals
	TexCoord math.Vec2 // Zero if the list has no texture coordinates
}

// Face holds all triangles of one polygon list, three vertices per triangle.
type Face struct {
	MaterialID string
	Material   *Material // nil when MaterialID does not resolve
	Vertices   []Vertex
}

// TriangleCount returns the number of triangles in the face.
func (f *Face) TriangleCount() int {
	return len(f.Vertices) / 3
}

// Primitive is one geometry of the document.
//
// Positions are remapped per axis into [-0.5, 0.5] (0 on an axis with no
// extent). BoundMin and BoundMax are in the transformed space before that
// remap; Scale and Position (the box centre) restore it.
type Primitive struct {
	ID        string
	Name      string
	AssetID   uuid.UUID // Placeholder until the asset is stored
	Positions []math.Vec3

	BoundMin math.Vec3
	BoundMax math.Vec3
	Scale    math.Vec3 // BoundMax - BoundMin
	Position math.Vec3 // BoundMin + Scale/2

	// Transform is the unit/up-axis correction followed by the node matrix.
	// Positions went through it; vertex normals did not.
	Transform math.Mat4

	Faces []*Face
}

// WorldPosition maps a normalized position back into the transformed space.
func (p *Primitive) WorldPosition(v math.Vec3) math.Vec3 {
	return v.Mul(p.Scale).Add(p.Position)
}

// TriangleCount returns the number of triangles across all faces.
func (p *Primitive) TriangleCount() int {
	total := 0
	for _, f := range p.Faces {
		total += f.TriangleCount()
	}
	return total
}

// refID strips the leading '#' of a COLLADA url.
func refID(url string) string {
	return strings.TrimPrefix(strings.TrimSpace(url), "#")
}
