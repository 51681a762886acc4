// Package export writes imported primitives to interchange formats.
package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/Faultbox/daeprim/pkg/encoding"
	"github.com/Faultbox/daeprim/pkg/math"
	"github.com/Faultbox/daeprim/pkg/prim"
)

// ErrNoPrimitives is returned when there is nothing to export.
var ErrNoPrimitives = errors.New("no primitives to export")

// GLTF builds a glTF document with one node per primitive. Vertex data stays
// in the normalized unit cube; each node's translation and scale place the
// primitive back at its original bounds. Each Face becomes one mesh
// primitive with welded, indexed vertices.
func GLTF(prims []*prim.Primitive) (*gltf.Document, error) {
	if len(prims) == 0 {
		return nil, ErrNoPrimitives
	}

	doc := gltf.NewDocument()
	b := &builder{
		doc:       doc,
		materials: make(map[string]uint32),
		textures:  make(map[string]uint32),
	}

	for _, p := range prims {
		node := &gltf.Node{
			Name:        p.ID,
			Translation: p.Position.Array(),
			Rotation:    [4]float32{0, 0, 0, 1},
			Scale:       nodeScale(p),
		}

		if mesh := b.mesh(p); mesh != nil {
			doc.Meshes = append(doc.Meshes, mesh)
			node.Mesh = gltf.Index(uint32(len(doc.Meshes) - 1))
		}

		doc.Nodes = append(doc.Nodes, node)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, uint32(len(doc.Nodes)-1))
	}

	return doc, nil
}

// WriteGLTF exports prims to path. A .glb extension writes the binary
// container; anything else writes JSON with embedded buffers.
func WriteGLTF(path string, prims []*prim.Primitive) error {
	doc, err := GLTF(prims)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".glb") {
		if err := gltf.SaveBinary(doc, path); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
		return nil
	}

	for _, buf := range doc.Buffers {
		buf.EmbeddedResource()
	}
	if err := gltf.Save(doc, path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// nodeScale returns the primitive scale with flat axes set to 1, since every
// normalized coordinate on such an axis is already 0.
func nodeScale(p *prim.Primitive) [3]float32 {
	s := p.Scale.Array()
	for i := range s {
		if s[i] == 0 {
			s[i] = 1
		}
	}
	return s
}

type builder struct {
	doc       *gltf.Document
	materials map[string]uint32 // prim material id -> glTF material index
	textures  map[string]uint32 // image uri -> glTF texture index
}

func (b *builder) mesh(p *prim.Primitive) *gltf.Mesh {
	var primitives []*gltf.Primitive
	for _, face := range p.Faces {
		if len(face.Vertices) == 0 {
			continue
		}
		primitives = append(primitives, b.primitive(p, face))
	}
	if len(primitives) == 0 {
		return nil
	}
	return &gltf.Mesh{Name: p.Name, Primitives: primitives}
}

func (b *builder) primitive(p *prim.Primitive, face *prim.Face) *gltf.Primitive {
	var (
		positions [][3]float32
		normals   [][3]float32
		uvs       [][2]float32
		indices   []uint32
	)
	withNormals := true

	// Identical corners share one vertex.
	seen := make(map[prim.Vertex]uint32, len(face.Vertices))
	for _, v := range face.Vertices {
		idx, ok := seen[v]
		if !ok {
			idx = uint32(len(positions))
			seen[v] = idx
			positions = append(positions, v.Position.Array())
			n, ok := meshNormal(p, v.Normal)
			withNormals = withNormals && ok
			normals = append(normals, n.Array())
			// glTF puts the texture origin at the top left.
			uvs = append(uvs, [2]float32{v.TexCoord.X, 1 - v.TexCoord.Y})
		}
		indices = append(indices, idx)
	}

	attrs := map[string]uint32{
		gltf.POSITION: modeler.WritePosition(b.doc, positions),
	}
	if withNormals && len(normals) > 0 {
		attrs[gltf.NORMAL] = modeler.WriteNormal(b.doc, normals)
	}
	if hasTexCoords(face) {
		attrs[gltf.TEXCOORD_0] = modeler.WriteTextureCoord(b.doc, uvs)
	}

	out := &gltf.Primitive{
		Attributes: attrs,
		Indices:    gltf.Index(modeler.WriteIndices(b.doc, indices)),
	}
	if face.Material != nil {
		out.Material = gltf.Index(b.material(face.Material))
	}
	return out
}

func (b *builder) material(m *prim.Material) uint32 {
	if idx, ok := b.materials[m.ID]; ok {
		return idx
	}

	color := m.DiffuseColor
	metallic := float32(0)
	mat := &gltf.Material{
		Name: m.ID,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &color,
			MetallicFactor:  &metallic,
		},
	}
	if color[3] < 1 {
		mat.AlphaMode = gltf.AlphaBlend
	}
	if file, ok := m.TextureFile(); ok {
		mat.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{Index: b.texture(file)}
	}

	b.doc.Materials = append(b.doc.Materials, mat)
	idx := uint32(len(b.doc.Materials) - 1)
	b.materials[m.ID] = idx
	return idx
}

func (b *builder) texture(file string) uint32 {
	uri := encoding.NormalizeTexturePath(file)
	if idx, ok := b.textures[uri]; ok {
		return idx
	}

	b.doc.Images = append(b.doc.Images, &gltf.Image{URI: uri})
	b.doc.Textures = append(b.doc.Textures, &gltf.Texture{
		Source: gltf.Index(uint32(len(b.doc.Images) - 1)),
	})
	idx := uint32(len(b.doc.Textures) - 1)
	b.textures[uri] = idx
	return idx
}

// meshNormal maps an authoring-space normal into the mesh space of the
// primitive's node: through the inverse transpose of p.Transform, then
// divided by the node scale the renderer will apply. ok is false for zero
// normals and singular transforms; glTF requires unit normals, so such a
// face omits the attribute.
func meshNormal(p *prim.Primitive, n math.Vec3) (math.Vec3, bool) {
	if n == (math.Vec3{}) {
		return n, false
	}
	world, ok := p.Transform.TransformNormal(n)
	if !ok {
		return math.Vec3{}, false
	}

	// The node scale S is applied to normals as S^-1, so pre-multiply by S.
	s := nodeScale(p)
	local := world.Mul(math.Vec3{X: s[0], Y: s[1], Z: s[2]}).Normalize()
	return local, local != (math.Vec3{})
}

func hasTexCoords(face *prim.Face) bool {
	if _, ok := face.Material.TextureFile(); ok {
		return true
	}
	for _, v := range face.Vertices {
		if v.TexCoord.X != 0 || v.TexCoord.Y != 0 {
			return true
		}
	}
	return false
}
