// Package collada provides the COLLADA document model and its XML decoder.
package collada

import (
	"errors"
	"fmt"
)

// COLLADA decoding errors.
var (
	ErrInvalidDocument    = errors.New("invalid COLLADA document")
	ErrUnsupportedVersion = errors.New("unsupported COLLADA version")
	ErrInvalidFloatArray  = errors.New("invalid float array")
	ErrInvalidMatrix      = errors.New("invalid node matrix")
	ErrInvalidColor       = errors.New("invalid color")
)

// UpAxis is the world axis the authoring tool treated as up.
type UpAxis int

const (
	UpAxisX UpAxis = iota + 1
	UpAxisY
	UpAxisZ
)

// String returns the COLLADA spelling of the axis.
func (a UpAxis) String() string {
	switch a {
	case UpAxisX:
		return "X_UP"
	case UpAxisY:
		return "Y_UP"
	case UpAxisZ:
		return "Z_UP"
	default:
		return fmt.Sprintf("Unknown(%d)", int(a))
	}
}

// ShadingModel is the profile_COMMON technique an effect uses.
type ShadingModel int

const (
	ShadingNone ShadingModel = iota
	ShadingPhong
	ShadingLambert
	ShadingBlinn
	ShadingConstant
)

// String returns a human-readable shading model name.
func (s ShadingModel) String() string {
	switch s {
	case ShadingNone:
		return "None"
	case ShadingPhong:
		return "Phong"
	case ShadingLambert:
		return "Lambert"
	case ShadingBlinn:
		return "Blinn"
	case ShadingConstant:
		return "Constant"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// DiffuseKind tells which half of a Diffuse is set.
type DiffuseKind int

const (
	DiffuseColor DiffuseKind = iota
	DiffuseTexture
)

// Diffuse is the diffuse term of a shading technique: either a flat RGBA
// color or a texture reference.
type Diffuse struct {
	Kind  DiffuseKind
	Color [4]float32 // DiffuseColor only

	// DiffuseTexture only. Texture is the sampler reference, already followed
	// through sampler2D/surface params to an image id when the effect declares
	// them. TexCoord is the texture-coordinate set name.
	Texture  string
	TexCoord string
}

// Asset holds the document metadata the importer cares about.
type Asset struct {
	UpAxis        UpAxis
	Meter         float32 // Unit-to-meter factor
	UnitName      string
	AuthoringTool string
	Created       string
	Modified      string
}

// Image is a library_images entry.
type Image struct {
	ID       string
	Name     string
	InitFrom string // File reference
}

// Material is a library_materials entry.
type Material struct {
	ID        string
	Name      string
	EffectURL string // instance_effect url, e.g. "#effect-id"
}

// Effect is a library_effects entry.
type Effect struct {
	ID      string
	Name    string
	Shading ShadingModel
	Diffuse *Diffuse // nil when the technique has no diffuse term
}

// MaterialBinding maps a polygon list material symbol to a material url.
type MaterialBinding struct {
	Symbol string
	Target string
}

// InstanceGeometry is a node's reference to a geometry.
type InstanceGeometry struct {
	URL       string
	Materials []MaterialBinding
}

// Node is a visual scene node.
type Node struct {
	ID       string
	Name     string
	Matrix   *[16]float32      // Row-major, as written in the document
	Geometry *InstanceGeometry // First instance_geometry, if any
	Children []Node
}

// VisualScene is a library_visual_scenes entry.
type VisualScene struct {
	ID    string
	Name  string
	Nodes []Node
}

// Input binds a semantic to a source.
type Input struct {
	Semantic string
	Source   string // url, e.g. "#mesh-positions"
	Offset   int
	Set      int
}

// Source is a named flat float buffer.
type Source struct {
	ID     string
	Floats []float32
	Stride int // accessor stride, 0 if not declared
}

// Vertices names the position inputs of a mesh.
type Vertices struct {
	ID     string
	Inputs []Input
}

// PolygonList is a polylist or triangles element. The index sequences are
// kept as text.
type PolygonList struct {
	Material     string
	Inputs       []Input
	VertexCounts string // vcount; empty for triangles
	Indices      string // p
	Triangles    bool
}

// Mesh is the geometric data of a geometry.
type Mesh struct {
	Sources  []Source
	Vertices Vertices
	Polygons []PolygonList
}

// Geometry is a library_geometries entry. Mesh is nil for non-mesh geometry
// (splines, convex meshes).
type Geometry struct {
	ID   string
	Name string
	Mesh *Mesh
}

// Document is a decoded COLLADA file, one typed collection per library.
type Document struct {
	Version      string
	Asset        Asset
	Images       []Image
	Materials    []Material
	Effects      []Effect
	VisualScenes []VisualScene
	Geometries   []Geometry
}

// NodeCount returns the number of nodes in all visual scenes, children included.
func (d *Document) NodeCount() int {
	var count func(nodes []Node) int
	count = func(nodes []Node) int {
		n := len(nodes)
		for i := range nodes {
			n += count(nodes[i].Children)
		}
		return n
	}

	total := 0
	for _, vs := range d.VisualScenes {
		total += count(vs.Nodes)
	}
	return total
}

// PolygonListCount returns the number of polygon lists across all meshes.
func (d *Document) PolygonListCount() int {
	total := 0
	for _, g := range d.Geometries {
		if g.Mesh != nil {
			total += len(g.Mesh.Polygons)
		}
	}
	return total
}
