package export

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/daeprim/pkg/math"
	"github.com/Faultbox/daeprim/pkg/prim"
)

// testPrimitives returns a textured quad and an untextured triangle.
func testPrimitives() []*prim.Primitive {
	wood := &prim.Material{ID: "Wood-material", DiffuseColor: [4]float32{1, 1, 1, 1}, Texture: `textures\wood.png`, TextureResolved: true}
	glass := &prim.Material{ID: "Glass-material", DiffuseColor: [4]float32{0, 0, 1, 0.5}}

	a := math.Vec3{X: -0.5, Y: -0.5}
	b := math.Vec3{X: 0.5, Y: -0.5}
	c := math.Vec3{X: 0.5, Y: 0.5}
	d := math.Vec3{X: -0.5, Y: 0.5}
	up := math.Vec3{Z: 1}

	quad := &prim.Primitive{
		ID:        "Quad-mesh",
		Name:      "Quad",
		Positions: []math.Vec3{a, b, c, d},
		BoundMin:  math.Vec3{X: 0, Y: 0, Z: 2},
		BoundMax:  math.Vec3{X: 2, Y: 4, Z: 2},
		Scale:     math.Vec3{X: 2, Y: 4, Z: 0},
		Position:  math.Vec3{X: 1, Y: 2, Z: 2},
		Transform: math.Identity(),
		Faces: []*prim.Face{{
			MaterialID: wood.ID,
			Material:   wood,
			Vertices: []prim.Vertex{
				{Position: a, Normal: up, TexCoord: math.Vec2{}},
				{Position: b, Normal: up, TexCoord: math.Vec2{X: 1}},
				{Position: c, Normal: up, TexCoord: math.Vec2{X: 1, Y: 1}},
				{Position: a, Normal: up, TexCoord: math.Vec2{}},
				{Position: c, Normal: up, TexCoord: math.Vec2{X: 1, Y: 1}},
				{Position: d, Normal: up, TexCoord: math.Vec2{Y: 1}},
			},
		}},
	}

	tri := &prim.Primitive{
		ID:        "Tri-mesh",
		Positions: []math.Vec3{a, b, c},
		Scale:     math.Vec3{X: 1, Y: 1, Z: 1},
		Transform: math.Identity(),
		Faces: []*prim.Face{
			{
				MaterialID: glass.ID,
				Material:   glass,
				Vertices:   []prim.Vertex{{Position: a}, {Position: b}, {Position: c}},
			},
			{
				MaterialID: "Missing-material",
				Vertices:   []prim.Vertex{{Position: c}, {Position: b}, {Position: a}},
			},
		},
	}

	return []*prim.Primitive{quad, tri}
}

func TestGLTF(t *testing.T) {
	doc, err := GLTF(testPrimitives())
	if err != nil {
		t.Fatalf("GLTF: %v", err)
	}

	if len(doc.Nodes) != 2 || len(doc.Scenes[0].Nodes) != 2 {
		t.Fatalf("got %d nodes, %d in scene", len(doc.Nodes), len(doc.Scenes[0].Nodes))
	}
	if len(doc.Meshes) != 2 {
		t.Fatalf("got %d meshes, want 2", len(doc.Meshes))
	}

	quad := doc.Nodes[0]
	if quad.Translation != [3]float32{1, 2, 2} {
		t.Errorf("Translation = %v", quad.Translation)
	}
	// Flat Z extent keeps a unit scale.
	if quad.Scale != [3]float32{2, 4, 1} {
		t.Errorf("Scale = %v", quad.Scale)
	}

	qp := doc.Meshes[0].Primitives[0]
	if _, ok := qp.Attributes[gltf.NORMAL]; !ok {
		t.Error("quad has no NORMAL attribute")
	}
	if _, ok := qp.Attributes[gltf.TEXCOORD_0]; !ok {
		t.Error("quad has no TEXCOORD_0 attribute")
	}
	// Six corners weld into four vertices.
	if n := doc.Accessors[qp.Attributes[gltf.POSITION]].Count; n != 4 {
		t.Errorf("quad vertex count = %d, want 4", n)
	}
	if n := doc.Accessors[*qp.Indices].Count; n != 6 {
		t.Errorf("quad index count = %d, want 6", n)
	}

	if len(doc.Materials) != 2 {
		t.Fatalf("got %d materials, want 2", len(doc.Materials))
	}
	wood := doc.Materials[*qp.Material]
	if wood.PBRMetallicRoughness.BaseColorTexture == nil {
		t.Fatal("wood material has no texture")
	}
	if len(doc.Images) != 1 || doc.Images[0].URI != "textures/wood.png" {
		t.Errorf("images = %+v", doc.Images)
	}

	tri := doc.Meshes[1]
	if len(tri.Primitives) != 2 {
		t.Fatalf("got %d triangle primitives, want 2", len(tri.Primitives))
	}
	if _, ok := tri.Primitives[0].Attributes[gltf.NORMAL]; ok {
		t.Error("zero normals were exported")
	}
	glass := doc.Materials[*tri.Primitives[0].Material]
	if glass.AlphaMode != gltf.AlphaBlend {
		t.Errorf("translucent material AlphaMode = %v", glass.AlphaMode)
	}
	if tri.Primitives[1].Material != nil {
		t.Error("unresolved face got a material")
	}
}

// yUpFloor is a Y_UP floor triangle whose normal points along authoring +Y.
const yUpFloor = `<?xml version="1.0" encoding="utf-8"?>
<COLLADA xmlns="http://www.collada.org/2005/11/COLLADASchema" version="1.4.1">
  <asset><up_axis>Y_UP</up_axis></asset>
  <library_geometries>
    <geometry id="Floor-mesh">
      <mesh>
        <source id="pos"><float_array id="pos-array" count="9">0 0 0 1 0 0 0 0 1</float_array></source>
        <source id="nrm"><float_array id="nrm-array" count="3">0 1 0</float_array></source>
        <vertices id="verts"><input semantic="POSITION" source="#pos"/></vertices>
        <polylist count="1">
          <input semantic="VERTEX" source="#verts" offset="0"/>
          <input semantic="NORMAL" source="#nrm" offset="1"/>
          <vcount>3</vcount>
          <p>0 0 1 0 2 0</p>
        </polylist>
      </mesh>
    </geometry>
  </library_geometries>
</COLLADA>`

func TestGLTF_NormalsFollowUpAxis(t *testing.T) {
	prims, err := prim.NewLoader().LoadBytes([]byte(yUpFloor))
	if err != nil || len(prims) != 1 {
		t.Fatalf("LoadBytes: %d primitives, %v", len(prims), err)
	}
	// The floor lies in the XY plane once Y_UP is corrected to Z up.
	if prims[0].Scale.Z != 0 {
		t.Fatalf("Scale = %v, want flat Z", prims[0].Scale)
	}

	doc, err := GLTF(prims)
	if err != nil {
		t.Fatalf("GLTF: %v", err)
	}
	p := doc.Meshes[0].Primitives[0]
	idx, ok := p.Attributes[gltf.NORMAL]
	if !ok {
		t.Fatal("floor has no NORMAL attribute")
	}
	normals, err := modeler.ReadNormal(doc, doc.Accessors[idx], nil)
	if err != nil {
		t.Fatalf("ReadNormal: %v", err)
	}
	for i, n := range normals {
		if !near(n, [3]float32{0, 0, 1}) {
			t.Errorf("normal %d = %v, want (0, 0, 1)", i, n)
		}
	}
}

func TestMeshNormal(t *testing.T) {
	p := &prim.Primitive{
		Scale:     math.Vec3{X: 4, Y: 2, Z: 0},
		Transform: math.Scale(2, 1, 1),
	}

	got, ok := meshNormal(p, math.Vec3{X: 1, Y: 1})
	if !ok {
		t.Fatal("normal rejected")
	}
	if l := got.Length(); l < 0.9999 || l > 1.0001 {
		t.Errorf("length = %v, want 1", l)
	}

	// Undoing the node scale must give the transformed normal's direction.
	s := nodeScale(p)
	world := math.Vec3{X: got.X / s[0], Y: got.Y / s[1], Z: got.Z / s[2]}.Normalize()
	want := math.Vec3{X: 0.5, Y: 1}.Normalize()
	if !near(world.Array(), want.Array()) {
		t.Errorf("world normal = %v, want %v", world, want)
	}

	if _, ok := meshNormal(p, math.Vec3{}); ok {
		t.Error("zero normal accepted")
	}
	p.Transform = math.Scale(1, 1, 0)
	if _, ok := meshNormal(p, math.Vec3{Z: 1}); ok {
		t.Error("singular transform accepted")
	}
}

func near(a, b [3]float32) bool {
	for i := range a {
		if d := a[i] - b[i]; d > 1e-5 || d < -1e-5 {
			return false
		}
	}
	return true
}

func TestGLTF_Empty(t *testing.T) {
	if _, err := GLTF(nil); !errors.Is(err, ErrNoPrimitives) {
		t.Errorf("error = %v, want ErrNoPrimitives", err)
	}
}

func TestWriteGLTF(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"scene.gltf", "scene.glb"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := WriteGLTF(path, testPrimitives()); err != nil {
				t.Fatalf("WriteGLTF: %v", err)
			}

			doc, err := gltf.Open(path)
			if err != nil {
				t.Fatalf("gltf.Open: %v", err)
			}
			if len(doc.Nodes) != 2 || len(doc.Meshes) != 2 {
				t.Errorf("read back %d nodes, %d meshes", len(doc.Nodes), len(doc.Meshes))
			}
		})
	}
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	if err := YAML(&buf, testPrimitives()); err != nil {
		t.Fatalf("YAML: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"id: Quad-mesh", "material: Wood-material", "triangles: 2", "resolved: false"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	var decoded struct {
		Primitives []PrimitiveSummary `yaml:"primitives"`
	}
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(decoded.Primitives) != 2 {
		t.Fatalf("got %d primitives, want 2", len(decoded.Primitives))
	}
	if got := decoded.Primitives[0].Scale; got != [3]float32{2, 4, 0} {
		t.Errorf("Scale = %v", got)
	}
	if decoded.Primitives[1].Faces[1].Diffuse != nil {
		t.Error("unresolved face has a diffuse colour")
	}
}
