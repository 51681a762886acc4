package prim

import (
	"fmt"

	"github.com/Faultbox/daeprim/pkg/collada"
	"github.com/Faultbox/daeprim/pkg/math"
)

// extractPositions transforms the mesh positions, records bounds, scale and
// centre on prim, and stores the positions remapped into the unit cube.
func extractPositions(mesh *collada.Mesh, prim *Primitive, transform math.Mat4) error {
	src, err := positionSource(mesh)
	if err != nil {
		return err
	}

	raw := vec3s(src)
	positions := make([]math.Vec3, len(raw))
	for i, p := range raw {
		positions[i] = transform.TransformVec3(p)
	}

	if len(positions) == 0 {
		prim.Positions = positions
		return nil
	}

	lo, hi := positions[0], positions[0]
	for _, p := range positions[1:] {
		lo = lo.Min(p)
		hi = hi.Max(p)
	}

	prim.BoundMin = lo
	prim.BoundMax = hi
	prim.Scale = hi.Sub(lo)
	prim.Position = lo.Add(prim.Scale.Scale(0.5))

	// Fit vertex positions into the cube -0.5 .. 0.5
	for i, p := range positions {
		positions[i] = math.Vec3{
			X: unitAxis(p.X, lo.X, prim.Scale.X),
			Y: unitAxis(p.Y, lo.Y, prim.Scale.Y),
			Z: unitAxis(p.Z, lo.Z, prim.Scale.Z),
		}
	}
	prim.Positions = positions
	return nil
}

func unitAxis(v, lo, extent float32) float32 {
	if extent == 0 {
		return 0
	}
	return (v-lo)/extent - 0.5
}

// positionSource returns the source behind the mesh <vertices>, preferring
// its POSITION input.
func positionSource(mesh *collada.Mesh) (*collada.Source, error) {
	inputs := mesh.Vertices.Inputs
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: mesh vertices %q have no inputs", ErrStructural, mesh.Vertices.ID)
	}

	input := inputs[0]
	for _, in := range inputs {
		if in.Semantic == "POSITION" {
			input = in
			break
		}
	}

	src := findSource(mesh, input.Source)
	if src == nil {
		return nil, fmt.Errorf("%w: position source %q not found", ErrStructural, input.Source)
	}
	return src, nil
}

// findSource looks a mesh source up by url.
func findSource(mesh *collada.Mesh, url string) *collada.Source {
	id := refID(url)
	for i := range mesh.Sources {
		if mesh.Sources[i].ID == id {
			return &mesh.Sources[i]
		}
	}
	return nil
}

// sourceStep returns how many floats one element of src spans.
func sourceStep(src *collada.Source, components int) int {
	if src.Stride >= components {
		return src.Stride
	}
	return components
}

func vec3s(src *collada.Source) []math.Vec3 {
	if src == nil {
		return nil
	}
	step := sourceStep(src, 3)
	out := make([]math.Vec3, len(src.Floats)/step)
	for i := range out {
		f := src.Floats[i*step:]
		out[i] = math.Vec3{X: f[0], Y: f[1], Z: f[2]}
	}
	return out
}

func vec2s(src *collada.Source) []math.Vec2 {
	if src == nil {
		return nil
	}
	step := sourceStep(src, 2)
	out := make([]math.Vec2, len(src.Floats)/step)
	for i := range out {
		f := src.Floats[i*step:]
		out[i] = math.Vec2{X: f[0], Y: f[1]}
	}
	return out
}
