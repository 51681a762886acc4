package prim

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/daeprim/pkg/collada"
	"github.com/Faultbox/daeprim/pkg/math"
)

// Input semantics understood by the triangulator.
const (
	semanticVertex   = "VERTEX"
	semanticNormal   = "NORMAL"
	semanticTexCoord = "TEXCOORD"
)

// addFaces decodes one polygon list into a Face on prim. prim.Positions must
// already be normalized. Lists without a VERTEX input are skipped; any
// polygon that is not a triangle fails with ErrUnsupportedFormat.
func addFaces(list *collada.PolygonList, mesh *collada.Mesh, prim *Primitive,
	materials map[string]*Material, bindings map[string]string) (bool, error) {

	maxOffset := 0
	posOffset, norOffset, uvOffset := -1, -1, -1
	var normalSrc, uvSrc *collada.Source

	for _, in := range list.Inputs {
		if in.Offset < 0 {
			return false, fmt.Errorf("%w: %s input has negative offset %d", ErrStructural, in.Semantic, in.Offset)
		}
		maxOffset = max(maxOffset, in.Offset)

		switch in.Semantic {
		case semanticVertex:
			posOffset = in.Offset
		case semanticNormal:
			if normalSrc != nil {
				continue
			}
			if normalSrc = findSource(mesh, in.Source); normalSrc == nil {
				return false, fmt.Errorf("%w: normal source %q not found", ErrStructural, in.Source)
			}
			norOffset = in.Offset
		case semanticTexCoord:
			// Only the first texture coordinate set is used.
			if uvSrc != nil {
				continue
			}
			if uvSrc = findSource(mesh, in.Source); uvSrc == nil {
				return false, fmt.Errorf("%w: texcoord source %q not found", ErrStructural, in.Source)
			}
			uvOffset = in.Offset
		}
	}

	if posOffset < 0 {
		return false, nil
	}

	indices, err := parseInts(list.Indices)
	if err != nil {
		return false, fmt.Errorf("%w: polygon indices: %v", ErrStructural, err)
	}
	if len(indices) > 0 && maxOffset >= len(indices) {
		return false, fmt.Errorf("%w: input offset %d outside index buffer of %d", ErrStructural, maxOffset, len(indices))
	}
	stride := maxOffset + 1

	var vcount []int
	if list.Triangles {
		vcount = make([]int, len(indices)/(stride*3))
		for i := range vcount {
			vcount[i] = 3
		}
	} else if vcount, err = parseInts(list.VertexCounts); err != nil {
		return false, fmt.Errorf("%w: vertex counts: %v", ErrStructural, err)
	}

	normals := vec3s(normalSrc)
	uvs := vec2s(uvSrc)

	face := &Face{MaterialID: list.Material}
	if id, ok := bindings[list.Material]; ok {
		face.MaterialID = id
	}
	face.Material = materials[face.MaterialID]
	face.Vertices = make([]Vertex, 0, len(vcount)*3)

	indexAt := func(base, offset, corner int) (int, error) {
		i := base + offset + stride*corner
		if i < 0 || i >= len(indices) {
			return 0, fmt.Errorf("%w: index buffer of %q ends at %d, need %d", ErrStructural, prim.ID, len(indices), i+1)
		}
		return indices[i], nil
	}

	base := 0
	for poly, n := range vcount {
		if n != 3 {
			return false, fmt.Errorf("%w: polygon %d in %q has %d vertices", ErrUnsupportedFormat, poly, prim.ID, n)
		}

		for corner := 0; corner < 3; corner++ {
			var v Vertex

			pi, err := indexAt(base, posOffset, corner)
			if err != nil {
				return false, err
			}
			if v.Position, err = lookup(prim.Positions, pi, "position"); err != nil {
				return false, err
			}

			if normals != nil {
				ni, err := indexAt(base, norOffset, corner)
				if err != nil {
					return false, err
				}
				if v.Normal, err = lookup(normals, ni, "normal"); err != nil {
					return false, err
				}
			}

			if uvs != nil {
				ti, err := indexAt(base, uvOffset, corner)
				if err != nil {
					return false, err
				}
				if v.TexCoord, err = lookup(uvs, ti, "texcoord"); err != nil {
					return false, err
				}
			}

			face.Vertices = append(face.Vertices, v)
		}

		base += stride * 3
	}

	if len(face.Vertices) == 0 {
		return true, nil
	}
	prim.Faces = append(prim.Faces, face)
	return true, nil
}

func lookup[T math.Vec2 | math.Vec3](values []T, i int, what string) (T, error) {
	if i < 0 || i >= len(values) {
		var zero T
		return zero, fmt.Errorf("%w: %s index %d out of range (%d values)", ErrStructural, what, i, len(values))
	}
	return values[i], nil
}

// parseInts parses a whitespace-delimited integer list.
func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
