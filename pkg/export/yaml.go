package export

import (
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/daeprim/pkg/prim"
)

// PrimitiveSummary is the YAML view of one primitive.
type PrimitiveSummary struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name,omitempty"`
	Positions int           `yaml:"positions"`
	BoundMin  [3]float32    `yaml:"bound_min,flow"`
	BoundMax  [3]float32    `yaml:"bound_max,flow"`
	Scale     [3]float32    `yaml:"scale,flow"`
	Position  [3]float32    `yaml:"position,flow"`
	Faces     []FaceSummary `yaml:"faces"`
}

// FaceSummary is the YAML view of one face.
type FaceSummary struct {
	Material  string      `yaml:"material"`
	Resolved  bool        `yaml:"resolved"`
	Diffuse   *[4]float32 `yaml:"diffuse,flow,omitempty"`
	Texture   string      `yaml:"texture,omitempty"`
	Triangles int         `yaml:"triangles"`
}

// Summarize reduces prims to their YAML views.
func Summarize(prims []*prim.Primitive) []PrimitiveSummary {
	out := make([]PrimitiveSummary, 0, len(prims))
	for _, p := range prims {
		s := PrimitiveSummary{
			ID:        p.ID,
			Name:      p.Name,
			Positions: len(p.Positions),
			BoundMin:  p.BoundMin.Array(),
			BoundMax:  p.BoundMax.Array(),
			Scale:     p.Scale.Array(),
			Position:  p.Position.Array(),
			Faces:     make([]FaceSummary, 0, len(p.Faces)),
		}
		for _, f := range p.Faces {
			fs := FaceSummary{
				Material:  f.MaterialID,
				Resolved:  f.Material != nil,
				Triangles: f.TriangleCount(),
			}
			if f.Material != nil {
				color := f.Material.DiffuseColor
				fs.Diffuse = &color
				fs.Texture = f.Material.Texture
			}
			s.Faces = append(s.Faces, fs)
		}
		out = append(out, s)
	}
	return out
}

// YAML writes a human-readable dump of prims to w.
func YAML(w io.Writer, prims []*prim.Primitive) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string][]PrimitiveSummary{"primitives": Summarize(prims)}); err != nil {
		return err
	}
	return enc.Close()
}
