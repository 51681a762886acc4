package collada

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/Faultbox/daeprim/pkg/encoding"
)

// DefaultVersionConstraint accepts COLLADA 1.4.x and 1.5.x documents.
const DefaultVersionConstraint = ">= 1.4.0, < 1.6.0"

// DecoderOptions configures a Decoder.
type DecoderOptions struct {
	// VersionConstraint is a semver constraint checked against the root
	// version attribute. Empty means DefaultVersionConstraint.
	VersionConstraint string
}

// Decoder turns COLLADA XML into a Document. It keeps no state between
// calls and is safe for concurrent use.
type Decoder struct {
	constraint *semver.Constraints
}

var defaultDecoder = mustDecoder(DecoderOptions{})

// NewDecoder creates a decoder with the given options.
func NewDecoder(opts DecoderOptions) (*Decoder, error) {
	expr := opts.VersionConstraint
	if expr == "" {
		expr = DefaultVersionConstraint
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing version constraint %q: %w", expr, err)
	}
	return &Decoder{constraint: c}, nil
}

func mustDecoder(opts DecoderOptions) *Decoder {
	d, err := NewDecoder(opts)
	if err != nil {
		panic(err)
	}
	return d
}

// Parse decodes COLLADA data with the default decoder.
func Parse(data []byte) (*Document, error) {
	return defaultDecoder.Decode(bytes.NewReader(data))
}

// ParseFile decodes a COLLADA file from disk with the default decoder.
func ParseFile(path string) (*Document, error) {
	return defaultDecoder.DecodeFile(path)
}

// DecodeFile decodes a COLLADA file from disk.
func (d *Decoder) DecodeFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading COLLADA file: %w", err)
	}
	return d.Decode(bytes.NewReader(data))
}

// Decode reads one COLLADA document from r.
func (d *Decoder) Decode(r io.Reader) (*Document, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = encoding.CharsetReader

	var raw xmlCollada
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	if err := d.checkVersion(raw.Version); err != nil {
		return nil, err
	}

	return raw.document()
}

func (d *Decoder) checkVersion(version string) error {
	if version == "" {
		return nil
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
	if !d.constraint.Check(v) {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}
	return nil
}

// XML binding. These mirror the schema loosely and are converted into the
// exported model right after decoding.

type xmlCollada struct {
	XMLName      xml.Name         `xml:"COLLADA"`
	Version      string           `xml:"version,attr"`
	Asset        *xmlAsset        `xml:"asset"`
	Images       []xmlImage       `xml:"library_images>image"`
	Materials    []xmlMaterial    `xml:"library_materials>material"`
	Effects      []xmlEffect      `xml:"library_effects>effect"`
	VisualScenes []xmlVisualScene `xml:"library_visual_scenes>visual_scene"`
	Geometries   []xmlGeometry    `xml:"library_geometries>geometry"`
}

type xmlAsset struct {
	UpAxis        string   `xml:"up_axis"`
	Unit          *xmlUnit `xml:"unit"`
	AuthoringTool string   `xml:"contributor>authoring_tool"`
	Created       string   `xml:"created"`
	Modified      string   `xml:"modified"`
}

type xmlUnit struct {
	Name  string `xml:"name,attr"`
	Meter string `xml:"meter,attr"`
}

type xmlImage struct {
	ID       string `xml:"id,attr"`
	Name     string `xml:"name,attr"`
	InitFrom struct {
		Text string `xml:",chardata"`
		Ref  string `xml:"ref"` // 1.5
	} `xml:"init_from"`
}

type xmlMaterial struct {
	ID             string `xml:"id,attr"`
	Name           string `xml:"name,attr"`
	InstanceEffect struct {
		URL string `xml:"url,attr"`
	} `xml:"instance_effect"`
}

type xmlEffect struct {
	ID      string            `xml:"id,attr"`
	Name    string            `xml:"name,attr"`
	Profile *xmlProfileCommon `xml:"profile_COMMON"`
}

type xmlProfileCommon struct {
	NewParams []xmlNewParam `xml:"newparam"`
	Technique struct {
		Phong    *xmlShader `xml:"phong"`
		Lambert  *xmlShader `xml:"lambert"`
		Blinn    *xmlShader `xml:"blinn"`
		Constant *xmlShader `xml:"constant"`
	} `xml:"technique"`
}

type xmlNewParam struct {
	Sid     string `xml:"sid,attr"`
	Surface *struct {
		InitFrom string `xml:"init_from"`
	} `xml:"surface"`
	Sampler *struct {
		Source string `xml:"source"`
	} `xml:"sampler2D"`
}

type xmlShader struct {
	Diffuse *xmlColorOrTexture `xml:"diffuse"`
}

type xmlColorOrTexture struct {
	Color   *string `xml:"color"`
	Texture *struct {
		Texture  string `xml:"texture,attr"`
		TexCoord string `xml:"texcoord,attr"`
	} `xml:"texture"`
}

type xmlVisualScene struct {
	ID    string    `xml:"id,attr"`
	Name  string    `xml:"name,attr"`
	Nodes []xmlNode `xml:"node"`
}

type xmlNode struct {
	ID                 string                `xml:"id,attr"`
	Name               string                `xml:"name,attr"`
	Matrices           []string              `xml:"matrix"`
	InstanceGeometries []xmlInstanceGeometry `xml:"instance_geometry"`
	Children           []xmlNode             `xml:"node"`
}

type xmlInstanceGeometry struct {
	URL               string `xml:"url,attr"`
	InstanceMaterials []struct {
		Symbol string `xml:"symbol,attr"`
		Target string `xml:"target,attr"`
	} `xml:"bind_material>technique_common>instance_material"`
}

type xmlGeometry struct {
	ID   string   `xml:"id,attr"`
	Name string   `xml:"name,attr"`
	Mesh *xmlMesh `xml:"mesh"`
}

type xmlMesh struct {
	Sources  []xmlSource `xml:"source"`
	Vertices struct {
		ID     string     `xml:"id,attr"`
		Inputs []xmlInput `xml:"input"`
	} `xml:"vertices"`
	// polylist, triangles and anything else, in document order
	Primitives []xmlPrimitive `xml:",any"`
}

type xmlSource struct {
	ID         string `xml:"id,attr"`
	FloatArray *struct {
		ID   string `xml:"id,attr"`
		Text string `xml:",chardata"`
	} `xml:"float_array"`
	Accessor *struct {
		Stride int `xml:"stride,attr"`
	} `xml:"technique_common>accessor"`
}

type xmlPrimitive struct {
	XMLName  xml.Name
	Material string     `xml:"material,attr"`
	Inputs   []xmlInput `xml:"input"`
	VCount   string     `xml:"vcount"`
	P        string     `xml:"p"`
}

type xmlInput struct {
	Semantic string `xml:"semantic,attr"`
	Source   string `xml:"source,attr"`
	Offset   int    `xml:"offset,attr"`
	Set      int    `xml:"set,attr"`
}

func (raw *xmlCollada) document() (*Document, error) {
	doc := &Document{Version: raw.Version}

	asset, err := raw.Asset.asset()
	if err != nil {
		return nil, err
	}
	doc.Asset = asset

	for _, img := range raw.Images {
		ref := img.InitFrom.Text
		if img.InitFrom.Ref != "" {
			ref = img.InitFrom.Ref
		}
		doc.Images = append(doc.Images, Image{
			ID:       img.ID,
			Name:     img.Name,
			InitFrom: strings.TrimSpace(ref),
		})
	}

	for _, mat := range raw.Materials {
		doc.Materials = append(doc.Materials, Material{
			ID:        mat.ID,
			Name:      mat.Name,
			EffectURL: mat.InstanceEffect.URL,
		})
	}

	for _, eff := range raw.Effects {
		effect, err := eff.effect()
		if err != nil {
			return nil, fmt.Errorf("effect %q: %w", eff.ID, err)
		}
		doc.Effects = append(doc.Effects, effect)
	}

	for _, vs := range raw.VisualScenes {
		nodes, err := convertNodes(vs.Nodes)
		if err != nil {
			return nil, fmt.Errorf("visual scene %q: %w", vs.ID, err)
		}
		doc.VisualScenes = append(doc.VisualScenes, VisualScene{ID: vs.ID, Name: vs.Name, Nodes: nodes})
	}

	for _, geo := range raw.Geometries {
		g := Geometry{ID: geo.ID, Name: geo.Name}
		if geo.Mesh != nil {
			mesh, err := geo.Mesh.mesh()
			if err != nil {
				return nil, fmt.Errorf("geometry %q: %w", geo.ID, err)
			}
			g.Mesh = mesh
		}
		doc.Geometries = append(doc.Geometries, g)
	}

	return doc, nil
}

func (a *xmlAsset) asset() (Asset, error) {
	asset := Asset{UpAxis: UpAxisY, Meter: 1}
	if a == nil {
		return asset, nil
	}

	switch strings.TrimSpace(a.UpAxis) {
	case "X_UP":
		asset.UpAxis = UpAxisX
	case "Z_UP":
		asset.UpAxis = UpAxisZ
	}

	if a.Unit != nil {
		asset.UnitName = a.Unit.Name
		if m := strings.TrimSpace(a.Unit.Meter); m != "" {
			meter, err := strconv.ParseFloat(m, 32)
			if err != nil {
				return Asset{}, fmt.Errorf("%w: unit meter %q", ErrInvalidDocument, m)
			}
			asset.Meter = float32(meter)
		}
	}

	asset.AuthoringTool = strings.TrimSpace(a.AuthoringTool)
	asset.Created = strings.TrimSpace(a.Created)
	asset.Modified = strings.TrimSpace(a.Modified)
	return asset, nil
}

func (e *xmlEffect) effect() (Effect, error) {
	effect := Effect{ID: e.ID, Name: e.Name}
	if e.Profile == nil {
		return effect, nil
	}

	tech := e.Profile.Technique
	var shader *xmlShader
	switch {
	case tech.Phong != nil:
		effect.Shading, shader = ShadingPhong, tech.Phong
	case tech.Lambert != nil:
		effect.Shading, shader = ShadingLambert, tech.Lambert
	case tech.Blinn != nil:
		effect.Shading, shader = ShadingBlinn, tech.Blinn
	case tech.Constant != nil:
		effect.Shading, shader = ShadingConstant, tech.Constant
	default:
		return effect, nil
	}

	if shader.Diffuse == nil {
		return effect, nil
	}

	switch {
	case shader.Diffuse.Color != nil:
		color, err := parseColor(*shader.Diffuse.Color)
		if err != nil {
			return Effect{}, err
		}
		effect.Diffuse = &Diffuse{Kind: DiffuseColor, Color: color}
	case shader.Diffuse.Texture != nil:
		effect.Diffuse = &Diffuse{
			Kind:     DiffuseTexture,
			Texture:  e.Profile.samplerImage(shader.Diffuse.Texture.Texture),
			TexCoord: shader.Diffuse.Texture.TexCoord,
		}
	}
	return effect, nil
}

// samplerImage follows sampler2D → surface → init_from. It returns ref
// unchanged when the chain is not declared.
func (p *xmlProfileCommon) samplerImage(ref string) string {
	find := func(sid string) *xmlNewParam {
		for i := range p.NewParams {
			if p.NewParams[i].Sid == sid {
				return &p.NewParams[i]
			}
		}
		return nil
	}

	sampler := find(ref)
	if sampler == nil || sampler.Sampler == nil {
		return ref
	}
	surface := find(strings.TrimSpace(sampler.Sampler.Source))
	if surface == nil || surface.Surface == nil {
		return ref
	}
	if img := strings.TrimSpace(surface.Surface.InitFrom); img != "" {
		return img
	}
	return ref
}

func convertNodes(raw []xmlNode) ([]Node, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	nodes := make([]Node, 0, len(raw))
	for _, rn := range raw {
		n := Node{ID: rn.ID, Name: rn.Name}

		// Last matrix wins.
		if len(rn.Matrices) > 0 {
			vals, err := parseFloats(rn.Matrices[len(rn.Matrices)-1])
			if err != nil || len(vals) != 16 {
				return nil, fmt.Errorf("%w: node %q", ErrInvalidMatrix, rn.ID)
			}
			var m [16]float32
			copy(m[:], vals)
			n.Matrix = &m
		}

		if len(rn.InstanceGeometries) > 0 {
			ig := rn.InstanceGeometries[0]
			inst := &InstanceGeometry{URL: ig.URL}
			for _, im := range ig.InstanceMaterials {
				inst.Materials = append(inst.Materials, MaterialBinding{Symbol: im.Symbol, Target: im.Target})
			}
			n.Geometry = inst
		}

		children, err := convertNodes(rn.Children)
		if err != nil {
			return nil, err
		}
		n.Children = children

		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (m *xmlMesh) mesh() (*Mesh, error) {
	mesh := &Mesh{
		Vertices: Vertices{ID: m.Vertices.ID, Inputs: convertInputs(m.Vertices.Inputs)},
	}

	for _, src := range m.Sources {
		s := Source{ID: src.ID}
		if src.FloatArray != nil {
			vals, err := parseFloats(src.FloatArray.Text)
			if err != nil {
				return nil, fmt.Errorf("%w: source %q: %v", ErrInvalidFloatArray, src.ID, err)
			}
			s.Floats = vals
		}
		if src.Accessor != nil {
			s.Stride = src.Accessor.Stride
		}
		mesh.Sources = append(mesh.Sources, s)
	}

	for _, prim := range m.Primitives {
		switch prim.XMLName.Local {
		case "polylist", "triangles":
		default:
			continue
		}
		mesh.Polygons = append(mesh.Polygons, PolygonList{
			Material:     prim.Material,
			Inputs:       convertInputs(prim.Inputs),
			VertexCounts: prim.VCount,
			Indices:      prim.P,
			Triangles:    prim.XMLName.Local == "triangles",
		})
	}

	return mesh, nil
}

func convertInputs(raw []xmlInput) []Input {
	inputs := make([]Input, 0, len(raw))
	for _, in := range raw {
		inputs = append(inputs, Input{
			Semantic: in.Semantic,
			Source:   in.Source,
			Offset:   in.Offset,
			Set:      in.Set,
		})
	}
	return inputs
}

// parseFloats parses a whitespace-separated float list.
func parseFloats(s string) ([]float32, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	vals := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		vals[i] = float32(v)
	}
	return vals, nil
}

func parseColor(s string) ([4]float32, error) {
	vals, err := parseFloats(s)
	if err != nil || (len(vals) != 3 && len(vals) != 4) {
		return [4]float32{}, fmt.Errorf("%w: %q", ErrInvalidColor, strings.TrimSpace(s))
	}
	color := [4]float32{vals[0], vals[1], vals[2], 1}
	if len(vals) == 4 {
		color[3] = vals[3]
	}
	return color, nil
}
