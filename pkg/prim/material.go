package prim

import (
	"github.com/Faultbox/daeprim/pkg/collada"
)

var white = [4]float32{1, 1, 1, 1}

// ResolveMaterials flattens the image, material and effect libraries into
// one Material per material id. Only Phong and Lambert effects with a
// diffuse term are used; effects no material instantiates are dropped.
//
// A texture reference is looked up as an image id, first by its texcoord
// attribute and then by its texture attribute. When neither matches, the
// raw reference is kept and TextureResolved stays false.
func ResolveMaterials(doc *collada.Document) []*Material {
	if doc == nil {
		return []*Material{}
	}

	// Image id -> filename
	images := make(map[string]string, len(doc.Images))
	for _, img := range doc.Images {
		if img.InitFrom != "" {
			images[img.ID] = img.InitFrom
		}
	}

	// Effect id -> ids of the materials instancing it
	owners := make(map[string][]string)
	for _, mat := range doc.Materials {
		if mat.EffectURL == "" {
			continue
		}
		effectID := refID(mat.EffectURL)
		owners[effectID] = append(owners[effectID], mat.ID)
	}

	materials := []*Material{}
	for _, effect := range doc.Effects {
		if effect.Shading != collada.ShadingPhong && effect.Shading != collada.ShadingLambert {
			continue
		}
		if effect.Diffuse == nil {
			continue
		}
		for _, id := range owners[effect.ID] {
			materials = append(materials, newMaterial(id, effect.Diffuse, images))
		}
	}
	return materials
}

func newMaterial(id string, diffuse *collada.Diffuse, images map[string]string) *Material {
	mat := &Material{ID: id, DiffuseColor: white}

	switch diffuse.Kind {
	case collada.DiffuseColor:
		mat.DiffuseColor = diffuse.Color
	case collada.DiffuseTexture:
		mat.Texture = diffuse.TexCoord
		if mat.Texture == "" {
			mat.Texture = diffuse.Texture
		}
		for _, ref := range []string{diffuse.TexCoord, diffuse.Texture} {
			if file, ok := images[ref]; ok && ref != "" {
				mat.Texture = file
				mat.TextureResolved = true
				break
			}
		}
	}
	return mat
}

// materialIndex returns the materials keyed by id. The first material with
// a given id wins.
func materialIndex(materials []*Material) map[string]*Material {
	index := make(map[string]*Material, len(materials))
	for _, m := range materials {
		if _, ok := index[m.ID]; !ok {
			index[m.ID] = m
		}
	}
	return index
}
