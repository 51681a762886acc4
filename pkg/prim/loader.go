package prim

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Faultbox/daeprim/pkg/collada"
)

// Build converts a decoded document into one Primitive per mesh geometry,
// in document order. It returns ErrStructural for dangling references and
// ErrUnsupportedFormat for non-triangle polygons; nothing is recovered.
func Build(doc *collada.Document) ([]*Primitive, error) {
	return build(doc, zap.NewNop())
}

func build(doc *collada.Document, log *zap.Logger) ([]*Primitive, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: no document", ErrStructural)
	}

	global := GlobalTransform(doc.Asset)
	nodes := ResolveNodes(doc)

	materialList := ResolveMaterials(doc)
	for _, m := range materialList {
		if m.Texture != "" && !m.TextureResolved {
			log.Warn("unresolved texture reference",
				zap.String("material", m.ID),
				zap.String("ref", m.Texture))
		}
	}
	materials := materialIndex(materialList)

	prims := make([]*Primitive, 0, len(doc.Geometries))
	for i := range doc.Geometries {
		geom := &doc.Geometries[i]
		if geom.Mesh == nil {
			log.Debug("skipping geometry without mesh", zap.String("geometry", geom.ID))
			continue
		}

		prim := &Primitive{
			ID:      geom.ID,
			Name:    geom.Name,
			AssetID: uuid.Nil,
		}

		transform := global
		var bindings map[string]string
		if node := findNode(nodes, geom.ID); node != nil {
			// Global correction first, then the node matrix
			transform = node.Transform.Mul(global)
			bindings = node.MaterialBindings
		}

		prim.Transform = transform

		if err := extractPositions(geom.Mesh, prim, transform); err != nil {
			return nil, fmt.Errorf("geometry %q: %w", geom.ID, err)
		}

		for j := range geom.Mesh.Polygons {
			list := &geom.Mesh.Polygons[j]
			ok, err := addFaces(list, geom.Mesh, prim, materials, bindings)
			if err != nil {
				return nil, fmt.Errorf("geometry %q: %w", geom.ID, err)
			}
			if !ok {
				log.Debug("skipping polygon list without VERTEX input",
					zap.String("geometry", geom.ID),
					zap.String("material", list.Material))
			}
		}

		log.Debug("built primitive",
			zap.String("id", prim.ID),
			zap.Int("positions", len(prim.Positions)),
			zap.Int("faces", len(prim.Faces)),
			zap.Int("triangles", prim.TriangleCount()))

		prims = append(prims, prim)
	}
	return prims, nil
}

// Loader decodes COLLADA input and builds primitives from it. Structural
// failures are logged and yield an empty result; ErrUnsupportedFormat is
// always returned to the caller. A Loader is safe for concurrent use.
type Loader struct {
	decoder *collada.Decoder
	log     *zap.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// WithDecoder replaces the default document decoder.
func WithDecoder(d *collada.Decoder) Option {
	return func(l *Loader) {
		if d != nil {
			l.decoder = d
		}
	}
}

// NewLoader creates a Loader. Without options it uses the default decoder
// and discards log output.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	if l.decoder == nil {
		d, err := collada.NewDecoder(collada.DecoderOptions{})
		if err != nil {
			panic(err) // default constraint is a constant
		}
		l.decoder = d
	}
	return l
}

// Load builds primitives from an already decoded document.
func (l *Loader) Load(doc *collada.Document) ([]*Primitive, error) {
	prims, err := build(doc, l.log)
	return l.recover(prims, err)
}

// LoadFile decodes and builds the document at path.
func (l *Loader) LoadFile(path string) ([]*Primitive, error) {
	doc, err := l.decoder.DecodeFile(path)
	if err != nil {
		return l.recover(nil, fmt.Errorf("%w: %w", ErrStructural, err))
	}
	l.log.Debug("decoded document",
		zap.String("path", path),
		zap.String("version", doc.Version),
		zap.Stringer("up_axis", doc.Asset.UpAxis),
		zap.Int("geometries", len(doc.Geometries)))
	return l.Load(doc)
}

// LoadBytes decodes and builds an in-memory document.
func (l *Loader) LoadBytes(data []byte) ([]*Primitive, error) {
	return l.LoadReader(bytes.NewReader(data))
}

// LoadReader decodes and builds a document read from r.
func (l *Loader) LoadReader(r io.Reader) ([]*Primitive, error) {
	doc, err := l.decoder.Decode(r)
	if err != nil {
		return l.recover(nil, fmt.Errorf("%w: %w", ErrStructural, err))
	}
	return l.Load(doc)
}

func (l *Loader) recover(prims []*Primitive, err error) ([]*Primitive, error) {
	switch {
	case err == nil:
		return prims, nil
	case errors.Is(err, ErrUnsupportedFormat):
		return nil, err
	default:
		l.log.Error("COLLADA load failed", zap.Error(err))
		return []*Primitive{}, nil
	}
}
