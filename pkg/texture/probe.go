// Package texture inspects image files referenced by imported materials.
package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/Faultbox/daeprim/pkg/encoding"
)

// ErrUnknownFormat is returned for files that are not a supported image.
var ErrUnknownFormat = errors.New("unknown image format")

// headerSize is enough for filetype to match every supported kind.
const headerSize = 262

// Info describes an image file.
type Info struct {
	Path   string
	Format string // png, jpg, gif, bmp, tif, webp or tga
	MIME   string
	Width  int
	Height int
}

type configDecoder func(io.Reader) (image.Config, error)

var decoders = map[string]configDecoder{
	"png":  png.DecodeConfig,
	"jpg":  jpeg.DecodeConfig,
	"gif":  gif.DecodeConfig,
	"bmp":  bmp.DecodeConfig,
	"tif":  tiff.DecodeConfig,
	"webp": webp.DecodeConfig,
	"tga":  tga.DecodeConfig,
}

// Probe identifies the image at path and reads its dimensions without
// decoding pixels. The kind comes from the file signature; TGA has none and
// is recognised by extension.
func Probe(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("reading texture: %w", err)
	}
	return probe(path, data)
}

func probe(path string, data []byte) (Info, error) {
	info := Info{Path: path}

	head := data
	if len(head) > headerSize {
		head = head[:headerSize]
	}

	kind, _ := filetype.Match(head)
	switch {
	case kind != filetype.Unknown:
		info.Format = kind.Extension
		info.MIME = kind.MIME.Value
	case strings.EqualFold(filepath.Ext(path), ".tga"):
		info.Format = "tga"
		info.MIME = "image/x-tga"
	default:
		return info, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}

	decode, ok := decoders[info.Format]
	if !ok {
		return info, fmt.Errorf("%w: %s is %s", ErrUnknownFormat, path, info.MIME)
	}

	cfg, err := decode(bytes.NewReader(data))
	if err != nil {
		return info, fmt.Errorf("decoding %s header: %w", info.Format, err)
	}
	info.Width = cfg.Width
	info.Height = cfg.Height
	return info, nil
}

// Resolve returns the path of a texture reference relative to the document
// that names it. Exporter spellings (file urls, backslashes) are normalized
// first; absolute references are then returned unchanged.
func Resolve(documentPath, ref string) string {
	ref = encoding.NormalizeTexturePath(ref)
	if ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(filepath.Dir(documentPath), filepath.FromSlash(ref))
}
