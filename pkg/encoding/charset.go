// Package encoding provides text encoding helpers for COLLADA documents.
package encoding

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrUnknownCharset is returned for an encoding label x/text does not know.
var ErrUnknownCharset = errors.New("unknown charset")

// CharsetReader converts input in the named character set to UTF-8.
// It matches the signature of xml.Decoder.CharsetReader.
func CharsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(label))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCharset, label)
	}
	return transform.NewReader(input, enc.NewDecoder()), nil
}

// NormalizeTexturePath turns an image reference as written by exporters
// ("file:///C:/maps/wood%20grain.png", "..\\maps\\a.tga") into a slash
// separated, unescaped path.
func NormalizeTexturePath(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	// Convert backslashes to forward slashes
	ref = strings.ReplaceAll(ref, "\\", "/")

	if strings.HasPrefix(strings.ToLower(ref), "file:") {
		ref = ref[len("file:"):]
		ref = strings.TrimPrefix(ref, "//")
		// file:///C:/x → C:/x
		if len(ref) > 3 && ref[0] == '/' && ref[2] == ':' {
			ref = ref[1:]
		}
	}

	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	return ref
}
