package generate

import (
	"encoding/base64"
	"path/filepath"
	"strings"
)

// FallbackImageTag is used for files without an extension.
const FallbackImageTag = "octet-stream"

// ImageTag returns the image format tag for a path: the part of the file name
// after its last dot, case preserved. Names without one yield FallbackImageTag.
func ImageTag(path string) string {
	tag := strings.TrimPrefix(filepath.Ext(filepath.Base(path)), ".")
	if tag == "" {
		return FallbackImageTag
	}
	return tag
}

// DataURI encodes data inline as data:image/{tag};base64,{payload}.
func DataURI(tag string, data []byte) string {
	var sb strings.Builder
	sb.Grow(len("data:image/;base64,") + len(tag) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString("data:image/")
	sb.WriteString(tag)
	sb.WriteString(";base64,")
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String()
}
