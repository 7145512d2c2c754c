// Package classify sniffs the content type of dropped files from their leading
// bytes. File extensions are never consulted.
package classify

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// HeadSize is how many leading bytes are read for sniffing.
const HeadSize = 3072

const (
	TypeOctetStream = "application/octet-stream"
	TypePNG         = "image/png"
	TypeJPEG        = "image/jpeg"
	TypeJPG         = "image/jpg"
	TypeSVG         = "image/svg+xml"
)

// Category groups content types for preview purposes.
type Category string

const (
	CategoryImage   Category = "image"
	CategoryGeneric Category = "generic"
)

var supportedImages = map[string]struct{}{
	TypePNG:  {},
	TypeJPG:  {},
	TypeJPEG: {},
	TypeSVG:  {},
}

var osFs = afero.NewOsFs()

// File sniffs a file on the OS filesystem.
func File(path string) (string, error) {
	return FileFS(osFs, path)
}

// FileFS reads the head of path on fs and sniffs its content type.
func FileFS(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("classify: open %s: %w", path, err)
	}
	defer f.Close()
	head := make([]byte, HeadSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("classify: read %s: %w", path, err)
	}
	return Bytes(head[:n]), nil
}

// Bytes sniffs a content type from head, stripped of parameters.
// The stdlib sniffer runs first; mimetype takes over when it is inconclusive
// or sees generic text, which is how XML-based formats like SVG are caught.
func Bytes(head []byte) string {
	if len(head) == 0 {
		return TypeOctetStream
	}
	if len(head) > HeadSize {
		head = head[:HeadSize]
	}
	mt := Normalize(http.DetectContentType(head))
	switch mt {
	case TypeOctetStream, "text/plain", "text/xml":
		if detected := Normalize(mimetype.Detect(head).String()); detected != "" {
			return detected
		}
	}
	return mt
}

// Normalize lowercases a content type and drops its parameters.
func Normalize(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

// IsImage reports whether a preview can be produced for the content type.
func IsImage(contentType string) bool {
	_, ok := supportedImages[Normalize(contentType)]
	return ok
}

// IsVector reports whether the content type is a vector image.
func IsVector(contentType string) bool {
	return Normalize(contentType) == TypeSVG
}

// IsText reports whether the content type is textual.
func IsText(contentType string) bool {
	return strings.HasPrefix(Normalize(contentType), "text/")
}

// CategoryOf maps a content type to its preview category.
func CategoryOf(contentType string) Category {
	if IsImage(contentType) {
		return CategoryImage
	}
	return CategoryGeneric
}

// ImageExtension returns the canonical file extension for a supported image
// type, without the dot.
func ImageExtension(contentType string) (string, bool) {
	switch Normalize(contentType) {
	case TypePNG:
		return "png", true
	case TypeJPEG, TypeJPG:
		return "jpg", true
	case TypeSVG:
		return "svg", true
	}
	return "", false
}
