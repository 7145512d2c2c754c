package drop

import (
	"image"
	"strings"
	"unicode"
)

type payloadKind int

const (
	payloadInvalid payloadKind = iota
	payloadFile
	payloadURI
	payloadText
	payloadImage
	payloadImageBytes
)

// Payload is one dropped thing. Build it with FromFile, FromURI, FromText,
// FromImage or FromImageBytes; the zero value is rejected by New.
type Payload struct {
	kind  payloadKind
	path  string
	uri   string
	text  string
	img   image.Image
	bytes []byte
}

// FromFile references a file on the local filesystem.
func FromFile(path string) Payload {
	return Payload{kind: payloadFile, path: path}
}

// FromURI wraps a file reference that has no local path. It is ingested as
// text.
func FromURI(uri string) Payload {
	return Payload{kind: payloadURI, uri: uri}
}

// FromText wraps a dropped or pasted string.
func FromText(s string) Payload {
	return Payload{kind: payloadText, text: s}
}

// FromImage wraps an in-memory bitmap.
func FromImage(img image.Image) Payload {
	return Payload{kind: payloadImage, img: img}
}

// FromImageBytes wraps an encoded in-memory image (PNG or JPEG).
func FromImageBytes(b []byte) Payload {
	return Payload{kind: payloadImageBytes, bytes: b}
}

// Text returns the string a text-like payload will be stored as.
func (p Payload) Text() (string, bool) {
	switch p.kind {
	case payloadText:
		return p.text, true
	case payloadURI:
		return p.uri, true
	}
	return "", false
}

// IsPlainText reports whether the payload becomes a text item that is not a
// link. Those are the drops a text collector aggregates.
func (p Payload) IsPlainText() bool {
	s, ok := p.Text()
	return ok && !IsLink(s)
}

// IsLink reports whether s starts with an http:// or https:// scheme, matched
// case-insensitively. Trailing whitespace is ignored.
func IsLink(s string) bool {
	s = strings.ToLower(strings.TrimRightFunc(s, unicode.IsSpace))
	for _, scheme := range []string{"http://", "https://"} {
		if strings.HasPrefix(s, scheme) && len(s) > len(scheme) {
			return true
		}
	}
	return false
}

func (p Payload) describe() string {
	switch p.kind {
	case payloadFile:
		return "file"
	case payloadURI:
		return "uri"
	case payloadText:
		return "text"
	case payloadImage, payloadImageBytes:
		return "image"
	}
	return "invalid"
}
