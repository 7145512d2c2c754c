package remote

import (
	"mime"
	"net/url"
	"path"
	"strings"

	"github.com/gosimple/slug"
)

// DefaultFilename is used when neither the response nor the URL names the file.
const DefaultFilename = "downloaded_image"

// filenameFor picks the download name from Content-Disposition, then from the
// last URL path segment, then DefaultFilename. The stem is slugified and the
// extension lowercased.
func filenameFor(contentDisposition, rawURL string) string {
	if name := dispositionFilename(contentDisposition); name != "" {
		return sanitizeFilename(name)
	}
	if u, err := url.Parse(rawURL); err == nil {
		segment := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(segment); err == nil {
			segment = unescaped
		}
		if segment != "" && segment != "/" && segment != "." {
			return sanitizeFilename(segment)
		}
	}
	return DefaultFilename
}

// dispositionFilename extracts filename* or filename from a Content-Disposition
// header. mime.ParseMediaType decodes the RFC 2231 form into "filename".
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := strings.ReplaceAll(params["filename"], `\`, "/")
	if name == "" {
		return ""
	}
	return path.Base(name)
}

func sanitizeFilename(name string) string {
	ext := path.Ext(name)
	stem := slug.Make(strings.TrimSuffix(name, ext))
	if stem == "" {
		stem = DefaultFilename
	}
	if ext = slug.Make(ext); ext != "" {
		ext = "." + ext
	}
	return stem + ext
}
