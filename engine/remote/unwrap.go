package remote

import (
	"net/url"
	"path"
	"strings"
)

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".svg":  {},
}

// UnwrapImageSearch extracts the target of an image-search result link such as
// https://www.google.com/imgres?imgurl=X or /url?...&imgurl=X. Any other
// string is returned unchanged.
func UnwrapImageSearch(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	if host != "google.com" && !strings.HasPrefix(host, "google.") && !strings.Contains(host, ".google.") {
		return raw
	}
	switch u.Path {
	case "/imgres", "/url":
	default:
		return raw
	}
	target := u.Query().Get("imgurl")
	if target == "" {
		return raw
	}
	tu, err := url.Parse(target)
	if err != nil || (tu.Scheme != "http" && tu.Scheme != "https") {
		return raw
	}
	return target
}

// hasImageExtension reports whether the URL path ends with a known image
// extension.
func hasImageExtension(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}
