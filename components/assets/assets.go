// Package assets holds the script-side half of the bridge: the
// `pedometer` JavaScript object and a demo page.
package assets

import (
	"io/fs"
	"net/url"
)

const ShimPath = "/pedometer.js"

// PageURL returns the demo page of a server at base with the bridge token
// the shim picks up from the page's query string.
func PageURL(base, token string) string {
	if token == "" {
		return base + "/"
	}
	return base + "/?token=" + url.QueryEscape(token)
}

// Shim returns the JavaScript that defines window.pedometer.
func Shim() (string, error) {
	b, err := fs.ReadFile(FS(), ShimPath[1:])
	if err != nil {
		return "", err
	}
	return string(b), nil
}
