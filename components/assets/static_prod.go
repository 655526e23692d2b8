//go:build !dev

package assets

import (
	"embed"
	"io/fs"
)

//go:embed all:dist
var staticFiles embed.FS

func FS() fs.FS {
	sub, _ := fs.Sub(staticFiles, "dist")
	return sub
}
