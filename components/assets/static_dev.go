//go:build dev

package assets

import (
	"io/fs"
	"os"
)

// FS serves the shim straight from disk so it can be edited without a
// rebuild. PEDOMETER_ASSETS_DIR overrides the location.
func FS() fs.FS {
	dir := "components/assets/dist"
	if env := os.Getenv("PEDOMETER_ASSETS_DIR"); env != "" {
		dir = env
	}
	return os.DirFS(dir)
}
