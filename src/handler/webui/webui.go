// Package webui holds the assets of the browser mini-player.
package webui

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed page.html player.js
var files embed.FS

// Files returns the assets. In debug builds they are read from the source
// tree on every access so they can be edited without restarting.
func Files(debug bool) fs.FS {
	if debug {
		return os.DirFS("src/handler/webui")
	}
	return files
}
