// Package web holds the single-page chat client served at "/".
package web

import (
	"embed"
	"io/fs"
)

//go:embed index.html static
var files embed.FS

// FS returns the embedded assets rooted at the web directory.
func FS() fs.FS {
	return files
}

// Static returns the embedded static/ directory.
func Static() fs.FS {
	sub, err := fs.Sub(files, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
