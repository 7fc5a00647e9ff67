// Package web embeds the HTML templates.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:templates
var files embed.FS

// Templates is rooted at the templates directory: layouts/, pages/ and
// admin/.
var Templates = mustSub(files, "templates")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
