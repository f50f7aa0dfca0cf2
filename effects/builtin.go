package effects

import (
	"embed"
	"io/fs"
)

//go:embed kage/manifest.yaml kage/*.kage
var builtinFiles embed.FS

// builtinFS returns the embedded catalog rooted at its manifest.
func builtinFS() fs.FS {
	sub, err := fs.Sub(builtinFiles, "kage")
	if err != nil {
		// fs.Sub only fails for invalid paths; "kage" is constant.
		panic(err)
	}
	return sub
}

// BuiltinFS exposes the embedded catalog, e.g. to export it as a starting
// point for an overlay directory.
func BuiltinFS() fs.FS {
	return builtinFS()
}
