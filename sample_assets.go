package formwizard

import (
	"embed"
	"io/fs"
)

//go:embed sample/schema/*.yaml sample/ui/*.yaml
var embeddedSample embed.FS

// SampleFS exposes the bundled lot/batch/grade/inspection configuration with
// schema/ and ui/ at its root. It matches the tables created by the store
// migrations.
//
// Typical use:
//
//	bundle, err := formwizard.LoadBundle(formwizard.SampleFS())
func SampleFS() fs.FS {
	sub, err := fs.Sub(embeddedSample, "sample")
	if err != nil {
		return embeddedSample
	}
	return sub
}
