// Package formwizard loads wizard configuration bundles and starts sessions
// over them. The building blocks live under pkg/: schema and uischema for the
// documents, steps, visibility, progress and relationship for the runtime
// rules, persist for writes and wizard for the session that ties them
// together.
package formwizard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/steps"
	"github.com/goliatone/go-formwizard/pkg/uischema"
	"github.com/goliatone/go-formwizard/pkg/validation"
	"github.com/goliatone/go-formwizard/pkg/widgets"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// ErrInvalidConfig is returned alongside a bundle whose report has issues.
var ErrInvalidConfig = errors.New("formwizard: invalid configuration")

// Bundle is one loaded configuration: schema, UI and the consistency report.
type Bundle struct {
	Schema schema.Config
	UI     uischema.Config
	Report validation.Result
}

// LoadBundle reads schema documents under schema/ and UI documents under ui/.
// Fields without a widget get one from the default widget registry. When the
// configuration has issues the bundle is still returned together with an
// error wrapping ErrInvalidConfig.
func LoadBundle(fsys fs.FS) (Bundle, error) {
	if fsys == nil {
		return Bundle{}, errors.New("formwizard: filesystem is nil")
	}
	schemaFS, err := fs.Sub(fsys, "schema")
	if err != nil {
		return Bundle{}, fmt.Errorf("formwizard: schema dir: %w", err)
	}
	uiFS, err := fs.Sub(fsys, "ui")
	if err != nil {
		return Bundle{}, fmt.Errorf("formwizard: ui dir: %w", err)
	}

	cfg, err := schema.LoadFS(schemaFS)
	if err != nil {
		return Bundle{}, err
	}
	ui, err := uischema.LoadFS(uiFS)
	if err != nil {
		return Bundle{}, err
	}

	bundle := Bundle{
		Schema: cfg,
		UI:     widgets.NewRegistry().DecorateConfig(ui),
		Report: validation.ValidateConfig(cfg, ui),
	}
	if !bundle.Report.Valid {
		return bundle, fmt.Errorf("%w: %d issue(s), first: %s", ErrInvalidConfig, len(bundle.Report.Issues), bundle.Report.Issues[0].Message)
	}
	return bundle, nil
}

// LoadDir loads a bundle from a directory, or the bundled sample when dir is
// empty.
func LoadDir(dir string) (Bundle, error) {
	if dir == "" {
		return LoadBundle(SampleFS())
	}
	info, err := os.Stat(dir)
	if err != nil {
		return Bundle{}, fmt.Errorf("formwizard: config dir: %w", err)
	}
	if !info.IsDir() {
		return Bundle{}, fmt.Errorf("formwizard: config dir %s is not a directory", dir)
	}
	return LoadBundle(os.DirFS(dir))
}

// Plan derives the step plan of the bundle.
func (b Bundle) Plan() steps.Plan {
	return steps.Build(b.Schema, b.UI)
}

// NewSession starts a wizard session over the bundle.
func (b Bundle) NewSession(collab persist.Collaborator, options ...wizard.Option) (*wizard.Session, error) {
	return wizard.New(b.Schema, b.UI, collab, options...)
}
