package formwizard

import (
	"context"
	"errors"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/testsupport"
)

func TestSampleFSContainsDocuments(t *testing.T) {
	for _, name := range []string{"schema/schema.yaml", "ui/ui.yaml"} {
		if _, err := fs.ReadFile(SampleFS(), name); err != nil {
			t.Fatalf("expected %s to be readable: %v", name, err)
		}
	}
}

func TestLoadBundle_Sample(t *testing.T) {
	bundle, err := LoadDir("")
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !bundle.Report.Valid {
		t.Fatalf("sample should validate, got %#v", bundle.Report.Issues)
	}

	plan := bundle.Plan()
	var ids []string
	for _, step := range plan.Steps {
		ids = append(ids, step.ID)
	}
	want := []string{"lot_0", "lot_1", "lot_2", "batch_table", "grade_table", "inspection_table"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}

	identity := bundle.UI.Screens[0].Sections[0].Fields()
	if identity[0].Widget != "text" {
		t.Fatalf("expected widgets to be filled in, got %q", identity[0].Widget)
	}
}

func TestLoadBundle_ReportsIssues(t *testing.T) {
	fsys := fstest.MapFS{
		"schema/schema.yaml": {Data: []byte("sequence: [lot]\ntables:\n  lot:\n    columns: [code]\n")},
		"ui/ui.yaml":         {Data: []byte("screens:\n  - id: lot\n    table: lot\n    sections:\n      - id: main\n        fields:\n          - {name: code}\n")},
	}

	bundle, err := LoadBundle(fsys)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if bundle.Report.Valid || len(bundle.Report.Issues) == 0 {
		t.Fatalf("expected issues in the report")
	}
}

func TestLoadDir_Missing(t *testing.T) {
	if _, err := LoadDir(t.TempDir() + "/missing"); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}

func TestBundle_NewSession(t *testing.T) {
	bundle, err := LoadDir("")
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	store := testsupport.NewMemoryStore(bundle.Schema)
	session, err := bundle.NewSession(store)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if _, err := session.OnStepSectionSaved(context.Background(), "lot_0", persist.Record{"lot_code": "L-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := session.FK().Map()["lot"]; got != 1 {
		t.Fatalf("expected lot key 1, got %d", got)
	}
}
