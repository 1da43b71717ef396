package testsupport

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/uischema"
)

// LotSchema returns the lot → batch → grade → inspection schema used across
// package tests. sample rows hang off lot through a repeat block and are not
// part of the sequence.
func LotSchema() schema.Config {
	return schema.Config{
		Sequence: []string{"lot", "batch", "grade", "inspection"},
		Tables: map[string]schema.TableMeta{
			"lot": {
				BusinessKeys: []string{"lot_code"},
				Columns:      []string{"lot_code", "product", "received_on", "notes"},
			},
			"sample": {
				Columns:     []string{"lot_id", "sample_no", "taken_at"},
				ForeignKeys: map[string]string{"lot_id": "lot"},
				Relationships: map[string]schema.RelationshipMeta{
					"lot": {Kind: schema.RelationshipMany, ParentTable: "lot", ParentKey: "lot_id", ChildTable: "sample", ChildKey: "lot_id"},
				},
			},
			"batch": {
				BusinessKeys: []string{"batch_code"},
				Columns:      []string{"lot_id", "batch_code", "quantity"},
				ForeignKeys:  map[string]string{"lot_id": "lot"},
				Relationships: map[string]schema.RelationshipMeta{
					"batches_of_lot": {Kind: schema.RelationshipMany, ParentTable: "lot", ParentKey: "lot_id", ChildTable: "batch", ChildKey: "lot_id"},
					"graded_batches": {Kind: schema.RelationshipMany, ParentTable: "grade", ParentKey: "grade_id", ChildTable: "batch", ChildKey: "grade_id"},
				},
			},
			"grade": {
				BusinessKeys: []string{"grade_code"},
				Columns:      []string{"grade_code", "description"},
			},
			"inspection": {
				BusinessKeys: []string{"reference"},
				Columns:      []string{"reference", "batch_id", "grade_id", "inspector", "passed"},
				ForeignKeys:  map[string]string{"batch_id": "batch", "grade_id": "grade"},
			},
		},
	}
}

// LotUI returns the screens matching LotSchema. The lot screen has a
// business-key section, a plain section and a samples repeat block.
func LotUI() uischema.Config {
	return uischema.Config{Screens: []uischema.Screen{
		{
			ID: "lot", Table: "lot", Title: "Lot",
			Sections: []uischema.Section{
				{
					ID: "lot_identity", Title: "Identify lot", IsBusinessKeySection: true,
					Body: uischema.Simple{Fields: []uischema.Field{
						{Name: "lot_code", Required: true},
						{Name: "product", Widget: "select", Options: []uischema.Option{{Label: "Wheat", Value: "wheat"}, {Label: "Barley", Value: "barley"}}},
					}},
				},
				{
					ID: "lot_receiving", Title: "Receiving",
					Body: uischema.Simple{Fields: []uischema.Field{
						{Name: "received_on", Widget: "date"},
						{Name: "notes", Widget: "textarea"},
					}},
				},
				{
					ID: "lot_samples", Title: "Samples",
					Body: uischema.Repeat{Spec: uischema.RepeatSpec{
						Table: "sample", Title: "Sample",
						Sections: []uischema.Section{{
							ID: "sample_fields",
							Body: uischema.Simple{Fields: []uischema.Field{
								{Name: "sample_no", Required: true},
								{Name: "taken_at", Widget: "date"},
							}},
						}},
					}},
				},
			},
		},
		{
			ID: "batch", Table: "batch", Title: "Batch",
			Sections: []uischema.Section{{
				ID: "batch_identity", IsBusinessKeySection: true,
				Body: uischema.Simple{Fields: []uischema.Field{
					{Name: "batch_code", Required: true},
					{Name: "quantity", Widget: "number"},
					{Name: "lot_id"},
				}},
			}},
		},
		{
			ID: "grade", Table: "grade", Title: "Grade",
			Sections: []uischema.Section{{
				ID: "grade_identity", IsBusinessKeySection: true,
				Body: uischema.Simple{Fields: []uischema.Field{
					{Name: "grade_code", Required: true},
					{Name: "description"},
				}},
			}},
		},
		{
			ID: "inspection", Table: "inspection", Title: "Inspection",
			Sections: []uischema.Section{{
				ID: "inspection_result",
				Body: uischema.Simple{Fields: []uischema.Field{
					{Name: "reference", Required: true},
					{Name: "inspector"},
					{Name: "passed", Widget: "checkbox"},
				}},
			}},
		},
	}}
}

// WriteGolden writes arbitrary data to a golden file when UPDATE_GOLDENS is set.
func WriteGolden(t *testing.T, path string, value any) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDENS") == "" {
		return
	}
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		t.Fatalf("marshal golden: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir golden dir: %v", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatalf("write golden: %v", err)
	}
}

// CompareGolden returns a diff string if the values differ.
func CompareGolden(want, got any) string {
	return cmp.Diff(want, got)
}

// MustReadGolden reads a golden file and returns its raw bytes.
func MustReadGolden(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read golden: %v", err)
	}
	return data
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}
