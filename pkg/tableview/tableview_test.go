package tableview_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/tableview"
	"github.com/goliatone/go-formwizard/pkg/testsupport"
)

func seededStore() (*testsupport.MemoryStore, int64) {
	store := testsupport.NewMemoryStore(testsupport.LotSchema())
	lot := store.Seed("lot", persist.Record{"lot_code": "L-1", "product": "wheat"})
	batch := store.Seed("batch", persist.Record{"batch_code": "B-1", "lot_id": lot, "quantity": 4})
	grade := store.Seed("grade", persist.Record{"grade_code": "A"})
	inspection := store.Seed("inspection", persist.Record{"reference": "R-1", "batch_id": batch, "grade_id": grade, "passed": true})
	store.Seed("inspection", persist.Record{"reference": "R-2", "grade_id": grade})
	return store, inspection
}

func TestBuild_JoinsEveryAncestor(t *testing.T) {
	store, inspectionID := seededStore()
	grid, err := tableview.Build(context.Background(), testsupport.LotSchema(), store, "inspection")
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	wantHeaders := []string{
		"reference", "batch_id", "grade_id", "inspector", "passed",
		"batch.lot_id", "batch.batch_code", "batch.quantity",
		"grade.grade_code", "grade.description",
		"lot.lot_code", "lot.product", "lot.received_on", "lot.notes",
	}
	if diff := cmp.Diff(wantHeaders, grid.Headers()); diff != "" {
		t.Fatalf("headers mismatch (-want +got):\n%s", diff)
	}
	if len(grid.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(grid.Rows))
	}

	first := grid.Rows[0]
	if first.ID != inspectionID {
		t.Fatalf("rows should be ordered by id, got %d", first.ID)
	}
	if first.Values["lot.lot_code"] != "L-1" || first.Values["grade.grade_code"] != "A" || first.Values["batch.batch_code"] != "B-1" {
		t.Fatalf("ancestor values missing: %#v", first.Values)
	}

	second := grid.Rows[1]
	if second.Values["batch.batch_code"] != nil || second.Values["lot.lot_code"] != nil {
		t.Fatalf("unresolved ancestors should be empty: %#v", second.Values)
	}
	if second.Values["grade.grade_code"] != "A" {
		t.Fatalf("resolved grade missing: %#v", second.Values)
	}

	for _, column := range grid.Columns {
		wantEditable := column.Table == "inspection" && column.Name != "batch_id" && column.Name != "grade_id"
		if column.Editable != wantEditable {
			t.Fatalf("column %s editable=%v, want %v", column.Key, column.Editable, wantEditable)
		}
	}
}

func TestUpdate_WritesOwnColumnsByID(t *testing.T) {
	store, inspectionID := seededStore()
	cfg := testsupport.LotSchema()
	ctx := context.Background()

	if err := tableview.Update(ctx, cfg, store, "inspection", inspectionID, map[string]any{"inspector": "kim"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	rows := store.Rows("inspection")
	if rows[0]["inspector"] != "kim" || rows[0]["reference"] != "R-1" {
		t.Fatalf("unexpected row after update: %#v", rows[0])
	}

	err := tableview.Update(ctx, cfg, store, "inspection", inspectionID, map[string]any{"grade_id": 9})
	if !errors.Is(err, tableview.ErrReadOnlyColumn) {
		t.Fatalf("expected ErrReadOnlyColumn for fk column, got %v", err)
	}
	err = tableview.Update(ctx, cfg, store, "inspection", inspectionID, map[string]any{"lot.lot_code": "X"})
	if !errors.Is(err, tableview.ErrReadOnlyColumn) {
		t.Fatalf("expected ErrReadOnlyColumn for ancestor column, got %v", err)
	}
}

func TestBuild_UnknownTable(t *testing.T) {
	store, _ := seededStore()
	if _, err := tableview.Build(context.Background(), testsupport.LotSchema(), store, "ghost"); err == nil {
		t.Fatalf("expected error")
	}
}
