package wizard_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/progress"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/testsupport"
	"github.com/goliatone/go-formwizard/pkg/visibility"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

// fixedKeyStore returns a constant surrogate key for every write.
type fixedKeyStore struct {
	*testsupport.MemoryStore
	key int64
}

func (f fixedKeyStore) WriteRow(ctx context.Context, table string, record persist.Record) (int64, error) {
	if _, err := f.MemoryStore.WriteRow(ctx, table, record); err != nil {
		return 0, err
	}
	return f.key, nil
}

func newSession(t *testing.T, cfg schema.Config, collab persist.Collaborator) *wizard.Session {
	t.Helper()
	session, err := wizard.New(cfg, testsupport.LotUI(), collab, wizard.WithID("test-session"))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return session
}

func stepView(t *testing.T, view wizard.View, id string) wizard.StepView {
	t.Helper()
	for _, step := range view.Steps {
		if step.ID == id {
			return step
		}
	}
	t.Fatalf("step %q not in view", id)
	return wizard.StepView{}
}

func TestSession_CompletingBusinessKeyUnlocksChild(t *testing.T) {
	cfg := testsupport.LotSchema()
	cfg.Sequence = []string{"lot", "batch"}
	store := fixedKeyStore{MemoryStore: testsupport.NewMemoryStore(cfg), key: 7}
	session := newSession(t, cfg, store)

	before := session.View()
	if stepView(t, before, "batch_table").Visible {
		t.Fatalf("batch_table must be hidden before lot is resolved")
	}

	outcome, err := session.OnStepSectionSaved(context.Background(), "lot_0", persist.Record{"lot_code": "L-7"})
	if err != nil {
		t.Fatalf("save lot_0: %v", err)
	}
	if !outcome.Done || outcome.ID != 7 {
		t.Fatalf("unexpected outcome %#v", outcome)
	}

	view := session.View()
	if diff := cmp.Diff(map[string]int64{"lot": 7}, view.FK); diff != "" {
		t.Fatalf("fk mismatch (-want +got):\n%s", diff)
	}
	want := progress.State{
		Completed: []string{"lot_0"},
		Current:   1,
		History:   []int{0, 1},
		Status:    progress.StatusActive,
	}
	if diff := cmp.Diff(want, view.Progress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
	if !stepView(t, view, "batch_table").Visible {
		t.Fatalf("batch_table should be visible once lot is resolved")
	}
}

func TestSession_GoToUncompletedStepIsIgnored(t *testing.T) {
	cfg := testsupport.LotSchema()
	session := newSession(t, cfg, testsupport.NewMemoryStore(cfg))

	before := session.Progress()
	result := session.OnGoToStep("lot_0")
	if result.Applied || result.Reason != progress.RejectNotCompleted {
		t.Fatalf("expected rejection, got %#v", result)
	}
	if diff := cmp.Diff(before, session.Progress()); diff != "" {
		t.Fatalf("state changed (-before +after):\n%s", diff)
	}

	if result := session.OnGoToStep("ghost"); result.Applied {
		t.Fatalf("unknown step should be rejected")
	}
}

func TestSession_RepeatBlockWithoutRowsReportsError(t *testing.T) {
	cfg := testsupport.LotSchema()
	session := newSession(t, cfg, testsupport.NewMemoryStore(cfg))
	ctx := context.Background()

	if _, err := session.OnStepSectionSaved(ctx, "lot_0", persist.Record{"lot_code": "L-1"}); err != nil {
		t.Fatalf("save lot_0: %v", err)
	}
	if _, err := session.OnStepSectionSaved(ctx, "lot_1", persist.Record{"notes": "ok"}); err != nil {
		t.Fatalf("save lot_1: %v", err)
	}

	before := session.Progress()
	_, err := session.CompleteRows(ctx, "lot_2")
	if !errors.Is(err, persist.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if diff := cmp.Diff(before, session.Progress()); diff != "" {
		t.Fatalf("progress changed (-before +after):\n%s", diff)
	}

	step := stepView(t, session.View(), "lot_2")
	if step.Error == nil || step.Error.Message != "add at least one row" {
		t.Fatalf("expected section error on lot_2, got %#v", step.Error)
	}
	if len(step.Blocks) != 1 || step.Blocks[0].CanComplete() {
		t.Fatalf("expected one open rows block without rows, got %#v", step.Blocks)
	}
}

func TestSession_GoBackOnFreshSessionIsNoop(t *testing.T) {
	cfg := testsupport.LotSchema()
	session := newSession(t, cfg, testsupport.NewMemoryStore(cfg))

	before := session.View()
	result := session.OnGoBack()
	if result.Applied || result.Reason != progress.RejectNoHistory {
		t.Fatalf("expected rejection, got %#v", result)
	}
	after := session.View()
	if diff := cmp.Diff(before.Progress, after.Progress); diff != "" {
		t.Fatalf("progress changed (-before +after):\n%s", diff)
	}
	if before.FKVersion != after.FKVersion || len(after.FK) != 0 {
		t.Fatalf("fk context changed: %#v", after.FK)
	}
}

func TestSession_FullWalkthroughAndReset(t *testing.T) {
	cfg := testsupport.LotSchema()
	store := testsupport.NewMemoryStore(cfg)
	session := newSession(t, cfg, store)
	ctx := context.Background()

	mustSave := func(stepID string, form persist.Record) persist.Outcome {
		t.Helper()
		outcome, err := session.OnStepSectionSaved(ctx, stepID, form)
		if err != nil {
			t.Fatalf("save %s: %v", stepID, err)
		}
		return outcome
	}

	mustSave("lot_0", persist.Record{"lot_code": "L-1", "product": "wheat"})
	mustSave("lot_1", persist.Record{"received_on": "2024-05-01"})

	draft, err := session.AddRow(ctx, "lot_2", nil)
	if err != nil {
		t.Fatalf("add row: %v", err)
	}
	if _, err := session.SaveRow(ctx, "lot_2", draft, persist.Record{"sample_no": "S-1"}); err != nil {
		t.Fatalf("save row: %v", err)
	}
	outcome, err := session.CompleteRows(ctx, "lot_2")
	if err != nil {
		t.Fatalf("complete rows: %v", err)
	}
	if !outcome.Done || outcome.Table != "lot" || outcome.ID != 1 {
		t.Fatalf("repeat block should complete on behalf of lot: %#v", outcome)
	}

	view := session.View()
	if stepView(t, view, "grade_table").Visible {
		t.Fatalf("grade_table must wait for a referencing batch")
	}
	if stepView(t, view, "inspection_table").Visible {
		t.Fatalf("inspection_table needs batch and grade")
	}

	mustSave("batch_table", persist.Record{"batch_code": "B-1", "quantity": 10, "lot_id": 99})
	view = session.View()
	if !stepView(t, view, "grade_table").Visible {
		t.Fatalf("grade_table should appear once batch is resolved")
	}
	if stepView(t, view, "inspection_table").Visible {
		t.Fatalf("inspection_table should still wait for grade")
	}

	mustSave("grade_table", persist.Record{"grade_code": "A"})
	mustSave("inspection_table", persist.Record{"reference": "R-1", "passed": true})

	view = session.View()
	if !view.Finished || view.Progress.Status != progress.StatusComplete {
		t.Fatalf("wizard should be finished: %#v", view.Progress)
	}
	wantSummary := []wizard.SummaryEntry{
		{Table: "lot", ID: 1},
		{Table: "batch", ID: 3},
		{Table: "grade", ID: 4},
		{Table: "inspection", ID: 5},
	}
	if diff := cmp.Diff(wantSummary, view.Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}

	inspection := store.Rows("inspection")[0]
	if inspection["batch_id"] != int64(3) || inspection["grade_id"] != int64(4) {
		t.Fatalf("inspection foreign keys not taken from context: %#v", inspection)
	}
	if batch := store.Rows("batch")[0]; batch["lot_id"] != int64(1) {
		t.Fatalf("batch lot_id should be overwritten from context: %#v", batch)
	}

	result := session.OnReset()
	if !result.Applied {
		t.Fatalf("reset should apply on a finished wizard: %#v", result)
	}
	view = session.View()
	if len(view.FK) != 0 || view.Progress.Current != 0 || len(view.Progress.Completed) != 0 {
		t.Fatalf("reset should clear state: %#v", view)
	}
	if stepView(t, view, "lot_0").Values != nil {
		t.Fatalf("reset should drop saved values")
	}
}

func TestSession_ResetRequiresFinishedWizard(t *testing.T) {
	cfg := testsupport.LotSchema()
	session := newSession(t, cfg, testsupport.NewMemoryStore(cfg))

	if _, err := session.OnStepSectionSaved(context.Background(), "lot_0", persist.Record{"lot_code": "L-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	result := session.OnReset()
	if result.Applied || result.Reason != progress.RejectNotFinished {
		t.Fatalf("expected rejection, got %#v", result)
	}
	if len(session.FK().Map()) != 1 {
		t.Fatalf("fk context should be untouched")
	}
}

func TestSession_CompletedStepIsLockedUntilEdited(t *testing.T) {
	cfg := testsupport.LotSchema()
	store := testsupport.NewMemoryStore(cfg)
	session := newSession(t, cfg, store)
	ctx := context.Background()

	if _, err := session.OnStepSectionSaved(ctx, "lot_0", persist.Record{"lot_code": "L-1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !stepView(t, session.View(), "lot_0").Disabled {
		t.Fatalf("completed step should render disabled")
	}
	if _, err := session.OnStepSectionSaved(ctx, "lot_0", persist.Record{"lot_code": "L-2"}); !errors.Is(err, wizard.ErrStepLocked) {
		t.Fatalf("expected ErrStepLocked, got %v", err)
	}

	if result := session.OnGoToStep("lot_0"); !result.Applied {
		t.Fatalf("go to completed step: %#v", result)
	}
	view := session.View()
	step := stepView(t, view, "lot_0")
	if step.Disabled || !step.Editing || view.Progress.Status != progress.StatusEditing {
		t.Fatalf("edited step should be enabled: %#v", step)
	}
	if step.Values["lot_code"] != "L-1" {
		t.Fatalf("editing keeps saved values as initial state, got %#v", step.Values)
	}

	if _, err := session.OnStepSectionSaved(ctx, "lot_0", persist.Record{"lot_code": "L-2"}); err != nil {
		t.Fatalf("save edited step: %v", err)
	}
	rows := store.Rows("lot")
	if len(rows) != 2 || rows[0]["lot_code"] != "L-1" || rows[1]["lot_code"] != "L-2" {
		t.Fatalf("a new business key should create another lot: %#v", rows)
	}
	newID, _ := rows[1].ID()
	if id, _ := session.FK().Get("lot"); id != newID {
		t.Fatalf("fk lot = %d, want %d", id, newID)
	}
	if diff := cmp.Diff([]int{0, 1, 0, 1}, session.Progress().History); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_HiddenStepIsLocked(t *testing.T) {
	cfg := testsupport.LotSchema()
	store := testsupport.NewMemoryStore(cfg)
	session := newSession(t, cfg, store)

	_, err := session.OnStepSectionSaved(context.Background(), "inspection_table", persist.Record{"reference": "R"})
	if !errors.Is(err, wizard.ErrStepLocked) {
		t.Fatalf("expected ErrStepLocked, got %v", err)
	}
	if _, err := session.OnStepSectionSaved(context.Background(), "nope", nil); !errors.Is(err, wizard.ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
	if len(store.Writes()) != 0 {
		t.Fatalf("no write expected")
	}
}

func TestSession_WriteFailureLeavesStateUntouched(t *testing.T) {
	cfg := testsupport.LotSchema()
	store := testsupport.NewMemoryStore(cfg)
	store.FailWrites("lot", errors.New("connection refused"))
	session := newSession(t, cfg, store)

	before := session.Progress()
	_, err := session.OnStepSectionSaved(context.Background(), "lot_0", persist.Record{"lot_code": "L-1"})
	var sectionErr *persist.SectionError
	if !errors.As(err, &sectionErr) {
		t.Fatalf("expected section error, got %v", err)
	}

	view := session.View()
	if len(view.FK) != 0 || view.FKVersion != 0 {
		t.Fatalf("fk context must not change: %#v", view.FK)
	}
	if diff := cmp.Diff(before, view.Progress); diff != "" {
		t.Fatalf("progress changed (-before +after):\n%s", diff)
	}
	if stepView(t, view, "lot_0").Error == nil {
		t.Fatalf("error should be recorded on the step")
	}

	store.FailWrites("lot", nil)
	if _, err := session.OnStepSectionSaved(context.Background(), "lot_0", persist.Record{"lot_code": "L-1"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if stepView(t, session.View(), "lot_0").Error != nil {
		t.Fatalf("successful retry should clear the error")
	}
}

func TestSession_SelectExistingRecord(t *testing.T) {
	cfg := testsupport.LotSchema()
	store := testsupport.NewMemoryStore(cfg)
	lotID := store.Seed("lot", persist.Record{"lot_code": "L-9"})
	other := store.Seed("lot", persist.Record{"lot_code": "L-10"})
	batchID := store.Seed("batch", persist.Record{"batch_code": "B-9", "lot_id": lotID})
	store.Seed("batch", persist.Record{"batch_code": "B-10", "lot_id": other})
	session := newSession(t, cfg, store)
	ctx := context.Background()

	if _, err := session.SelectRecord(ctx, "lot_0", "missing"); !errors.Is(err, persist.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := session.SelectRecord(ctx, "lot_0", "L-9"); err != nil {
		t.Fatalf("select lot: %v", err)
	}

	options, err := session.BusinessKeyOptions(ctx, "batch_table")
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if diff := cmp.Diff([]persist.KeyOption{{ID: batchID, Value: "B-9"}}, options); diff != "" {
		t.Fatalf("options should be scoped by lot (-want +got):\n%s", diff)
	}

	related, err := session.RelatedRows(ctx, "batch_table")
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 1 {
		t.Fatalf("expected one related batch, got %d", len(related))
	}

	if got := session.FK().Map(); got["lot"] != lotID {
		t.Fatalf("selected lot should be in fk context: %#v", got)
	}
}

func TestSession_SelectRecordStaysUnderSelectedParent(t *testing.T) {
	cfg := testsupport.LotSchema()
	store := testsupport.NewMemoryStore(cfg)
	first := store.Seed("lot", persist.Record{"lot_code": "L-1"})
	second := store.Seed("lot", persist.Record{"lot_code": "L-2"})
	store.Seed("batch", persist.Record{"batch_code": "B1", "lot_id": first})
	want := store.Seed("batch", persist.Record{"batch_code": "B1", "lot_id": second})
	session := newSession(t, cfg, store)
	ctx := context.Background()

	if _, err := session.SelectRecord(ctx, "lot_0", "L-2"); err != nil {
		t.Fatalf("select lot: %v", err)
	}
	options, err := session.BusinessKeyOptions(ctx, "batch_table")
	if err != nil || len(options) != 1 {
		t.Fatalf("expected one scoped option: %#v %v", options, err)
	}

	record, err := session.SelectRecord(ctx, "batch_table", options[0].Value)
	if err != nil {
		t.Fatalf("select batch: %v", err)
	}
	if id, _ := record.ID(); id != want {
		t.Fatalf("selected batch %d, want %d under lot %d", id, want, second)
	}
	if diff := cmp.Diff(map[string]int64{"lot": second, "batch": want}, session.FK().Map()); diff != "" {
		t.Fatalf("fk context mismatch (-want +got):\n%s", diff)
	}
}

func TestSession_ViewExplainsBuiltInRulesOnly(t *testing.T) {
	cfg := testsupport.LotSchema()

	session := newSession(t, cfg, testsupport.NewMemoryStore(cfg))
	batch := stepView(t, session.View(), "batch_table")
	if batch.Decision == nil || batch.Decision.Rule != visibility.RuleForeignKeys {
		t.Fatalf("default rules should be explained: %#v", batch.Decision)
	}
	if batch.Decision.Visible != batch.Visible {
		t.Fatalf("decision %v contradicts visible %v", batch.Decision.Visible, batch.Visible)
	}

	everything := visibility.ResolverFunc(func(int, visibility.Input) bool { return true })
	custom, err := wizard.New(cfg, testsupport.LotUI(), testsupport.NewMemoryStore(cfg), wizard.WithVisibility(everything))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	batch = stepView(t, custom.View(), "batch_table")
	if !batch.Visible || batch.Decision != nil {
		t.Fatalf("custom resolver should drive visibility without a decision: %#v", batch)
	}
}
