package visibility_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/fkcontext"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/steps"
	"github.com/goliatone/go-formwizard/pkg/testsupport"
	"github.com/goliatone/go-formwizard/pkg/uischema"
	"github.com/goliatone/go-formwizard/pkg/visibility"
)

func lotInput(fk map[string]int64, completed ...string) visibility.Input {
	cfg := testsupport.LotSchema()
	plan := steps.Build(cfg, testsupport.LotUI())
	return visibility.Input{
		Steps:     plan.Steps,
		Schema:    cfg,
		FK:        fkcontext.Of(fk),
		Completed: steps.NewSet(completed...),
	}
}

func visibleIDs(in visibility.Input) []string {
	var out []string
	for idx, step := range in.Steps {
		if visibility.IsVisible(idx, in) {
			out = append(out, step.ID)
		}
	}
	return out
}

func TestIsVisible_FreshSession(t *testing.T) {
	in := lotInput(nil)
	if diff := cmp.Diff([]string{"lot_0"}, visibleIDs(in)); diff != "" {
		t.Fatalf("visible steps mismatch (-want +got):\n%s", diff)
	}
}

func TestIsVisible_RootBusinessKeyExemption(t *testing.T) {
	in := lotInput(nil)
	decision := visibility.Explain(0, in)
	if !decision.Visible || decision.Rule != visibility.RuleFirstStep {
		t.Fatalf("step 0 must always be visible: %#v", decision)
	}

	// Move the business-key section away from index 0 and check the root
	// exemption still applies with an empty context.
	cfg := testsupport.LotSchema()
	ui := testsupport.LotUI()
	sections := ui.Screens[0].Sections
	ui.Screens[0].Sections = []uischema.Section{sections[1], sections[0], sections[2]}
	plan := steps.Build(cfg, ui)
	in = visibility.Input{Steps: plan.Steps, Schema: cfg, FK: fkcontext.Of(nil), Completed: steps.NewSet()}

	decision = visibility.Explain(1, in)
	if !decision.Visible || decision.Rule != visibility.RuleRootBusinessKey {
		t.Fatalf("root business-key step should be exempt from gating: %#v", decision)
	}
}

func TestIsVisible_ScenarioA(t *testing.T) {
	in := lotInput(map[string]int64{"lot": 7}, "lot_0")
	got := visibleIDs(in)
	want := []string{"lot_0", "lot_1", "lot_2", "batch_table"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("visible steps mismatch (-want +got):\n%s", diff)
	}
}

func TestIsVisible_NonBusinessKeyGatedByCompletion(t *testing.T) {
	// The FK context alone never unlocks non-business-key sections.
	in := lotInput(map[string]int64{"lot": 7})
	decision := visibility.Explain(1, in)
	if decision.Visible {
		t.Fatalf("lot_1 should stay hidden until lot_0 completes")
	}
	if diff := cmp.Diff([]string{"lot_0"}, decision.Missing); diff != "" {
		t.Fatalf("missing gate mismatch (-want +got):\n%s", diff)
	}

	in = lotInput(nil, "lot_0")
	if !visibility.IsVisible(1, in) || !visibility.IsVisible(2, in) {
		t.Fatalf("completing lot_0 should unlock lot_1 and lot_2 regardless of FK context")
	}
}

func TestIsVisible_ForeignKeyConjunction(t *testing.T) {
	in := lotInput(map[string]int64{"lot": 1, "batch": 2}, "lot_0")
	inspection, _ := steps.FirstStepOf(in.Steps, "inspection")

	decision := visibility.Explain(inspection, in)
	if decision.Visible {
		t.Fatalf("inspection needs both batch and grade")
	}
	if diff := cmp.Diff([]string{"grade"}, decision.Missing); diff != "" {
		t.Fatalf("missing parents mismatch (-want +got):\n%s", diff)
	}

	in = lotInput(map[string]int64{"grade": 3}, "lot_0")
	if visibility.IsVisible(inspection, in) {
		t.Fatalf("grade alone must not unlock inspection")
	}

	in = lotInput(map[string]int64{"lot": 1, "batch": 2, "grade": 3}, "lot_0")
	if !visibility.IsVisible(inspection, in) {
		t.Fatalf("inspection should be visible once both parents resolve")
	}
}

func TestIsVisible_ParentlessTableSurfacedByChild(t *testing.T) {
	in := lotInput(map[string]int64{"lot": 1}, "lot_0")
	grade, _ := steps.FirstStepOf(in.Steps, "grade")
	if visibility.IsVisible(grade, in) {
		t.Fatalf("grade should stay hidden until a batch is resolved")
	}

	in = lotInput(map[string]int64{"lot": 1, "batch": 5}, "lot_0")
	decision := visibility.Explain(grade, in)
	if !decision.Visible || decision.Rule != visibility.RuleReferencedByChild {
		t.Fatalf("grade should surface once batch resolves: %#v", decision)
	}
}

func TestIsVisible_ParentlessHeuristicAcceptsAnyReferencingChild(t *testing.T) {
	// Two unrelated tables reference grade; resolving either one surfaces it.
	cfg := testsupport.LotSchema()
	cfg.Tables["sample"].Relationships["sample_grade"] = schema.RelationshipMeta{
		Kind: schema.RelationshipMany, ParentTable: "grade", ParentKey: "grade_id", ChildTable: "sample", ChildKey: "grade_id",
	}
	plan := steps.Build(cfg, testsupport.LotUI())
	grade, _ := steps.FirstStepOf(plan.Steps, "grade")

	in := visibility.Input{Steps: plan.Steps, Schema: cfg, FK: fkcontext.Of(map[string]int64{"lot": 1, "sample": 9}), Completed: steps.NewSet("lot_0")}
	if !visibility.IsVisible(grade, in) {
		t.Fatalf("a resolved sample should surface grade under the any-child heuristic")
	}
}

func TestIsVisible_OutOfRange(t *testing.T) {
	in := lotInput(nil)
	if visibility.IsVisible(-1, in) || visibility.IsVisible(len(in.Steps), in) {
		t.Fatalf("out of range indices are never visible")
	}
}

func TestDisplayable_ReachedStepsForcedVisible(t *testing.T) {
	in := lotInput(nil)
	batch, _ := steps.FirstStepOf(in.Steps, "batch")
	if visibility.Displayable(nil, batch, 0, in) {
		t.Fatalf("batch is neither visible nor reached")
	}
	if !visibility.Displayable(nil, batch, batch, in) {
		t.Fatalf("the current step is always displayable")
	}
	if !visibility.Displayable(nil, 1, batch, in) {
		t.Fatalf("steps before current are always displayable")
	}
}

func TestResolverFunc_Override(t *testing.T) {
	in := lotInput(nil)
	never := visibility.ResolverFunc(func(int, visibility.Input) bool { return false })
	if visibility.Displayable(never, 3, 1, in) {
		t.Fatalf("custom resolver should be consulted beyond current")
	}
	if !visibility.Displayable(never, 1, 1, in) {
		t.Fatalf("reached steps stay displayable under any resolver")
	}
}
