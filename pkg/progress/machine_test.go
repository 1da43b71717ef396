package progress_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formwizard/pkg/progress"
)

func TestMachine_InitialState(t *testing.T) {
	m := progress.New(3)
	want := progress.State{Completed: []string{}, Current: 0, History: []int{0}, Status: progress.StatusActive}
	if diff := cmp.Diff(want, m.Snapshot()); diff != "" {
		t.Fatalf("initial state mismatch (-want +got):\n%s", diff)
	}
}

func TestMachine_CompleteAdvances(t *testing.T) {
	m := progress.New(3)
	if res := m.Complete("lot_0"); !res.Applied {
		t.Fatalf("complete rejected: %#v", res)
	}
	want := progress.State{Completed: []string{"lot_0"}, Current: 1, History: []int{0, 1}, Status: progress.StatusActive}
	if diff := cmp.Diff(want, m.Snapshot()); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestMachine_GoToStepRequiresCompletion(t *testing.T) {
	m := progress.New(3)
	before := m.Snapshot()

	res := m.GoToStep("lot_0", 0)
	if res.Applied || res.Reason != progress.RejectNotCompleted {
		t.Fatalf("jump to uncompleted step must be rejected: %#v", res)
	}
	if diff := cmp.Diff(before, m.Snapshot()); diff != "" {
		t.Fatalf("rejected jump mutated state (-want +got):\n%s", diff)
	}
}

func TestMachine_EditCycle(t *testing.T) {
	m := progress.New(4)
	m.Complete("lot_0")
	m.Complete("lot_1")

	if res := m.GoToStep("lot_0", 0); !res.Applied {
		t.Fatalf("jump rejected: %#v", res)
	}
	if m.Status() != progress.StatusEditing {
		t.Fatalf("expected editing status, got %s", m.Status())
	}
	if editing, ok := m.Editing(); !ok || editing != "lot_0" {
		t.Fatalf("editing = %q, %v", editing, ok)
	}
	if m.Disabled("lot_0", "lot_0") {
		t.Fatalf("the step being edited is never disabled")
	}
	if !m.Disabled("lot_1", "lot_0") {
		t.Fatalf("completed, not edited, not current: lot_1 should be disabled")
	}

	m.Complete("lot_0")
	state := m.Snapshot()
	if state.Editing != "" {
		t.Fatalf("completing the edited step clears editing")
	}
	if state.Current != 1 {
		t.Fatalf("completion advances from the edited index, got %d", state.Current)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 0, 1}, state.History); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"lot_0", "lot_1"}, state.Completed); diff != "" {
		t.Fatalf("completion must be idempotent on the set (-want +got):\n%s", diff)
	}
}

func TestMachine_CompleteOtherStepKeepsEditing(t *testing.T) {
	m := progress.New(3)
	m.Complete("a")
	m.Complete("b")
	m.GoToStep("a", 0)
	m.Complete("c")
	if editing, _ := m.Editing(); editing != "a" {
		t.Fatalf("completing another step must not clear editing, got %q", editing)
	}
}

func TestMachine_GoBackSingleEntryIsNoOp(t *testing.T) {
	m := progress.New(2)
	before := m.Snapshot()
	res := m.GoBack()
	if res.Applied || res.Reason != progress.RejectNoHistory {
		t.Fatalf("back on [0] must be rejected: %#v", res)
	}
	if diff := cmp.Diff(before, m.Snapshot()); diff != "" {
		t.Fatalf("rejected back mutated state (-want +got):\n%s", diff)
	}
}

func TestMachine_GoBackClearsEditing(t *testing.T) {
	m := progress.New(3)
	m.Complete("a")
	m.GoToStep("a", 0)
	m.GoBack()
	if _, ok := m.Editing(); ok {
		t.Fatalf("back clears editing")
	}
	if m.Current() != 1 {
		t.Fatalf("expected current 1, got %d", m.Current())
	}
}

func TestMachine_ResetOnlyWhenFinished(t *testing.T) {
	m := progress.New(2)
	m.Complete("a")
	if res := m.Reset(); res.Applied || res.Reason != progress.RejectNotFinished {
		t.Fatalf("reset before finishing must be rejected: %#v", res)
	}

	m.Complete("b")
	if !m.Finished() || m.Status() != progress.StatusComplete {
		t.Fatalf("expected finished machine")
	}
	if res := m.Reset(); !res.Applied {
		t.Fatalf("reset rejected: %#v", res)
	}
	want := progress.State{Completed: []string{}, Current: 0, History: []int{0}, Status: progress.StatusActive}
	if diff := cmp.Diff(want, m.Snapshot()); diff != "" {
		t.Fatalf("reset state mismatch (-want +got):\n%s", diff)
	}
}

func TestMachine_GoToStepOutOfRange(t *testing.T) {
	m := progress.New(2)
	m.Complete("a")
	if res := m.GoToStep("a", 5); res.Applied || res.Reason != progress.RejectOutOfRange {
		t.Fatalf("out of range jump must be rejected: %#v", res)
	}
}

func TestMachine_CompleteRejectsEmptyID(t *testing.T) {
	m := progress.New(2)
	if res := m.Complete(""); res.Applied {
		t.Fatalf("empty id must be rejected")
	}
	if m.Current() != 0 {
		t.Fatalf("rejected completion must not advance")
	}
}
