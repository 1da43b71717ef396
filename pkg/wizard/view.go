package wizard

import (
	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/progress"
	"github.com/goliatone/go-formwizard/pkg/steps"
	"github.com/goliatone/go-formwizard/pkg/visibility"
)

// StepView is the render state of one step.
type StepView struct {
	steps.Step
	Index       int                   `json:"index"`
	Visible     bool                  `json:"visible"`
	Displayable bool                  `json:"displayable"`
	Disabled    bool                  `json:"disabled"`
	Completed   bool                  `json:"completed"`
	Current     bool                  `json:"current"`
	Editing     bool                  `json:"editing"`
	Decision    *visibility.Decision  `json:"decision,omitempty"`
	Values      persist.Record        `json:"values,omitempty"`
	Error       *persist.SectionError `json:"error,omitempty"`
	Blocks      []persist.Frame       `json:"blocks,omitempty"`
}

// SummaryEntry is one resolved key of a finished wizard.
type SummaryEntry struct {
	Table string `json:"table"`
	ID    int64  `json:"id"`
}

// View is everything a renderer needs for one frame of the wizard.
type View struct {
	SessionID string           `json:"sessionId"`
	Steps     []StepView       `json:"steps"`
	Omitted   []steps.Omission `json:"omitted,omitempty"`
	Progress  progress.State   `json:"progress"`
	FK        map[string]int64 `json:"fk"`
	FKVersion uint64           `json:"fkVersion"`
	Finished  bool             `json:"finished"`
	Summary   []SummaryEntry   `json:"summary,omitempty"`
}

// View computes the render state. Visibility is re-evaluated on every call.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.input()
	current := s.machine.Current()
	currentID := s.currentStepID()
	editing, _ := s.machine.Editing()

	view := View{
		SessionID: s.id,
		Steps:     make([]StepView, 0, s.plan.Len()),
		Omitted:   append([]steps.Omission(nil), s.plan.Omitted...),
		Progress:  s.machine.Snapshot(),
		FK:        s.fk.Snapshot().Map(),
		FKVersion: s.fk.Version(),
		Finished:  s.machine.Finished(),
	}

	for idx, step := range s.plan.Steps {
		visible := s.resolver.Visible(idx, in)
		sv := StepView{
			Step:        step,
			Index:       idx,
			Visible:     visible,
			Displayable: visibility.Displayable(s.resolver, idx, current, in),
			Disabled:    s.machine.Disabled(step.ID, currentID),
			Completed:   s.machine.IsCompleted(step.ID),
			Current:     idx == current,
			Editing:     editing == step.ID,
			Error:       s.errs[step.ID],
		}
		if s.explain {
			// Explain describes the built-in rules only.
			decision := visibility.Explain(idx, in)
			sv.Decision = &decision
		}
		if values, ok := s.saved[step.ID]; ok {
			sv.Values = values.Clone()
		}
		if flow, ok := s.flows[step.ID]; ok {
			sv.Blocks = flow.Frames()
		}
		view.Steps = append(view.Steps, sv)
	}

	if view.Finished {
		view.Summary = s.summary()
	}
	return view
}

// summary lists the resolved keys in sequence order, then any other tables
// (repeat tables folded early) by name.
func (s *Session) summary() []SummaryEntry {
	snapshot := s.fk.Snapshot()
	seen := make(map[string]struct{}, snapshot.Len())
	out := make([]SummaryEntry, 0, snapshot.Len())
	for _, table := range s.schema.Sequence {
		if id, ok := snapshot.Get(table); ok {
			out = append(out, SummaryEntry{Table: table, ID: id})
			seen[table] = struct{}{}
		}
	}
	for _, table := range snapshot.Tables() {
		if _, ok := seen[table]; ok {
			continue
		}
		id, _ := snapshot.Get(table)
		out = append(out, SummaryEntry{Table: table, ID: id})
	}
	return out
}
