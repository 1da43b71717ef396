// Package steps derives the ordered wizard steps from a schema sequence and
// its UI screens.
package steps

import (
	"fmt"

	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/uischema"
)

// Kind distinguishes per-section steps of the root table from whole-table
// steps of every later table.
type Kind string

const (
	KindSection Kind = "section"
	KindTable   Kind = "table"
)

// Step is one unit of the wizard.
type Step struct {
	ID                  string `json:"id"`
	ScreenIndex         int    `json:"screenIndex"`
	SectionIndex        int    `json:"sectionIndex"`
	Title               string `json:"title"`
	Table               string `json:"table"`
	RequiresBusinessKey bool   `json:"requiresBusinessKey"`
	Kind                Kind   `json:"kind"`
}

// OmissionReason explains why a sequence table produced no step.
type OmissionReason string

const (
	OmittedNoScreen   OmissionReason = "no screen"
	OmittedNoSections OmissionReason = "screen has no sections"
	OmittedUnknown    OmissionReason = "table not in schema"
)

// Omission records a sequence table the planner skipped.
type Omission struct {
	Table  string         `json:"table"`
	Reason OmissionReason `json:"reason"`
}

// Plan is the planner's result. Steps are ordered; their indices double as
// navigation history entries, so a plan must not change within a session.
type Plan struct {
	Steps   []Step     `json:"steps"`
	Omitted []Omission `json:"omitted,omitempty"`

	index map[string]int
}

// Build walks the schema sequence and emits one step per section of the root
// table's screen and one table step for every later table with a screen.
// Tables without a screen are skipped and listed in Plan.Omitted.
func Build(cfg schema.Config, ui uischema.Config) Plan {
	plan := Plan{index: make(map[string]int)}

	for pos, table := range cfg.Sequence {
		if !cfg.Has(table) {
			plan.Omitted = append(plan.Omitted, Omission{Table: table, Reason: OmittedUnknown})
			continue
		}
		screenIdx, screen, ok := ui.ScreenFor(table)
		if !ok {
			plan.Omitted = append(plan.Omitted, Omission{Table: table, Reason: OmittedNoScreen})
			continue
		}

		if pos == 0 {
			if len(screen.Sections) == 0 {
				plan.Omitted = append(plan.Omitted, Omission{Table: table, Reason: OmittedNoSections})
				continue
			}
			for sectionIdx, section := range screen.Sections {
				plan.add(Step{
					ID:                  SectionStepID(table, sectionIdx),
					ScreenIndex:         screenIdx,
					SectionIndex:        sectionIdx,
					Title:               firstNonEmpty(section.Title, screen.Title, table),
					Table:               table,
					RequiresBusinessKey: section.IsBusinessKeySection,
					Kind:                KindSection,
				})
			}
			continue
		}

		requiresKey := false
		if len(screen.Sections) > 0 {
			requiresKey = screen.Sections[0].IsBusinessKeySection
		}
		plan.add(Step{
			ID:                  TableStepID(table),
			ScreenIndex:         screenIdx,
			SectionIndex:        0,
			Title:               firstNonEmpty(screen.Title, table),
			Table:               table,
			RequiresBusinessKey: requiresKey,
			Kind:                KindTable,
		})
	}

	return plan
}

// SectionStepID returns the id of a root-table section step.
func SectionStepID(table string, sectionIdx int) string {
	return fmt.Sprintf("%s_%d", table, sectionIdx)
}

// TableStepID returns the id of a table step.
func TableStepID(table string) string {
	return table + "_table"
}

func (p *Plan) add(step Step) {
	p.index[step.ID] = len(p.Steps)
	p.Steps = append(p.Steps, step)
}

// Len returns the number of steps.
func (p Plan) Len() int {
	return len(p.Steps)
}

// Index returns the position of the step with id.
func (p Plan) Index(id string) (int, bool) {
	if p.index != nil {
		idx, ok := p.index[id]
		return idx, ok
	}
	for idx, step := range p.Steps {
		if step.ID == id {
			return idx, true
		}
	}
	return -1, false
}

// Step returns the step with id.
func (p Plan) Step(id string) (Step, bool) {
	idx, ok := p.Index(id)
	if !ok {
		return Step{}, false
	}
	return p.Steps[idx], true
}

// At returns the step at idx.
func (p Plan) At(idx int) (Step, bool) {
	if idx < 0 || idx >= len(p.Steps) {
		return Step{}, false
	}
	return p.Steps[idx], true
}

// WasOmitted reports whether table was skipped, and why.
func (p Plan) WasOmitted(table string) (OmissionReason, bool) {
	for _, omission := range p.Omitted {
		if omission.Table == table {
			return omission.Reason, true
		}
	}
	return "", false
}

// BusinessKeyStep returns the index of the first section step of table that
// requires a business key.
func BusinessKeyStep(steps []Step, table string) (int, bool) {
	for idx, step := range steps {
		if step.Table == table && step.Kind == KindSection && step.RequiresBusinessKey {
			return idx, true
		}
	}
	return -1, false
}

// FirstStepOf returns the index of the first step for table.
func FirstStepOf(steps []Step, table string) (int, bool) {
	for idx, step := range steps {
		if step.Table == table {
			return idx, true
		}
	}
	return -1, false
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
