package visibility

import (
	"github.com/goliatone/go-formwizard/pkg/fkcontext"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/steps"
)

// Resolver decides whether the step at idx is visible for the given inputs.
type Resolver interface {
	Visible(idx int, in Input) bool
}

// ResolverFunc adapts a function into a Resolver.
type ResolverFunc func(idx int, in Input) bool

// Visible delegates to the underlying function.
func (fn ResolverFunc) Visible(idx int, in Input) bool {
	return fn(idx, in)
}

// Default is the Resolver implementing the wizard's gating rules.
var Default Resolver = ResolverFunc(IsVisible)

// Input carries everything the rules read. It is never mutated.
type Input struct {
	Steps     []steps.Step
	Schema    schema.Config
	FK        fkcontext.Lookup
	Completed steps.Set
}

// Rule names the rule that produced a Decision.
type Rule string

const (
	RuleOutOfRange         Rule = "out-of-range"
	RuleFirstStep          Rule = "first-step"
	RuleForeignKeys        Rule = "foreign-keys"
	RuleReferencedByChild  Rule = "referenced-by-child"
	RuleRootBusinessKey    Rule = "root-business-key"
	RuleBusinessKeyParents Rule = "business-key-parents"
	RuleBusinessKeyGate    Rule = "business-key-gate"
)

// Decision explains a visibility outcome. Missing lists the parent tables
// without a resolved key (foreign-key rules) or the gating step id.
type Decision struct {
	Visible bool     `json:"visible"`
	Rule    Rule     `json:"rule"`
	Missing []string `json:"missing,omitempty"`
}

// IsVisible reports whether the step at idx is visible. It is pure and must
// be re-evaluated whenever the FK context or the completed set changes.
func IsVisible(idx int, in Input) bool {
	return Explain(idx, in).Visible
}

// Displayable unions visibility with "already reached": any step at or before
// current is shown so the user can return to it.
func Displayable(r Resolver, idx, current int, in Input) bool {
	if idx < 0 || idx >= len(in.Steps) {
		return false
	}
	if idx <= current {
		return true
	}
	if r == nil {
		r = Default
	}
	return r.Visible(idx, in)
}

// Explain evaluates the rules in priority order and reports which one decided.
func Explain(idx int, in Input) Decision {
	if idx < 0 || idx >= len(in.Steps) {
		return Decision{Rule: RuleOutOfRange}
	}
	if idx == 0 {
		return Decision{Visible: true, Rule: RuleFirstStep}
	}

	step := in.Steps[idx]
	meta, _ := in.Schema.Table(step.Table)

	switch {
	case step.Kind == steps.KindTable && len(meta.ForeignKeys) > 0:
		missing := unresolvedParents(meta, in.FK)
		return Decision{Visible: len(missing) == 0, Rule: RuleForeignKeys, Missing: missing}

	case step.Kind == steps.KindTable:
		return Decision{Visible: referencedByResolvedChild(step.Table, in), Rule: RuleReferencedByChild}

	case step.RequiresBusinessKey && in.Schema.IsRoot(step.Table):
		return Decision{Visible: true, Rule: RuleRootBusinessKey}

	case step.RequiresBusinessKey:
		missing := unresolvedParents(meta, in.FK)
		return Decision{Visible: len(missing) == 0, Rule: RuleBusinessKeyParents, Missing: missing}

	default:
		gate, ok := steps.BusinessKeyStep(in.Steps, step.Table)
		if !ok {
			// Without a business-key section the table's first step gates the rest.
			gate, ok = steps.FirstStepOf(in.Steps, step.Table)
		}
		if !ok || gate == idx {
			return Decision{Visible: true, Rule: RuleBusinessKeyGate}
		}
		gateID := in.Steps[gate].ID
		if in.Completed.Has(gateID) {
			return Decision{Visible: true, Rule: RuleBusinessKeyGate}
		}
		return Decision{Rule: RuleBusinessKeyGate, Missing: []string{gateID}}
	}
}

func unresolvedParents(meta schema.TableMeta, fk fkcontext.Lookup) []string {
	var missing []string
	for _, parent := range meta.ParentTables() {
		if !has(fk, parent) {
			missing = append(missing, parent)
		}
	}
	return missing
}

// referencedByResolvedChild implements the parentless-table heuristic: the
// step shows once any other table declaring a many relationship with this
// table as parent has a resolved key.
func referencedByResolvedChild(table string, in Input) bool {
	for _, other := range in.Schema.TableNames() {
		if other == table || !has(in.FK, other) {
			continue
		}
		meta := in.Schema.Tables[other]
		for _, name := range meta.RelationshipNames() {
			rel := meta.Relationships[name]
			if rel.IsMany() && rel.ParentTable == table {
				return true
			}
		}
	}
	return false
}

func has(fk fkcontext.Lookup, table string) bool {
	return fk != nil && fk.Has(table)
}
