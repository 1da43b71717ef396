// Package relationship resolves which already-selected parent scopes the rows
// and business-key suggestions offered for a table.
package relationship

import (
	"github.com/goliatone/go-formwizard/pkg/fkcontext"
	"github.com/goliatone/go-formwizard/pkg/schema"
)

// Scope names the parent table whose resolved key constrains a lookup and
// the column of the looked-up table that holds that key.
type Scope struct {
	ParentTable string `json:"parentTable"`
	ParentKey   string `json:"parentKey"`
}

// Source tells which search produced a Scope.
type Source string

const (
	// SourceOwn means the table declares the many relationship itself.
	SourceOwn Source = "own"
	// SourceReferenced means another table declares the table as its child.
	SourceReferenced Source = "referenced"
)

// FindScopingParent returns the scoping parent for table. The table's own
// many relationships win; otherwise another table's many relationship naming
// table as child is used when its declared parent is already resolved.
// Relationships pointing at tables outside the schema are ignored. Iteration
// is deterministic: relationship names sorted, other tables in sequence order.
func FindScopingParent(table string, cfg schema.Config, fk fkcontext.Lookup) (Scope, bool) {
	scope, _, ok := Resolve(table, cfg, fk)
	return scope, ok
}

// Resolve is FindScopingParent that also reports which search matched.
func Resolve(table string, cfg schema.Config, fk fkcontext.Lookup) (Scope, Source, bool) {
	if meta, ok := cfg.Table(table); ok {
		for _, name := range meta.RelationshipNames() {
			rel := meta.Relationships[name]
			if !rel.IsMany() || !cfg.Has(rel.ParentTable) {
				continue
			}
			return Scope{ParentTable: rel.ParentTable, ParentKey: rel.ParentKey}, SourceOwn, true
		}
	}

	for _, other := range cfg.TableNames() {
		if other == table {
			continue
		}
		meta := cfg.Tables[other]
		for _, name := range meta.RelationshipNames() {
			rel := meta.Relationships[name]
			if !rel.IsMany() || rel.ChildTable != table {
				continue
			}
			if !cfg.Has(rel.ParentTable) || fk == nil || !fk.Has(rel.ParentTable) {
				continue
			}
			return Scope{ParentTable: other, ParentKey: rel.ChildKey}, SourceReferenced, true
		}
	}

	return Scope{}, "", false
}

// ScopeID returns the resolved key of the scope's parent table.
func ScopeID(scope Scope, fk fkcontext.Lookup) (int64, bool) {
	if fk == nil || scope.ParentTable == "" {
		return 0, false
	}
	return fk.Get(scope.ParentTable)
}
