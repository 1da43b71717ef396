// Package validation checks wizard configuration for the gaps the runtime
// otherwise tolerates silently, and performs the superficial required-field
// check applied before a section is written.
package validation

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/uischema"
)

// Issue represents a configuration problem with optional location metadata.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Result captures validation outcomes.
type Result struct {
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

func (r *Result) add(path, field, format string, args ...any) {
	r.Valid = false
	r.Issues = append(r.Issues, Issue{Path: path, Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateConfig reports schema invariants and UI gaps. Issues are ordered by
// sequence, then table name, then screen order.
func ValidateConfig(cfg schema.Config, ui uischema.Config) Result {
	result := Result{Valid: true}

	if len(cfg.Sequence) == 0 {
		result.add("sequence", "", "sequence is empty")
	}
	for idx, table := range cfg.Sequence {
		if !cfg.Has(table) {
			result.add(fmt.Sprintf("sequence[%d]", idx), "", "table %q is not declared in tables", table)
		}
	}

	for _, table := range cfg.TableNames() {
		validateTable(&result, cfg, table)
	}

	validateScreens(&result, cfg, ui)
	return result
}

func validateTable(result *Result, cfg schema.Config, table string) {
	meta := cfg.Tables[table]
	base := "tables." + table
	position := cfg.SequenceIndex(table)

	for _, column := range meta.ForeignKeyColumns() {
		parent := meta.ForeignKeys[column]
		path := base + ".foreignKeys." + column
		if !meta.HasColumn(column) {
			result.add(path, column, "foreign key column %q is not a declared column", column)
		}
		if !cfg.Has(parent) {
			result.add(path, column, "foreign key references unknown table %q", parent)
			continue
		}
		if position < 0 {
			continue
		}
		if parentPos := cfg.SequenceIndex(parent); parentPos < 0 || parentPos >= position {
			result.add(path, column, "parent %q does not precede %q in sequence; the step can never unblock", parent, table)
		}
	}

	for _, key := range meta.BusinessKeys {
		if !meta.HasColumn(key) {
			result.add(base+".businessKeys", key, "business key %q is not a declared column", key)
		}
	}

	for _, name := range meta.RelationshipNames() {
		rel := meta.Relationships[name]
		path := base + ".relationships." + name
		if rel.ParentTable != "" && !cfg.Has(rel.ParentTable) {
			result.add(path, "", "relationship references unknown parent table %q", rel.ParentTable)
		}
		if rel.ChildTable != "" && !cfg.Has(rel.ChildTable) {
			result.add(path, "", "relationship references unknown child table %q", rel.ChildTable)
		}
		if rel.IsMany() && rel.ParentTable == "" {
			result.add(path, "", "many relationship has no parent table")
		}
	}
}

func validateScreens(result *Result, cfg schema.Config, ui uischema.Config) {
	root := cfg.Root()
	for idx, screen := range ui.Screens {
		path := fmt.Sprintf("screens[%d]", idx)
		if !cfg.Has(screen.Table) {
			result.add(path, "", "screen %q targets unknown table %q", screen.ID, screen.Table)
			continue
		}
		if screen.Table == root && screen.BusinessKeySection() < 0 {
			result.add(path, "", "root screen %q has no business-key section", screen.ID)
		}

		_ = uischema.Walk(screen, func(node uischema.Node) error {
			table := node.Table()
			meta, ok := cfg.Table(table)
			if !ok {
				result.add(path, "", "section %q writes to unknown table %q", node.Section.ID, table)
				return nil
			}
			for _, field := range node.Section.Fields() {
				if field.Name == "id" || meta.HasColumn(field.Name) {
					continue
				}
				result.add(path+"."+node.Section.ID, field.Name, "field %q is not a column of %q", field.Name, table)
			}
			if len(node.Owners) > 1 {
				owner := node.Owners[len(node.Owners)-2]
				if _, refs := meta.ForeignKeyTo(owner); !refs && len(node.Path) > 0 && isBlockHead(node) {
					result.add(path+"."+node.Section.ID, "", "repeat table %q has no foreign key to owning table %q", table, owner)
				}
			}
			return nil
		})
	}

	for _, table := range cfg.Sequence {
		if _, _, ok := ui.ScreenFor(table); !ok && cfg.Has(table) {
			result.add("screens", "", "table %q has no screen and will be skipped", table)
		}
	}
}

// isBlockHead reports whether the node is the first section of its repeat
// block, so the owner check runs once per block.
func isBlockHead(node uischema.Node) bool {
	return node.Path[len(node.Path)-1] == 0
}

// RequiredFields returns the names of required fields whose value is missing,
// nil or blank.
func RequiredFields(fields []uischema.Field, values map[string]any) []string {
	var missing []string
	for _, field := range fields {
		if !field.Required {
			continue
		}
		value, ok := values[field.Name]
		if !ok || value == nil {
			missing = append(missing, field.Name)
			continue
		}
		if text, isText := value.(string); isText && strings.TrimSpace(text) == "" {
			missing = append(missing, field.Name)
		}
	}
	return missing
}
