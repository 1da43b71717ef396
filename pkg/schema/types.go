package schema

import (
	"sort"
	"strings"
)

// RelationshipKind enumerates the supported relationship cardinalities.
type RelationshipKind string

const (
	// RelationshipOne links a row to at most one row of another table.
	RelationshipOne RelationshipKind = "one"
	// RelationshipMany declares that many child rows reference one parent row.
	RelationshipMany RelationshipKind = "many"
)

// RelationshipMeta describes a named relationship declared on a table. For a
// many relationship, rows of ChildTable reference one row of ParentTable via
// ChildKey = ParentKey.
type RelationshipMeta struct {
	Kind        RelationshipKind `json:"kind" yaml:"kind"`
	ParentKey   string           `json:"parentKey,omitempty" yaml:"parentKey,omitempty"`
	ParentTable string           `json:"parentTable,omitempty" yaml:"parentTable,omitempty"`
	ChildKey    string           `json:"childKey,omitempty" yaml:"childKey,omitempty"`
	ChildTable  string           `json:"childTable,omitempty" yaml:"childTable,omitempty"`
}

// TableMeta holds the descriptive metadata of one logical table.
type TableMeta struct {
	BusinessKeys  []string                    `json:"businessKeys,omitempty" yaml:"businessKeys,omitempty"`
	Columns       []string                    `json:"columns" yaml:"columns"`
	ForeignKeys   map[string]string           `json:"foreignKeys,omitempty" yaml:"foreignKeys,omitempty"`
	Relationships map[string]RelationshipMeta `json:"relationships,omitempty" yaml:"relationships,omitempty"`
}

// Config is the schema side of a wizard configuration: the processing
// sequence and the tables it walks. The first sequence entry is the root.
type Config struct {
	Sequence []string             `json:"sequence" yaml:"sequence"`
	Tables   map[string]TableMeta `json:"tables" yaml:"tables"`
}

// Root returns the first table in the sequence, or "" for an empty sequence.
func (c Config) Root() string {
	if len(c.Sequence) == 0 {
		return ""
	}
	return c.Sequence[0]
}

// IsRoot reports whether table is the first entry of the sequence.
func (c Config) IsRoot(table string) bool {
	return table != "" && table == c.Root()
}

// Table returns the metadata for a table.
func (c Config) Table(name string) (TableMeta, bool) {
	meta, ok := c.Tables[name]
	return meta, ok
}

// Has reports whether the schema declares the table.
func (c Config) Has(name string) bool {
	_, ok := c.Tables[name]
	return ok
}

// SequenceIndex returns the position of table in the sequence or -1.
func (c Config) SequenceIndex(table string) int {
	for idx, name := range c.Sequence {
		if name == table {
			return idx
		}
	}
	return -1
}

// TableNames lists every table: sequence order first, then the remaining
// tables sorted by name.
func (c Config) TableNames() []string {
	out := make([]string, 0, len(c.Tables))
	seen := make(map[string]struct{}, len(c.Tables))
	for _, name := range c.Sequence {
		if _, ok := c.Tables[name]; !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	var rest []string
	for name := range c.Tables {
		if _, ok := seen[name]; !ok {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// HasColumn reports whether column is declared on the table.
func (t TableMeta) HasColumn(column string) bool {
	for _, name := range t.Columns {
		if name == column {
			return true
		}
	}
	return false
}

// ParentTables returns the distinct tables referenced by foreign keys, sorted.
func (t TableMeta) ParentTables() []string {
	if len(t.ForeignKeys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(t.ForeignKeys))
	out := make([]string, 0, len(t.ForeignKeys))
	for _, parent := range t.ForeignKeys {
		if _, ok := seen[parent]; ok {
			continue
		}
		seen[parent] = struct{}{}
		out = append(out, parent)
	}
	sort.Strings(out)
	return out
}

// ForeignKeyColumns returns the foreign-key column names, sorted.
func (t TableMeta) ForeignKeyColumns() []string {
	out := make([]string, 0, len(t.ForeignKeys))
	for column := range t.ForeignKeys {
		out = append(out, column)
	}
	sort.Strings(out)
	return out
}

// ForeignKeyTo returns the first (by column name) foreign-key column that
// references parent.
func (t TableMeta) ForeignKeyTo(parent string) (string, bool) {
	for _, column := range t.ForeignKeyColumns() {
		if t.ForeignKeys[column] == parent {
			return column, true
		}
	}
	return "", false
}

// RelationshipNames returns relationship names sorted so callers iterate
// relationships deterministically.
func (t TableMeta) RelationshipNames() []string {
	out := make([]string, 0, len(t.Relationships))
	for name := range t.Relationships {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// PrimaryBusinessKey returns the first business key column, if any.
func (t TableMeta) PrimaryBusinessKey() (string, bool) {
	if len(t.BusinessKeys) == 0 {
		return "", false
	}
	key := strings.TrimSpace(t.BusinessKeys[0])
	return key, key != ""
}

// IsMany reports whether the relationship has many cardinality.
func (r RelationshipMeta) IsMany() bool {
	return r.Kind == RelationshipMany
}
