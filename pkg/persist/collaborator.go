package persist

import (
	"context"
	"strconv"
	"strings"
)

// Record is one row keyed by column name. The surrogate key travels as "id".
type Record map[string]any

// IDColumn is the surrogate key column every table carries.
const IDColumn = "id"

// ID returns the record's surrogate key when present and integral.
func (r Record) ID() (int64, bool) {
	return AsInt64(r[IDColumn])
}

// Clone copies the record shallowly.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for key, value := range r {
		out[key] = value
	}
	return out
}

// KeyOption is one business-key suggestion.
type KeyOption struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
}

// RowScope filters FetchRows to rows whose Column equals ParentID. Column may
// be empty, in which case the collaborator derives it from the foreign key
// referencing ParentTable.
type RowScope struct {
	ParentTable string `json:"parentTable"`
	Column      string `json:"column,omitempty"`
	ParentID    int64  `json:"parentId"`
}

// Collaborator is the read/write surface the wizard persists through.
type Collaborator interface {
	// FetchRows returns every column plus id, filtered when scope is non-nil.
	FetchRows(ctx context.Context, table string, scope *RowScope) ([]Record, error)
	// FetchBusinessKeyOptions returns the distinct non-null values of the
	// table's first business key.
	FetchBusinessKeyOptions(ctx context.Context, table string) ([]KeyOption, error)
	// FetchScopedBusinessKeyOptions is FetchBusinessKeyOptions restricted to
	// rows whose relationship-declared key matches parentID.
	FetchScopedBusinessKeyOptions(ctx context.Context, table, parentTable string, parentID int64) ([]KeyOption, error)
	// FetchRecordByBusinessKey returns the full row or an error wrapping
	// ErrNotFound.
	FetchRecordByBusinessKey(ctx context.Context, table, keyColumn string, keyValue any) (Record, error)
	// WriteRow upserts the record and returns its surrogate key. Records
	// carrying an id update that row; otherwise a match on every business key
	// updates, and anything else inserts.
	WriteRow(ctx context.Context, table string, record Record) (int64, error)
}

// AsInt64 converts the numeric shapes produced by JSON decoding, SQL drivers
// and form input into an int64.
func AsInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	case interface{ Int64() (int64, error) }:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}
