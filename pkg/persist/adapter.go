package persist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/goliatone/go-formwizard/pkg/fkcontext"
	"github.com/goliatone/go-formwizard/pkg/relationship"
	"github.com/goliatone/go-formwizard/pkg/schema"
)

// Adapter writes and reads wizard records through a Collaborator, applying
// the FK context to every write and the relationship resolver to every
// scoped read.
type Adapter struct {
	collab   Collaborator
	schema   schema.Config
	logger   *slog.Logger
	sanitize bool
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the structured logger. Nil keeps the discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSanitize toggles markup stripping of string values. It is on by
// default.
func WithSanitize(enabled bool) Option {
	return func(a *Adapter) {
		a.sanitize = enabled
	}
}

// NewAdapter constructs an adapter over collab for the given schema.
func NewAdapter(collab Collaborator, cfg schema.Config, options ...Option) *Adapter {
	a := &Adapter{
		collab:   collab,
		schema:   cfg,
		sanitize: true,
	}
	for _, opt := range options {
		if opt != nil {
			opt(a)
		}
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a
}

// Schema returns the schema the adapter writes against.
func (a *Adapter) Schema() schema.Config {
	return a.schema
}

// Prepare copies form into a record for table: unknown columns are dropped,
// string values are sanitised and every foreign-key column is overwritten
// from fk. A foreign key whose parent has no resolved key is written as nil;
// submitted values never survive.
func (a *Adapter) Prepare(table string, form Record, fk fkcontext.Lookup) Record {
	meta, _ := a.schema.Table(table)
	out := make(Record, len(form)+len(meta.ForeignKeys))
	for key, value := range form {
		if key != IDColumn && !meta.HasColumn(key) {
			continue
		}
		if text, ok := value.(string); ok && a.sanitize {
			value = sanitizeValue(text)
		}
		out[key] = value
	}
	for _, column := range meta.ForeignKeyColumns() {
		parent := meta.ForeignKeys[column]
		if id, ok := lookup(fk, parent); ok {
			out[column] = id
		} else {
			out[column] = nil
		}
	}
	return out
}

// Write prepares and persists one record, returning the surrogate key and
// the record as written (with its id).
func (a *Adapter) Write(ctx context.Context, table string, form Record, fk fkcontext.Lookup) (int64, Record, error) {
	if ctx == nil {
		return 0, nil, errors.New("persist: context is nil")
	}
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}
	if !a.schema.Has(table) {
		return 0, nil, fmt.Errorf("persist: unknown table %q", table)
	}

	record := a.Prepare(table, form, fk)
	id, err := a.collab.WriteRow(ctx, table, record)
	if err != nil {
		a.logger.Warn("persist: write failed", "table", table, "error", err)
		return 0, nil, fmt.Errorf("persist: write %s: %w", table, err)
	}
	record[IDColumn] = id
	a.logger.Debug("persist: row written", "table", table, "id", id)
	return id, record, nil
}

// ScopeFor resolves the row scope for table from the FK context. It returns
// nil when no scoping parent applies or the parent has no resolved key, in
// which case reads are unscoped.
func (a *Adapter) ScopeFor(table string, fk fkcontext.Lookup) *RowScope {
	scope, ok := relationship.FindScopingParent(table, a.schema, fk)
	if !ok {
		return nil
	}
	id, ok := relationship.ScopeID(scope, fk)
	if !ok {
		return nil
	}
	return &RowScope{ParentTable: scope.ParentTable, Column: scope.ParentKey, ParentID: id}
}

// Rows fetches the rows of table scoped by the resolved parent, if any.
func (a *Adapter) Rows(ctx context.Context, table string, fk fkcontext.Lookup) ([]Record, error) {
	rows, err := a.collab.FetchRows(ctx, table, a.ScopeFor(table, fk))
	if err != nil {
		return nil, fmt.Errorf("persist: fetch rows %s: %w", table, err)
	}
	return rows, nil
}

// KeyOptions returns business-key suggestions for table, scoped by the
// resolved parent when one applies and global otherwise.
func (a *Adapter) KeyOptions(ctx context.Context, table string, fk fkcontext.Lookup) ([]KeyOption, error) {
	var (
		options []KeyOption
		err     error
	)
	if scope := a.ScopeFor(table, fk); scope != nil {
		options, err = a.collab.FetchScopedBusinessKeyOptions(ctx, table, scope.ParentTable, scope.ParentID)
	} else {
		options, err = a.collab.FetchBusinessKeyOptions(ctx, table)
	}
	if err != nil {
		return nil, fmt.Errorf("persist: business keys %s: %w", table, err)
	}
	return options, nil
}

// Lookup fetches the record of table whose first business key equals value.
// When fk resolves a scoping parent the match is taken from that parent's
// rows, so a key that is only unique per parent selects the row under it.
func (a *Adapter) Lookup(ctx context.Context, table string, value any, fk fkcontext.Lookup) (Record, error) {
	meta, ok := a.schema.Table(table)
	if !ok {
		return nil, fmt.Errorf("persist: unknown table %q", table)
	}
	key, ok := meta.PrimaryBusinessKey()
	if !ok {
		return nil, fmt.Errorf("persist: table %q has no business key", table)
	}

	scope := a.ScopeFor(table, fk)
	if scope == nil {
		record, err := a.collab.FetchRecordByBusinessKey(ctx, table, key, value)
		if err != nil {
			return nil, fmt.Errorf("persist: lookup %s.%s: %w", table, key, err)
		}
		return record, nil
	}

	rows, err := a.collab.FetchRows(ctx, table, scope)
	if err != nil {
		return nil, fmt.Errorf("persist: lookup %s.%s: %w", table, key, err)
	}
	want := fmt.Sprint(value)
	for _, row := range rows {
		if current, ok := row[key]; ok && current != nil && fmt.Sprint(current) == want {
			return row, nil
		}
	}
	return nil, fmt.Errorf("persist: lookup %s.%s=%v under %s %d: %w",
		table, key, value, scope.ParentTable, scope.ParentID, ErrNotFound)
}

// HasBusinessKeys reports whether record carries a non-empty value for every
// business key of table.
func (a *Adapter) HasBusinessKeys(table string, record Record) bool {
	meta, ok := a.schema.Table(table)
	if !ok || len(meta.BusinessKeys) == 0 {
		return false
	}
	for _, key := range meta.BusinessKeys {
		value, ok := record[key]
		if !ok || value == nil {
			return false
		}
		if text, ok := value.(string); ok && strings.TrimSpace(text) == "" {
			return false
		}
	}
	return true
}

func lookup(fk fkcontext.Lookup, table string) (int64, bool) {
	if fk == nil {
		return 0, false
	}
	return fk.Get(table)
}
