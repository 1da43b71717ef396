package testsupport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/schema"
)

// WriteCall records one WriteRow invocation.
type WriteCall struct {
	Table  string
	Record persist.Record
}

// MemoryStore is an in-memory persist.Collaborator with upsert semantics and
// per-table failure injection.
type MemoryStore struct {
	mu     sync.Mutex
	schema schema.Config
	rows   map[string][]persist.Record
	nextID int64
	fail   map[string]error
	reads  map[string]error
	writes []WriteCall
}

var _ persist.Collaborator = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store for cfg.
func NewMemoryStore(cfg schema.Config) *MemoryStore {
	return &MemoryStore{
		schema: cfg,
		rows:   make(map[string][]persist.Record),
		fail:   make(map[string]error),
		reads:  make(map[string]error),
	}
}

// Seed inserts a row and returns its id.
func (m *MemoryStore) Seed(table string, record persist.Record) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	row := record.Clone()
	row[persist.IDColumn] = m.nextID
	m.rows[table] = append(m.rows[table], row)
	return m.nextID
}

// FailWrites makes every WriteRow on table return err. A nil err clears it.
func (m *MemoryStore) FailWrites(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, table)
		return
	}
	m.fail[table] = err
}

// FailReads makes every FetchRows on table return err. A nil err clears it.
func (m *MemoryStore) FailReads(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.reads, table)
		return
	}
	m.reads[table] = err
}

// Writes returns the recorded WriteRow calls.
func (m *MemoryStore) Writes() []WriteCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WriteCall(nil), m.writes...)
}

// Rows returns a copy of every row of table.
func (m *MemoryStore) Rows(table string) []persist.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]persist.Record, 0, len(m.rows[table]))
	for _, row := range m.rows[table] {
		out = append(out, row.Clone())
	}
	return out
}

func (m *MemoryStore) FetchRows(ctx context.Context, table string, scope *persist.RowScope) ([]persist.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reads[table]; err != nil {
		return nil, err
	}

	column := ""
	if scope != nil {
		column = m.scopeColumn(table, scope)
	}
	out := make([]persist.Record, 0)
	for _, row := range m.rows[table] {
		if scope != nil {
			id, ok := persist.AsInt64(row[column])
			if !ok || id != scope.ParentID {
				continue
			}
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

func (m *MemoryStore) FetchBusinessKeyOptions(ctx context.Context, table string) ([]persist.KeyOption, error) {
	return m.keyOptions(ctx, table, nil)
}

func (m *MemoryStore) FetchScopedBusinessKeyOptions(ctx context.Context, table, parentTable string, parentID int64) ([]persist.KeyOption, error) {
	return m.keyOptions(ctx, table, &persist.RowScope{ParentTable: parentTable, ParentID: parentID})
}

func (m *MemoryStore) keyOptions(ctx context.Context, table string, scope *persist.RowScope) ([]persist.KeyOption, error) {
	meta, ok := m.schema.Table(table)
	if !ok {
		return nil, fmt.Errorf("memory: unknown table %q", table)
	}
	key, ok := meta.PrimaryBusinessKey()
	if !ok {
		return nil, nil
	}
	rows, err := m.FetchRows(ctx, table, scope)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []persist.KeyOption
	for _, row := range rows {
		value, ok := row[key]
		if !ok || value == nil {
			continue
		}
		text := fmt.Sprint(value)
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}
		id, _ := row.ID()
		out = append(out, persist.KeyOption{ID: id, Value: text})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out, nil
}

func (m *MemoryStore) FetchRecordByBusinessKey(ctx context.Context, table, keyColumn string, keyValue any) (persist.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	want := fmt.Sprint(keyValue)
	for _, row := range m.rows[table] {
		if value, ok := row[keyColumn]; ok && value != nil && fmt.Sprint(value) == want {
			return row.Clone(), nil
		}
	}
	return nil, fmt.Errorf("memory: %s.%s=%v: %w", table, keyColumn, keyValue, persist.ErrNotFound)
}

func (m *MemoryStore) WriteRow(ctx context.Context, table string, record persist.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes = append(m.writes, WriteCall{Table: table, Record: record.Clone()})
	if err := m.fail[table]; err != nil {
		return 0, err
	}

	if idx := m.match(table, record); idx >= 0 {
		row := m.rows[table][idx]
		for key, value := range record {
			if key == persist.IDColumn {
				continue
			}
			row[key] = value
		}
		id, _ := row.ID()
		return id, nil
	}

	m.nextID++
	row := record.Clone()
	row[persist.IDColumn] = m.nextID
	m.rows[table] = append(m.rows[table], row)
	return m.nextID, nil
}

// match finds the row a write updates: by id first, then by every business
// key when all are present.
func (m *MemoryStore) match(table string, record persist.Record) int {
	if id, ok := record.ID(); ok {
		for idx, row := range m.rows[table] {
			if existing, _ := row.ID(); existing == id {
				return idx
			}
		}
	}
	meta, _ := m.schema.Table(table)
	if len(meta.BusinessKeys) == 0 {
		return -1
	}
	for _, key := range meta.BusinessKeys {
		if value, ok := record[key]; !ok || value == nil {
			return -1
		}
	}
	for idx, row := range m.rows[table] {
		same := true
		for _, key := range meta.BusinessKeys {
			if fmt.Sprint(row[key]) != fmt.Sprint(record[key]) {
				same = false
				break
			}
		}
		if same {
			return idx
		}
	}
	return -1
}

func (m *MemoryStore) scopeColumn(table string, scope *persist.RowScope) string {
	if scope.Column != "" {
		return scope.Column
	}
	meta, _ := m.schema.Table(table)
	if column, ok := meta.ForeignKeyTo(scope.ParentTable); ok {
		return column
	}
	return scope.ParentTable + "_id"
}
