// Package store implements persist.Collaborator over database/sql for SQLite
// (modernc.org/sqlite) and PostgreSQL (pgx stdlib).
//
// Every table and column name that reaches a statement is checked against the
// schema configuration first and then quoted; values always travel as bind
// parameters.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/schema"
)

var (
	// ErrUnknownTable is returned for a table the schema does not declare.
	ErrUnknownTable = errors.New("store: unknown table")
	// ErrUnknownColumn is returned for a column the table does not declare.
	ErrUnknownColumn = errors.New("store: unknown column")
	// ErrNoScopeColumn means no column links a table to the requested parent.
	ErrNoScopeColumn = errors.New("store: no column links table to parent")
)

// Store is the SQL collaborator.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger

	mu     sync.RWMutex
	schema schema.Config
}

var _ persist.Collaborator = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithLogger sets the logger used for statement tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDialect selects placeholder syntax. The default is SQLite.
func WithDialect(dialect Dialect) Option {
	return func(s *Store) {
		if dialect != "" {
			s.dialect = dialect
		}
	}
}

// New wraps an open database. cfg is the allow-list for identifiers.
func New(db *sql.DB, cfg schema.Config, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: DialectSQLite,
		schema:  cfg,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect reports the configured dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// SetSchema swaps the identifier allow-list, used when configuration reloads.
func (s *Store) SetSchema(cfg schema.Config) {
	s.mu.Lock()
	s.schema = cfg
	s.mu.Unlock()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) FetchRows(ctx context.Context, table string, scope *persist.RowScope) ([]persist.Record, error) {
	meta, err := s.table(table)
	if err != nil {
		return nil, err
	}
	columns := selectColumns(meta)
	b := s.binder()

	var q strings.Builder
	fmt.Fprintf(&q, "SELECT %s FROM %s", quoteAll(columns), quote(table))
	if scope != nil {
		column, err := scopeColumn(table, meta, scope.ParentTable, scope.Column)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&q, " WHERE %s = %s", quote(column), b.bind(scope.ParentID))
	}
	fmt.Fprintf(&q, " ORDER BY %s", quote(persist.IDColumn))

	records, err := s.queryRecords(ctx, q.String(), columns, b.args)
	if err != nil {
		return nil, fmt.Errorf("store: fetch %s rows: %w", table, err)
	}
	return records, nil
}

func (s *Store) FetchBusinessKeyOptions(ctx context.Context, table string) ([]persist.KeyOption, error) {
	return s.keyOptions(ctx, table, "", 0)
}

func (s *Store) FetchScopedBusinessKeyOptions(ctx context.Context, table, parentTable string, parentID int64) ([]persist.KeyOption, error) {
	if strings.TrimSpace(parentTable) == "" {
		return nil, fmt.Errorf("store: scoped options for %s: parent table is empty", table)
	}
	return s.keyOptions(ctx, table, parentTable, parentID)
}

func (s *Store) keyOptions(ctx context.Context, table, parentTable string, parentID int64) ([]persist.KeyOption, error) {
	meta, err := s.table(table)
	if err != nil {
		return nil, err
	}
	key, ok := meta.PrimaryBusinessKey()
	if !ok {
		return nil, nil
	}
	if !meta.HasColumn(key) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, key)
	}
	b := s.binder()

	var q strings.Builder
	fmt.Fprintf(&q, "SELECT MIN(%s), %s FROM %s WHERE %s IS NOT NULL",
		quote(persist.IDColumn), quote(key), quote(table), quote(key))
	if parentTable != "" {
		column, err := scopeColumn(table, meta, parentTable, "")
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&q, " AND %s = %s", quote(column), b.bind(parentID))
	}
	fmt.Fprintf(&q, " GROUP BY %s ORDER BY %s", quote(key), quote(key))

	s.trace(q.String(), b.args)
	rows, err := s.db.QueryContext(ctx, q.String(), b.args...)
	if err != nil {
		return nil, fmt.Errorf("store: %s key options: %w", table, err)
	}
	defer rows.Close()

	var out []persist.KeyOption
	for rows.Next() {
		var (
			id    int64
			value any
		)
		if err := rows.Scan(&id, &value); err != nil {
			return nil, fmt.Errorf("store: scan %s key option: %w", table, err)
		}
		out = append(out, persist.KeyOption{ID: id, Value: fmt.Sprint(normalize(value))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: %s key options: %w", table, err)
	}
	return out, nil
}

func (s *Store) FetchRecordByBusinessKey(ctx context.Context, table, keyColumn string, keyValue any) (persist.Record, error) {
	meta, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if keyColumn != persist.IDColumn && !meta.HasColumn(keyColumn) {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, keyColumn)
	}
	columns := selectColumns(meta)
	b := s.binder()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s LIMIT 1",
		quoteAll(columns), quote(table), quote(keyColumn), b.bind(keyValue), quote(persist.IDColumn))

	records, err := s.queryRecords(ctx, query, columns, b.args)
	if err != nil {
		return nil, fmt.Errorf("store: lookup %s.%s: %w", table, keyColumn, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("store: %s.%s=%v: %w", table, keyColumn, keyValue, persist.ErrNotFound)
	}
	return records[0], nil
}

// WriteRow updates by id, then by a full business-key match, and inserts
// otherwise. The lookup and the write share one transaction.
func (s *Store) WriteRow(ctx context.Context, table string, record persist.Record) (id int64, err error) {
	meta, err := s.table(table)
	if err != nil {
		return 0, err
	}
	columns, err := writeColumns(table, meta, record)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin write %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	id, found := record.ID()
	if !found {
		id, found, err = s.matchBusinessKeys(ctx, tx, table, meta, record)
		if err != nil {
			return 0, err
		}
	}
	if found {
		err = s.update(ctx, tx, table, id, columns, record)
	} else {
		id, err = s.insert(ctx, tx, table, columns, record)
	}
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit write %s: %w", table, err)
	}

	s.logger.Debug("row written",
		slog.String("table", table),
		slog.Int64("id", id),
		slog.Bool("updated", found),
	)
	return id, nil
}

func (s *Store) matchBusinessKeys(ctx context.Context, tx *sql.Tx, table string, meta schema.TableMeta, record persist.Record) (int64, bool, error) {
	if len(meta.BusinessKeys) == 0 {
		return 0, false, nil
	}
	b := s.binder()
	conds := make([]string, 0, len(meta.BusinessKeys))
	for _, key := range meta.BusinessKeys {
		value, ok := record[key]
		if !ok || value == nil || !meta.HasColumn(key) {
			return 0, false, nil
		}
		conds = append(conds, fmt.Sprintf("%s = %s", quote(key), b.bind(value)))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT 1",
		quote(persist.IDColumn), quote(table), strings.Join(conds, " AND "), quote(persist.IDColumn))

	s.trace(query, b.args)
	var id int64
	err := tx.QueryRowContext(ctx, query, b.args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("store: match %s business keys: %w", table, err)
	}
	return id, true, nil
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, table string, id int64, columns []string, record persist.Record) error {
	if len(columns) == 0 {
		return nil
	}
	b := s.binder()
	sets := make([]string, len(columns))
	for idx, column := range columns {
		sets[idx] = fmt.Sprintf("%s = %s", quote(column), b.bind(bindValue(record[column])))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		quote(table), strings.Join(sets, ", "), quote(persist.IDColumn), b.bind(id))

	s.trace(query, b.args)
	res, err := tx.ExecContext(ctx, query, b.args...)
	if err != nil {
		return fmt.Errorf("store: update %s id=%d: %w", table, id, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("store: update %s id=%d: %w", table, id, persist.ErrNotFound)
	}
	return nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, table string, columns []string, record persist.Record) (int64, error) {
	var query string
	b := s.binder()
	if len(columns) == 0 {
		query = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", quote(table), quote(persist.IDColumn))
	} else {
		marks := make([]string, len(columns))
		for idx, column := range columns {
			marks[idx] = b.bind(bindValue(record[column]))
		}
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			quote(table), quoteAll(columns), strings.Join(marks, ", "), quote(persist.IDColumn))
	}

	s.trace(query, b.args)
	var id int64
	if err := tx.QueryRowContext(ctx, query, b.args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: insert %s: %w", table, err)
	}
	return id, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, columns []string, args []any) ([]persist.Record, error) {
	s.trace(query, args)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]persist.Record, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for idx := range values {
			ptrs[idx] = &values[idx]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		record := make(persist.Record, len(columns))
		for idx, column := range columns {
			record[column] = normalize(values[idx])
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *Store) table(name string) (schema.TableMeta, error) {
	s.mu.RLock()
	meta, ok := s.schema.Table(name)
	s.mu.RUnlock()
	if !ok {
		return schema.TableMeta{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return meta, nil
}

func (s *Store) trace(query string, args []any) {
	s.logger.Debug("sql", slog.String("query", query), slog.Int("args", len(args)))
}

func (s *Store) binder() *binder {
	return &binder{dialect: s.dialect}
}

type binder struct {
	dialect Dialect
	args    []any
}

func (b *binder) bind(value any) string {
	b.args = append(b.args, value)
	return b.dialect.Placeholder(len(b.args))
}

// selectColumns is id followed by the declared columns.
func selectColumns(meta schema.TableMeta) []string {
	out := make([]string, 0, len(meta.Columns)+1)
	out = append(out, persist.IDColumn)
	for _, column := range meta.Columns {
		if column != persist.IDColumn {
			out = append(out, column)
		}
	}
	return out
}

// writeColumns returns the record's columns minus id, sorted.
func writeColumns(table string, meta schema.TableMeta, record persist.Record) ([]string, error) {
	out := make([]string, 0, len(record))
	for column := range record {
		if column == persist.IDColumn {
			continue
		}
		if !meta.HasColumn(column) {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
		}
		out = append(out, column)
	}
	sort.Strings(out)
	return out, nil
}

// scopeColumn resolves the column linking table to parent: an explicit
// column, then a relationship child key, then a foreign key.
func scopeColumn(table string, meta schema.TableMeta, parent, explicit string) (string, error) {
	if explicit != "" {
		if !meta.HasColumn(explicit) {
			return "", fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, explicit)
		}
		return explicit, nil
	}
	for _, name := range meta.RelationshipNames() {
		rel := meta.Relationships[name]
		if rel.ParentTable != parent || rel.ChildKey == "" {
			continue
		}
		if rel.ChildTable != "" && rel.ChildTable != table {
			continue
		}
		if meta.HasColumn(rel.ChildKey) {
			return rel.ChildKey, nil
		}
	}
	if column, ok := meta.ForeignKeyTo(parent); ok && meta.HasColumn(column) {
		return column, nil
	}
	return "", fmt.Errorf("%w: %s -> %s", ErrNoScopeColumn, table, parent)
}

func quoteAll(columns []string) string {
	quoted := make([]string, len(columns))
	for idx, column := range columns {
		quoted[idx] = quote(column)
	}
	return strings.Join(quoted, ", ")
}

func normalize(value any) any {
	if raw, ok := value.([]byte); ok {
		return string(raw)
	}
	return value
}

// bindValue flattens composite form values, which no column type accepts.
func bindValue(value any) any {
	switch v := value.(type) {
	case []any, map[string]any:
		return fmt.Sprint(v)
	default:
		return value
	}
}
