// Package tableview flattens a table and its foreign-key ancestors into one
// denormalised grid for reading and inline edits.
package tableview

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/schema"
)

// ErrReadOnlyColumn is returned when an edit targets a column of a parent
// table or a foreign-key column.
var ErrReadOnlyColumn = errors.New("tableview: column is read-only")

// Column is one header of the grid. Own columns use the bare column name as
// Key; ancestor columns use "table.column".
type Column struct {
	Key      string `json:"key"`
	Table    string `json:"table"`
	Name     string `json:"name"`
	Editable bool   `json:"editable"`
}

// Row is one row of the base table with ancestor values joined in.
type Row struct {
	ID     int64          `json:"id"`
	Values map[string]any `json:"values"`
}

// Grid is the denormalised view of a table.
type Grid struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Headers returns the column keys in display order.
func (g Grid) Headers() []string {
	out := make([]string, 0, len(g.Columns))
	for _, column := range g.Columns {
		out = append(out, column.Key)
	}
	return out
}

// Build reads every row of table and joins the columns of every table
// reachable through foreign keys. Each ancestor table appears once, reached
// through the first foreign-key path in sorted column order.
func Build(ctx context.Context, cfg schema.Config, collab persist.Collaborator, table string) (Grid, error) {
	meta, ok := cfg.Table(table)
	if !ok {
		return Grid{}, fmt.Errorf("tableview: unknown table %q", table)
	}

	rows, err := collab.FetchRows(ctx, table, nil)
	if err != nil {
		return Grid{}, fmt.Errorf("tableview: fetch %s: %w", table, err)
	}

	grid := Grid{Table: table}
	fkColumns := make(map[string]struct{}, len(meta.ForeignKeys))
	for column := range meta.ForeignKeys {
		fkColumns[column] = struct{}{}
	}
	for _, column := range meta.Columns {
		_, isFK := fkColumns[column]
		grid.Columns = append(grid.Columns, Column{Key: column, Table: table, Name: column, Editable: !isFK})
	}

	paths := ancestors(cfg, table)
	cache := make(map[string]map[int64]persist.Record)
	for _, path := range paths {
		parentMeta, _ := cfg.Table(path.table)
		for _, column := range parentMeta.Columns {
			grid.Columns = append(grid.Columns, Column{Key: path.table + "." + column, Table: path.table, Name: column})
		}
		if _, ok := cache[path.table]; ok {
			continue
		}
		parentRows, err := collab.FetchRows(ctx, path.table, nil)
		if err != nil {
			return Grid{}, fmt.Errorf("tableview: fetch %s: %w", path.table, err)
		}
		index := make(map[int64]persist.Record, len(parentRows))
		for _, row := range parentRows {
			if id, ok := row.ID(); ok {
				index[id] = row
			}
		}
		cache[path.table] = index
	}

	for _, record := range rows {
		id, _ := record.ID()
		out := Row{ID: id, Values: make(map[string]any, len(grid.Columns))}
		for _, column := range meta.Columns {
			out.Values[column] = record[column]
		}

		resolved := map[string]persist.Record{table: record}
		for _, path := range paths {
			var parent persist.Record
			if child, ok := resolved[path.via]; ok {
				if parentID, ok := persist.AsInt64(child[path.column]); ok {
					parent = cache[path.table][parentID]
				}
			}
			resolved[path.table] = parent
			parentMeta, _ := cfg.Table(path.table)
			for _, column := range parentMeta.Columns {
				var value any
				if parent != nil {
					value = parent[column]
				}
				out.Values[path.table+"."+column] = value
			}
		}
		grid.Rows = append(grid.Rows, out)
	}

	sort.SliceStable(grid.Rows, func(i, j int) bool { return grid.Rows[i].ID < grid.Rows[j].ID })
	return grid, nil
}

// Update writes an inline edit of the base table's own columns back through
// the collaborator, keyed by id.
func Update(ctx context.Context, cfg schema.Config, collab persist.Collaborator, table string, id int64, values map[string]any) error {
	meta, ok := cfg.Table(table)
	if !ok {
		return fmt.Errorf("tableview: unknown table %q", table)
	}
	record := persist.Record{persist.IDColumn: id}
	for key, value := range values {
		if key == persist.IDColumn {
			continue
		}
		if !meta.HasColumn(key) {
			return fmt.Errorf("%w: %s", ErrReadOnlyColumn, key)
		}
		if _, isFK := meta.ForeignKeys[key]; isFK {
			return fmt.Errorf("%w: %s", ErrReadOnlyColumn, key)
		}
		record[key] = value
	}
	if _, err := collab.WriteRow(ctx, table, record); err != nil {
		return fmt.Errorf("tableview: update %s/%d: %w", table, id, err)
	}
	return nil
}

// ancestorPath says how an ancestor table is reached: through column of the
// already-visited table via.
type ancestorPath struct {
	table  string
	via    string
	column string
}

// ancestors walks foreign keys breadth-first from table. Each ancestor is
// listed once, in discovery order.
func ancestors(cfg schema.Config, table string) []ancestorPath {
	seen := map[string]struct{}{table: {}}
	queue := []string{table}
	var out []ancestorPath
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		meta, _ := cfg.Table(current)
		for _, column := range meta.ForeignKeyColumns() {
			parent := meta.ForeignKeys[column]
			if _, ok := seen[parent]; ok || !cfg.Has(parent) {
				continue
			}
			seen[parent] = struct{}{}
			out = append(out, ancestorPath{table: parent, via: current, column: column})
			queue = append(queue, parent)
		}
	}
	return out
}
