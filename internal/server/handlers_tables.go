package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/tableview"
)

type writeResult struct {
	ID int64 `json:"id"`
}

func (s *Server) endpoints() map[string]endpoint {
	return map[string]endpoint{
		"healthz":            s.healthz,
		"getOpenAPI":         s.getOpenAPI,
		"getSchemaConfig":    s.getSchemaConfig,
		"getUIConfig":        s.getUIConfig,
		"validateConfig":     s.validateConfig,
		"listRows":           s.listRows,
		"writeRow":           s.writeRow,
		"listBusinessKeys":   s.listBusinessKeys,
		"lookupRecord":       s.lookupRecord,
		"getTableView":       s.getTableView,
		"updateTableViewRow": s.updateTableViewRow,
		"createWizard":       s.createWizard,
		"getWizard":          s.getWizard,
		"endWizard":          s.endWizard,
		"saveSection":        s.saveSection,
		"selectRecord":       s.selectRecord,
		"addRow":             s.addRow,
		"saveRow":            s.saveRow,
		"discardRow":         s.discardRow,
		"completeRows":       s.completeRows,
		"goToStep":           s.goToStep,
		"stepOptions":        s.stepOptions,
		"relatedRows":        s.relatedRows,
		"stepBlocks":         s.stepBlocks,
		"goBack":             s.goBack,
		"resetWizard":        s.resetWizard,
	}
}

func (s *Server) healthz(_ http.ResponseWriter, _ *http.Request) (any, error) {
	return map[string]any{"status": "ok", "sessions": s.registry.Len()}, nil
}

func (s *Server) getOpenAPI(_ http.ResponseWriter, _ *http.Request) (any, error) {
	return json.RawMessage(s.Document().JSON()), nil
}

func (s *Server) getSchemaConfig(_ http.ResponseWriter, _ *http.Request) (any, error) {
	return s.Bundle().Schema, nil
}

func (s *Server) getUIConfig(_ http.ResponseWriter, _ *http.Request) (any, error) {
	return s.Bundle().UI, nil
}

func (s *Server) validateConfig(_ http.ResponseWriter, _ *http.Request) (any, error) {
	return s.Bundle().Report, nil
}

// table resolves the {table} path parameter against the current schema.
func (s *Server) table(r *http.Request) (string, schema.TableMeta, error) {
	name := chi.URLParam(r, "table")
	meta, ok := s.Bundle().Schema.Table(name)
	if !ok {
		return "", schema.TableMeta{}, fmt.Errorf("%w: %q", errUnknownTable, name)
	}
	return name, meta, nil
}

func (s *Server) listRows(_ http.ResponseWriter, r *http.Request) (any, error) {
	table, _, err := s.table(r)
	if err != nil {
		return nil, err
	}
	var scope *persist.RowScope
	if parent := r.URL.Query().Get("scope_table"); parent != "" {
		id, err := parseID(r.URL.Query().Get("scope_id"), "scope_id")
		if err != nil {
			return nil, err
		}
		scope = &persist.RowScope{ParentTable: parent, ParentID: id}
	}
	rows, err := s.cfg.Collaborator.FetchRows(r.Context(), table, scope)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []persist.Record{}
	}
	return rows, nil
}

func (s *Server) writeRow(_ http.ResponseWriter, r *http.Request) (any, error) {
	table, _, err := s.table(r)
	if err != nil {
		return nil, err
	}
	record, err := decodeRecord(r, false)
	if err != nil {
		return nil, err
	}
	if err := s.Document().ValidateRecord(table, record); err != nil {
		return nil, err
	}
	if s.cfg.Sanitize {
		record = persist.Sanitize(record)
	}
	id, err := s.cfg.Collaborator.WriteRow(r.Context(), table, record)
	if err != nil {
		return nil, err
	}
	return writeResult{ID: id}, nil
}

func (s *Server) listBusinessKeys(_ http.ResponseWriter, r *http.Request) (any, error) {
	table, _, err := s.table(r)
	if err != nil {
		return nil, err
	}
	var options []persist.KeyOption
	if parent := r.URL.Query().Get("parent_table"); parent != "" {
		id, err := parseID(r.URL.Query().Get("parent_id"), "parent_id")
		if err != nil {
			return nil, err
		}
		options, err = s.cfg.Collaborator.FetchScopedBusinessKeyOptions(r.Context(), table, parent, id)
		if err != nil {
			return nil, err
		}
	} else {
		options, err = s.cfg.Collaborator.FetchBusinessKeyOptions(r.Context(), table)
		if err != nil {
			return nil, err
		}
	}
	if options == nil {
		options = []persist.KeyOption{}
	}
	return options, nil
}

// lookupRecord defaults the column to the table's first business key. Values
// for id and foreign-key columns are parsed as integers.
func (s *Server) lookupRecord(_ http.ResponseWriter, r *http.Request) (any, error) {
	table, meta, err := s.table(r)
	if err != nil {
		return nil, err
	}
	query := r.URL.Query()
	column := query.Get("column")
	if column == "" {
		key, ok := meta.PrimaryBusinessKey()
		if !ok {
			return nil, fmt.Errorf("%w: %s has no business key, pass column", errBadRequest, table)
		}
		column = key
	}
	raw := query.Get("value")
	if raw == "" {
		return nil, fmt.Errorf("%w: value is required", errBadRequest)
	}
	var value any = raw
	if _, isFK := meta.ForeignKeys[column]; isFK || column == persist.IDColumn {
		id, err := parseID(raw, "value")
		if err != nil {
			return nil, err
		}
		value = id
	}
	return s.cfg.Collaborator.FetchRecordByBusinessKey(r.Context(), table, column, value)
}

func (s *Server) getTableView(_ http.ResponseWriter, r *http.Request) (any, error) {
	table, _, err := s.table(r)
	if err != nil {
		return nil, err
	}
	return tableview.Build(r.Context(), s.Bundle().Schema, s.cfg.Collaborator, table)
}

func (s *Server) updateTableViewRow(_ http.ResponseWriter, r *http.Request) (any, error) {
	table, _, err := s.table(r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	values, err := decodeRecord(r, false)
	if err != nil {
		return nil, err
	}
	if s.cfg.Sanitize {
		values = persist.Sanitize(values)
	}
	if err := tableview.Update(r.Context(), s.Bundle().Schema, s.cfg.Collaborator, table, id, values); err != nil {
		return nil, err
	}
	return writeResult{ID: id}, nil
}
