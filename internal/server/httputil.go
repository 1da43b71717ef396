package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/goliatone/go-formwizard/internal/openapi"
	"github.com/goliatone/go-formwizard/internal/store"
	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/tableview"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

var (
	errBadRequest   = errors.New("server: bad request")
	errNoSession    = errors.New("server: no wizard session")
	errUnknownTable = errors.New("server: unknown table")
)

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error   string                `json:"error"`
	Code    string                `json:"code"`
	Section *persist.SectionError `json:"section,omitempty"`
	View    *wizard.View          `json:"view,omitempty"`
}

// viewError attaches the session view to a failed wizard action so the
// client can re-render without another request.
type viewError struct {
	err  error
	view wizard.View
}

func (e *viewError) Error() string { return e.err.Error() }

func (e *viewError) Unwrap() error { return e.err }

func withView(err error, session *wizard.Session) error {
	if err == nil {
		return nil
	}
	return &viewError{err: err, view: session.View()}
}

// writeJSON marshals v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("server: encode response", "error", err)
	}
}

// writeError maps err to a status code and writes the error body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := classify(err)
	body := errorBody{Error: err.Error(), Code: code}

	var sectionErr *persist.SectionError
	if errors.As(err, &sectionErr) {
		body.Error = sectionErr.Message
		body.Section = sectionErr
	}
	var ve *viewError
	if errors.As(err, &ve) {
		body.View = &ve.view
	}
	if status == http.StatusInternalServerError {
		logger.Error("server: request failed", "error", err)
		body.Error = "internal server error"
	}
	writeJSON(w, status, body)
}

func classify(err error) (int, string) {
	var sectionErr *persist.SectionError
	switch {
	case errors.As(err, &sectionErr):
		return http.StatusUnprocessableEntity, "SECTION_ERROR"
	case errors.Is(err, errNoSession):
		return http.StatusNotFound, "NO_SESSION"
	case errors.Is(err, wizard.ErrUnknownStep),
		errors.Is(err, persist.ErrNotFound),
		errors.Is(err, persist.ErrUnknownDraft),
		errors.Is(err, errUnknownTable),
		errors.Is(err, openapi.ErrUnknownTable):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, wizard.ErrStepLocked),
		errors.Is(err, persist.ErrWrongFrame),
		errors.Is(err, persist.ErrFlowDone):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, openapi.ErrInvalidRecord):
		return http.StatusUnprocessableEntity, "INVALID_RECORD"
	case errors.Is(err, errBadRequest),
		errors.Is(err, store.ErrUnknownTable),
		errors.Is(err, store.ErrUnknownColumn),
		errors.Is(err, store.ErrNoScopeColumn),
		errors.Is(err, tableview.ErrReadOnlyColumn):
		return http.StatusBadRequest, "BAD_REQUEST"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// decodeJSON decodes the request body into v with numbers kept as
// json.Number. An empty body leaves v untouched when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	err := dec.Decode(v)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF) && optional:
		return nil
	case errors.Is(err, io.EOF):
		return fmt.Errorf("%w: request body is required", errBadRequest)
	default:
		return fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
}

// decodeRecord decodes a JSON object body. Whole numbers become int64 so
// keys and counts reach the collaborator as integers.
func decodeRecord(r *http.Request, optional bool) (persist.Record, error) {
	var raw map[string]any
	if err := decodeJSON(r, &raw, optional); err != nil {
		return nil, err
	}
	record := make(persist.Record, len(raw))
	for key, value := range raw {
		record[key] = numbers(value)
	}
	return record, nil
}

func numbers(value any) any {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case []any:
		for idx := range v {
			v[idx] = numbers(v[idx])
		}
		return v
	case map[string]any:
		for key := range v {
			v[key] = numbers(v[key])
		}
		return v
	default:
		return value
	}
}

// parseID parses an optional integer query parameter.
func parseID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return id, nil
}

// pathID extracts an integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	return parseID(chi.URLParam(r, name), name)
}
