package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	formwizard "github.com/goliatone/go-formwizard"
	"github.com/goliatone/go-formwizard/internal/testutil"
	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/schema"
	"github.com/goliatone/go-formwizard/pkg/tableview"
	"github.com/goliatone/go-formwizard/pkg/testsupport"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

const testSecret = "test-secret-key-32-bytes-long!!!"

// recordingStore records schema swaps on top of the in-memory collaborator.
type recordingStore struct {
	*testsupport.MemoryStore
	schemas []schema.Config
}

func (r *recordingStore) SetSchema(cfg schema.Config) {
	r.schemas = append(r.schemas, cfg)
}

func lotBundle() formwizard.Bundle {
	return formwizard.Bundle{Schema: testsupport.LotSchema(), UI: testsupport.LotUI()}
}

func newTestServer(t *testing.T, collab persist.Collaborator, mutate ...func(*Config)) *Server {
	t.Helper()
	cfg := Config{
		Bundle:        lotBundle(),
		Collaborator:  collab,
		SessionSecret: testSecret,
		Sanitize:      true,
		Logger:        testutil.NewTestLogger(t),
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	srv, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return srv
}

// client drives the handler directly, carrying the wizard id in the header.
type client struct {
	t       *testing.T
	handler http.Handler
	session string
}

func (c *client) do(method, path string, body any) *httptest.ResponseRecorder {
	c.t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(c.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if c.session != "" {
		req.Header.Set(SessionHeader, c.session)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func startWizard(t *testing.T, srv *Server) *client {
	t.Helper()
	c := &client{t: t, handler: srv.Handler()}
	rec := c.do(http.MethodPost, "/api/wizard", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c.session = rec.Header().Get(SessionHeader)
	require.NotEmpty(t, c.session)
	return c
}

func stepOf(t *testing.T, view wizard.View, id string) wizard.StepView {
	t.Helper()
	for _, step := range view.Steps {
		if step.ID == id {
			return step
		}
	}
	t.Fatalf("step %q not in view", id)
	return wizard.StepView{}
}

func TestServer_RoutesMatchDocument(t *testing.T) {
	srv := newTestServer(t, testsupport.NewMemoryStore(testsupport.LotSchema()))

	documented := map[string]bool{}
	for _, op := range srv.Document().Operations() {
		documented[op.Method+" "+op.Path] = true
	}

	mounted := 0
	err := chi.Walk(srv.Handler().(chi.Routes), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		mounted++
		assert.True(t, documented[method+" "+route], "route %s %s is not documented", method, route)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, len(documented), mounted)
}

func TestServer_WizardWalkthrough(t *testing.T) {
	store := testsupport.NewMemoryStore(testsupport.LotSchema())
	c := startWizard(t, newTestServer(t, store))

	rec := c.do(http.MethodPost, "/api/wizard/steps/lot_0/save", map[string]any{"lot_code": "L-1", "product": "wheat"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[stepResponse](t, rec)
	assert.True(t, resp.Outcome.Done)
	assert.Equal(t, map[string]int64{"lot": 1}, resp.View.FK)

	rec = c.do(http.MethodPost, "/api/wizard/steps/lot_1/save", map[string]any{"received_on": "2024-05-01"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPost, "/api/wizard/steps/lot_2/rows", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	draft := decode[draftResponse](t, rec)
	require.NotEmpty(t, draft.DraftID)

	rec = c.do(http.MethodPost, "/api/wizard/steps/lot_2/rows/"+draft.DraftID, map[string]any{"sample_no": "S-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/wizard/steps/lot_2/blocks", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	frames := decode[[]persist.Frame](t, rec)
	require.Len(t, frames, 1)
	assert.Len(t, frames[0].Rows, 1)

	rec = c.do(http.MethodPost, "/api/wizard/steps/lot_2/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[stepResponse](t, rec)
	assert.Equal(t, persist.Outcome{Done: true, Table: "lot", ID: 1}, resp.Outcome)

	for _, tt := range []struct {
		step string
		form map[string]any
	}{
		{step: "batch_table", form: map[string]any{"batch_code": "B-1", "quantity": 10}},
		{step: "grade_table", form: map[string]any{"grade_code": "A"}},
		{step: "inspection_table", form: map[string]any{"reference": "R-1", "passed": true}},
	} {
		rec = c.do(http.MethodPost, "/api/wizard/steps/"+tt.step+"/save", tt.form)
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", tt.step, rec.Body.String())
	}

	assert.Equal(t, int64(10), store.Rows("batch")[0]["quantity"])

	rec = c.do(http.MethodGet, "/api/wizard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[wizard.View](t, rec)
	assert.True(t, view.Finished)
	assert.Equal(t, []wizard.SummaryEntry{
		{Table: "lot", ID: 1},
		{Table: "batch", ID: 3},
		{Table: "grade", ID: 4},
		{Table: "inspection", ID: 5},
	}, view.Summary)

	rec = c.do(http.MethodPost, "/api/wizard/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	transition := decode[transitionResponse](t, rec)
	assert.True(t, transition.Result.Applied)
	assert.Empty(t, transition.View.FK)
}

func TestServer_WizardErrors(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(store *testsupport.MemoryStore)
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "write failure is a section error",
			setup:      func(store *testsupport.MemoryStore) { store.FailWrites("lot", errors.New("database is locked")) },
			method:     http.MethodPost,
			path:       "/api/wizard/steps/lot_0/save",
			body:       map[string]any{"lot_code": "L-1"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SECTION_ERROR",
		},
		{
			name:       "missing required field",
			method:     http.MethodPost,
			path:       "/api/wizard/steps/lot_0/save",
			body:       map[string]any{"product": "wheat"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SECTION_ERROR",
		},
		{
			name:       "hidden step is locked",
			method:     http.MethodPost,
			path:       "/api/wizard/steps/batch_table/save",
			body:       map[string]any{"batch_code": "B-1"},
			wantStatus: http.StatusConflict,
			wantCode:   "CONFLICT",
		},
		{
			name:       "unknown step",
			method:     http.MethodPost,
			path:       "/api/wizard/steps/ghost/save",
			body:       map[string]any{},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "unknown draft",
			method:     http.MethodDelete,
			path:       "/api/wizard/steps/lot_0/rows/nope",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "malformed body",
			method:     http.MethodPost,
			path:       "/api/wizard/steps/lot_0/save",
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "select needs a value",
			method:     http.MethodPost,
			path:       "/api/wizard/steps/lot_0/select",
			body:       map[string]any{},
			wantStatus: http.StatusBadRequest,
			wantCode:   "BAD_REQUEST",
		},
		{
			name:       "select unknown key",
			method:     http.MethodPost,
			path:       "/api/wizard/steps/lot_0/select",
			body:       map[string]any{"value": "L-404"},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SECTION_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testsupport.NewMemoryStore(testsupport.LotSchema())
			if tt.setup != nil {
				tt.setup(store)
			}
			c := startWizard(t, newTestServer(t, store))

			rec := c.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.NotEmpty(t, body.Error)
			if tt.wantCode == "SECTION_ERROR" {
				require.NotNil(t, body.Section)
				require.NotNil(t, body.View)
				assert.Equal(t, "lot_0", body.Section.StepID)
				assert.NotNil(t, stepOf(t, *body.View, "lot_0").Error)
			}
		})
	}
}

func TestServer_SelectExistingRecord(t *testing.T) {
	store := testsupport.NewMemoryStore(testsupport.LotSchema())
	store.Seed("lot", persist.Record{"lot_code": "L-OLD"})
	c := startWizard(t, newTestServer(t, store))

	rec := c.do(http.MethodGet, "/api/wizard/steps/lot_0/options", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []persist.KeyOption{{ID: 1, Value: "L-OLD"}}, decode[[]persist.KeyOption](t, rec))

	rec = c.do(http.MethodPost, "/api/wizard/steps/lot_0/select", map[string]any{"value": "L-OLD"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[selectResponse](t, rec)
	assert.Equal(t, "L-OLD", resp.Record["lot_code"])
	assert.Equal(t, map[string]int64{"lot": 1}, resp.View.FK)
	assert.Empty(t, store.Writes())

	rec = c.do(http.MethodPost, "/api/wizard/steps/lot_0/goto", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[transitionResponse](t, rec).Result.Applied)

	rec = c.do(http.MethodPost, "/api/wizard/back", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RejectedTransitionIsNotAnError(t *testing.T) {
	c := startWizard(t, newTestServer(t, testsupport.NewMemoryStore(testsupport.LotSchema())))

	rec := c.do(http.MethodPost, "/api/wizard/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	transition := decode[transitionResponse](t, rec)
	assert.False(t, transition.Result.Applied)
	assert.NotEmpty(t, transition.Result.Reason)
}

func TestServer_NoSession(t *testing.T) {
	srv := newTestServer(t, testsupport.NewMemoryStore(testsupport.LotSchema()))
	c := &client{t: t, handler: srv.Handler()}

	rec := c.do(http.MethodGet, "/api/wizard", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NO_SESSION", decode[errorBody](t, rec).Code)

	c.session = "missing"
	rec = c.do(http.MethodPost, "/api/wizard/back", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CookieSession(t *testing.T) {
	srv := newTestServer(t, testsupport.NewMemoryStore(testsupport.LotSchema()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	httpClient := &http.Client{Jar: jar}

	resp, err := httpClient.Post(ts.URL+"/api/wizard", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, srv.Registry().Len())

	resp, err = httpClient.Get(ts.URL + "/api/wizard")
	require.NoError(t, err)
	var view wizard.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, view.Steps, 6)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/wizard", nil)
	require.NoError(t, err)
	resp, err = httpClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, srv.Registry().Len())

	resp, err = httpClient.Get(ts.URL + "/api/wizard")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_TableEndpoints(t *testing.T) {
	store := testsupport.NewMemoryStore(testsupport.LotSchema())
	c := &client{t: t, handler: newTestServer(t, store).Handler()}

	rec := c.do(http.MethodPost, "/api/tables/lot/rows", map[string]any{"lot_code": "<b>L-1</b>", "product": "wheat"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lot := decode[writeResult](t, rec)
	assert.Equal(t, "L-1", store.Rows("lot")[0]["lot_code"])

	rec = c.do(http.MethodPost, "/api/tables/batch/rows", map[string]any{"batch_code": "B-1", "lot_id": lot.ID, "quantity": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/tables/batch/rows?scope_table=lot&scope_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]persist.Record](t, rec), 1)

	rec = c.do(http.MethodGet, "/api/tables/batch/business-keys?parent_table=lot&parent_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []persist.KeyOption{{ID: 2, Value: "B-1"}}, decode[[]persist.KeyOption](t, rec))

	rec = c.do(http.MethodGet, "/api/tables/lot/lookup?value=L-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "wheat", decode[persist.Record](t, rec)["product"])

	rec = c.do(http.MethodGet, "/api/view/batch", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	grid := decode[tableview.Grid](t, rec)
	require.Len(t, grid.Rows, 1)
	assert.Equal(t, "L-1", grid.Rows[0].Values["lot.lot_code"])

	rec = c.do(http.MethodPatch, "/api/view/batch/2", map[string]any{"quantity": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(4), store.Rows("batch")[0]["quantity"])

	rec = c.do(http.MethodGet, "/api/tables/empty/rows", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_TableEndpointErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{name: "undeclared column", method: http.MethodPost, path: "/api/tables/lot/rows", body: map[string]any{"colour": "red"}, wantStatus: http.StatusUnprocessableEntity, wantCode: "INVALID_RECORD"},
		{name: "foreign key must be an integer", method: http.MethodPost, path: "/api/tables/batch/rows", body: map[string]any{"lot_id": "one"}, wantStatus: http.StatusUnprocessableEntity, wantCode: "INVALID_RECORD"},
		{name: "missing body", method: http.MethodPost, path: "/api/tables/lot/rows", wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "scope id not a number", method: http.MethodGet, path: "/api/tables/batch/rows?scope_table=lot&scope_id=x", wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "lookup needs a value", method: http.MethodGet, path: "/api/tables/lot/lookup", wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "lookup without business key", method: http.MethodGet, path: "/api/tables/sample/lookup?value=1", wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "lookup miss", method: http.MethodGet, path: "/api/tables/lot/lookup?value=nope", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "unknown table view", method: http.MethodGet, path: "/api/view/ghost", wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND"},
		{name: "foreign key is read-only in the view", method: http.MethodPatch, path: "/api/view/batch/1", body: map[string]any{"lot_id": 2}, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
		{name: "view id not a number", method: http.MethodPatch, path: "/api/view/batch/x", body: map[string]any{}, wantStatus: http.StatusBadRequest, wantCode: "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &client{t: t, handler: newTestServer(t, testsupport.NewMemoryStore(testsupport.LotSchema())).Handler()}
			rec := c.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[errorBody](t, rec).Code)
		})
	}
}

func TestServer_ConfigEndpoints(t *testing.T) {
	c := &client{t: t, handler: newTestServer(t, testsupport.NewMemoryStore(testsupport.LotSchema())).Handler()}

	rec := c.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = c.do(http.MethodGet, "/api/config/schema", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, testsupport.LotSchema().Sequence, decode[schema.Config](t, rec).Sequence)

	rec = c.do(http.MethodGet, "/api/config/ui", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "lot_identity")

	rec = c.do(http.MethodGet, "/api/config/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = c.do(http.MethodGet, "/api/openapi.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"table.inspection"`))
}

func TestServer_ReloadAppliesToNewSessions(t *testing.T) {
	store := &recordingStore{MemoryStore: testsupport.NewMemoryStore(testsupport.LotSchema())}
	srv := newTestServer(t, store)
	before := startWizard(t, srv)
	require.Len(t, store.schemas, 1)

	trimmed := lotBundle()
	trimmed.Schema.Sequence = []string{"lot", "batch"}
	delete(trimmed.Schema.Tables, "inspection")
	trimmed.UI.Screens = trimmed.UI.Screens[:2]
	require.NoError(t, srv.Reload(context.Background(), trimmed))
	require.Len(t, store.schemas, 2)
	assert.NotContains(t, store.schemas[1].Tables, "inspection")

	after := startWizard(t, srv)
	rec := after.do(http.MethodGet, "/api/wizard", nil)
	assert.Len(t, decode[wizard.View](t, rec).Steps, 4)

	rec = before.do(http.MethodGet, "/api/wizard", nil)
	assert.Len(t, decode[wizard.View](t, rec).Steps, 6)

	rec = after.do(http.MethodGet, "/api/openapi.json", nil)
	assert.False(t, strings.Contains(rec.Body.String(), `"table.inspection"`))
}

func TestNew_RequiresCollaborator(t *testing.T) {
	_, err := New(context.Background(), Config{Bundle: lotBundle()})
	require.Error(t, err)
}

func TestDecodeRecord_Numbers(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"12","qty":12,"ratio":1.5,"tags":[1,"a"]}`))
	record, err := decodeRecord(req, false)
	require.NoError(t, err)
	assert.Equal(t, persist.Record{
		"code":  "12",
		"qty":   int64(12),
		"ratio": 1.5,
		"tags":  []any{int64(1), "a"},
	}, record)

	empty, err := decodeRecord(httptest.NewRequest(http.MethodPost, "/", http.NoBody), true)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
