package openapi

import "net/http"

// Route describes one HTTP operation of the wizard API. The server mounts the
// same table, so the document and the router cannot drift apart.
type Route struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Tag         string
	Query       []string
	Body        string
	Response    string
	Status      int
}

const (
	tagConfig = "config"
	tagTables = "tables"
	tagView   = "view"
	tagWizard = "wizard"
	tagMeta   = "meta"
)

// Component schema names.
const (
	SchemaRecord           = "Record"
	SchemaRows             = "Rows"
	SchemaKeyOptions       = "KeyOptions"
	SchemaWriteResult      = "WriteResult"
	SchemaGrid             = "Grid"
	SchemaError            = "Error"
	SchemaWizardView       = "WizardView"
	SchemaStepResponse     = "StepResponse"
	SchemaTransition       = "TransitionResponse"
	SchemaDraftResponse    = "DraftResponse"
	SchemaSelectRequest    = "SelectRequest"
	SchemaSelectResponse   = "SelectResponse"
	SchemaFrames           = "Frames"
	SchemaSchemaConfig     = "SchemaConfig"
	SchemaUIConfig         = "UIConfig"
	SchemaValidationResult = "ValidationResult"
	SchemaHealth           = "Health"
)

// Routes lists every operation in mount order.
func Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Path: "/healthz", OperationID: "healthz", Summary: "Liveness check", Tag: tagMeta, Response: SchemaHealth},
		{Method: http.MethodGet, Path: "/api/openapi.json", OperationID: "getOpenAPI", Summary: "This document", Tag: tagMeta, Response: SchemaRecord},

		{Method: http.MethodGet, Path: "/api/config/schema", OperationID: "getSchemaConfig", Summary: "Schema configuration", Tag: tagConfig, Response: SchemaSchemaConfig},
		{Method: http.MethodGet, Path: "/api/config/ui", OperationID: "getUIConfig", Summary: "UI configuration", Tag: tagConfig, Response: SchemaUIConfig},
		{Method: http.MethodGet, Path: "/api/config/validate", OperationID: "validateConfig", Summary: "Consistency report for the loaded configuration", Tag: tagConfig, Response: SchemaValidationResult},

		{Method: http.MethodGet, Path: "/api/tables/{table}/rows", OperationID: "listRows", Summary: "Rows of a table, optionally scoped to a parent", Tag: tagTables, Query: []string{"scope_table", "scope_id"}, Response: SchemaRows},
		{Method: http.MethodPost, Path: "/api/tables/{table}/rows", OperationID: "writeRow", Summary: "Upsert a row", Tag: tagTables, Body: SchemaRecord, Response: SchemaWriteResult},
		{Method: http.MethodGet, Path: "/api/tables/{table}/business-keys", OperationID: "listBusinessKeys", Summary: "Distinct business-key values", Tag: tagTables, Query: []string{"parent_table", "parent_id"}, Response: SchemaKeyOptions},
		{Method: http.MethodGet, Path: "/api/tables/{table}/lookup", OperationID: "lookupRecord", Summary: "Fetch a row by business key", Tag: tagTables, Query: []string{"column", "value"}, Response: SchemaRecord},

		{Method: http.MethodGet, Path: "/api/view/{table}", OperationID: "getTableView", Summary: "Rows joined with their foreign-key parents", Tag: tagView, Response: SchemaGrid},
		{Method: http.MethodPatch, Path: "/api/view/{table}/{id}", OperationID: "updateTableViewRow", Summary: "Edit the table's own columns of one row", Tag: tagView, Body: SchemaRecord, Response: SchemaWriteResult},

		{Method: http.MethodPost, Path: "/api/wizard", OperationID: "createWizard", Summary: "Start a wizard session", Tag: tagWizard, Response: SchemaWizardView, Status: http.StatusCreated},
		{Method: http.MethodGet, Path: "/api/wizard", OperationID: "getWizard", Summary: "Current wizard view", Tag: tagWizard, Response: SchemaWizardView},
		{Method: http.MethodDelete, Path: "/api/wizard", OperationID: "endWizard", Summary: "Drop the wizard session", Tag: tagWizard, Status: http.StatusNoContent},
		{Method: http.MethodPost, Path: "/api/wizard/steps/{step}/save", OperationID: "saveSection", Summary: "Save the step's active form", Tag: tagWizard, Body: SchemaRecord, Response: SchemaStepResponse},
		{Method: http.MethodPost, Path: "/api/wizard/steps/{step}/select", OperationID: "selectRecord", Summary: "Resolve the step's table to an existing row", Tag: tagWizard, Body: SchemaSelectRequest, Response: SchemaSelectResponse},
		{Method: http.MethodPost, Path: "/api/wizard/steps/{step}/rows", OperationID: "addRow", Summary: "Open a draft row in the active repeat block", Tag: tagWizard, Body: SchemaRecord, Response: SchemaDraftResponse},
		{Method: http.MethodPost, Path: "/api/wizard/steps/{step}/rows/{draft}", OperationID: "saveRow", Summary: "Save a draft row", Tag: tagWizard, Body: SchemaRecord, Response: SchemaStepResponse},
		{Method: http.MethodDelete, Path: "/api/wizard/steps/{step}/rows/{draft}", OperationID: "discardRow", Summary: "Discard a draft row", Tag: tagWizard, Response: SchemaWizardView},
		{Method: http.MethodPost, Path: "/api/wizard/steps/{step}/complete", OperationID: "completeRows", Summary: "Finish the active repeat block", Tag: tagWizard, Response: SchemaStepResponse},
		{Method: http.MethodPost, Path: "/api/wizard/steps/{step}/goto", OperationID: "goToStep", Summary: "Navigate to a step", Tag: tagWizard, Response: SchemaTransition},
		{Method: http.MethodGet, Path: "/api/wizard/steps/{step}/options", OperationID: "stepOptions", Summary: "Business-key options for the step's table", Tag: tagWizard, Response: SchemaKeyOptions},
		{Method: http.MethodGet, Path: "/api/wizard/steps/{step}/related", OperationID: "relatedRows", Summary: "Rows of the step's table under the scoping parent", Tag: tagWizard, Response: SchemaRows},
		{Method: http.MethodGet, Path: "/api/wizard/steps/{step}/blocks", OperationID: "stepBlocks", Summary: "Open blocks of the step's save flow", Tag: tagWizard, Response: SchemaFrames},
		{Method: http.MethodPost, Path: "/api/wizard/back", OperationID: "goBack", Summary: "Return to the previous step", Tag: tagWizard, Response: SchemaTransition},
		{Method: http.MethodPost, Path: "/api/wizard/reset", OperationID: "resetWizard", Summary: "Start over after finishing", Tag: tagWizard, Response: SchemaTransition},
	}
}

// StatusOrDefault returns the success status of the route.
func (r Route) StatusOrDefault() int {
	if r.Status != 0 {
		return r.Status
	}
	return http.StatusOK
}
