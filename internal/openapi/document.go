// Package openapi builds the OpenAPI 3 description of the wizard HTTP API
// from the route table and the schema configuration, and validates row
// payloads against the per-table component schemas.
package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/goliatone/go-formwizard/pkg/schema"
)

var (
	// ErrUnknownTable is returned when validating a row of an undeclared table.
	ErrUnknownTable = errors.New("openapi: unknown table")
	// ErrInvalidRecord wraps schema violations of a row payload.
	ErrInvalidRecord = errors.New("openapi: invalid record")
)

const tableSchemaPrefix = "table."

var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

// Option customises the generated document.
type Option func(*options)

type options struct {
	title     string
	version   string
	serverURL string
}

// WithTitle sets info.title.
func WithTitle(title string) Option {
	return func(o *options) {
		if title != "" {
			o.title = title
		}
	}
}

// WithVersion sets info.version.
func WithVersion(version string) Option {
	return func(o *options) {
		if version != "" {
			o.version = version
		}
	}
}

// WithServerURL adds a servers entry.
func WithServerURL(url string) Option {
	return func(o *options) {
		o.serverURL = url
	}
}

// Document is a validated OpenAPI description plus its JSON encoding.
type Document struct {
	spec *openapi3.T
	raw  []byte
}

// Build generates and validates the document for cfg.
func Build(ctx context.Context, cfg schema.Config, opts ...Option) (*Document, error) {
	o := options{title: "formwizard", version: "0.1.0"}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   o.title,
			Version: o.version,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{},
		},
	}
	if o.serverURL != "" {
		spec.Servers = openapi3.Servers{&openapi3.Server{URL: o.serverURL}}
	}
	for _, tag := range []string{tagMeta, tagConfig, tagTables, tagView, tagWizard} {
		spec.Tags = append(spec.Tags, &openapi3.Tag{Name: tag})
	}

	components := commonSchemas()
	for _, name := range cfg.TableNames() {
		meta, _ := cfg.Table(name)
		components[TableSchemaName(name)] = tableSchema(name, meta)
	}
	for name, value := range components {
		spec.Components.Schemas[name] = openapi3.NewSchemaRef("", value)
	}

	for _, route := range Routes() {
		spec.AddOperation(route.Path, route.Method, operation(route, spec.Components.Schemas))
	}

	if err := spec.Validate(ctx); err != nil {
		return nil, fmt.Errorf("openapi: validate: %w", err)
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("openapi: encode: %w", err)
	}
	return &Document{spec: spec, raw: raw}, nil
}

// Parse loads and validates a document from JSON or YAML bytes.
func Parse(ctx context.Context, raw []byte) (*Document, error) {
	if len(raw) == 0 {
		return nil, errors.New("openapi: document payload is empty")
	}
	loader := &openapi3.Loader{Context: ctx}
	spec, err := loader.LoadFromData(raw)
	if err != nil {
		return nil, fmt.Errorf("openapi: load document: %w", err)
	}
	if err := spec.Validate(ctx, openapi3.DisableExamplesValidation()); err != nil {
		return nil, fmt.Errorf("openapi: validate: %w", err)
	}
	return &Document{spec: spec, raw: append([]byte(nil), raw...)}, nil
}

// Spec exposes the kin-openapi model.
func (d *Document) Spec() *openapi3.T {
	return d.spec
}

// JSON returns a copy of the encoded document.
func (d *Document) JSON() []byte {
	return append([]byte(nil), d.raw...)
}

// Operation is a flattened view of one documented operation.
type Operation struct {
	ID     string
	Method string
	Path   string
	Tags   []string
}

// Operations lists the documented operations sorted by path then method.
func (d *Document) Operations() []Operation {
	var out []Operation
	if d.spec.Paths == nil {
		return out
	}
	for path, item := range d.spec.Paths.Map() {
		if item == nil {
			continue
		}
		for method, op := range item.Operations() {
			if op == nil {
				continue
			}
			id := op.OperationID
			if id == "" {
				id = strings.ToLower(method) + ":" + path
			}
			out = append(out, Operation{ID: id, Method: method, Path: path, Tags: op.Tags})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].Method < out[j].Method
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// ValidateRecord checks a row payload against the table's component schema:
// declared columns only, integer keys.
func (d *Document) ValidateRecord(table string, record map[string]any) error {
	ref := d.spec.Components.Schemas[TableSchemaName(table)]
	if ref == nil || ref.Value == nil {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if err := ref.Value.VisitJSON(record, openapi3.MultiErrors()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRecord, table, err)
	}
	return nil
}

// TableSchemaName is the component name holding a table's row schema.
func TableSchemaName(table string) string {
	return tableSchemaPrefix + table
}

func operation(route Route, components openapi3.Schemas) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = route.OperationID
	op.Summary = route.Summary
	op.Tags = []string{route.Tag}

	for _, match := range pathParamPattern.FindAllStringSubmatch(route.Path, -1) {
		param := openapi3.NewPathParameter(match[1])
		if match[1] == "id" {
			param = param.WithSchema(openapi3.NewInt64Schema())
		} else {
			param = param.WithSchema(openapi3.NewStringSchema())
		}
		op.AddParameter(param)
	}
	for _, name := range route.Query {
		op.AddParameter(openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema()))
	}

	if route.Body != "" {
		body := openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(componentRef(route.Body, components))
		op.RequestBody = &openapi3.RequestBodyRef{Value: body}
	}

	status := route.StatusOrDefault()
	success := openapi3.NewResponse().WithDescription(strings.ToLower(route.Summary))
	if route.Response != "" {
		success = success.WithJSONSchemaRef(componentRef(route.Response, components))
	}
	failure := openapi3.NewResponse().
		WithDescription("error").
		WithJSONSchemaRef(componentRef(SchemaError, components))

	responses := openapi3.NewResponses()
	responses.Set(fmt.Sprint(status), &openapi3.ResponseRef{Value: success})
	responses.Set("default", &openapi3.ResponseRef{Value: failure})
	op.Responses = responses
	return op
}

func componentRef(name string, components openapi3.Schemas) *openapi3.SchemaRef {
	var value *openapi3.Schema
	if ref := components[name]; ref != nil {
		value = ref.Value
	}
	return openapi3.NewSchemaRef("#/components/schemas/"+name, value)
}

// tableSchema describes one row: id, nullable integer foreign keys and
// free-form nullable columns. Undeclared columns are rejected.
func tableSchema(name string, meta schema.TableMeta) *openapi3.Schema {
	row := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema())
	row.Title = name
	for _, column := range meta.Columns {
		if column == "id" {
			continue
		}
		var prop *openapi3.Schema
		if _, isFK := meta.ForeignKeys[column]; isFK {
			prop = openapi3.NewInt64Schema().WithNullable()
		} else {
			prop = (&openapi3.Schema{}).WithNullable()
		}
		row.WithProperty(column, prop)
	}
	closed := false
	row.AdditionalProperties = openapi3.AdditionalProperties{Has: &closed}

	extensions := map[string]any{}
	if len(meta.BusinessKeys) > 0 {
		extensions["x-business-keys"] = append([]string(nil), meta.BusinessKeys...)
	}
	if len(meta.ForeignKeys) > 0 {
		fks := make(map[string]any, len(meta.ForeignKeys))
		for column, parent := range meta.ForeignKeys {
			fks[column] = parent
		}
		extensions["x-foreign-keys"] = fks
	}
	if len(extensions) > 0 {
		row.Extensions = extensions
	}
	return row
}

func commonSchemas() map[string]*openapi3.Schema {
	record := openapi3.NewObjectSchema().WithAnyAdditionalProperties()
	keyOption := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("value", openapi3.NewStringSchema())
	progress := openapi3.NewObjectSchema().
		WithProperty("completed", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("current", openapi3.NewIntegerSchema()).
		WithProperty("editing", openapi3.NewStringSchema()).
		WithProperty("history", openapi3.NewArraySchema().WithItems(openapi3.NewIntegerSchema())).
		WithProperty("status", openapi3.NewStringSchema().WithEnum("active", "editing", "complete"))
	step := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewStringSchema()).
		WithProperty("table", openapi3.NewStringSchema()).
		WithProperty("index", openapi3.NewIntegerSchema()).
		WithProperty("visible", openapi3.NewBoolSchema()).
		WithProperty("displayable", openapi3.NewBoolSchema()).
		WithProperty("disabled", openapi3.NewBoolSchema()).
		WithProperty("completed", openapi3.NewBoolSchema()).
		WithProperty("current", openapi3.NewBoolSchema()).
		WithAnyAdditionalProperties()
	view := openapi3.NewObjectSchema().
		WithProperty("sessionId", openapi3.NewStringSchema()).
		WithProperty("steps", openapi3.NewArraySchema().WithItems(step)).
		WithProperty("progress", progress).
		WithProperty("fk", openapi3.NewObjectSchema().WithAdditionalProperties(openapi3.NewInt64Schema())).
		WithProperty("fkVersion", openapi3.NewInt64Schema()).
		WithProperty("finished", openapi3.NewBoolSchema()).
		WithAnyAdditionalProperties()
	outcome := openapi3.NewObjectSchema().
		WithProperty("done", openapi3.NewBoolSchema()).
		WithProperty("table", openapi3.NewStringSchema()).
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("awaiting", openapi3.NewStringSchema()).
		WithProperty("rowId", openapi3.NewInt64Schema())
	result := openapi3.NewObjectSchema().
		WithProperty("applied", openapi3.NewBoolSchema()).
		WithProperty("reason", openapi3.NewStringSchema())
	sectionError := openapi3.NewObjectSchema().
		WithProperty("stepId", openapi3.NewStringSchema()).
		WithProperty("section", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema()).
		WithProperty("fields", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
	issue := openapi3.NewObjectSchema().
		WithProperty("path", openapi3.NewStringSchema()).
		WithProperty("field", openapi3.NewStringSchema()).
		WithProperty("message", openapi3.NewStringSchema())
	column := openapi3.NewObjectSchema().
		WithProperty("key", openapi3.NewStringSchema()).
		WithProperty("table", openapi3.NewStringSchema()).
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("editable", openapi3.NewBoolSchema())
	gridRow := openapi3.NewObjectSchema().
		WithProperty("id", openapi3.NewInt64Schema()).
		WithProperty("values", record)

	errSchema := openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewStringSchema()).
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("section", sectionError).
		WithProperty("view", view)
	errSchema.Required = []string{"error"}

	selectRequest := openapi3.NewObjectSchema().
		WithProperty("value", &openapi3.Schema{})
	selectRequest.Required = []string{"value"}

	return map[string]*openapi3.Schema{
		SchemaRecord:      record,
		SchemaRows:        openapi3.NewArraySchema().WithItems(record),
		SchemaKeyOptions:  openapi3.NewArraySchema().WithItems(keyOption),
		SchemaWriteResult: openapi3.NewObjectSchema().WithProperty("id", openapi3.NewInt64Schema()),
		SchemaGrid: openapi3.NewObjectSchema().
			WithProperty("table", openapi3.NewStringSchema()).
			WithProperty("columns", openapi3.NewArraySchema().WithItems(column)).
			WithProperty("rows", openapi3.NewArraySchema().WithItems(gridRow)),
		SchemaError:      errSchema,
		SchemaWizardView: view,
		SchemaStepResponse: openapi3.NewObjectSchema().
			WithProperty("outcome", outcome).
			WithProperty("view", view),
		SchemaTransition: openapi3.NewObjectSchema().
			WithProperty("result", result).
			WithProperty("view", view),
		SchemaDraftResponse: openapi3.NewObjectSchema().
			WithProperty("draftId", openapi3.NewStringSchema()).
			WithProperty("view", view),
		SchemaSelectRequest: selectRequest,
		SchemaSelectResponse: openapi3.NewObjectSchema().
			WithProperty("record", record).
			WithProperty("view", view),
		SchemaFrames:       openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema().WithAnyAdditionalProperties()),
		SchemaSchemaConfig: openapi3.NewObjectSchema().WithAnyAdditionalProperties(),
		SchemaUIConfig:     openapi3.NewObjectSchema().WithAnyAdditionalProperties(),
		SchemaValidationResult: openapi3.NewObjectSchema().
			WithProperty("valid", openapi3.NewBoolSchema()).
			WithProperty("issues", openapi3.NewArraySchema().WithItems(issue)),
		SchemaHealth: openapi3.NewObjectSchema().
			WithProperty("status", openapi3.NewStringSchema()),
	}
}
